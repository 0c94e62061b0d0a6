package models

import (
	"fmt"
	"math"
)

// Location is an immutable coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceTo is the planar distance between the raw coordinates.
// Callers needing earth-surface distances use geo.Haversine instead.
func (l Location) DistanceTo(other Location) float64 {
	dLat := l.Lat - other.Lat
	dLon := l.Lon - other.Lon
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

func (l Location) String() string {
	return fmt.Sprintf("(%g, %g)", l.Lat, l.Lon)
}
