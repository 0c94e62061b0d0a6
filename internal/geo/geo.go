package geo

import (
	"math"

	"github.com/example/ride-dispatch/internal/models"
)

// DistanceFunc is any pure, symmetric, non-negative distance between two points.
type DistanceFunc func(a, b models.Location) float64

// Euclidean measures in raw coordinate units. It is the default fare distance.
func Euclidean(a, b models.Location) float64 {
	return a.DistanceTo(b)
}

// Haversine distance in meters
func Haversine(a, b models.Location) float64 {
	const R = 6371000.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}

// HaversineKm is Haversine scaled to kilometres, handy as a fare distance.
func HaversineKm(a, b models.Location) float64 {
	return Haversine(a, b) / 1000
}

// ByName resolves a configured distance function; unknown names fall back to Euclidean.
func ByName(name string) DistanceFunc {
	switch name {
	case "haversine_km":
		return HaversineKm
	case "haversine":
		return Haversine
	default:
		return Euclidean
	}
}
