package models

import "fmt"

type DriverStatus string

const (
	DriverAvailable DriverStatus = "available"
	DriverOnTrip    DriverStatus = "on_trip"
	DriverOffline   DriverStatus = "offline"
)

const (
	MinRating = 0.0
	MaxRating = 5.0
)

type Driver struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Phone    string       `json:"phone"`
	Vehicle  Vehicle      `json:"vehicle"`
	Location Location     `json:"location"`
	Status   DriverStatus `json:"status"`
	Rating   float64      `json:"rating"` // 0..5
}

func (d Driver) String() string {
	return fmt.Sprintf("Driver{name=%q, vehicle=%s, loc=(%g, %g), rating=%g}",
		d.Name, d.Vehicle.Category, d.Location.Lat, d.Location.Lon, d.Rating)
}

func ValidRating(r float64) bool { return r >= MinRating && r <= MaxRating }
