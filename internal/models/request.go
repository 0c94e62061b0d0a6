package models

// RideRequest lives only for the matching operation that consumes it.
type RideRequest struct {
	RiderID  string   `json:"rider_id"`
	Pickup   Location `json:"pickup"`
	Drop     Location `json:"drop"`
	Category Category `json:"category"`
}
