package models

import "fmt"

// RideStatus values are ordered along the ride lifecycle.
type RideStatus int

const (
	StatusRequested RideStatus = iota
	StatusDriverAssigned
	StatusEnRouteToPickup
	StatusInProgress
	StatusCompleted
	StatusCancelled
)

var statusNames = [...]string{
	StatusRequested:       "REQUESTED",
	StatusDriverAssigned:  "DRIVER_ASSIGNED",
	StatusEnRouteToPickup: "EN_ROUTE_TO_PICKUP",
	StatusInProgress:      "IN_PROGRESS",
	StatusCompleted:       "COMPLETED",
	StatusCancelled:       "CANCELLED",
}

func (s RideStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "UNKNOWN"
	}
	return statusNames[s]
}

// ParseRideStatus is the inverse of String.
func ParseRideStatus(name string) (RideStatus, bool) {
	for i, n := range statusNames {
		if n == name {
			return RideStatus(i), true
		}
	}
	return 0, false
}

func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s RideStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RideStatus) UnmarshalText(b []byte) error {
	v, ok := ParseRideStatus(string(b))
	if !ok {
		return fmt.Errorf("unknown ride status %q", string(b))
	}
	*s = v
	return nil
}
