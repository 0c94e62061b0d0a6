package dispatch

import (
	"github.com/example/ride-dispatch/internal/pool"
	"github.com/example/ride-dispatch/internal/riders"
)

// directory resolves party names by ID; unknown IDs are shown as-is.
type directory struct {
	pool   *pool.Pool
	riders *riders.Directory
}

func (d directory) RiderName(id string) string {
	if r, err := d.riders.Get(id); err == nil {
		return r.Name
	}
	return id
}

func (d directory) DriverName(id string) string {
	if dr, err := d.pool.Get(id); err == nil {
		return dr.Name
	}
	return id
}
