// Package pool keeps the registry of known drivers and the subset available for matching.
package pool

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

var (
	ErrDuplicateDriver    = errors.New("driver already registered")
	ErrDriverNotFound     = errors.New("driver not found")
	ErrDriverNotAvailable = errors.New("driver not available")
	ErrDriverState        = errors.New("driver in wrong state")
	ErrInvalidRating      = errors.New("rating out of range")
)

// Pool is safe for concurrent use. Drivers are stored by value and every read
// hands out copies, so callers never observe a driver mid-mutation.
type Pool struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
	// available holds driver IDs in the order they became available.
	available []string
	logger    *zap.Logger
}

func New(logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{drivers: make(map[string]models.Driver), logger: logger}
}

// Register adds a driver and makes it visible to matching.
func (p *Pool) Register(d models.Driver) error {
	if d.ID == "" {
		return errors.New("driver id is required")
	}
	if err := d.Vehicle.Validate(); err != nil {
		return fmt.Errorf("driver %s: %w", d.ID, err)
	}
	if !models.ValidRating(d.Rating) {
		return fmt.Errorf("driver %s: %w: %v", d.ID, ErrInvalidRating, d.Rating)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.drivers[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDriver, d.ID)
	}
	d.Status = models.DriverAvailable
	p.drivers[d.ID] = d
	p.available = append(p.available, d.ID)
	p.syncGauge()
	p.logger.Info("driver registered", zap.Stringer("driver", d))
	return nil
}

// Deregister takes a driver offline and forgets it. Unknown IDs are a no-op.
// A driver on a trip cannot go offline until the trip is released.
func (p *Pool) Deregister(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.drivers[id]
	if !ok {
		return nil
	}
	if d.Status == models.DriverOnTrip {
		return fmt.Errorf("%w: %s is on a trip", ErrDriverState, id)
	}
	p.removeAvailable(id)
	d.Status = models.DriverOffline
	delete(p.drivers, id)
	p.syncGauge()
	p.logger.Info("driver deregistered", zap.Stringer("driver", d))
	return nil
}

// SnapshotAvailable returns copies of the available drivers of the given category.
func (p *Pool) SnapshotAvailable(c models.Category) []models.Driver {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Driver, 0, len(p.available))
	for _, id := range p.available {
		d := p.drivers[id]
		if d.Vehicle.Category == c {
			out = append(out, d)
		}
	}
	return out
}

// Available returns every available driver regardless of category.
func (p *Pool) Available() []models.Driver {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Driver, 0, len(p.available))
	for _, id := range p.available {
		out = append(out, p.drivers[id])
	}
	return out
}

// Withdraw moves an available driver onto a trip. It is the only way out of the
// available set for matching, so two requests can never both hold the same driver.
func (p *Pool) Withdraw(id string) (models.Driver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.drivers[id]
	if !ok || d.Status != models.DriverAvailable {
		return models.Driver{}, fmt.Errorf("%w: %s", ErrDriverNotAvailable, id)
	}
	p.removeAvailable(id)
	d.Status = models.DriverOnTrip
	p.drivers[id] = d
	p.syncGauge()
	return d, nil
}

// Release returns an on-trip driver to the tail of the available set.
func (p *Pool) Release(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.drivers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDriverNotFound, id)
	}
	if d.Status != models.DriverOnTrip {
		return fmt.Errorf("%w: %s is %s, not on trip", ErrDriverState, id, d.Status)
	}
	d.Status = models.DriverAvailable
	p.drivers[id] = d
	p.available = append(p.available, id)
	p.syncGauge()
	p.logger.Info("driver available", zap.String("driver_id", id))
	return nil
}

func (p *Pool) Get(id string) (models.Driver, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.drivers[id]
	if !ok {
		return models.Driver{}, fmt.Errorf("%w: %s", ErrDriverNotFound, id)
	}
	return d, nil
}

func (p *Pool) UpdateLocation(id string, loc models.Location) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.drivers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDriverNotFound, id)
	}
	d.Location = loc
	p.drivers[id] = d
	return nil
}

func (p *Pool) UpdateRating(id string, rating float64) error {
	if !models.ValidRating(rating) {
		return fmt.Errorf("%w: %v", ErrInvalidRating, rating)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.drivers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDriverNotFound, id)
	}
	d.Rating = rating
	p.drivers[id] = d
	return nil
}

// Len is the number of registered drivers in any state.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.drivers)
}

// callers hold p.mu
func (p *Pool) removeAvailable(id string) {
	if i := slices.Index(p.available, id); i >= 0 {
		p.available = slices.Delete(p.available, i, i+1)
	}
}

func (p *Pool) syncGauge() {
	observability.DriversAvailable.Set(float64(len(p.available)))
}
