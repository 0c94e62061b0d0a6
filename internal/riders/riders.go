// Package riders stores rider records. Rides are referenced by identifier only.
package riders

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	ErrRiderNotFound  = errors.New("rider not found")
	ErrDuplicateRider = errors.New("rider already registered")
	ErrNegativeAmount = errors.New("discount must not be negative")
)

type Directory struct {
	mu     sync.RWMutex
	riders map[string]models.Rider
}

func NewDirectory() *Directory {
	return &Directory{riders: make(map[string]models.Rider)}
}

func (d *Directory) Register(r models.Rider) error {
	if r.ID == "" {
		return errors.New("rider id is required")
	}
	if r.Discount < 0 {
		return ErrNegativeAmount
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.riders[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRider, r.ID)
	}
	r.History = slices.Clone(r.History)
	d.riders[r.ID] = r
	return nil
}

// Get returns a copy; mutating it has no effect on the directory.
func (d *Directory) Get(id string) (models.Rider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.riders[id]
	if !ok {
		return models.Rider{}, fmt.Errorf("%w: %s", ErrRiderNotFound, id)
	}
	r.History = slices.Clone(r.History)
	return r, nil
}

func (d *Directory) AppendHistory(id, rideID string) error {
	return d.update(id, func(r *models.Rider) error {
		r.History = append(r.History, rideID)
		return nil
	})
}

func (d *Directory) SetDiscount(id string, amount float64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	return d.update(id, func(r *models.Rider) error {
		r.Discount = amount
		return nil
	})
}

func (d *Directory) UpdateLocation(id string, loc models.Location) error {
	return d.update(id, func(r *models.Rider) error {
		r.Location = loc
		return nil
	})
}

func (d *Directory) update(id string, fn func(*models.Rider) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.riders[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRiderNotFound, id)
	}
	if err := fn(&r); err != nil {
		return err
	}
	d.riders[id] = r
	return nil
}
