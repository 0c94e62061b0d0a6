// Package storage archives rides that have left the ongoing registry.
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/example/ride-dispatch/internal/ride"
)

var ErrRideNotFound = errors.New("ride not found in archive")

// TripStore keeps finished rides. SaveRide overwrites an earlier copy with the same ID.
type TripStore interface {
	SaveRide(ctx context.Context, snap ride.Snapshot) error
	Ride(ctx context.Context, id string) (ride.Snapshot, error)
	Rides(ctx context.Context) ([]ride.Snapshot, error)
}

type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]ride.Snapshot
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]ride.Snapshot)}
}

func (m *MemoryStore) SaveRide(_ context.Context, snap ride.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[snap.ID]; !ok {
		m.order = append(m.order, snap.ID)
	}
	m.rides[snap.ID] = snap
	return nil
}

func (m *MemoryStore) Ride(_ context.Context, id string) (ride.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.rides[id]
	if !ok {
		return ride.Snapshot{}, ErrRideNotFound
	}
	return s, nil
}

// Rides lists archived rides in the order they were first saved.
func (m *MemoryStore) Rides(_ context.Context) ([]ride.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ride.Snapshot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rides[id])
	}
	return out, nil
}
