package eta

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// Estimator returns travel time in seconds between two points. Remote
// estimators stop when ctx is done.
type Estimator interface {
	EstimateSeconds(ctx context.Context, from, to models.Location) (float64, error)
}

const defaultSpeedMps = 8.0 // ~28.8 km/h city speed

// Naive ETA: great-circle distance / speed. Deterministic and never fails.
type Naive struct {
	SpeedMps float64
}

func (n Naive) EstimateSeconds(_ context.Context, from, to models.Location) (float64, error) {
	speed := n.SpeedMps
	if speed <= 0 {
		speed = defaultSpeedMps
	}
	return geo.Haversine(from, to) / speed, nil
}

// Cache is a tiny in-memory cache for ETA lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

func keyFor(a, b models.Location) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Location) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Location) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if c.now().Sub(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

// Set stores a value in the cache.
func (c *Cache) Set(a, b models.Location, v float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: c.now()}
	c.mu.Unlock()
}

// Routed asks a routing backend first, remembers answers in Cache and falls
// back to Fallback when the backend errors or overruns Timeout.
type Routed struct {
	Backend  Estimator
	Cache    *Cache
	Fallback Estimator
	Timeout  time.Duration
}

func (r *Routed) EstimateSeconds(ctx context.Context, from, to models.Location) (float64, error) {
	if r.Cache != nil {
		if v, ok := r.Cache.Get(from, to); ok {
			return v, nil
		}
	}
	if r.Backend != nil {
		if v, err := r.backend(ctx, from, to); err == nil {
			if r.Cache != nil {
				r.Cache.Set(from, to, v)
			}
			return v, nil
		}
	}
	if r.Fallback == nil {
		return Naive{}.EstimateSeconds(ctx, from, to)
	}
	return r.Fallback.EstimateSeconds(ctx, from, to)
}

func (r *Routed) backend(ctx context.Context, from, to models.Location) (float64, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	return r.Backend.EstimateSeconds(ctx, from, to)
}
