package eta

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	ctx    = context.Background()
	origin = models.Location{Lat: 12.9716, Lon: 77.5946}
	dest   = models.Location{Lat: 12.9850, Lon: 77.5950}
)

type stubEstimator struct {
	v     float64
	err   error
	calls int
}

func (s *stubEstimator) EstimateSeconds(_ context.Context, _, _ models.Location) (float64, error) {
	s.calls++
	return s.v, s.err
}

func TestNaiveUsesDefaultSpeed(t *testing.T) {
	fast, err := Naive{SpeedMps: 16}.EstimateSeconds(ctx, origin, dest)
	require.NoError(t, err)
	slow, err := Naive{}.EstimateSeconds(ctx, origin, dest)
	require.NoError(t, err)
	assert.InDelta(t, slow/2, fast, 1e-9)
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Set(origin, dest, 42)
	v, ok := c.Get(origin, dest)
	require.True(t, ok)
	assert.Equal(t, 42.0, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(origin, dest)
	assert.False(t, ok)
}

func TestRoutedCachesBackendAnswers(t *testing.T) {
	backend := &stubEstimator{v: 90}
	r := &Routed{Backend: backend, Cache: NewCache(time.Minute)}

	for i := 0; i < 3; i++ {
		v, err := r.EstimateSeconds(ctx, origin, dest)
		require.NoError(t, err)
		assert.Equal(t, 90.0, v)
	}
	assert.Equal(t, 1, backend.calls)
}

// stalled answers only once ctx is done.
type stalled struct{}

func (stalled) EstimateSeconds(ctx context.Context, _, _ models.Location) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestRoutedTimeoutUsesFallback(t *testing.T) {
	cache := NewCache(time.Minute)
	r := &Routed{Backend: stalled{}, Cache: cache, Fallback: &stubEstimator{v: 7}, Timeout: 20 * time.Millisecond}

	v, err := r.EstimateSeconds(ctx, origin, dest)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
	_, ok := cache.Get(origin, dest)
	assert.False(t, ok)
}

func TestRoutedFallsBack(t *testing.T) {
	backend := &stubEstimator{err: errors.New("down")}
	fallback := &stubEstimator{v: 7}
	r := &Routed{Backend: backend, Fallback: fallback}

	v, err := r.EstimateSeconds(ctx, origin, dest)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	naive, _ := Naive{}.EstimateSeconds(ctx, origin, dest)
	v, err = (&Routed{Backend: backend}).EstimateSeconds(ctx, origin, dest)
	require.NoError(t, err)
	assert.Equal(t, naive, v)
}

func TestOSRMClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/route/v1/driving/77.594600,12.971600;77.595000,12.985000"))
		w.Write([]byte(`{"code":"Ok","routes":[{"duration":123.4}]}`))
	}))
	defer srv.Close()

	v, err := NewOSRMClient(srv.URL).EstimateSeconds(ctx, origin, dest)
	require.NoError(t, err)
	assert.Equal(t, 123.4, v)
}

func TestOSRMClientNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer srv.Close()

	_, err := NewOSRMClient(srv.URL).EstimateSeconds(ctx, origin, dest)
	assert.ErrorContains(t, err, "NoRoute")
}

func TestOSRMClientStopsWithContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := NewOSRMClient(srv.URL).EstimateSeconds(c, origin, dest)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), osrmTimeout)
}

func TestOSRMClientBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOSRMClient(srv.URL).EstimateSeconds(ctx, origin, dest)
	assert.ErrorContains(t, err, "status 503")
}
