package ride

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/ids"
	"github.com/example/ride-dispatch/internal/models"
)

// Factory is the only place rides are created: it assigns the identifier and
// fixes the distance for the ride's lifetime.
type Factory struct {
	IDs      ids.Generator
	Distance geo.DistanceFunc
	Logger   *zap.Logger
}

func (f *Factory) Create(ctx context.Context, req models.RideRequest) (*Ride, error) {
	id, err := f.IDs.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	dist := f.Distance
	if dist == nil {
		dist = geo.Euclidean
	}
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return newRide(id, req, dist(req.Pickup, req.Drop), logger), nil
}
