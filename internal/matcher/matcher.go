package matcher

import (
	"context"
	"fmt"
	"math"

	"github.com/example/ride-dispatch/internal/eta"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// Strategy picks one driver for a request. Implementations must not mutate their
// inputs, must be deterministic, and must never return a driver whose vehicle
// category differs from the request. ctx bounds any remote lookups.
type Strategy interface {
	Name() string
	ChooseDriver(ctx context.Context, req models.RideRequest, candidates []models.Driver) (models.Driver, bool)
}

// Nearest picks the driver closest to pickup. Ties go to the first listed candidate.
type Nearest struct {
	Distance geo.DistanceFunc
}

func (Nearest) Name() string { return "nearest" }

func (s Nearest) ChooseDriver(_ context.Context, req models.RideRequest, candidates []models.Driver) (models.Driver, bool) {
	dist := s.Distance
	if dist == nil {
		dist = geo.Euclidean
	}
	return pickMin(req, candidates, func(d models.Driver) float64 {
		return dist(d.Location, req.Pickup)
	})
}

// BestRated picks the highest rated driver. Ties go to the first listed candidate.
type BestRated struct{}

func (BestRated) Name() string { return "best_rated" }

func (BestRated) ChooseDriver(_ context.Context, req models.RideRequest, candidates []models.Driver) (models.Driver, bool) {
	return pickMin(req, candidates, func(d models.Driver) float64 { return -d.Rating })
}

const defaultRatingWeight = 30.0

// Weighted trades pickup ETA against rating:
// cost = eta_seconds + RatingWeight*(5 - rating). Lowest cost wins.
type Weighted struct {
	Estimator    eta.Estimator
	RatingWeight float64
}

func (Weighted) Name() string { return "weighted" }

func (s Weighted) ChooseDriver(ctx context.Context, req models.RideRequest, candidates []models.Driver) (models.Driver, bool) {
	est := s.Estimator
	if est == nil {
		est = eta.Naive{}
	}
	w := s.RatingWeight
	if w <= 0 {
		w = defaultRatingWeight
	}
	return pickMin(req, candidates, func(d models.Driver) float64 {
		etaSec, err := est.EstimateSeconds(ctx, d.Location, req.Pickup)
		if err != nil {
			// unreachable drivers are ranked last rather than dropped
			return math.Inf(1)
		}
		return etaSec + w*(models.MaxRating-d.Rating)
	})
}

// pickMin returns the same-category candidate with the lowest score, keeping the
// first one on ties. A candidate scored +Inf is still eligible when it is the only one.
func pickMin(req models.RideRequest, candidates []models.Driver, score func(models.Driver) float64) (models.Driver, bool) {
	var (
		best      models.Driver
		bestScore float64
		found     bool
	)
	for _, d := range candidates {
		if d.Vehicle.Category != req.Category {
			continue
		}
		sc := score(d)
		if !found || sc < bestScore {
			best, bestScore, found = d, sc, true
		}
	}
	return best, found
}

// Options carries what the configurable strategies need.
type Options struct {
	Distance     geo.DistanceFunc
	Estimator    eta.Estimator
	RatingWeight float64
}

// ByName resolves a configured strategy name.
func ByName(name string, opts Options) (Strategy, error) {
	switch name {
	case "", "nearest":
		return Nearest{Distance: opts.Distance}, nil
	case "best_rated":
		return BestRated{}, nil
	case "weighted":
		return Weighted{Estimator: opts.Estimator, RatingWeight: opts.RatingWeight}, nil
	}
	return nil, fmt.Errorf("unknown matching strategy %q", name)
}
