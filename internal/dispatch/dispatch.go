// Package dispatch coordinates the driver pool, matching, the ride lifecycle,
// pricing and payment. One Service is built by the entry point and shared.
package dispatch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/ride-dispatch/internal/fare"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/ids"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/pool"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/riders"
	"github.com/example/ride-dispatch/internal/storage"
)

const DefaultMaxMatchAttempts = 3

var (
	ErrRideNotFound  = errors.New("ride not found or already completed")
	ErrRiderNotFound = riders.ErrRiderNotFound
	// ErrRaceLost means the chosen driver was withdrawn by a competing request
	// between the snapshot and the withdrawal.
	ErrRaceLost      = errors.New("driver taken by a concurrent request")
	ErrPaymentFailed = errors.New("payment failed")
	ErrInvalidSurge  = errors.New("surge multiplier must be >= 1")
)

type Config struct {
	Pool     *pool.Pool
	Riders   *riders.Directory
	Strategy matcher.Strategy
	Payments payments.Processor
	IDs      ids.Generator
	Distance geo.DistanceFunc
	// Archive receives every completed ride in addition to the in-process archive.
	Archive storage.TripStore
	Sender  notify.Sender
	// Observers are attached to every matched ride after the rider and driver notifiers.
	Observers        []ride.Observer
	MaxMatchAttempts int
	Logger           *zap.Logger
}

type Service struct {
	pool      *pool.Pool
	riders    *riders.Directory
	factory   *ride.Factory
	payments  payments.Processor
	archive   storage.TripStore
	completed *storage.MemoryStore
	observers []ride.Observer
	riderNote *notify.RiderNotifier
	attempts  int
	logger    *zap.Logger

	cfgMu       sync.RWMutex
	strategy    matcher.Strategy
	surgeActive bool
	surge       float64

	mu      sync.RWMutex
	ongoing map[string]*ride.Ride
}

func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Pool == nil {
		cfg.Pool = pool.New(logger)
	}
	if cfg.Riders == nil {
		cfg.Riders = riders.NewDirectory()
	}
	if cfg.Distance == nil {
		cfg.Distance = geo.Euclidean
	}
	if cfg.Strategy == nil {
		cfg.Strategy = matcher.Nearest{Distance: cfg.Distance}
	}
	if cfg.Payments == nil {
		cfg.Payments = payments.Approver{Logger: logger}
	}
	if cfg.IDs == nil {
		cfg.IDs = &ids.Sequence{}
	}
	if cfg.Sender == nil {
		cfg.Sender = notify.LogSender{Logger: logger}
	}
	if cfg.MaxMatchAttempts <= 0 {
		cfg.MaxMatchAttempts = DefaultMaxMatchAttempts
	}

	names := directory{pool: cfg.Pool, riders: cfg.Riders}
	riderNote := &notify.RiderNotifier{Names: names, Sender: cfg.Sender}
	observers := append([]ride.Observer{
		riderNote,
		&notify.DriverNotifier{Names: names, Sender: cfg.Sender},
	}, cfg.Observers...)

	return &Service{
		pool:      cfg.Pool,
		riders:    cfg.Riders,
		factory:   &ride.Factory{IDs: cfg.IDs, Distance: cfg.Distance, Logger: logger},
		payments:  cfg.Payments,
		archive:   cfg.Archive,
		completed: storage.NewMemoryStore(),
		observers: observers,
		riderNote: riderNote,
		attempts:  cfg.MaxMatchAttempts,
		logger:    logger,
		strategy:  cfg.Strategy,
		ongoing:   make(map[string]*ride.Ride),
	}
}

// RequestRide creates a ride and tries to match it. A ride that finds no driver
// is returned CANCELLED with a nil error.
func (s *Service) RequestRide(ctx context.Context, req models.RideRequest) (ride.Snapshot, error) {
	observability.RidesRequested.Inc()
	start := time.Now()

	if !req.Category.Valid() {
		return ride.Snapshot{}, fmt.Errorf("%w: %q", models.ErrUnknownCategory, req.Category)
	}
	if _, err := s.riders.Get(req.RiderID); err != nil {
		return ride.Snapshot{}, err
	}
	r, err := s.factory.Create(ctx, req)
	if err != nil {
		return ride.Snapshot{}, err
	}
	if err := s.riders.AppendHistory(req.RiderID, r.ID()); err != nil {
		return ride.Snapshot{}, err
	}
	logger := s.logger.With(zap.String("ride_id", r.ID()), zap.String("rider_id", req.RiderID))

	strategy := s.Strategy()
	var driver models.Driver
	matched := false
	for attempt := 1; attempt <= s.attempts; attempt++ {
		driver, err = s.match(ctx, req, strategy)
		if errors.Is(err, ErrRaceLost) {
			observability.RaceLostTotal.Inc()
			logger.Debug("match race lost, retrying", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		matched = err == nil
		break
	}

	if !matched {
		logger.Info("no available driver, cancelling ride", zap.String("category", string(req.Category)))
		if err := r.UpdateStatus(ctx, models.StatusCancelled); err != nil {
			return r.Snapshot(), err
		}
		observability.RidesCancelled.WithLabelValues("no_match").Inc()
		return r.Snapshot(), nil
	}

	for _, o := range s.observers {
		r.Attach(o)
	}
	if err := r.AssignDriver(ctx, driver.ID); err != nil {
		_ = s.pool.Release(driver.ID)
		return r.Snapshot(), err
	}

	s.mu.Lock()
	s.ongoing[r.ID()] = r
	s.mu.Unlock()

	observability.MatchesTotal.Inc()
	observability.MatchLatency.Observe(time.Since(start).Seconds())
	logger.Info("ride matched", zap.String("driver_id", driver.ID), zap.String("strategy", strategy.Name()))
	return r.Snapshot(), nil
}

// match picks a driver from a fresh snapshot and withdraws it. errNoMatch means
// no candidate exists; ErrRaceLost means the pick was taken concurrently.
func (s *Service) match(ctx context.Context, req models.RideRequest, strategy matcher.Strategy) (models.Driver, error) {
	candidates := s.pool.SnapshotAvailable(req.Category)
	d, ok := strategy.ChooseDriver(ctx, req, candidates)
	if !ok {
		return models.Driver{}, errNoMatch
	}
	withdrawn, err := s.pool.Withdraw(d.ID)
	if err != nil {
		return models.Driver{}, fmt.Errorf("%w: %w", ErrRaceLost, err)
	}
	return withdrawn, nil
}

var errNoMatch = errors.New("no matching driver")

// UpdateRideStatus moves an ongoing ride forward. COMPLETED runs the full
// completion; CANCELLED frees the driver and drops the ride.
func (s *Service) UpdateRideStatus(ctx context.Context, id string, status models.RideStatus) (ride.Snapshot, error) {
	if status == models.StatusCompleted {
		return s.CompleteRide(ctx, id)
	}
	r, err := s.lookup(id)
	if err != nil {
		return ride.Snapshot{}, err
	}
	if err := r.UpdateStatus(ctx, status); err != nil {
		return r.Snapshot(), err
	}
	if status != models.StatusCancelled {
		return r.Snapshot(), nil
	}

	s.remove(id)
	observability.RidesCancelled.WithLabelValues("cancelled").Inc()
	snap := r.Snapshot()
	if err := s.pool.Release(snap.DriverID); err != nil {
		return snap, err
	}
	return snap, nil
}

// CompleteRide finishes an ongoing ride: COMPLETED, fare, payment, driver
// release and archive. A failed payment leaves the ride COMPLETED and unpaid
// and is reported wrapped in ErrPaymentFailed.
func (s *Service) CompleteRide(ctx context.Context, id string) (ride.Snapshot, error) {
	r, err := s.lookup(id)
	if err != nil {
		return ride.Snapshot{}, err
	}
	if err := r.UpdateStatus(ctx, models.StatusCompleted); err != nil {
		return r.Snapshot(), err
	}
	logger := s.logger.With(zap.String("ride_id", id))
	snap := r.Snapshot()

	var errs []error
	driver, err := s.pool.Get(snap.DriverID)
	if err != nil {
		errs = append(errs, err)
	}
	var discount float64
	if rider, err := s.riders.Get(snap.RiderID); err == nil && rider.HasDiscount() {
		discount = rider.Discount
	}
	active, multiplier := s.Surge()

	amount := fare.Plan(active, multiplier, discount).Calculate(fare.Facts{
		Distance:    snap.Distance,
		FarePerUnit: driver.Vehicle.FarePerUnit,
	})
	if err := r.SetFare(amount); err != nil {
		errs = append(errs, err)
	}
	observability.FareAmount.Observe(amount)
	snap = r.Snapshot()

	payErr := s.payments.ProcessPayment(ctx, snap, amount)
	r.MarkPaid(payErr == nil)
	if payErr != nil {
		observability.PaymentsFailed.Inc()
		logger.Warn("payment failed", zap.Float64("amount", amount), zap.Error(payErr))
		errs = append(errs, fmt.Errorf("%w: ride %s: %w", ErrPaymentFailed, id, payErr))
	}
	if err := s.riderNote.NotifyPayment(ctx, snap, amount, payErr == nil); err != nil {
		logger.Warn("payment notification failed", zap.Error(err))
	}

	if err := s.pool.Release(snap.DriverID); err != nil {
		errs = append(errs, err)
	}

	snap = r.Snapshot()
	if err := s.completed.SaveRide(ctx, snap); err != nil {
		errs = append(errs, err)
	}
	s.remove(id)
	if s.archive != nil {
		if err := s.archive.SaveRide(ctx, snap); err != nil {
			logger.Error("archive ride failed", zap.Error(err))
			errs = append(errs, err)
		}
	}

	observability.RidesCompleted.Inc()
	logger.Info("ride completed and archived",
		zap.String("driver_id", snap.DriverID),
		zap.Float64("fare", amount),
		zap.Bool("paid", snap.Paid),
	)
	return snap, errors.Join(errs...)
}

func (s *Service) lookup(id string) (*ride.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.ongoing[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRideNotFound, id)
	}
	return r, nil
}

func (s *Service) remove(id string) {
	s.mu.Lock()
	delete(s.ongoing, id)
	s.mu.Unlock()
}

// SetMatchingStrategy takes effect for requests that start after it returns.
func (s *Service) SetMatchingStrategy(st matcher.Strategy) {
	if st == nil {
		return
	}
	s.cfgMu.Lock()
	s.strategy = st
	s.cfgMu.Unlock()
	s.logger.Info("matching strategy changed", zap.String("strategy", st.Name()))
}

func (s *Service) Strategy() matcher.Strategy {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.strategy
}

func (s *Service) ActivateSurge(multiplier float64) error {
	if multiplier < 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidSurge, multiplier)
	}
	s.cfgMu.Lock()
	s.surgeActive, s.surge = true, multiplier
	s.cfgMu.Unlock()
	s.logger.Info("surge activated", zap.Float64("multiplier", multiplier))
	return nil
}

func (s *Service) DeactivateSurge() {
	s.cfgMu.Lock()
	s.surgeActive, s.surge = false, 0
	s.cfgMu.Unlock()
	s.logger.Info("surge deactivated")
}

// Surge reports whether surge pricing is on and its multiplier.
func (s *Service) Surge() (bool, float64) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.surgeActive, s.surge
}

func (s *Service) RegisterDriver(d models.Driver) error { return s.pool.Register(d) }

func (s *Service) DeregisterDriver(id string) error { return s.pool.Deregister(id) }

func (s *Service) RegisterRider(r models.Rider) error { return s.riders.Register(r) }

func (s *Service) SetRiderDiscount(id string, amount float64) error {
	return s.riders.SetDiscount(id, amount)
}

func (s *Service) Rider(id string) (models.Rider, error) { return s.riders.Get(id) }

// AvailableDrivers lists every available driver in availability order.
func (s *Service) AvailableDrivers() []models.Driver { return s.pool.Available() }

// Ride finds a ride among ongoing and completed rides.
func (s *Service) Ride(id string) (ride.Snapshot, error) {
	if r, err := s.lookup(id); err == nil {
		return r.Snapshot(), nil
	}
	snap, err := s.completed.Ride(context.Background(), id)
	if err != nil {
		return ride.Snapshot{}, fmt.Errorf("%w: %s", ErrRideNotFound, id)
	}
	return snap, nil
}

func (s *Service) OngoingRides() []ride.Snapshot {
	s.mu.RLock()
	out := make([]ride.Snapshot, 0, len(s.ongoing))
	for _, r := range s.ongoing {
		out = append(out, r.Snapshot())
	}
	s.mu.RUnlock()
	slices.SortFunc(out, byCreation)
	return out
}

// byCreation orders rides by creation time, then by sequence ID. Sequence IDs
// are decimal, so a shorter ID is always the earlier one.
func byCreation(a, b ride.Snapshot) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	if c := cmp.Compare(len(a.ID), len(b.ID)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// CompletedRides lists archived rides in completion order.
func (s *Service) CompletedRides() []ride.Snapshot {
	out, _ := s.completed.Rides(context.Background())
	return out
}
