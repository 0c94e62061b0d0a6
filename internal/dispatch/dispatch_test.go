package dispatch

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/pool"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/storage"
)

func driver(id string, c models.Category, rate float64, loc models.Location, rating float64) models.Driver {
	return models.Driver{
		ID:       id,
		Name:     "Driver " + id,
		Vehicle:  models.Vehicle{Plate: "KA-" + id, Category: c, Capacity: 4, FarePerUnit: rate},
		Location: loc,
		Rating:   rating,
	}
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recordingSender) Send(_ context.Context, m notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recordingSender) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Text
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []models.RideStatus
}

func (o *recordingObserver) OnRideStatusChanged(_ context.Context, _ ride.Snapshot, s models.RideStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, s)
	return nil
}

type failingObserver struct{}

func (failingObserver) Name() string { return "failing" }

func (failingObserver) OnRideStatusChanged(context.Context, ride.Snapshot, models.RideStatus) error {
	return errors.New("channel down")
}

// startTrip drives an assigned ride to IN_PROGRESS.
func startTrip(t *testing.T, s *Service, id string) {
	t.Helper()
	for _, st := range []models.RideStatus{models.StatusEnRouteToPickup, models.StatusInProgress} {
		_, err := s.UpdateRideStatus(context.Background(), id, st)
		require.NoError(t, err)
	}
}

type decliningProcessor struct{}

func (decliningProcessor) ProcessPayment(context.Context, ride.Snapshot, float64) error {
	return errors.New("card declined")
}

func newService(t *testing.T, cfg Config) *Service {
	t.Helper()
	s := New(cfg)
	require.NoError(t, s.RegisterRider(models.Rider{ID: "r1", Name: "Eve"}))
	return s
}

func request(c models.Category, pickup, drop models.Location) models.RideRequest {
	return models.RideRequest{RiderID: "r1", Pickup: pickup, Drop: drop, Category: c}
}

func TestRequestRideMatchesNearbyDriver(t *testing.T) {
	sender := &recordingSender{}
	s := newService(t, Config{Sender: sender})
	loc := models.Location{Lat: 12.97, Lon: 77.59}
	require.NoError(t, s.RegisterDriver(driver("d1", models.CategorySedan, 15, loc, 4.8)))

	snap, err := s.RequestRide(context.Background(), request(models.CategorySedan, loc, models.Location{Lat: 12.98, Lon: 77.60}))
	require.NoError(t, err)
	assert.Equal(t, "d1", snap.DriverID)
	assert.Equal(t, models.StatusDriverAssigned, snap.Status)
	assert.InDelta(t, math.Hypot(0.01, 0.01), snap.Distance, 1e-9)

	assert.Empty(t, s.AvailableDrivers())
	require.Len(t, s.OngoingRides(), 1)
	rider, err := s.Rider("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{snap.ID}, rider.History)

	assert.Equal(t, []string{
		"[Notification to Rider Eve]: Ride 1 is now DRIVER_ASSIGNED",
		"[Notification to Driver Driver d1]: Ride 1 is now DRIVER_ASSIGNED",
	}, sender.texts())
}

func TestRequestRideWithoutDriversIsCancelled(t *testing.T) {
	s := newService(t, Config{})
	require.NoError(t, s.RegisterDriver(driver("d1", models.CategorySedan, 15, models.Location{}, 4)))
	before := testutil.ToFloat64(observability.RidesCancelled.WithLabelValues("no_match"))

	snap, err := s.RequestRide(context.Background(), request(models.CategorySUV, models.Location{}, models.Location{Lat: 1}))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, snap.Status)
	assert.Empty(t, snap.DriverID)
	assert.Empty(t, s.OngoingRides())
	assert.Len(t, s.AvailableDrivers(), 1)
	assert.Equal(t, before+1, testutil.ToFloat64(observability.RidesCancelled.WithLabelValues("no_match")))
}

func TestRequestRideUnknownRider(t *testing.T) {
	s := newService(t, Config{})
	_, err := s.RequestRide(context.Background(), models.RideRequest{RiderID: "ghost", Category: models.CategorySedan})
	assert.ErrorIs(t, err, ErrRiderNotFound)

	_, err = s.RequestRide(context.Background(), models.RideRequest{RiderID: "r1", Category: "boat"})
	assert.ErrorIs(t, err, models.ErrUnknownCategory)
}

func TestCompleteRideAppliesSurgeThenDiscount(t *testing.T) {
	archive := storage.NewMemoryStore()
	sender := &recordingSender{}
	s := newService(t, Config{Archive: archive, Sender: sender})
	require.NoError(t, s.RegisterDriver(driver("d1", models.CategorySedan, 15, models.Location{}, 4.5)))
	require.NoError(t, s.ActivateSurge(1.5))
	ctx := context.Background()

	// distance 10: base 50 + 10*15 = 200, surge 300
	snap, err := s.RequestRide(ctx, request(models.CategorySedan, models.Location{}, models.Location{Lat: 6, Lon: 8}))
	require.NoError(t, err)
	startTrip(t, s, snap.ID)
	done, err := s.CompleteRide(ctx, snap.ID)
	require.NoError(t, err)
	require.NotNil(t, done.Fare)
	assert.InDelta(t, 300, *done.Fare, 1e-9)
	assert.True(t, done.Paid)
	assert.Equal(t, models.StatusCompleted, done.Status)

	require.NoError(t, s.SetRiderDiscount("r1", 50))
	snap, err = s.RequestRide(ctx, request(models.CategorySedan, models.Location{}, models.Location{Lat: 6, Lon: 8}))
	require.NoError(t, err)
	startTrip(t, s, snap.ID)
	done, err = s.CompleteRide(ctx, snap.ID)
	require.NoError(t, err)
	assert.InDelta(t, 250, *done.Fare, 1e-9)

	assert.Len(t, s.CompletedRides(), 2)
	assert.Len(t, s.AvailableDrivers(), 1)
	archived, err := archive.Rides(ctx)
	require.NoError(t, err)
	assert.Len(t, archived, 2)
	assert.Contains(t, sender.texts(), "[Notification to Rider Eve]: Payment of 250.00 successful.")
}

func TestCompleteRideTwiceIsNotFound(t *testing.T) {
	s := newService(t, Config{})
	require.NoError(t, s.RegisterDriver(driver("d1", models.CategorySedan, 15, models.Location{}, 4.5)))
	ctx := context.Background()
	snap, err := s.RequestRide(ctx, request(models.CategorySedan, models.Location{}, models.Location{Lat: 1}))
	require.NoError(t, err)
	startTrip(t, s, snap.ID)

	_, err = s.CompleteRide(ctx, snap.ID)
	require.NoError(t, err)
	_, err = s.CompleteRide(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrRideNotFound)
	_, err = s.UpdateRideStatus(ctx, snap.ID, models.StatusInProgress)
	assert.ErrorIs(t, err, ErrRideNotFound)

	found, err := s.Ride(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, found.Status)
}

func TestConcurrentRequestsForOneDriver(t *testing.T) {
	s := newService(t, Config{})
	require.NoError(t, s.RegisterDriver(driver("d1", models.CategorySedan, 15, models.Location{}, 4.5)))

	const n = 16
	results := make([]ride.Snapshot, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := s.RequestRide(context.Background(), request(models.CategorySedan, models.Location{}, models.Location{Lat: 1}))
			assert.NoError(t, err)
			results[i] = snap
		}(i)
	}
	wg.Wait()

	assigned := 0
	for _, r := range results {
		switch r.Status {
		case models.StatusDriverAssigned:
			assigned++
			assert.Equal(t, "d1", r.DriverID)
		case models.StatusCancelled:
			assert.Empty(t, r.DriverID)
		default:
			t.Fatalf("unexpected status %s", r.Status)
		}
	}
	assert.Equal(t, 1, assigned)
	assert.Len(t, s.OngoingRides(), 1)
}

// racingStrategy always proposes d1, even after it has been taken.
type racingStrategy struct{ calls int }

func (r *racingStrategy) Name() string { return "racing" }

func (r *racingStrategy) ChooseDriver(_ context.Context, _ models.RideRequest, _ []models.Driver) (models.Driver, bool) {
	r.calls++
	return models.Driver{ID: "d1"}, true
}

func TestRaceLostRetriesAreBounded(t *testing.T) {
	p := pool.New(nil)
	require.NoError(t, p.Register(driver("d1", models.CategorySedan, 15, models.Location{}, 4.5)))
	_, err := p.Withdraw("d1")
	require.NoError(t, err)

	st := &racingStrategy{}
	s := newService(t, Config{Pool: p, Strategy: st, MaxMatchAttempts: 4})
	before := testutil.ToFloat64(observability.RaceLostTotal)

	snap, err := s.RequestRide(context.Background(), request(models.CategorySedan, models.Location{}, models.Location{Lat: 1}))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, snap.Status)
	assert.Equal(t, 4, st.calls)
	assert.Equal(t, before+4, testutil.ToFloat64(observability.RaceLostTotal))
}

func TestPaymentFailureLeavesRideCompletedUnpaid(t *testing.T) {
	sender := &recordingSender{}
	s := newService(t, Config{Payments: decliningProcessor{}, Sender: sender})
	require.NoError(t, s.RegisterDriver(driver("d1", models.CategorySedan, 10, models.Location{}, 4.5)))
	ctx := context.Background()
	snap, err := s.RequestRide(ctx, request(models.CategorySedan, models.Location{}, models.Location{Lat: 3, Lon: 4}))
	require.NoError(t, err)
	startTrip(t, s, snap.ID)

	done, err := s.CompleteRide(ctx, snap.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.ErrorContains(t, err, "card declined")
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.False(t, done.Paid)
	require.NotNil(t, done.Fare)
	assert.InDelta(t, 100, *done.Fare, 1e-9)

	assert.Len(t, s.AvailableDrivers(), 1)
	assert.Len(t, s.CompletedRides(), 1)
	assert.Contains(t, sender.texts(), "[Notification to Rider Eve]: Payment of 100.00 for Ride 1 failed.")
}

func TestFullLifecycleNotifiesObserversInOrder(t *testing.T) {
	rec := &recordingObserver{}
	s := newService(t, Config{Observers: []ride.Observer{failingObserver{}, rec}})
	require.NoError(t, s.RegisterDriver(driver("d1", models.CategoryAuto, 8, models.Location{}, 4)))
	ctx := context.Background()
	before := testutil.ToFloat64(observability.NotificationFailures.WithLabelValues("failing"))

	snap, err := s.RequestRide(ctx, request(models.CategoryAuto, models.Location{}, models.Location{Lat: 1}))
	require.NoError(t, err)
	for _, st := range []models.RideStatus{models.StatusEnRouteToPickup, models.StatusInProgress, models.StatusCompleted} {
		_, err := s.UpdateRideStatus(ctx, snap.ID, st)
		require.NoError(t, err)
	}

	assert.Equal(t, []models.RideStatus{
		models.StatusDriverAssigned,
		models.StatusEnRouteToPickup,
		models.StatusInProgress,
		models.StatusCompleted,
	}, rec.statuses)
	assert.Equal(t, before+4, testutil.ToFloat64(observability.NotificationFailures.WithLabelValues("failing")))
	assert.Len(t, s.CompletedRides(), 1)
}

func TestUpdateRideStatusRejectsSkips(t *testing.T) {
	s := newService(t, Config{})
	require.NoError(t, s.RegisterDriver(driver("d1", models.CategorySedan, 15, models.Location{}, 4.5)))
	ctx := context.Background()
	snap, err := s.RequestRide(ctx, request(models.CategorySedan, models.Location{}, models.Location{Lat: 1}))
	require.NoError(t, err)

	got, err := s.UpdateRideStatus(ctx, snap.ID, models.StatusInProgress)
	assert.ErrorIs(t, err, ride.ErrInvalidTransition)
	assert.Equal(t, models.StatusDriverAssigned, got.Status)
}

func TestCompleteBeforeTripStartsIsRejected(t *testing.T) {
	s := newService(t, Config{})
	require.NoError(t, s.RegisterDriver(driver("d1", models.CategorySedan, 15, models.Location{}, 4.5)))
	ctx := context.Background()
	snap, err := s.RequestRide(ctx, request(models.CategorySedan, models.Location{}, models.Location{Lat: 1}))
	require.NoError(t, err)

	got, err := s.CompleteRide(ctx, snap.ID)
	assert.ErrorIs(t, err, ride.ErrInvalidTransition)
	assert.Equal(t, models.StatusDriverAssigned, got.Status)
	assert.Nil(t, got.Fare)
	assert.Empty(t, s.CompletedRides())
	assert.Empty(t, s.AvailableDrivers())
	require.Len(t, s.OngoingRides(), 1)
	assert.Equal(t, models.StatusDriverAssigned, s.OngoingRides()[0].Status)
}

func TestCancelReleasesDriver(t *testing.T) {
	s := newService(t, Config{})
	require.NoError(t, s.RegisterDriver(driver("d1", models.CategorySedan, 15, models.Location{}, 4.5)))
	ctx := context.Background()
	snap, err := s.RequestRide(ctx, request(models.CategorySedan, models.Location{}, models.Location{Lat: 1}))
	require.NoError(t, err)

	got, err := s.UpdateRideStatus(ctx, snap.ID, models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Empty(t, s.OngoingRides())
	assert.Len(t, s.AvailableDrivers(), 1)
	_, err = s.Ride(snap.ID)
	assert.ErrorIs(t, err, ErrRideNotFound)
}

func TestConcurrentCancelAndComplete(t *testing.T) {
	for i := 0; i < 20; i++ {
		archive := storage.NewMemoryStore()
		s := newService(t, Config{Archive: archive})
		require.NoError(t, s.RegisterDriver(driver("d1", models.CategorySedan, 15, models.Location{}, 4.5)))
		ctx := context.Background()
		snap, err := s.RequestRide(ctx, request(models.CategorySedan, models.Location{}, models.Location{Lat: 1}))
		require.NoError(t, err)
		startTrip(t, s, snap.ID)

		var (
			wg        sync.WaitGroup
			completed ride.Snapshot
			cancelled ride.Snapshot
			errs      = make([]error, 2)
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			completed, errs[0] = s.CompleteRide(ctx, snap.ID)
		}()
		go func() {
			defer wg.Done()
			cancelled, errs[1] = s.UpdateRideStatus(ctx, snap.ID, models.StatusCancelled)
		}()
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				assert.True(t, errors.Is(err, ride.ErrInvalidTransition) || errors.Is(err, ErrRideNotFound), err.Error())
			}
		}
		archived, err := archive.Rides(ctx)
		require.NoError(t, err)
		switch {
		case errs[0] == nil:
			require.Error(t, errs[1])
			assert.Equal(t, models.StatusCompleted, completed.Status)
			assert.Len(t, s.CompletedRides(), 1)
			assert.Len(t, archived, 1)
		case errs[1] == nil:
			assert.Equal(t, models.StatusCancelled, cancelled.Status)
			assert.Empty(t, s.CompletedRides())
			assert.Empty(t, archived)
		default:
			t.Fatalf("both lost: %v, %v", errs[0], errs[1])
		}

		drivers := s.AvailableDrivers()
		require.Len(t, drivers, 1)
		assert.Equal(t, models.DriverAvailable, drivers[0].Status)
		assert.Empty(t, s.OngoingRides())
	}
}

func TestByCreationOrdersSequenceIDsNumerically(t *testing.T) {
	at := time.Unix(1700000000, 0)
	rides := []ride.Snapshot{
		{ID: "10", CreatedAt: at},
		{ID: "9", CreatedAt: at},
		{ID: "11", CreatedAt: at},
		{ID: "2", CreatedAt: at.Add(time.Second)},
	}
	slices.SortFunc(rides, byCreation)

	ids := make([]string, len(rides))
	for i, r := range rides {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"9", "10", "11", "2"}, ids)
}

func TestSwitchingStrategyAffectsLaterRequests(t *testing.T) {
	s := newService(t, Config{})
	ctx := context.Background()
	require.NoError(t, s.RegisterDriver(driver("near", models.CategorySedan, 15, models.Location{Lat: 0.1}, 3.9)))
	require.NoError(t, s.RegisterDriver(driver("top", models.CategorySedan, 15, models.Location{Lat: 5}, 4.9)))
	require.NoError(t, s.RegisterDriver(driver("top2", models.CategorySedan, 15, models.Location{Lat: 9}, 4.9)))

	first, err := s.RequestRide(ctx, request(models.CategorySedan, models.Location{}, models.Location{Lat: 1}))
	require.NoError(t, err)
	assert.Equal(t, "near", first.DriverID)

	s.SetMatchingStrategy(matcher.BestRated{})
	assert.Equal(t, "best_rated", s.Strategy().Name())
	second, err := s.RequestRide(ctx, request(models.CategorySedan, models.Location{}, models.Location{Lat: 1}))
	require.NoError(t, err)
	assert.Equal(t, "top", second.DriverID)
}

func TestSurgeConfiguration(t *testing.T) {
	s := New(Config{})
	assert.ErrorIs(t, s.ActivateSurge(0.5), ErrInvalidSurge)
	active, _ := s.Surge()
	assert.False(t, active)

	require.NoError(t, s.ActivateSurge(2))
	active, m := s.Surge()
	assert.True(t, active)
	assert.Equal(t, 2.0, m)

	s.DeactivateSurge()
	active, _ = s.Surge()
	assert.False(t, active)
}

func TestDeregisterOnTripDriverFails(t *testing.T) {
	s := newService(t, Config{})
	require.NoError(t, s.RegisterDriver(driver("d1", models.CategorySedan, 15, models.Location{}, 4.5)))
	_, err := s.RequestRide(context.Background(), request(models.CategorySedan, models.Location{}, models.Location{Lat: 1}))
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeregisterDriver("d1"), pool.ErrDriverState)
}
