// Package ride holds the ride lifecycle state machine and its observer fan-out.
package ride

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

var (
	ErrInvalidTransition     = errors.New("invalid ride status transition")
	ErrDriverAlreadyAssigned = errors.New("ride already has a driver")
	ErrFareBeforeCompletion  = errors.New("fare can only be set on a completed ride")
)

// transitions is the lifecycle graph. CANCELLED is added for every non-terminal state.
var transitions = map[models.RideStatus]models.RideStatus{
	models.StatusRequested:       models.StatusDriverAssigned,
	models.StatusDriverAssigned:  models.StatusEnRouteToPickup,
	models.StatusEnRouteToPickup: models.StatusInProgress,
	models.StatusInProgress:      models.StatusCompleted,
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to models.RideStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == models.StatusCancelled {
		return true
	}
	next, ok := transitions[from]
	return ok && next == to
}

// Observer receives every status change of the rides it is attached to.
// It runs on the caller's goroutine while the ride is locked: it must return
// promptly and must not call back into the Ride.
type Observer interface {
	OnRideStatusChanged(ctx context.Context, snap Snapshot, status models.RideStatus) error
}

// Snapshot is an immutable copy of a ride's state.
type Snapshot struct {
	ID        string            `json:"id"`
	RiderID   string            `json:"rider_id"`
	DriverID  string            `json:"driver_id,omitempty"`
	Pickup    models.Location   `json:"pickup"`
	Drop      models.Location   `json:"drop"`
	Category  models.Category   `json:"category"`
	Status    models.RideStatus `json:"status"`
	Distance  float64           `json:"distance"`
	Fare      *float64          `json:"fare,omitempty"`
	Paid      bool              `json:"paid"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Ride is safe for concurrent use; one mutex serializes every transition and
// the notifications that follow it.
type Ride struct {
	mu sync.Mutex

	id       string
	riderID  string
	driverID string
	pickup   models.Location
	drop     models.Location
	category models.Category
	distance float64

	status    models.RideStatus
	fare      *float64
	paid      bool
	createdAt time.Time
	updatedAt time.Time

	observers []Observer
	logger    *zap.Logger
}

func newRide(id string, req models.RideRequest, distance float64, logger *zap.Logger) *Ride {
	now := time.Now()
	return &Ride{
		id:        id,
		riderID:   req.RiderID,
		pickup:    req.Pickup,
		drop:      req.Drop,
		category:  req.Category,
		distance:  distance,
		status:    models.StatusRequested,
		createdAt: now,
		updatedAt: now,
		logger:    logger.With(zap.String("ride_id", id)),
	}
}

func (r *Ride) ID() string { return r.id }

func (r *Ride) Status() models.RideStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Ride) DriverID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.driverID
}

func (r *Ride) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// AssignDriver sets the driver exactly once and moves REQUESTED to DRIVER_ASSIGNED.
func (r *Ride) AssignDriver(ctx context.Context, driverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return r.transitionErr(models.StatusDriverAssigned)
	}
	if r.driverID != "" {
		return fmt.Errorf("%w: ride %s has driver %s", ErrDriverAlreadyAssigned, r.id, r.driverID)
	}
	if !CanTransition(r.status, models.StatusDriverAssigned) {
		return r.transitionErr(models.StatusDriverAssigned)
	}
	r.driverID = driverID
	r.setStatusLocked(ctx, models.StatusDriverAssigned)
	return nil
}

// UpdateStatus commits a legal transition and then notifies observers in
// attachment order. Observer failures never undo the transition.
// DRIVER_ASSIGNED is only reachable through AssignDriver.
func (r *Ride) UpdateStatus(ctx context.Context, s models.RideStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s == models.StatusDriverAssigned || !CanTransition(r.status, s) {
		return r.transitionErr(s)
	}
	r.setStatusLocked(ctx, s)
	return nil
}

func (r *Ride) SetFare(amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != models.StatusCompleted {
		return fmt.Errorf("%w: ride %s is %s", ErrFareBeforeCompletion, r.id, r.status)
	}
	r.fare = &amount
	r.updatedAt = time.Now()
	return nil
}

func (r *Ride) MarkPaid(paid bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paid = paid
	r.updatedAt = time.Now()
}

func (r *Ride) Attach(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Detach removes the first attachment of o; unknown observers are ignored.
// Observers are matched by identity, so attach pointers to detach them later:
// a value of an uncomparable type never matches.
func (r *Ride) Detach(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := slices.IndexFunc(r.observers, func(x Observer) bool { return sameObserver(x, o) }); i >= 0 {
		r.observers = slices.Delete(r.observers, i, i+1)
	}
}

func sameObserver(a, b Observer) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func (r *Ride) transitionErr(to models.RideStatus) error {
	return fmt.Errorf("%w: ride %s %s -> %s", ErrInvalidTransition, r.id, r.status, to)
}

// callers hold r.mu
func (r *Ride) setStatusLocked(ctx context.Context, s models.RideStatus) {
	from := r.status
	r.status = s
	r.updatedAt = time.Now()
	r.logger.Info("ride status changed", zap.Stringer("from", from), zap.Stringer("to", s))

	snap := r.snapshotLocked()
	for _, o := range r.observers {
		r.deliver(ctx, o, snap, s)
	}
}

// deliver isolates one observer: errors and panics are logged and counted.
func (r *Ride) deliver(ctx context.Context, o Observer, snap Snapshot, s models.RideStatus) {
	name := observerName(o)
	defer func() {
		if rec := recover(); rec != nil {
			observability.NotificationFailures.WithLabelValues(name).Inc()
			r.logger.Error("observer panicked", zap.String("observer", name), zap.Any("panic", rec))
		}
	}()
	if err := o.OnRideStatusChanged(ctx, snap, s); err != nil {
		observability.NotificationFailures.WithLabelValues(name).Inc()
		r.logger.Warn("observer failed", zap.String("observer", name), zap.Error(err))
	}
}

func (r *Ride) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:        r.id,
		RiderID:   r.riderID,
		DriverID:  r.driverID,
		Pickup:    r.pickup,
		Drop:      r.drop,
		Category:  r.category,
		Status:    r.status,
		Distance:  r.distance,
		Paid:      r.paid,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
	}
	if r.fare != nil {
		f := *r.fare
		snap.Fare = &f
	}
	return snap
}

type named interface{ Name() string }

func observerName(o Observer) string {
	if n, ok := o.(named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", o)
}
