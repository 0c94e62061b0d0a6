// Package payments settles completed rides.
package payments

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/example/ride-dispatch/internal/ride"
)

var ErrInvalidAmount = errors.New("payment amount must not be negative")

// Processor charges the rider of a completed ride. A nil error means the
// amount was collected.
type Processor interface {
	ProcessPayment(ctx context.Context, snap ride.Snapshot, amount float64) error
}

// Approver accepts every payment and records it in the log.
type Approver struct {
	Logger *zap.Logger
}

func (a Approver) ProcessPayment(_ context.Context, snap ride.Snapshot, amount float64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if a.Logger != nil {
		a.Logger.Info("payment processed",
			zap.String("ride_id", snap.ID),
			zap.String("rider_id", snap.RiderID),
			zap.Float64("amount", amount),
		)
	}
	return nil
}
