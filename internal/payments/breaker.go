package payments

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/ride-dispatch/internal/ride"
)

// ErrCircuitOpen is returned when the breaker refuses a payment because it is open.
var ErrCircuitOpen = errors.New("payment circuit breaker open")

type BreakerSettings struct {
	Name             string
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// Breaker stops calling a failing processor until it has had time to recover.
type Breaker struct {
	next    Processor
	breaker *gobreaker.CircuitBreaker
}

func NewBreaker(next Processor, settings BreakerSettings, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	name := settings.Name
	if name == "" {
		name = "payments"
	}
	return &Breaker{
		next: next,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     name,
			Interval: settings.Interval,
			Timeout:  settings.Timeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Info("circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

func (b *Breaker) ProcessPayment(ctx context.Context, snap ride.Snapshot, amount float64) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.next.ProcessPayment(ctx, snap, amount)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

func (b *Breaker) State() gobreaker.State { return b.breaker.State() }
