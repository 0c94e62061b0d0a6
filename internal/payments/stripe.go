package payments

import (
	"context"
	"fmt"
	"math"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"go.uber.org/zap"

	"github.com/example/ride-dispatch/internal/ride"
)

// intents is the slice of the PaymentIntent API used for hold/capture/cancel.
type intents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// StripeProcessor holds the fare on a PaymentIntent with manual capture and
// captures it immediately; a failed capture releases the hold.
type StripeProcessor struct {
	intents  intents
	currency string
	logger   *zap.Logger
}

func NewStripeProcessor(apiKey, currency string, logger *zap.Logger) *StripeProcessor {
	c := &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: apiKey}
	return newStripeProcessor(c, currency, logger)
}

func newStripeProcessor(c intents, currency string, logger *zap.Logger) *StripeProcessor {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StripeProcessor{intents: c, currency: currency, logger: logger}
}

// minorUnits converts a fare to the smallest currency unit.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// idempotencyKey is stable per ride so a retried charge is deduplicated by Stripe.
func idempotencyKey(rideID, op string) string {
	return "ride-" + rideID + "-" + op
}

// ProcessPayment charges amount for the ride. A fare that rounds to zero, such
// as one fully covered by a discount, is settled without contacting Stripe.
func (s *StripeProcessor) ProcessPayment(ctx context.Context, snap ride.Snapshot, amount float64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	cents := minorUnits(amount)
	if cents == 0 {
		s.logger.Info("zero fare settled", zap.String("ride_id", snap.ID))
		return nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(cents),
		Currency:      stripe.String(s.currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey(snap.ID, "hold"))
	params.AddMetadata("ride_id", snap.ID)
	params.AddMetadata("rider_id", snap.RiderID)

	pi, err := s.intents.New(params)
	if err != nil {
		return fmt.Errorf("hold ride %s: %w", snap.ID, err)
	}

	capture := &stripe.PaymentIntentCaptureParams{}
	capture.Context = ctx
	capture.SetIdempotencyKey(idempotencyKey(snap.ID, "capture"))
	if _, err := s.intents.Capture(pi.ID, capture); err != nil {
		cancel := &stripe.PaymentIntentCancelParams{}
		cancel.Context = ctx
		if _, cerr := s.intents.Cancel(pi.ID, cancel); cerr != nil {
			s.logger.Warn("release hold failed", zap.String("payment_intent", pi.ID), zap.Error(cerr))
		}
		return fmt.Errorf("capture ride %s: %w", snap.ID, err)
	}

	s.logger.Info("payment captured",
		zap.String("ride_id", snap.ID),
		zap.String("payment_intent", pi.ID),
		zap.Int64("amount_minor", cents),
	)
	return nil
}
