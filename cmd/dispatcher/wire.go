package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/eta"
	"github.com/example/ride-dispatch/internal/events"
	"github.com/example/ride-dispatch/internal/geo"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/ids"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/storage"
)

// app owns the process-wide dispatch service and every external client it uses.
type app struct {
	svc     *dispatch.Service
	ops     *http.Server
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	var checks []httpapi.ReadyCheck

	var gen ids.Generator = &ids.Sequence{}
	if cfg.Redis.Addr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		a.closers = append(a.closers, rc.Close)
		gen = ids.NewRedisSequence(rc, cfg.Redis.SequenceKey)
		checks = append(checks, httpapi.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}})
	}

	var observers []ride.Observer
	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout)
		a.closers = append(a.closers, pub.Close)
		observers = append(observers, pub)
	}

	var archive storage.TripStore
	if cfg.Postgres.DSN != "" {
		ps, err := storage.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, ps.Close)
		if cfg.Postgres.Migrate {
			if err := ps.Migrate(ctx); err != nil {
				_ = a.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migration applied")
		}
		archive = ps
		checks = append(checks, httpapi.ReadyCheck{Name: "postgres", Check: ps.Ping})
	}

	var processor payments.Processor = payments.Approver{Logger: logger}
	if cfg.Stripe.APIKey != "" {
		processor = payments.NewBreaker(
			payments.NewStripeProcessor(cfg.Stripe.APIKey, cfg.Stripe.Currency, logger),
			payments.BreakerSettings{Name: "stripe"},
			logger,
		)
	}

	wsReg := notify.NewWSRegistry()
	senders := notify.MultiSender{notify.LogSender{Logger: logger}, wsReg}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.WebhookKey, cfg.Notify.Timeout))
	}

	distance := geo.ByName(cfg.Matching.Distance)
	var estimator eta.Estimator = eta.Naive{SpeedMps: cfg.Matching.SpeedMps}
	if cfg.Matching.OSRMEndpoint != "" {
		estimator = &eta.Routed{
			Backend:  eta.NewOSRMClient(cfg.Matching.OSRMEndpoint),
			Cache:    eta.NewCache(cfg.Matching.ETACacheTTL),
			Fallback: estimator,
			Timeout:  cfg.Matching.ETATimeout,
		}
	}
	strategy, err := matcher.ByName(cfg.Matching.Strategy, matcher.Options{
		Distance:     distance,
		Estimator:    estimator,
		RatingWeight: cfg.Matching.RatingWeight,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.svc = dispatch.New(dispatch.Config{
		Strategy:         strategy,
		Payments:         processor,
		IDs:              gen,
		Distance:         distance,
		Archive:          archive,
		Sender:           senders,
		Observers:        observers,
		MaxMatchAttempts: cfg.Matching.MaxAttempts,
		Logger:           logger,
	})
	if cfg.Surge.Multiplier > 1 {
		if err := a.svc.ActivateSurge(cfg.Surge.Multiplier); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	a.ops = &http.Server{
		Addr:         cfg.Ops.Addr,
		Handler:      httpapi.NewServer(a.svc, wsReg, logger, checks...),
		ReadTimeout:  cfg.Ops.ReadTimeout,
		WriteTimeout: cfg.Ops.WriteTimeout,
		IdleTimeout:  cfg.Ops.IdleTimeout,
	}
	return a, nil
}
