package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_dispatch"

var (
	RidesRequested = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_requested_total", Help: "Total ride requests received"})
	MatchesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "matches_total", Help: "Total number of matches"})
	RaceLostTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "match_race_lost_total", Help: "Match attempts lost to a concurrent withdrawal"})
	MatchLatency   = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Match latency seconds"})

	RidesCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rides_cancelled_total", Help: "Rides cancelled, by reason"},
		[]string{"reason"},
	)
	RidesCompleted = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_completed_total", Help: "Rides completed"})
	FareAmount     = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fare_amount",
		Help:      "Final fare charged per completed ride",
		Buckets:   []float64{50, 100, 200, 300, 500, 800, 1200, 2000},
	})
	PaymentsFailed = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "payments_failed_total", Help: "Payments that did not succeed"})

	DriversAvailable = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "drivers_available", Help: "Number of drivers in the available set"})

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notification_failures_total", Help: "Observer deliveries that failed or panicked"},
		[]string{"observer"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
