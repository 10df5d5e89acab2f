package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values for ReservationsTotal and MutationsTotal.
const (
	ResultSuccess      = "success"
	ResultInsufficient = "insufficient_stock"
	ResultNotFound     = "not_found"
	ResultContention   = "contention_exceeded"
	ResultCompensation = "compensation_failed"
	ResultError        = "error"
)

var (
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "reservations_total",
		Help:      "Reservation attempts by final result.",
	}, []string{"result"})

	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "mutations_total",
		Help:      "Single-counter mutations by result.",
	}, []string{"result"})

	MutationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "mutation_retries_total",
		Help:      "Version-conflict retries inside the mutator.",
	})

	CompensationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "compensation_failures_total",
		Help:      "Rollbacks that could not be applied, leaving the ledger inconsistent.",
	})

	ReserveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "inventory",
		Name:      "reserve_duration_seconds",
		Help:      "Wall-clock duration of Reserve calls.",
		Buckets:   prometheus.DefBuckets,
	})
)
