package punch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the punch core
var (
	// timeclock_punch_attempts_total counts punch attempts by outcome
	// Labels: outcome (success, deduped, invalid_pin, locked, conflict, error)
	PunchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timeclock",
			Subsystem: "punch",
			Name:      "attempts_total",
			Help:      "Total number of punch attempts by outcome",
		},
		[]string{"outcome"},
	)

	// timeclock_punch_resolve_duration_seconds tracks the PIN resolution fan-out time
	ResolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "timeclock",
			Subsystem: "punch",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of PIN resolution fan-outs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
	)

	// timeclock_punch_candidates tracks the size of the resolution candidate set
	ResolveCandidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "timeclock",
			Subsystem: "punch",
			Name:      "candidates",
			Help:      "Number of active unlocked credentials in the last resolution",
		},
	)

	// timeclock_punch_lockouts_total counts credentials pushed into a lockout window
	LockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "timeclock",
			Subsystem: "punch",
			Name:      "lockouts_total",
			Help:      "Total number of credentials locked by failed attempts",
		},
	)
)

// Outcome labels for PunchAttemptsTotal
const (
	OutcomeSuccess    = "success"
	OutcomeDeduped    = "deduped"
	OutcomeInvalidPin = "invalid_pin"
	OutcomeLocked     = "locked"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

// recordOutcome records the terminal outcome of one punch attempt
func recordOutcome(outcome string) {
	PunchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// recordLockouts records credentials locked by a failed attempt
func recordLockouts(n int) {
	LockoutsTotal.Add(float64(n))
}

// observeResolve records one resolution fan-out
func observeResolve(seconds float64, candidates int) {
	ResolveDuration.Observe(seconds)
	ResolveCandidates.Set(float64(candidates))
}
