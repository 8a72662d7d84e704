// Package observability holds the Prometheus metrics for the daily-challenge
// daemon. Metrics are package-level promauto vars, exported on /metrics when
// enabled in the daemon config.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Assignment Metrics ─────────────────────────────────────────────────────

// Assignments counts problem assignments by trigger.
var Assignments = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dailygrind",
	Subsystem: "state",
	Name:      "assignments_total",
	Help:      "Total problem assignments by trigger (rollover, reroll, auto_advance, reset, forced).",
}, []string{"trigger"})

// AssignmentFailures counts failed assignments by error code.
var AssignmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dailygrind",
	Subsystem: "state",
	Name:      "assignment_failures_total",
	Help:      "Total failed problem assignments by classified error code.",
}, []string{"code"})

// StreakDays tracks the current consecutive-day streak.
var StreakDays = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "dailygrind",
	Subsystem: "state",
	Name:      "streak_days",
	Help:      "Current consecutive done-day streak.",
})

// ─── Pool Metrics ───────────────────────────────────────────────────────────

// PoolFetches counts candidate-pool fetch outcomes.
var PoolFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dailygrind",
	Subsystem: "pool",
	Name:      "fetches_total",
	Help:      "Candidate pool fetch outcomes (hit, refresh, stale_fallback, failure).",
}, []string{"outcome"})

// PoolSize tracks the size of the cached candidate pool.
var PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "dailygrind",
	Subsystem: "pool",
	Name:      "candidates",
	Help:      "Number of candidates in the cached pool.",
})

// ─── Poller Metrics ─────────────────────────────────────────────────────────

// SolvedChecks counts solved-check results by trigger and result.
var SolvedChecks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dailygrind",
	Subsystem: "poller",
	Name:      "checks_total",
	Help:      "Solved checks by trigger (manual, auto) and result (solved, pending, error, in_flight).",
}, []string{"trigger", "result"})

// ─── Enforcement Metrics ────────────────────────────────────────────────────

// Redirects counts enforced tab redirects.
var Redirects = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dailygrind",
	Subsystem: "enforcer",
	Name:      "redirects_total",
	Help:      "Total tab redirects issued toward the assigned problem.",
})

// RedirectsDebounced counts redirects suppressed by the per-tab cooldown.
var RedirectsDebounced = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dailygrind",
	Subsystem: "enforcer",
	Name:      "redirects_debounced_total",
	Help:      "Redirects suppressed by the per-tab cooldown guard.",
})

// EmergencyActivations counts emergency-window activations.
var EmergencyActivations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dailygrind",
	Subsystem: "enforcer",
	Name:      "emergency_activations_total",
	Help:      "Total emergency override activations.",
})
