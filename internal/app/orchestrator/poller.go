package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dailygrind/dailygrind/internal/domain"
	"github.com/dailygrind/dailygrind/internal/infra/observability"
)

// ─── Solved-Check Poller ────────────────────────────────────────────────────

// Trigger identifies what initiated a solved check.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
)

// MaxAutoRecheck caps the automatic retry chain. The attempt counter is
// process-local: a restart intentionally resets backoff to attempt zero.
const MaxAutoRecheck = 6

// autoRecheckDelays is the ascending backoff table indexed by
// min(attempt, len-1).
var autoRecheckDelays = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	5 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
}

// debugRecheckDelays substitutes a short table in debug mode for fast
// iteration.
var debugRecheckDelays = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	12 * time.Second,
	20 * time.Second,
	30 * time.Second,
}

// CheckResult is the outcome of one solved check.
type CheckResult struct {
	OK     bool        `json:"ok"`
	Solved bool        `json:"solved,omitempty"`
	Reason domain.Code `json:"reason,omitempty"`
}

// PerformCheck runs one solved lookup against the judge. A single boolean
// guard makes checks mutually exclusive process-wide; a concurrent call
// returns in_flight without touching state. Transport failures persist the
// classified code and keep the retry chain going up to the attempt cap.
func (o *Orchestrator) PerformCheck(ctx context.Context, trigger Trigger) CheckResult {
	o.checkMu.Lock()
	if o.checkInFlight {
		o.checkMu.Unlock()
		observability.SolvedChecks.WithLabelValues(string(trigger), "in_flight").Inc()
		return CheckResult{OK: false, Reason: domain.CodeInFlight}
	}
	o.checkInFlight = true
	o.checkMu.Unlock()
	defer func() {
		o.checkMu.Lock()
		o.checkInFlight = false
		o.checkMu.Unlock()
	}()

	view, err := o.EnsureDailyState(ctx, false)
	if err != nil {
		observability.SolvedChecks.WithLabelValues(string(trigger), "error").Inc()
		return CheckResult{OK: false, Reason: domain.CodeOf(err)}
	}
	if view.Settings.Handle == "" || view.Daily.TodayProblemID == 0 {
		return CheckResult{OK: false, Reason: domain.CodeNotReady}
	}

	solved, checkErr := o.judge.CheckSolved(ctx, view.Settings.Handle, view.Daily.TodayProblemID)

	o.mu.Lock()
	daily, err := o.withDailyState(func(daily *domain.DailyState) {
		daily.LastSolvedCheck = domain.UnixMilli(o.clock.Now())
		switch {
		case checkErr != nil:
			daily.LastAPIError = domain.CodeOf(checkErr)
			o.logState(daily, view.Settings, "warn",
				fmt.Sprintf("solved check failed (%s): %s", trigger, daily.LastAPIError))
		case solved:
			o.applySolve(ctx, view.Settings, daily, view.Today)
		default:
			daily.LastAPIError = domain.CodeNone
		}
	})
	o.mu.Unlock()
	if err != nil {
		observability.SolvedChecks.WithLabelValues(string(trigger), "error").Inc()
		return CheckResult{OK: false, Reason: domain.CodeUnknown}
	}

	switch {
	case checkErr != nil:
		o.bumpRetryAttempt()
		o.maybeScheduleRecheck(view.Settings, daily)
		observability.SolvedChecks.WithLabelValues(string(trigger), "error").Inc()
		return CheckResult{OK: false, Reason: domain.CodeOf(checkErr)}
	case solved:
		o.resetRetryAttempt()
		o.clearRecheck()
		observability.SolvedChecks.WithLabelValues(string(trigger), "solved").Inc()
		return CheckResult{OK: true, Solved: true}
	default:
		if trigger == TriggerAuto {
			o.bumpRetryAttempt()
		}
		o.maybeScheduleRecheck(view.Settings, daily)
		observability.SolvedChecks.WithLabelValues(string(trigger), "pending").Inc()
		return CheckResult{OK: true, Solved: false}
	}
}

// ─── Scheduling ─────────────────────────────────────────────────────────────

// maybeScheduleRecheck (re)schedules the next automatic check, replacing any
// pending one. Scheduling stops when auto-recheck is off, nothing is
// assigned, the day is complete, an emergency window is active, or the
// attempt cap is reached.
func (o *Orchestrator) maybeScheduleRecheck(settings domain.Settings, daily domain.DailyState) {
	o.checkMu.Lock()
	defer o.checkMu.Unlock()

	if o.cancelRecheck != nil {
		o.cancelRecheck()
		o.cancelRecheck = nil
	}
	if !settings.AutoRecheck {
		return
	}
	if settings.Handle == "" || daily.TodayProblemID == 0 {
		return
	}
	if daily.DayDone || daily.EmergencyActive(o.clock.Now()) {
		return
	}
	if o.retryAttempt >= MaxAutoRecheck {
		return
	}

	delays := autoRecheckDelays
	if settings.DebugMode {
		delays = debugRecheckDelays
	}
	idx := o.retryAttempt
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	delay := delays[idx]

	o.cancelRecheck = o.sched.AfterFunc(delay, func() {
		// The scheduler is the single place timer-driven failures get
		// logged; PerformCheck itself persists the classified code.
		result := o.PerformCheck(context.Background(), TriggerAuto)
		if !result.OK && result.Reason != domain.CodeInFlight && result.Reason != domain.CodeNotReady {
			log.Printf("[poller] auto recheck failed: %s", result.Reason)
		}
	})
}

// clearRecheck cancels any pending automatic check. Called when the day
// completes or the emergency window toggles.
func (o *Orchestrator) clearRecheck() {
	o.checkMu.Lock()
	defer o.checkMu.Unlock()
	if o.cancelRecheck != nil {
		o.cancelRecheck()
		o.cancelRecheck = nil
	}
}

func (o *Orchestrator) bumpRetryAttempt() {
	o.checkMu.Lock()
	o.retryAttempt++
	o.checkMu.Unlock()
}

func (o *Orchestrator) resetRetryAttempt() {
	o.checkMu.Lock()
	o.retryAttempt = 0
	o.checkMu.Unlock()
}
