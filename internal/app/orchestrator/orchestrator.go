// Package orchestrator implements the daily-challenge state machine: day
// rollover, deterministic assignment from a cached candidate pool, solved
// polling with backoff, emergency-override windows and tab-redirect
// decisions.
//
// Every state-mutating entry point funnels through a single facade:
//  1. EnsureDailyState loads settings + daily record and reconciles them
//     with the effective date (rollover, assignment).
//  2. Mutations are computed on a local copy and persisted as a whole
//     record (withDailyState), so a partial failure never leaves the
//     stored state inconsistent.
//  3. Concurrent ensure calls share one in-progress cycle via singleflight;
//     only a forced reassign starts a fresh cycle.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dailygrind/dailygrind/internal/domain"
	"github.com/dailygrind/dailygrind/internal/infra/observability"
)

// Orchestrator owns the daily-challenge lifecycle. The former global
// singletons (in-flight locks, retry counter, redirect guard) live here as
// fields so tests can run isolated instances with a virtual clock.
type Orchestrator struct {
	store domain.StateStore
	judge domain.JudgeClient
	clock domain.Clock
	sched domain.Scheduler

	ensure singleflight.Group

	// mu serializes read-modify-write cycles on the daily record.
	mu sync.Mutex

	// checkMu guards the solved-check in-flight flag, a mutual-exclusion
	// point independent of mu: a timer-triggered check may overlap an
	// unrelated ensure cycle.
	checkMu       sync.Mutex
	checkInFlight bool
	retryAttempt  int // process-local by design; restarts reset backoff
	cancelRecheck func()

	guardMu       sync.Mutex
	redirectGuard map[string]tabGuard
}

// View is the consistent {settings, daily state, effective date} triple
// every trigger operates on.
type View struct {
	Settings domain.Settings
	Daily    domain.DailyState
	Today    string
}

// New creates an orchestrator. Clock and scheduler default to wall time
// when nil.
func New(store domain.StateStore, judge domain.JudgeClient, clock domain.Clock, sched domain.Scheduler) *Orchestrator {
	if clock == nil {
		clock = realClock{}
	}
	if sched == nil {
		sched = realScheduler{}
	}
	return &Orchestrator{
		store:         store,
		judge:         judge,
		clock:         clock,
		sched:         sched,
		redirectGuard: make(map[string]tabGuard),
	}
}

// ─── Ensure Cycle ───────────────────────────────────────────────────────────

// EnsureDailyState reconciles the persisted daily record with the effective
// date and returns the resulting view. Concurrent callers share one
// in-progress cycle; forceReassign always starts a fresh one and repicks the
// problem even if one is assigned.
func (o *Orchestrator) EnsureDailyState(ctx context.Context, forceReassign bool) (View, error) {
	if forceReassign {
		return o.ensureCycle(ctx, true)
	}
	v, err, _ := o.ensure.Do("ensure", func() (any, error) {
		return o.ensureCycle(ctx, false)
	})
	if err != nil {
		return View{}, err
	}
	return v.(View), nil
}

func (o *Orchestrator) ensureCycle(ctx context.Context, force bool) (View, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	settings, err := o.store.Settings()
	if err != nil {
		return View{}, fmt.Errorf("load settings: %w", err)
	}
	today := domain.EffectiveDate(settings, o.clock.Now())

	daily, err := o.store.DailyState()
	if err != nil {
		return View{}, fmt.Errorf("load daily state: %w", err)
	}

	changed := false
	if daily.Date != today {
		daily = o.rollover(today, daily)
		o.resetRetryAttempt()
		changed = true
	}

	if settings.Handle == "" {
		if daily.TodayProblemID != 0 || daily.LastAPIError != domain.CodeMissingHandle {
			clearAssignment(&daily)
			daily.PickedFromQuery = ""
			daily.LastAPIError = domain.CodeMissingHandle
			changed = true
		}
	} else if force || daily.TodayProblemID == 0 {
		trigger := "rollover"
		if force {
			trigger = "forced"
		}
		o.assign(ctx, settings, &daily, 0, force, trigger)
		changed = true
	}

	o.recomputeStreak(&daily, today)

	if changed {
		daily, err = o.store.SaveDailyState(daily)
		if err != nil {
			return View{}, fmt.Errorf("persist daily state: %w", err)
		}
	}

	view := View{Settings: settings, Daily: daily, Today: today}
	o.maybeScheduleRecheck(settings, daily)
	return view, nil
}

// rollover folds the previous day into history and starts a fresh record.
// An earlier problem already recorded as done keeps its credit even when a
// later auto-advanced problem was still pending at midnight.
func (o *Orchestrator) rollover(today string, prev domain.DailyState) domain.DailyState {
	history := prev.History
	if prev.Date != "" && prev.TodayProblemID > 0 {
		row := domain.HistoryEntry{
			Date:      prev.Date,
			ProblemID: prev.TodayProblemID,
			Done:      prev.DayDone,
		}
		if existing, ok := domain.HistoryFor(history, prev.Date); ok {
			row.ProblemID = existing.ProblemID
			row.Done = existing.Done || prev.DayDone
		}
		history = domain.UpsertHistory(history, row)
	}

	next := domain.DailyState{
		Date:            today,
		EmergencyUsedOn: prev.EmergencyUsedOn,
		EmergencyUntil:  prev.EmergencyUntil,
		Streak:          prev.Streak,
		LastDoneDate:    prev.LastDoneDate,
		Pool:            prev.Pool,
		History:         history,
		RecentLogs:      prev.RecentLogs,
	}
	return domain.NormalizeDailyState(next)
}

func clearAssignment(daily *domain.DailyState) {
	daily.TodayProblemID = 0
	daily.TodayLevel = 0
	daily.TodayTitleKo = ""
	daily.TodayTitleEn = ""
	daily.CurrentSolved = false
}

// assign picks a problem from the candidate pool and writes it into the
// daily record. On failure it clears the assignment, records the query that
// would have been used and the classified error code; the caller decides
// whether the failure also surfaces to the user.
func (o *Orchestrator) assign(ctx context.Context, settings domain.Settings, daily *domain.DailyState, avoid int, forceRefresh bool, trigger string) error {
	pool, err := o.ensurePool(ctx, settings, daily, forceRefresh)
	if err == nil {
		ids := make([]int, len(pool.Candidates))
		for i, c := range pool.Candidates {
			ids[i] = c.ProblemID
		}
		var id int
		id, err = domain.Pick(ids, daily.Date, daily.RerollUsed, daily.AutoAdvanceUsed, avoid)
		if err == nil {
			chosen := domain.Candidate{ProblemID: id}
			for _, c := range pool.Candidates {
				if c.ProblemID == id {
					chosen = c
					break
				}
			}
			daily.TodayProblemID = chosen.ProblemID
			daily.TodayLevel = chosen.Level
			daily.TodayTitleKo = chosen.TitleKo
			daily.TodayTitleEn = chosen.TitleEn
			daily.PickedFromQuery = pool.Query
			daily.CurrentSolved = false
			daily.LastAPIError = domain.CodeNone
			observability.Assignments.WithLabelValues(trigger).Inc()
			o.logState(daily, settings, "info", fmt.Sprintf("assigned problem %d (%s)", id, trigger))
			return nil
		}
	}

	code := domain.CodeOf(err)
	clearAssignment(daily)
	daily.PickedFromQuery = domain.BuildQuery(settings)
	daily.LastAPIError = code
	observability.AssignmentFailures.WithLabelValues(string(code)).Inc()
	o.logState(daily, settings, "warn", fmt.Sprintf("assignment failed (%s): %s", trigger, code))
	return err
}

// recomputeStreak refreshes the derived streak fields after every
// assignment or solve event.
func (o *Orchestrator) recomputeStreak(daily *domain.DailyState, today string) {
	stats := domain.ComputeStats(*daily, today)
	daily.Streak = stats.Streak
	if daily.DayDone {
		daily.LastDoneDate = today
	}
	observability.StreakDays.Set(float64(stats.Streak))
}

// ─── Solve Event ────────────────────────────────────────────────────────────

// applySolve marks the day complete for the solved problem and attempts
// exactly one auto-advance assignment. A follow-up failure surfaces its own
// error code but never reverts the completion flag.
func (o *Orchestrator) applySolve(ctx context.Context, settings domain.Settings, daily *domain.DailyState, today string) {
	solvedID := daily.TodayProblemID
	daily.DayDone = true
	daily.CurrentSolved = true
	daily.LastAPIError = domain.CodeNone
	daily.History = domain.UpsertHistory(daily.History, domain.HistoryEntry{
		Date:      today,
		ProblemID: solvedID,
		Done:      true,
	})
	o.recomputeStreak(daily, today)
	o.logState(daily, settings, "info", fmt.Sprintf("problem %d solved, day complete", solvedID))

	daily.AutoAdvanceUsed++
	if err := o.assign(ctx, settings, daily, solvedID, false, "auto_advance"); err != nil {
		// Completion stands; only the follow-up assignment failed.
		daily.DayDone = true
	}
	o.recomputeStreak(daily, today)
}

// ─── User Actions ───────────────────────────────────────────────────────────

// Reroll consumes one manual reassignment for the day. Fails with
// ErrMissingHandle or ErrRerollLimit without touching state.
func (o *Orchestrator) Reroll(ctx context.Context) (View, error) {
	view, err := o.EnsureDailyState(ctx, false)
	if err != nil {
		return View{}, err
	}
	if view.Settings.Handle == "" {
		return view, domain.ErrMissingHandle
	}
	if view.Daily.RerollUsed >= view.Settings.RerollLimitPerDay {
		return view, domain.ErrRerollLimit
	}

	o.mu.Lock()
	var assignErr error
	daily, err := o.withDailyState(func(daily *domain.DailyState) {
		daily.RerollUsed++
		assignErr = o.assign(ctx, view.Settings, daily, 0, false, "reroll")
		o.recomputeStreak(daily, view.Today)
	})
	o.mu.Unlock()
	if err != nil {
		return View{}, err
	}
	o.resetRetryAttempt()
	o.maybeScheduleRecheck(view.Settings, daily)
	return View{Settings: view.Settings, Daily: daily, Today: view.Today}, assignErr
}

// ActivateEmergency opens the once-per-day emergency window. The allowance
// is consumed for the day even if the window is deactivated early.
func (o *Orchestrator) ActivateEmergency(ctx context.Context) (View, error) {
	view, err := o.EnsureDailyState(ctx, false)
	if err != nil {
		return View{}, err
	}
	if view.Daily.EmergencyUsedOn == view.Today {
		return view, domain.ErrEmergencyUsed
	}

	o.mu.Lock()
	daily, err := o.withDailyState(func(daily *domain.DailyState) {
		daily.EmergencyUsedOn = view.Today
		daily.EmergencyUntil = domain.UnixMilli(o.clock.Now().Add(time.Duration(view.Settings.EmergencyHours) * time.Hour))
		o.logState(daily, view.Settings, "warn", fmt.Sprintf("emergency window opened for %dh", view.Settings.EmergencyHours))
	})
	o.mu.Unlock()
	if err != nil {
		return View{}, err
	}
	observability.EmergencyActivations.Inc()
	o.clearRecheck()
	return View{Settings: view.Settings, Daily: daily, Today: view.Today}, nil
}

// DeactivateEmergency closes an active window immediately. No-op when the
// window is not active; never refunds the daily allowance.
func (o *Orchestrator) DeactivateEmergency(ctx context.Context) (View, error) {
	view, err := o.EnsureDailyState(ctx, false)
	if err != nil {
		return View{}, err
	}
	if !view.Daily.EmergencyActive(o.clock.Now()) {
		return view, nil
	}

	o.mu.Lock()
	daily, err := o.withDailyState(func(daily *domain.DailyState) {
		daily.EmergencyUntil = 0
		o.logState(daily, view.Settings, "info", "emergency window closed early")
	})
	o.mu.Unlock()
	if err != nil {
		return View{}, err
	}
	view.Daily = daily
	o.maybeScheduleRecheck(view.Settings, daily)
	return view, nil
}

// ResetToday zeroes the day's counters and assigns a fresh problem without
// touching recorded history. An emergency allowance spent today stays spent.
func (o *Orchestrator) ResetToday(ctx context.Context) (View, error) {
	view, err := o.EnsureDailyState(ctx, false)
	if err != nil {
		return View{}, err
	}

	o.mu.Lock()
	daily, err := o.withDailyState(func(daily *domain.DailyState) {
		daily.DayDone = false
		daily.CurrentSolved = false
		daily.RerollUsed = 0
		daily.AutoAdvanceUsed = 0
		daily.LastSolvedCheck = 0
		daily.LastAPIError = domain.CodeNone
		if daily.EmergencyUntil <= domain.UnixMilli(o.clock.Now()) {
			daily.EmergencyUntil = 0
		}
		if view.Settings.Handle == "" {
			clearAssignment(daily)
			daily.PickedFromQuery = ""
		} else {
			o.assign(ctx, view.Settings, daily, 0, false, "reset")
		}
		o.recomputeStreak(daily, view.Today)
	})
	o.mu.Unlock()
	if err != nil {
		return View{}, err
	}
	o.resetRetryAttempt()
	o.maybeScheduleRecheck(view.Settings, daily)
	return View{Settings: view.Settings, Daily: daily, Today: view.Today}, nil
}

// FactoryReset wipes all durable state, restores factory settings and runs
// a forced reassignment.
func (o *Orchestrator) FactoryReset(ctx context.Context) (View, error) {
	o.mu.Lock()
	if err := o.store.Wipe(); err != nil {
		o.mu.Unlock()
		return View{}, fmt.Errorf("wipe store: %w", err)
	}
	if _, err := o.store.SaveSettings(domain.DefaultSettings()); err != nil {
		o.mu.Unlock()
		return View{}, fmt.Errorf("restore default settings: %w", err)
	}
	o.mu.Unlock()

	o.resetRetryAttempt()
	o.clearRecheck()
	return o.EnsureDailyState(ctx, true)
}

// SaveSettings normalizes and persists new settings, then runs a forced
// reassignment so a filter change takes effect immediately.
func (o *Orchestrator) SaveSettings(ctx context.Context, in domain.Settings) (View, error) {
	o.mu.Lock()
	_, err := o.store.SaveSettings(in)
	o.mu.Unlock()
	if err != nil {
		return View{}, fmt.Errorf("save settings: %w", err)
	}
	return o.EnsureDailyState(ctx, true)
}

// ValidateHandle resolves a handle against the judge. Purely a pass-through
// with classified errors; it never touches persisted state.
func (o *Orchestrator) ValidateHandle(ctx context.Context, handle string) (domain.UserProfile, error) {
	if handle == "" {
		return domain.UserProfile{}, domain.ErrMissingHandle
	}
	return o.judge.ValidateHandle(ctx, handle)
}

// RecentLogs returns the persisted log ring buffer.
func (o *Orchestrator) RecentLogs() ([]domain.LogEntry, error) {
	daily, err := o.store.DailyState()
	if err != nil {
		return nil, err
	}
	return daily.RecentLogs, nil
}

// ─── State Plumbing ─────────────────────────────────────────────────────────

// withDailyState loads the daily record, applies fn to a local copy and
// persists the whole record. Callers must hold mu; the helper makes the
// single-writer invariant mechanical instead of conventional.
func (o *Orchestrator) withDailyState(fn func(*domain.DailyState)) (domain.DailyState, error) {
	daily, err := o.store.DailyState()
	if err != nil {
		return domain.DailyState{}, fmt.Errorf("load daily state: %w", err)
	}
	fn(&daily)
	saved, err := o.store.SaveDailyState(daily)
	if err != nil {
		return domain.DailyState{}, fmt.Errorf("persist daily state: %w", err)
	}
	return saved, nil
}

// logState appends to the persisted ring buffer and mirrors to the process
// log. Info entries are kept only in debug mode.
func (o *Orchestrator) logState(daily *domain.DailyState, settings domain.Settings, level, msg string) {
	if settings.DebugMode || level == "warn" || level == "error" {
		log.Printf("[orchestrator] %s", msg)
	}
	if !settings.DebugMode && level == "info" {
		return
	}
	daily.RecentLogs = domain.PushRecentLog(daily.RecentLogs, domain.LogEntry{
		TS:    domain.UnixMilli(o.clock.Now()),
		Level: level,
		Msg:   msg,
	})
}

// ─── Default Clock & Scheduler ──────────────────────────────────────────────

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) (cancel func()) {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
