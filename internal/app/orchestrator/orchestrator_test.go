package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dailygrind/dailygrind/internal/domain"
)

// ─── Test Doubles ───────────────────────────────────────────────────────────

type memStore struct {
	mu       sync.Mutex
	settings *domain.Settings
	daily    *domain.DailyState
}

func (s *memStore) Settings() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return domain.DefaultSettings(), nil
	}
	return domain.NormalizeSettings(*s.settings), nil
}

func (s *memStore) SaveSettings(in domain.Settings) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	normalized := domain.NormalizeSettings(in)
	s.settings = &normalized
	return normalized, nil
}

func (s *memStore) DailyState() (domain.DailyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.daily == nil {
		return domain.NormalizeDailyState(domain.DailyState{}), nil
	}
	return domain.NormalizeDailyState(*s.daily), nil
}

func (s *memStore) SaveDailyState(in domain.DailyState) (domain.DailyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	normalized := domain.NormalizeDailyState(in)
	s.daily = &normalized
	return normalized, nil
}

func (s *memStore) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = nil
	s.daily = nil
	return nil
}

type fakeJudge struct {
	mu          sync.Mutex
	pages       map[int][]domain.Candidate
	pageErrs    map[int]error
	searchErr   error
	searchCalls int

	solved     map[int]bool
	solvedErr  error
	checkCalls int
	checkGate  chan struct{} // when set, CheckSolved blocks until closed
}

func (j *fakeJudge) SearchProblems(ctx context.Context, query string, page int) (domain.SearchResult, error) {
	j.mu.Lock()
	j.searchCalls++
	err := j.searchErr
	if err == nil {
		err = j.pageErrs[page]
	}
	items := j.pages[page]
	total := 0
	for _, p := range j.pages {
		total += len(p)
	}
	j.mu.Unlock()
	if err != nil {
		return domain.SearchResult{}, err
	}
	return domain.SearchResult{Items: items, Count: total}, nil
}

func (j *fakeJudge) CheckSolved(ctx context.Context, handle string, problemID int) (bool, error) {
	j.mu.Lock()
	j.checkCalls++
	gate := j.checkGate
	err := j.solvedErr
	solved := j.solved[problemID]
	j.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return false, err
	}
	return solved, nil
}

func (j *fakeJudge) ValidateHandle(ctx context.Context, handle string) (domain.UserProfile, error) {
	return domain.UserProfile{Handle: handle, Tier: 10}, nil
}

func (j *fakeJudge) FetchTagCatalog(ctx context.Context) ([]domain.Tag, error) {
	return nil, nil
}

func (j *fakeJudge) setSearchErr(err error) {
	j.mu.Lock()
	j.searchErr = err
	j.mu.Unlock()
}

func (j *fakeJudge) setSolved(problemID int, solved bool) {
	j.mu.Lock()
	if j.solved == nil {
		j.solved = make(map[int]bool)
	}
	j.solved[problemID] = solved
	j.mu.Unlock()
}

func (j *fakeJudge) searchCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.searchCalls
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeTimer struct {
	delay     time.Duration
	fn        func()
	cancelled bool
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	s.timers = append(s.timers, t)
	return func() {
		s.mu.Lock()
		t.cancelled = true
		s.mu.Unlock()
	}
}

// pending returns the most recent timer that has not been cancelled.
func (s *fakeScheduler) pending() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.timers) - 1; i >= 0; i-- {
		if !s.timers[i].cancelled {
			return s.timers[i]
		}
	}
	return nil
}

// ─── Harness ────────────────────────────────────────────────────────────────

var testBase = time.Date(2026, 3, 1, 10, 0, 0, 0, domain.KST)

func candidates(ids ...int) []domain.Candidate {
	out := make([]domain.Candidate, len(ids))
	for i, id := range ids {
		out[i] = domain.Candidate{ProblemID: id, Level: 8, TitleKo: "문제", TitleEn: "Problem"}
	}
	return out
}

func newTestOrch(t *testing.T) (*Orchestrator, *memStore, *fakeJudge, *fakeClock, *fakeScheduler) {
	t.Helper()
	st := &memStore{}
	settings := domain.DefaultSettings()
	settings.Handle = "alice"
	if _, err := st.SaveSettings(settings); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	judge := &fakeJudge{pages: map[int][]domain.Candidate{1: candidates(1000, 1001, 1002)}}
	clock := &fakeClock{t: testBase}
	sched := &fakeScheduler{}
	return New(st, judge, clock, sched), st, judge, clock, sched
}

// ─── Ensure & Assignment ────────────────────────────────────────────────────

func TestEnsureAssignsDeterministically(t *testing.T) {
	o, _, _, _, _ := newTestOrch(t)

	view, err := o.EnsureDailyState(context.Background(), false)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if view.Today != "2026-03-01" {
		t.Fatalf("today = %s", view.Today)
	}

	want, err := domain.Pick([]int{1000, 1001, 1002}, "2026-03-01", 0, 0, 0)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if view.Daily.TodayProblemID != want {
		t.Fatalf("assigned %d, want %d", view.Daily.TodayProblemID, want)
	}
	if view.Daily.TodayLevel != 8 || view.Daily.TodayTitleEn != "Problem" {
		t.Fatalf("candidate fields not copied: %+v", view.Daily)
	}
	if view.Daily.LastAPIError != domain.CodeNone {
		t.Fatalf("lastApiError = %s", view.Daily.LastAPIError)
	}

	// A second ensure is a no-op on the same day.
	again, err := o.EnsureDailyState(context.Background(), false)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if again.Daily.TodayProblemID != want {
		t.Fatalf("second ensure changed the assignment to %d", again.Daily.TodayProblemID)
	}
}

func TestEnsureWithoutHandle(t *testing.T) {
	o, st, _, _, _ := newTestOrch(t)
	settings, _ := st.Settings()
	settings.Handle = ""
	st.SaveSettings(settings)

	view, err := o.EnsureDailyState(context.Background(), false)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if view.Daily.TodayProblemID != 0 {
		t.Fatalf("assigned %d without a handle", view.Daily.TodayProblemID)
	}
	if view.Daily.LastAPIError != domain.CodeMissingHandle {
		t.Fatalf("lastApiError = %s, want missing_handle", view.Daily.LastAPIError)
	}
}

func TestEnsureNoCandidates(t *testing.T) {
	o, _, judge, _, _ := newTestOrch(t)
	judge.mu.Lock()
	judge.pages = map[int][]domain.Candidate{}
	judge.mu.Unlock()

	view, err := o.EnsureDailyState(context.Background(), false)
	if err != nil {
		t.Fatalf("ensure itself should not fail: %v", err)
	}
	if view.Daily.TodayProblemID != 0 {
		t.Fatalf("assigned %d from an empty pool", view.Daily.TodayProblemID)
	}
	if view.Daily.LastAPIError != domain.CodeNoCandidates {
		t.Fatalf("lastApiError = %s, want no_candidates", view.Daily.LastAPIError)
	}
	if view.Daily.PickedFromQuery == "" {
		t.Fatal("failed assignment should still record the query")
	}
}

// ─── Rollover ───────────────────────────────────────────────────────────────

func TestRolloverFoldsHistory(t *testing.T) {
	o, _, judge, clock, _ := newTestOrch(t)

	view, err := o.EnsureDailyState(context.Background(), false)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	day1Problem := view.Daily.TodayProblemID
	judge.setSolved(day1Problem, true)
	result := o.PerformCheck(context.Background(), TriggerManual)
	if !result.OK || !result.Solved {
		t.Fatalf("check: %+v", result)
	}

	clock.Advance(24 * time.Hour)
	view, err = o.EnsureDailyState(context.Background(), false)
	if err != nil {
		t.Fatalf("rollover ensure: %v", err)
	}
	if view.Daily.Date != "2026-03-02" {
		t.Fatalf("date = %s", view.Daily.Date)
	}
	row, ok := domain.HistoryFor(view.Daily.History, "2026-03-01")
	if !ok || !row.Done || row.ProblemID != day1Problem {
		t.Fatalf("history row = %+v, ok = %v; want problem %d done", row, ok, day1Problem)
	}
	if view.Daily.DayDone || view.Daily.RerollUsed != 0 || view.Daily.AutoAdvanceUsed != 0 {
		t.Fatalf("day flags not reset: %+v", view.Daily)
	}
	if view.Daily.TodayProblemID == 0 {
		t.Fatal("new day should assign a problem")
	}

	// Rollover is idempotent: re-ensuring the same day changes nothing.
	again, err := o.EnsureDailyState(context.Background(), false)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if again.Daily.TodayProblemID != view.Daily.TodayProblemID || len(again.Daily.History) != len(view.Daily.History) {
		t.Fatalf("second ensure mutated state: %+v vs %+v", again.Daily, view.Daily)
	}
}

func TestRolloverKeepsEarlierCredit(t *testing.T) {
	// Solving the first problem then leaving the auto-advanced one pending at
	// midnight must not lose the day's credit.
	o, _, judge, clock, _ := newTestOrch(t)

	view, _ := o.EnsureDailyState(context.Background(), false)
	solvedID := view.Daily.TodayProblemID
	judge.setSolved(solvedID, true)
	o.PerformCheck(context.Background(), TriggerManual)

	// The auto-advanced follow-up is a different problem, never solved.
	after, _ := o.EnsureDailyState(context.Background(), false)
	if after.Daily.TodayProblemID == solvedID {
		t.Fatalf("auto-advance re-picked the solved problem %d", solvedID)
	}

	clock.Advance(24 * time.Hour)
	next, err := o.EnsureDailyState(context.Background(), false)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	row, ok := domain.HistoryFor(next.Daily.History, "2026-03-01")
	if !ok || !row.Done {
		t.Fatalf("day credit lost at rollover: %+v, ok = %v", row, ok)
	}
	if row.ProblemID != solvedID {
		t.Fatalf("history problem = %d, want the solved %d", row.ProblemID, solvedID)
	}
}

// ─── Reroll ─────────────────────────────────────────────────────────────────

func TestRerollLimit(t *testing.T) {
	o, _, _, _, _ := newTestOrch(t)
	ctx := context.Background()

	if _, err := o.EnsureDailyState(ctx, false); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	for i := 0; i < 3; i++ {
		view, err := o.Reroll(ctx)
		if err != nil {
			t.Fatalf("reroll %d: %v", i+1, err)
		}
		if view.Daily.RerollUsed != i+1 {
			t.Fatalf("rerollUsed = %d after %d rerolls", view.Daily.RerollUsed, i+1)
		}
	}

	before, _ := o.EnsureDailyState(ctx, false)
	view, err := o.Reroll(ctx)
	if !errors.Is(err, domain.ErrRerollLimit) {
		t.Fatalf("fourth reroll: %v, want ErrRerollLimit", err)
	}
	if view.Daily.RerollUsed != 3 || view.Daily.TodayProblemID != before.Daily.TodayProblemID {
		t.Fatalf("rejected reroll mutated state: %+v", view.Daily)
	}
}

func TestRerollChangesCounterSeed(t *testing.T) {
	o, _, _, _, _ := newTestOrch(t)
	ctx := context.Background()

	if _, err := o.EnsureDailyState(ctx, false); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	view, err := o.Reroll(ctx)
	if err != nil {
		t.Fatalf("reroll: %v", err)
	}
	want, _ := domain.Pick([]int{1000, 1001, 1002}, "2026-03-01", 1, 0, 0)
	if view.Daily.TodayProblemID != want {
		t.Fatalf("reroll picked %d, want %d", view.Daily.TodayProblemID, want)
	}
}

func TestRerollWithoutHandle(t *testing.T) {
	o, st, _, _, _ := newTestOrch(t)
	settings, _ := st.Settings()
	settings.Handle = ""
	st.SaveSettings(settings)

	if _, err := o.Reroll(context.Background()); !errors.Is(err, domain.ErrMissingHandle) {
		t.Fatalf("got %v, want ErrMissingHandle", err)
	}
}

// ─── Solve & Auto-Advance ───────────────────────────────────────────────────

func TestSolveAutoAdvances(t *testing.T) {
	o, _, judge, _, _ := newTestOrch(t)
	ctx := context.Background()

	view, _ := o.EnsureDailyState(ctx, false)
	solvedID := view.Daily.TodayProblemID
	judge.setSolved(solvedID, true)

	result := o.PerformCheck(ctx, TriggerManual)
	if !result.OK || !result.Solved {
		t.Fatalf("check = %+v", result)
	}

	after, _ := o.EnsureDailyState(ctx, false)
	if !after.Daily.DayDone {
		t.Fatal("day not marked done")
	}
	row, ok := domain.HistoryFor(after.Daily.History, "2026-03-01")
	if !ok || !row.Done || row.ProblemID != solvedID {
		t.Fatalf("history row = %+v, ok = %v", row, ok)
	}
	if after.Daily.AutoAdvanceUsed != 1 {
		t.Fatalf("autoAdvanceUsed = %d, want 1", after.Daily.AutoAdvanceUsed)
	}
	if after.Daily.TodayProblemID == solvedID || after.Daily.TodayProblemID == 0 {
		t.Fatalf("auto-advance picked %d (solved was %d)", after.Daily.TodayProblemID, solvedID)
	}
	if after.Daily.CurrentSolved {
		t.Fatal("freshly advanced problem should not be marked solved")
	}
	if after.Daily.Streak != 1 {
		t.Fatalf("streak = %d, want 1", after.Daily.Streak)
	}
}

func TestSolveKeepsDayDoneWhenAdvanceFails(t *testing.T) {
	o, st, judge, _, _ := newTestOrch(t)
	ctx := context.Background()

	view, _ := o.EnsureDailyState(ctx, false)
	solvedID := view.Daily.TodayProblemID
	judge.setSolved(solvedID, true)

	// Drop the cached pool and break the judge so the follow-up assignment
	// has nothing to pick from and nothing to fall back to.
	st.mu.Lock()
	st.daily.Pool = domain.PoolCache{}
	st.mu.Unlock()
	judge.setSearchErr(domain.NewError(domain.CodeServerError, "HTTP 500"))

	result := o.PerformCheck(ctx, TriggerManual)
	if !result.OK || !result.Solved {
		t.Fatalf("check = %+v", result)
	}

	after, _ := o.EnsureDailyState(ctx, false)
	if !after.Daily.DayDone {
		t.Fatal("completion must survive a failed auto-advance")
	}
}

// ─── Emergency Window ───────────────────────────────────────────────────────

func TestEmergencyOncePerDay(t *testing.T) {
	o, _, _, clock, _ := newTestOrch(t)
	ctx := context.Background()

	view, err := o.ActivateEmergency(ctx)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	wantUntil := domain.UnixMilli(clock.Now().Add(3 * time.Hour))
	if view.Daily.EmergencyUntil != wantUntil {
		t.Fatalf("until = %d, want %d", view.Daily.EmergencyUntil, wantUntil)
	}
	if !view.Daily.EmergencyActive(clock.Now()) {
		t.Fatal("window should be active")
	}

	if _, err := o.ActivateEmergency(ctx); !errors.Is(err, domain.ErrEmergencyUsed) {
		t.Fatalf("second activation: %v, want ErrEmergencyUsed", err)
	}

	// Early deactivation does not refund the allowance.
	view, err = o.DeactivateEmergency(ctx)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if view.Daily.EmergencyActive(clock.Now()) {
		t.Fatal("window should be closed")
	}
	if _, err := o.ActivateEmergency(ctx); !errors.Is(err, domain.ErrEmergencyUsed) {
		t.Fatalf("reactivation after deactivate: %v, want ErrEmergencyUsed", err)
	}
}

func TestEmergencyExpires(t *testing.T) {
	o, _, _, clock, _ := newTestOrch(t)
	ctx := context.Background()

	if _, err := o.ActivateEmergency(ctx); err != nil {
		t.Fatalf("activate: %v", err)
	}
	clock.Advance(3*time.Hour + time.Minute)
	view, _ := o.EnsureDailyState(ctx, false)
	if view.Daily.EmergencyActive(clock.Now()) {
		t.Fatal("window should have expired")
	}
	// Next KST day restores the allowance.
	clock.Advance(24 * time.Hour)
	if _, err := o.ActivateEmergency(ctx); err != nil {
		t.Fatalf("next-day activation: %v", err)
	}
}

// ─── Resets & Settings ──────────────────────────────────────────────────────

func TestResetToday(t *testing.T) {
	o, _, judge, _, _ := newTestOrch(t)
	ctx := context.Background()

	view, _ := o.EnsureDailyState(ctx, false)
	judge.setSolved(view.Daily.TodayProblemID, true)
	o.PerformCheck(ctx, TriggerManual)
	if _, err := o.Reroll(ctx); err != nil {
		t.Fatalf("reroll: %v", err)
	}

	reset, err := o.ResetToday(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.Daily.DayDone || reset.Daily.CurrentSolved {
		t.Fatalf("flags not cleared: %+v", reset.Daily)
	}
	if reset.Daily.RerollUsed != 0 || reset.Daily.AutoAdvanceUsed != 0 {
		t.Fatalf("counters not cleared: %+v", reset.Daily)
	}
	if reset.Daily.TodayProblemID == 0 {
		t.Fatal("reset should assign a fresh problem")
	}
	// History is untouched by a today-only reset.
	if _, ok := domain.HistoryFor(reset.Daily.History, "2026-03-01"); !ok {
		t.Fatal("reset erased history")
	}
}

func TestFactoryReset(t *testing.T) {
	o, st, _, _, _ := newTestOrch(t)
	ctx := context.Background()

	if _, err := o.EnsureDailyState(ctx, false); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	view, err := o.FactoryReset(ctx)
	if err != nil {
		t.Fatalf("factory reset: %v", err)
	}
	if view.Settings.Handle != "" {
		t.Fatalf("settings not back to defaults: %+v", view.Settings)
	}
	if view.Daily.TodayProblemID != 0 || len(view.Daily.History) != 0 {
		t.Fatalf("daily state survived: %+v", view.Daily)
	}
	settings, _ := st.Settings()
	if settings.Handle != "" {
		t.Fatal("store still holds the old handle")
	}
}

func TestSaveSettingsReassigns(t *testing.T) {
	o, _, judge, _, _ := newTestOrch(t)
	ctx := context.Background()

	view, _ := o.EnsureDailyState(ctx, false)
	oldQuery := view.Daily.PickedFromQuery
	callsBefore := judge.searchCount()

	settings := view.Settings
	settings.Filters.LevelMin = 10
	settings.Filters.LevelMax = 20
	next, err := o.SaveSettings(ctx, settings)
	if err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if next.Daily.PickedFromQuery == oldQuery {
		t.Fatal("filter change did not change the effective query")
	}
	if judge.searchCount() == callsBefore {
		t.Fatal("filter change must force a pool refresh")
	}
}

func TestValidateHandleEmpty(t *testing.T) {
	o, _, _, _, _ := newTestOrch(t)
	if _, err := o.ValidateHandle(context.Background(), ""); !errors.Is(err, domain.ErrMissingHandle) {
		t.Fatalf("got %v, want ErrMissingHandle", err)
	}
}
