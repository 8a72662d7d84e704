package domain

import (
	"sort"
	"time"
)

// ─── Daily State ────────────────────────────────────────────────────────────

const (
	// MaxHistory bounds the history ledger; oldest rows are evicted first.
	MaxHistory = 60
	// MaxRecentLogs bounds the persisted log ring buffer.
	MaxRecentLogs = 200
)

// Candidate is one assignable problem from the judge's search results.
type Candidate struct {
	ProblemID int    `json:"problem_id"`
	Level     int    `json:"level"`
	TitleKo   string `json:"title_ko"`
	TitleEn   string `json:"title_en"`
}

// HistoryEntry records the outcome of one past day.
type HistoryEntry struct {
	Date      string `json:"date"`
	ProblemID int    `json:"problem_id"`
	Done      bool   `json:"done"`
}

// LogEntry is one row of the persisted recent-log ring buffer.
type LogEntry struct {
	TS    int64  `json:"ts"` // unix milliseconds
	Level string `json:"level"`
	Msg   string `json:"msg"`
	Data  string `json:"data,omitempty"`
}

// PoolCache is the persisted candidate-pool cache. It is keyed by the
// effective query string so a filter change invalidates it implicitly.
type PoolCache struct {
	QueryKey   string      `json:"query_key"`
	FetchedAt  int64       `json:"fetched_at"` // unix milliseconds, 0 = never
	Candidates []Candidate `json:"candidates"`
}

// DailyState is the durable per-day record. Exactly one live record exists;
// day rollover folds the old day into History before discarding it.
type DailyState struct {
	Date            string `json:"date"` // KST calendar date, YYYY-MM-DD
	TodayProblemID  int    `json:"today_problem_id"`
	TodayLevel      int    `json:"today_level"`
	TodayTitleKo    string `json:"today_title_ko"`
	TodayTitleEn    string `json:"today_title_en"`
	PickedFromQuery string `json:"picked_from_query"`
	DayDone         bool   `json:"day_done"`
	CurrentSolved   bool   `json:"current_solved"`
	RerollUsed      int    `json:"reroll_used"`
	AutoAdvanceUsed int    `json:"auto_advance_used"`
	EmergencyUsedOn string `json:"emergency_used_on"` // date the daily allowance was spent
	EmergencyUntil  int64  `json:"emergency_until"`   // unix ms, 0 = inactive
	Streak          int    `json:"streak"`
	LastDoneDate    string `json:"last_done_date"`
	LastSolvedCheck int64  `json:"last_solved_check"` // unix ms
	LastAPIError    Code   `json:"last_api_error"`

	Pool       PoolCache      `json:"pool"`
	History    []HistoryEntry `json:"history"`
	RecentLogs []LogEntry     `json:"recent_logs"`
}

// NormalizeDailyState coerces any stored daily record into a valid one.
// Like NormalizeSettings it is total, idempotent and side-effect free.
func NormalizeDailyState(in DailyState) DailyState {
	out := in
	if !dateRe.MatchString(in.Date) {
		out.Date = ""
	}
	if out.TodayProblemID < 0 {
		out.TodayProblemID = 0
	}
	if out.TodayLevel < 0 || out.TodayLevel > 30 {
		out.TodayLevel = 0
	}
	if out.RerollUsed < 0 {
		out.RerollUsed = 0
	}
	if out.AutoAdvanceUsed < 0 {
		out.AutoAdvanceUsed = 0
	}
	if !dateRe.MatchString(in.EmergencyUsedOn) {
		out.EmergencyUsedOn = ""
	}
	if out.EmergencyUntil < 0 {
		out.EmergencyUntil = 0
	}
	if out.Streak < 0 {
		out.Streak = 0
	}
	if !dateRe.MatchString(in.LastDoneDate) {
		out.LastDoneDate = ""
	}
	if out.LastSolvedCheck < 0 {
		out.LastSolvedCheck = 0
	}
	out.Pool = normalizePool(in.Pool)
	out.History = NormalizeHistory(in.History)
	out.RecentLogs = normalizeLogs(in.RecentLogs)
	return out
}

func normalizePool(in PoolCache) PoolCache {
	out := PoolCache{QueryKey: in.QueryKey, FetchedAt: in.FetchedAt}
	if out.FetchedAt < 0 {
		out.FetchedAt = 0
	}
	seen := make(map[int]bool, len(in.Candidates))
	for _, c := range in.Candidates {
		if c.ProblemID <= 0 || seen[c.ProblemID] {
			continue
		}
		seen[c.ProblemID] = true
		out.Candidates = append(out.Candidates, c)
	}
	return out
}

// EmergencyActive reports whether the emergency window covers the given
// instant.
func (d DailyState) EmergencyActive(now time.Time) bool {
	return d.EmergencyUntil > UnixMilli(now)
}

// ─── History Ledger ─────────────────────────────────────────────────────────

// NormalizeHistory drops malformed rows, removes duplicate dates keeping the
// last occurrence, sorts ascending by date and trims to MaxHistory entries,
// evicting oldest first.
func NormalizeHistory(history []HistoryEntry) []HistoryEntry {
	byDate := make(map[string]HistoryEntry, len(history))
	var order []string
	for _, row := range history {
		if !dateRe.MatchString(row.Date) || row.ProblemID <= 0 {
			continue
		}
		if _, ok := byDate[row.Date]; !ok {
			order = append(order, row.Date)
		}
		byDate[row.Date] = row
	}
	out := make([]HistoryEntry, 0, len(order))
	for _, date := range order {
		out = append(out, byDate[date])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	if len(out) > MaxHistory {
		out = out[len(out)-MaxHistory:]
	}
	return out
}

// UpsertHistory inserts or replaces the row for row.Date and re-applies the
// ledger invariants (sorted, unique dates, capped).
func UpsertHistory(history []HistoryEntry, row HistoryEntry) []HistoryEntry {
	next := NormalizeHistory(history)
	replaced := false
	for i := range next {
		if next[i].Date == row.Date {
			next[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, row)
	}
	return NormalizeHistory(next)
}

// HistoryFor returns the ledger row for a date, if present.
func HistoryFor(history []HistoryEntry, date string) (HistoryEntry, bool) {
	for _, row := range history {
		if row.Date == date {
			return row, true
		}
	}
	return HistoryEntry{}, false
}

// ─── Recent Logs ────────────────────────────────────────────────────────────

func normalizeLogs(logs []LogEntry) []LogEntry {
	var out []LogEntry
	for _, row := range logs {
		if row.TS <= 0 || row.Msg == "" {
			continue
		}
		if row.Level == "" {
			row.Level = "info"
		}
		out = append(out, row)
	}
	if len(out) > MaxRecentLogs {
		out = out[len(out)-MaxRecentLogs:]
	}
	return out
}

// PushRecentLog appends an entry to the ring buffer, evicting oldest first.
func PushRecentLog(logs []LogEntry, entry LogEntry) []LogEntry {
	next := append(normalizeLogs(logs), entry)
	if len(next) > MaxRecentLogs {
		next = next[len(next)-MaxRecentLogs:]
	}
	return next
}

// ─── Dates & Stats ──────────────────────────────────────────────────────────

// KST is the judge's reference time zone. Day boundaries are computed here
// regardless of the machine's local zone.
var KST = time.FixedZone("KST", 9*60*60)

// DateKST formats an instant as a KST calendar date.
func DateKST(t time.Time) string {
	return t.In(KST).Format("2006-01-02")
}

// EffectiveDate returns today's date in KST, or the debug override when
// debug mode carries a well-formed date.
func EffectiveDate(s Settings, now time.Time) string {
	if s.DebugMode && dateRe.MatchString(s.DebugDate) {
		return s.DebugDate
	}
	return DateKST(now)
}

// AddDays shifts a calendar date by n days. Malformed input yields "".
func AddDays(date string, n int) string {
	t, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, n).Format("2006-01-02")
}

// UnixMilli converts an instant to unix milliseconds.
func UnixMilli(t time.Time) int64 {
	return t.UnixMilli()
}

// Stats is the derived completion summary shown in the UI.
type Stats struct {
	Streak       int `json:"streak"`
	TotalDone    int `json:"total_done"`
	Done30       int `json:"done_30"`
	Recent30Rate int `json:"recent_30_rate"` // percent, rounded
}

// ComputeStats derives streak and trailing-30-day stats from the history
// ledger. A date counts as done when history marks it done, or when it is
// today and the day-completion flag is set.
func ComputeStats(d DailyState, today string) Stats {
	done := make(map[string]bool)
	for _, row := range NormalizeHistory(d.History) {
		if row.Done {
			done[row.Date] = true
		}
	}
	if d.DayDone && today != "" {
		done[today] = true
	}

	// Walk backward from today (or yesterday when today is pending) until
	// the first gap.
	streak := 0
	cursor := today
	if !done[today] {
		cursor = AddDays(today, -1)
	}
	for cursor != "" && done[cursor] {
		streak++
		cursor = AddDays(cursor, -1)
	}

	done30 := 0
	for i := 0; i < 30; i++ {
		if done[AddDays(today, -i)] {
			done30++
		}
	}

	return Stats{
		Streak:       streak,
		TotalDone:    len(done),
		Done30:       done30,
		Recent30Rate: int(float64(done30)/30.0*100 + 0.5),
	}
}
