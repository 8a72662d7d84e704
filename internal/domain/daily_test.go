package domain

import (
	"fmt"
	"reflect"
	"testing"
	"time"
)

func TestNormalizeHistoryCap(t *testing.T) {
	var history []HistoryEntry
	for i := 0; i < MaxHistory+1; i++ {
		history = append(history, HistoryEntry{
			Date:      AddDays("2026-01-01", i),
			ProblemID: 1000 + i,
			Done:      true,
		})
	}

	got := NormalizeHistory(history)
	if len(got) != MaxHistory {
		t.Fatalf("len = %d, want %d", len(got), MaxHistory)
	}
	// Oldest row evicted, remaining rows sorted ascending.
	if got[0].Date != AddDays("2026-01-01", 1) {
		t.Fatalf("oldest surviving row is %s, want %s", got[0].Date, AddDays("2026-01-01", 1))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Date >= got[i].Date {
			t.Fatalf("history not sorted at %d: %s >= %s", i, got[i-1].Date, got[i].Date)
		}
	}
}

func TestNormalizeHistoryDedupe(t *testing.T) {
	history := []HistoryEntry{
		{Date: "2026-03-01", ProblemID: 1000, Done: false},
		{Date: "2026-03-02", ProblemID: 1001, Done: true},
		{Date: "2026-03-01", ProblemID: 2000, Done: true}, // later write wins
		{Date: "bad-date", ProblemID: 3000, Done: true},
		{Date: "2026-03-03", ProblemID: 0, Done: true},
	}
	got := NormalizeHistory(history)
	want := []HistoryEntry{
		{Date: "2026-03-01", ProblemID: 2000, Done: true},
		{Date: "2026-03-02", ProblemID: 1001, Done: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestUpsertHistory(t *testing.T) {
	history := []HistoryEntry{{Date: "2026-03-01", ProblemID: 1000, Done: false}}

	history = UpsertHistory(history, HistoryEntry{Date: "2026-03-01", ProblemID: 1000, Done: true})
	if len(history) != 1 || !history[0].Done {
		t.Fatalf("replace failed: %+v", history)
	}

	history = UpsertHistory(history, HistoryEntry{Date: "2026-02-28", ProblemID: 999, Done: true})
	if len(history) != 2 || history[0].Date != "2026-02-28" {
		t.Fatalf("insert not sorted: %+v", history)
	}
}

func TestNormalizeDailyStateIdempotent(t *testing.T) {
	dirty := DailyState{
		Date:            "garbage",
		TodayProblemID:  -4,
		TodayLevel:      99,
		RerollUsed:      -1,
		AutoAdvanceUsed: -1,
		EmergencyUsedOn: "also garbage",
		EmergencyUntil:  -100,
		Streak:          -3,
		LastDoneDate:    "nope",
		LastSolvedCheck: -1,
		Pool: PoolCache{
			QueryKey:  "q",
			FetchedAt: -5,
			Candidates: []Candidate{
				{ProblemID: 1000}, {ProblemID: 1000}, {ProblemID: 0},
			},
		},
	}
	once := NormalizeDailyState(dirty)
	twice := NormalizeDailyState(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("not idempotent:\nonce  %+v\ntwice %+v", once, twice)
	}
	if once.Date != "" || once.TodayProblemID != 0 || once.TodayLevel != 0 {
		t.Fatalf("malformed fields not cleared: %+v", once)
	}
	if len(once.Pool.Candidates) != 1 || once.Pool.FetchedAt != 0 {
		t.Fatalf("pool not normalized: %+v", once.Pool)
	}
}

func TestEmergencyActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, KST)
	d := DailyState{EmergencyUntil: UnixMilli(now.Add(time.Hour))}
	if !d.EmergencyActive(now) {
		t.Fatal("window should be active an hour before expiry")
	}
	if d.EmergencyActive(now.Add(2 * time.Hour)) {
		t.Fatal("window should be inactive after expiry")
	}
	if (DailyState{}).EmergencyActive(now) {
		t.Fatal("zero state should never be active")
	}
}

func TestPushRecentLogCap(t *testing.T) {
	var logs []LogEntry
	for i := 0; i < MaxRecentLogs+10; i++ {
		logs = PushRecentLog(logs, LogEntry{TS: int64(i + 1), Level: "info", Msg: fmt.Sprintf("entry %d", i)})
	}
	if len(logs) != MaxRecentLogs {
		t.Fatalf("len = %d, want %d", len(logs), MaxRecentLogs)
	}
	if logs[0].Msg != "entry 10" {
		t.Fatalf("oldest surviving entry is %q, want %q", logs[0].Msg, "entry 10")
	}
}

func TestEffectiveDate(t *testing.T) {
	// 2026-03-01 23:30 UTC is already 2026-03-02 in KST.
	now := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)

	s := DefaultSettings()
	if got := EffectiveDate(s, now); got != "2026-03-02" {
		t.Fatalf("KST date = %s, want 2026-03-02", got)
	}

	s.DebugMode = true
	s.DebugDate = "2030-01-15"
	if got := EffectiveDate(s, now); got != "2030-01-15" {
		t.Fatalf("debug override = %s, want 2030-01-15", got)
	}

	s.DebugDate = "not-a-date"
	if got := EffectiveDate(s, now); got != "2026-03-02" {
		t.Fatalf("malformed override should fall through, got %s", got)
	}

	s.DebugMode = false
	s.DebugDate = "2030-01-15"
	if got := EffectiveDate(s, now); got != "2026-03-02" {
		t.Fatalf("override without debug mode should be ignored, got %s", got)
	}
}

func TestAddDays(t *testing.T) {
	tests := []struct {
		date string
		n    int
		want string
	}{
		{"2026-03-01", -1, "2026-02-28"},
		{"2026-03-01", 1, "2026-03-02"},
		{"2024-03-01", -1, "2024-02-29"}, // leap year
		{"2026-12-31", 1, "2027-01-01"},
		{"garbage", 1, ""},
	}
	for _, tt := range tests {
		if got := AddDays(tt.date, tt.n); got != tt.want {
			t.Errorf("AddDays(%q, %d) = %q, want %q", tt.date, tt.n, got, tt.want)
		}
	}
}

func TestComputeStats(t *testing.T) {
	today := "2026-03-10"
	d := DailyState{
		DayDone: true,
		History: []HistoryEntry{
			{Date: "2026-03-09", ProblemID: 1, Done: true},
			{Date: "2026-03-08", ProblemID: 2, Done: true},
			{Date: "2026-03-06", ProblemID: 3, Done: true}, // gap on the 7th
			{Date: "2026-01-01", ProblemID: 4, Done: true}, // outside the 30-day window
			{Date: "2026-03-05", ProblemID: 5, Done: false},
		},
	}

	stats := ComputeStats(d, today)
	if stats.Streak != 3 {
		t.Errorf("streak = %d, want 3 (today, 9th, 8th)", stats.Streak)
	}
	if stats.TotalDone != 5 {
		t.Errorf("total done = %d, want 5", stats.TotalDone)
	}
	if stats.Done30 != 4 {
		t.Errorf("done30 = %d, want 4", stats.Done30)
	}
	if stats.Recent30Rate != 13 {
		t.Errorf("recent30Rate = %d, want 13", stats.Recent30Rate)
	}
}

func TestComputeStatsPendingToday(t *testing.T) {
	// Today still pending keeps yesterday's streak alive.
	d := DailyState{
		History: []HistoryEntry{
			{Date: "2026-03-09", ProblemID: 1, Done: true},
			{Date: "2026-03-08", ProblemID: 2, Done: true},
		},
	}
	stats := ComputeStats(d, "2026-03-10")
	if stats.Streak != 2 {
		t.Fatalf("streak = %d, want 2", stats.Streak)
	}
}

func TestComputeStatsBrokenStreak(t *testing.T) {
	d := DailyState{
		History: []HistoryEntry{
			{Date: "2026-03-05", ProblemID: 1, Done: true},
		},
	}
	stats := ComputeStats(d, "2026-03-10")
	if stats.Streak != 0 {
		t.Fatalf("streak = %d, want 0", stats.Streak)
	}
}
