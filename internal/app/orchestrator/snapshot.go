package orchestrator

import (
	"context"
	"time"

	"github.com/dailygrind/dailygrind/internal/domain"
)

// ─── Snapshot ───────────────────────────────────────────────────────────────

// Status summarizes the day for badge-style consumers.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDone      Status = "DONE"
	StatusEmergency Status = "EMERGENCY"
)

// Snapshot is the read-only projection the popup/options UI renders. It
// combines settings, daily state and derived display fields; consumers
// observe state, they never receive live background errors.
type Snapshot struct {
	Settings domain.Settings   `json:"settings"`
	Daily    domain.DailyState `json:"daily"`
	Today    string            `json:"today"`

	Status          Status       `json:"status"`
	ProblemURL      string       `json:"problem_url,omitempty"`
	ProblemTitle    string       `json:"problem_title,omitempty"`
	ProblemTier     string       `json:"problem_tier,omitempty"`
	RerollRemaining int          `json:"reroll_remaining"`
	EmergencyActive bool         `json:"emergency_active"`
	EmergencyCanUse bool         `json:"emergency_can_use"`
	EmergencyLeftMS int64        `json:"emergency_left_ms"`
	Stats           domain.Stats `json:"stats"`
}

// BuildSnapshot runs an ensure cycle and projects the result for display.
func (o *Orchestrator) BuildSnapshot(ctx context.Context) (Snapshot, error) {
	view, err := o.EnsureDailyState(ctx, false)
	if err != nil {
		return Snapshot{}, err
	}

	now := o.clock.Now()
	snap := Snapshot{
		Settings:        view.Settings,
		Daily:           view.Daily,
		Today:           view.Today,
		Status:          statusOf(view.Daily, now),
		RerollRemaining: view.Settings.RerollLimitPerDay - view.Daily.RerollUsed,
		EmergencyActive: view.Daily.EmergencyActive(now),
		EmergencyCanUse: view.Daily.EmergencyUsedOn != view.Today,
		Stats:           domain.ComputeStats(view.Daily, view.Today),
	}
	if snap.RerollRemaining < 0 {
		snap.RerollRemaining = 0
	}
	if left := view.Daily.EmergencyUntil - domain.UnixMilli(now); left > 0 {
		snap.EmergencyLeftMS = left
	}
	if view.Daily.TodayProblemID > 0 {
		snap.ProblemURL = domain.ProblemURL(view.Daily.TodayProblemID)
		snap.ProblemTitle = localizedTitle(view.Settings, view.Daily)
		snap.ProblemTier = domain.TierLabel(view.Daily.TodayLevel)
	}
	return snap, nil
}

func statusOf(daily domain.DailyState, now time.Time) Status {
	switch {
	case daily.EmergencyActive(now):
		return StatusEmergency
	case daily.DayDone:
		return StatusDone
	default:
		return StatusPending
	}
}

// localizedTitle picks the title for the configured UI language, falling
// back to whichever localization exists.
func localizedTitle(settings domain.Settings, daily domain.DailyState) string {
	if settings.UILanguage == "ko" {
		if daily.TodayTitleKo != "" {
			return daily.TodayTitleKo
		}
		return daily.TodayTitleEn
	}
	if daily.TodayTitleEn != "" {
		return daily.TodayTitleEn
	}
	return daily.TodayTitleKo
}
