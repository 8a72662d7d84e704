package domain

import (
	"context"
	"time"
)

// ─── Capability Interfaces ──────────────────────────────────────────────────
// Infrastructure implements these; the orchestrator depends only on them.

// SearchResult is one page of judge search results.
type SearchResult struct {
	Items []Candidate
	Count int // total matches across all pages
}

// UserProfile is the judge's view of a user, returned by handle validation.
type UserProfile struct {
	Handle      string `json:"handle"`
	Tier        int    `json:"tier"`
	SolvedCount int    `json:"solved_count"`
	Rating      int    `json:"rating"`
}

// Tag is one entry of the judge's tag catalog.
type Tag struct {
	Key         string            `json:"key"`
	DisplayName map[string]string `json:"display_name"` // language → name
}

// JudgeClient abstracts the external judge API. Implementations must bound
// every call with a timeout and surface classified errors (CodeOf-friendly).
type JudgeClient interface {
	SearchProblems(ctx context.Context, query string, page int) (SearchResult, error)
	CheckSolved(ctx context.Context, handle string, problemID int) (bool, error)
	ValidateHandle(ctx context.Context, handle string) (UserProfile, error)
	FetchTagCatalog(ctx context.Context) ([]Tag, error)
}

// StateStore abstracts durable storage of the two records. Implementations
// normalize on every read and every write, so callers always observe values
// satisfying the domain invariants.
type StateStore interface {
	Settings() (Settings, error)
	SaveSettings(Settings) (Settings, error)
	DailyState() (DailyState, error)
	SaveDailyState(DailyState) (DailyState, error)

	// Wipe clears both records; used only by factory reset.
	Wipe() error
}

// Clock supplies the current time. Tests inject a virtual clock.
type Clock interface {
	Now() time.Time
}

// Scheduler runs a function after a delay and returns a cancel func.
// Delays are best effort; a cancelled timer never fires.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func())
}
