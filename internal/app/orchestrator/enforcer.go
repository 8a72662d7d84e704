package orchestrator

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/dailygrind/dailygrind/internal/domain"
	"github.com/dailygrind/dailygrind/internal/infra/observability"
)

// ─── Redirect Enforcer ──────────────────────────────────────────────────────

const (
	// redirectCooldown suppresses repeat redirects of the same URL in the
	// same tab; the browser's own navigation events would otherwise loop.
	redirectCooldown      = 1200 * time.Millisecond
	debugRedirectCooldown = 350 * time.Millisecond

	// guardHighWater triggers pruning of stale per-tab guard entries.
	guardHighWater = 256
)

type tabGuard struct {
	url string
	at  int64 // unix ms of last redirect
}

// Decision tells the browser-side collaborator what to do with a tab.
type Decision struct {
	Redirect bool   `json:"redirect"`
	Target   string `json:"target,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

var skippableSchemes = []string{
	"chrome://",
	"chrome-extension://",
	"about:",
	"edge://",
	"devtools://",
}

func isSkippableURL(rawURL string) bool {
	if rawURL == "" {
		return true
	}
	for _, prefix := range skippableSchemes {
		if strings.HasPrefix(rawURL, prefix) {
			return true
		}
	}
	return false
}

// isWhitelisted reports whether the URL's host matches a whitelisted domain
// exactly or as a subdomain.
func isWhitelisted(rawURL string, whitelist []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, d := range whitelist {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// shouldEnforce is the shared gate: enforcement applies only when a problem
// is assigned, the day is pending and no emergency window is open.
func shouldEnforce(view View, now time.Time) (skip string) {
	switch {
	case view.Daily.EmergencyActive(now):
		return "emergency_active"
	case view.Daily.DayDone:
		return "day_done"
	case view.Settings.Handle == "" || view.Daily.TodayProblemID == 0:
		return "not_ready"
	default:
		return ""
	}
}

// EnforceTab decides whether a navigated tab must be redirected to the
// day's problem. A per-tab cooldown guard debounces the browser's own
// navigation events after a redirect.
func (o *Orchestrator) EnforceTab(ctx context.Context, tabID, navigatedURL string) (Decision, error) {
	view, err := o.EnsureDailyState(ctx, false)
	if err != nil {
		return Decision{}, err
	}

	if isSkippableURL(navigatedURL) {
		return Decision{Reason: "internal_url"}, nil
	}
	if reason := shouldEnforce(view, o.clock.Now()); reason != "" {
		return Decision{Reason: reason}, nil
	}
	if domain.IsProblemURL(navigatedURL, view.Daily.TodayProblemID) {
		return Decision{Reason: "on_problem"}, nil
	}
	if isWhitelisted(navigatedURL, view.Settings.Whitelist) {
		return Decision{Reason: "whitelisted"}, nil
	}

	cooldown := redirectCooldown
	if view.Settings.DebugMode {
		cooldown = debugRedirectCooldown
	}
	now := domain.UnixMilli(o.clock.Now())

	o.guardMu.Lock()
	guard, ok := o.redirectGuard[tabID]
	if ok && guard.url == navigatedURL && now-guard.at < cooldown.Milliseconds() {
		o.guardMu.Unlock()
		observability.RedirectsDebounced.Inc()
		return Decision{Reason: "cooldown"}, nil
	}
	o.redirectGuard[tabID] = tabGuard{url: navigatedURL, at: now}
	o.pruneGuardLocked(now)
	o.guardMu.Unlock()

	observability.Redirects.Inc()
	return Decision{
		Redirect: true,
		Target:   domain.ProblemURL(view.Daily.TodayProblemID),
	}, nil
}

// pruneGuardLocked drops guard entries older than an hour once the map
// grows past the high-water mark. Caller holds guardMu.
func (o *Orchestrator) pruneGuardLocked(now int64) {
	if len(o.redirectGuard) <= guardHighWater {
		return
	}
	cutoff := now - time.Hour.Milliseconds()
	for id, g := range o.redirectGuard {
		if g.at < cutoff {
			delete(o.redirectGuard, id)
		}
	}
}

// ─── Proactive Open Decisions ───────────────────────────────────────────────

// OnTabCreated decides whether a freshly created blank tab should open the
// day's problem. Same gate as enforcement, minus the per-tab debounce.
func (o *Orchestrator) OnTabCreated(ctx context.Context, pendingURL string) (Decision, error) {
	view, err := o.EnsureDailyState(ctx, false)
	if err != nil {
		return Decision{}, err
	}
	if !view.Settings.OpenOnNewTab {
		return Decision{Reason: "disabled"}, nil
	}
	if reason := shouldEnforce(view, o.clock.Now()); reason != "" {
		return Decision{Reason: reason}, nil
	}
	blank := pendingURL == "" || strings.HasPrefix(pendingURL, "chrome://newtab")
	if !blank {
		return Decision{Reason: "not_blank"}, nil
	}
	return Decision{Redirect: true, Target: domain.ProblemURL(view.Daily.TodayProblemID)}, nil
}

// OnProcessStart reconciles state at boot and decides whether to open the
// problem proactively. openURLs are the URLs of tabs already open; when one
// of them is already on the problem, nothing is opened.
func (o *Orchestrator) OnProcessStart(ctx context.Context, openURLs []string) (Decision, error) {
	return o.startupOpen(ctx, openURLs, false)
}

// OnInstall runs the first-install path: a forced reassignment followed by
// the startup open decision.
func (o *Orchestrator) OnInstall(ctx context.Context, openURLs []string) (Decision, error) {
	return o.startupOpen(ctx, openURLs, true)
}

func (o *Orchestrator) startupOpen(ctx context.Context, openURLs []string, force bool) (Decision, error) {
	view, err := o.EnsureDailyState(ctx, force)
	if err != nil {
		return Decision{}, err
	}
	if !view.Settings.OpenOnStartup {
		return Decision{Reason: "disabled"}, nil
	}
	if reason := shouldEnforce(view, o.clock.Now()); reason != "" {
		return Decision{Reason: reason}, nil
	}
	target := domain.ProblemURL(view.Daily.TodayProblemID)
	for _, u := range openURLs {
		if strings.HasPrefix(u, target) {
			return Decision{Reason: "already_open"}, nil
		}
	}
	return Decision{Redirect: true, Target: target}, nil
}
