package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/dailygrind/dailygrind/internal/domain"
	"github.com/dailygrind/dailygrind/internal/infra/observability"
)

// ─── Candidate Pool Cache ───────────────────────────────────────────────────

const (
	// PoolTTL bounds how long a fetched pool stays usable.
	PoolTTL = 6 * time.Hour
	// PoolMaxPages caps the sequential page fetch per refresh.
	PoolMaxPages = 5
)

// PoolResult is the outcome of ensuring the candidate pool.
type PoolResult struct {
	Query             string
	Candidates        []domain.Candidate
	Refreshed         bool
	PartialFailure    bool
	UsedStaleFallback bool
	FallbackReason    domain.Code
}

// poolKey derives the cache key: the effective query plus the page-count
// suffix, so changing PoolMaxPages also invalidates old entries.
func poolKey(query string) string {
	return fmt.Sprintf("%s|p%d", query, PoolMaxPages)
}

// ensurePool returns a usable candidate pool for the current filters,
// refreshing the persisted cache when it is missing, stale or force
// refreshed. A refresh that fails entirely falls back to a stale cache
// entry under the same key rather than propagating the error, so a
// transient judge outage never strands the user without an assignable
// problem. Any successful fetch is written into daily.Pool unconditionally;
// the caller persists the record.
func (o *Orchestrator) ensurePool(ctx context.Context, settings domain.Settings, daily *domain.DailyState, forceRefresh bool) (PoolResult, error) {
	query := domain.BuildQuery(settings)
	key := poolKey(query)
	now := domain.UnixMilli(o.clock.Now())

	cached := daily.Pool
	cacheUsable := cached.QueryKey == key &&
		len(cached.Candidates) > 0 &&
		cached.FetchedAt > 0 &&
		now-cached.FetchedAt <= PoolTTL.Milliseconds()

	if cacheUsable && !forceRefresh {
		observability.PoolFetches.WithLabelValues("hit").Inc()
		return PoolResult{Query: query, Candidates: cached.Candidates}, nil
	}

	merged, partial, fetchErr := o.fetchPool(ctx, query)

	if len(merged) == 0 {
		err := fetchErr
		if err == nil {
			err = domain.ErrNoCandidates
		}
		// Stale fallback only under the same key: different filters must
		// never serve another query's candidates.
		if cached.QueryKey == key && len(cached.Candidates) > 0 {
			reason := domain.CodeOf(err)
			observability.PoolFetches.WithLabelValues("stale_fallback").Inc()
			o.logState(daily, settings, "warn",
				fmt.Sprintf("pool refresh failed (%s), serving stale cache of %d candidates", reason, len(cached.Candidates)))
			return PoolResult{
				Query:             query,
				Candidates:        cached.Candidates,
				UsedStaleFallback: true,
				FallbackReason:    reason,
			}, nil
		}
		observability.PoolFetches.WithLabelValues("failure").Inc()
		return PoolResult{Query: query}, err
	}

	daily.Pool = domain.PoolCache{
		QueryKey:   key,
		FetchedAt:  now,
		Candidates: merged,
	}
	observability.PoolFetches.WithLabelValues("refresh").Inc()
	observability.PoolSize.Set(float64(len(merged)))
	return PoolResult{
		Query:          query,
		Candidates:     merged,
		Refreshed:      true,
		PartialFailure: partial,
	}, nil
}

// fetchPool pulls up to PoolMaxPages pages sequentially, merging candidates
// deduplicated by problem id and stopping early on an empty page. A failed
// page is skipped (partial=true) and the last error is kept so an
// all-pages-failed refresh can propagate a classified cause.
func (o *Orchestrator) fetchPool(ctx context.Context, query string) (merged []domain.Candidate, partial bool, lastErr error) {
	seen := make(map[int]bool)
	for page := 1; page <= PoolMaxPages; page++ {
		result, err := o.judge.SearchProblems(ctx, query, page)
		if err != nil {
			partial = true
			lastErr = err
			continue
		}
		if len(result.Items) == 0 {
			break
		}
		for _, c := range result.Items {
			if c.ProblemID <= 0 || seen[c.ProblemID] {
				continue
			}
			seen[c.ProblemID] = true
			merged = append(merged, c)
		}
	}
	return merged, partial, lastErr
}
