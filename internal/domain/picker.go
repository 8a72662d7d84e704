package domain

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ─── Query Builder ──────────────────────────────────────────────────────────

// BuildQuery derives the judge search query from the configured filters.
// Pure: the same settings always produce the same query string, which is
// what keys the candidate-pool cache.
func BuildQuery(s Settings) string {
	f := s.Filters
	tokens := []string{fmt.Sprintf("*%d..%d", f.LevelMin, f.LevelMax)}

	if s.Handle != "" {
		tokens = append(tokens, "!@"+s.Handle)
	}
	if f.RequireSolvable {
		tokens = append(tokens, "o?true")
	}
	if f.ExcludeWarnings {
		tokens = append(tokens, "w?false")
	}
	switch len(f.Languages) {
	case 0:
		// Normalization guarantees at least one language; nothing to add.
	case 1:
		tokens = append(tokens, "%"+f.Languages[0])
	default:
		parts := make([]string, len(f.Languages))
		for i, lang := range f.Languages {
			parts[i] = "%" + lang
		}
		tokens = append(tokens, "("+strings.Join(parts, " | ")+")")
	}
	if f.MinSolvedCount > 0 {
		tokens = append(tokens, fmt.Sprintf("s#%d..", f.MinSolvedCount))
	}

	include := NormalizeTagList(f.IncludeTags)
	if f.TagBase == TagBaseNone && len(include) > 1 {
		// Opt-in baseline: any of the selected tags qualifies.
		parts := make([]string, len(include))
		for i, tag := range include {
			parts[i] = "#" + tag
		}
		tokens = append(tokens, "("+strings.Join(parts, " | ")+")")
	} else {
		for _, tag := range include {
			tokens = append(tokens, "#"+tag)
		}
	}
	for _, tag := range NormalizeTagList(f.ExcludeTags) {
		tokens = append(tokens, "!#"+tag)
	}

	return strings.Join(tokens, " ")
}

// ─── Deterministic Picker ───────────────────────────────────────────────────

// hashSeed is a 32-bit FNV-1a over the seed string. Zero hashes coerce to 1
// so the result is always a usable modulus operand.
func hashSeed(seed string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(seed); i++ {
		h ^= uint32(seed[i])
		h *= 16777619
	}
	if h == 0 {
		return 1
	}
	return h
}

// Pick deterministically selects one problem id from the candidate set for
// the given date and counters. The set is sorted ascending first so fetch
// order cannot change the outcome. When the computed pick equals avoid and
// another candidate exists, the next id in sorted order (wrapping) is
// returned instead; auto-advance uses this so a just-solved problem is never
// re-picked while alternatives remain. Fails with ErrEmptyCandidates on an
// empty set.
func Pick(ids []int, date string, rerollUsed, autoAdvanceUsed, avoid int) (int, error) {
	seen := make(map[int]bool, len(ids))
	sorted := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		sorted = append(sorted, id)
	}
	if len(sorted) == 0 {
		return 0, ErrEmptyCandidates
	}
	sort.Ints(sorted)

	seed := fmt.Sprintf("%s:%d:%d", date, rerollUsed, autoAdvanceUsed)
	idx := int(hashSeed(seed) % uint32(len(sorted)))
	if sorted[idx] == avoid && len(sorted) > 1 {
		idx = (idx + 1) % len(sorted)
	}
	return sorted[idx], nil
}

// ─── Problem URLs ───────────────────────────────────────────────────────────

const problemHost = "www.acmicpc.net"

// ProblemURL returns the canonical judge URL for a problem.
func ProblemURL(problemID int) string {
	return fmt.Sprintf("https://%s/problem/%d", problemHost, problemID)
}

// IsProblemURL reports whether a URL is the canonical page of the given
// problem.
func IsProblemURL(rawURL string, problemID int) bool {
	if rawURL == "" || problemID <= 0 {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Hostname() == problemHost && u.Path == fmt.Sprintf("/problem/%d", problemID)
}

// ─── Tier Labels ────────────────────────────────────────────────────────────

var (
	tierNames = []string{"Bronze", "Silver", "Gold", "Platinum", "Diamond", "Ruby"}
	tierRoman = []string{"V", "IV", "III", "II", "I"}
)

// TierLabel maps a difficulty level (1..30) to the judge's tier name,
// e.g. 1 → "Bronze V", 30 → "Ruby I". Out-of-range levels are clamped.
func TierLabel(level int) string {
	if level < 1 {
		level = 1
	}
	if level > 30 {
		level = 30
	}
	return tierNames[(level-1)/5] + " " + tierRoman[(level-1)%5]
}
