// Package domain contains the pure business types of the daily-challenge
// orchestrator: settings, daily state, the deterministic picker and the
// query grammar. It has zero infrastructure imports.
package domain

import (
	"regexp"
	"strings"
)

// ─── Settings ───────────────────────────────────────────────────────────────

// TagBase selects the baseline for tag filtering: start from every tag and
// carve out exclusions, or start from none and opt tags in.
type TagBase string

const (
	TagBaseAll  TagBase = "all"
	TagBaseNone TagBase = "none"
)

// Filters narrows the candidate pool fetched from the judge.
type Filters struct {
	LevelMin        int      `json:"level_min"`
	LevelMax        int      `json:"level_max"`
	Languages       []string `json:"languages"`
	RequireSolvable bool     `json:"require_solvable"`
	ExcludeWarnings bool     `json:"exclude_warnings"`
	MinSolvedCount  int      `json:"min_solved_count"`
	TagBase         TagBase  `json:"tag_base"`
	IncludeTags     []string `json:"include_tags"`
	ExcludeTags     []string `json:"exclude_tags"`
}

// Settings is the durable user configuration record.
type Settings struct {
	Handle            string   `json:"handle"`
	UILanguage        string   `json:"ui_language"`
	Theme             string   `json:"theme"`
	Whitelist         []string `json:"whitelist"`
	Filters           Filters  `json:"filters"`
	RerollLimitPerDay int      `json:"reroll_limit_per_day"`
	EmergencyHours    int      `json:"emergency_hours"`
	OpenOnStartup     bool     `json:"open_on_startup"`
	OpenOnNewTab      bool     `json:"open_on_new_tab"`
	AutoRecheck       bool     `json:"auto_recheck"`
	DebugMode         bool     `json:"debug_mode"`
	DebugDate         string   `json:"debug_date,omitempty"`
}

// DefaultWhitelist is restored whenever the whitelist normalizes to empty,
// so enforcement can never lock the user out of the judge itself.
var DefaultWhitelist = []string{
	"google.com",
	"github.com",
	"stackoverflow.com",
	"notion.so",
	"chatgpt.com",
	"acmicpc.net",
	"solved.ac",
}

// DefaultSettings returns the factory settings record.
func DefaultSettings() Settings {
	return Settings{
		Handle:     "",
		UILanguage: "en",
		Theme:      "vivid",
		Whitelist:  append([]string(nil), DefaultWhitelist...),
		Filters: Filters{
			LevelMin:        6,
			LevelMax:        15,
			Languages:       []string{"ko", "en"},
			RequireSolvable: true,
			ExcludeWarnings: true,
			MinSolvedCount:  1,
			TagBase:         TagBaseAll,
			IncludeTags:     nil,
			ExcludeTags:     nil,
		},
		RerollLimitPerDay: 3,
		EmergencyHours:    3,
		OpenOnStartup:     true,
		OpenOnNewTab:      false,
		AutoRecheck:       true,
		DebugMode:         false,
		DebugDate:         "",
	}
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NormalizeSettings coerces any settings value into a valid one. It is total
// and idempotent: malformed fields fall back to defaults, never error.
func NormalizeSettings(in Settings) Settings {
	def := DefaultSettings()
	out := in

	out.Handle = strings.TrimSpace(in.Handle)
	if strings.ToLower(in.UILanguage) == "ko" {
		out.UILanguage = "ko"
	} else {
		out.UILanguage = "en"
	}
	switch strings.ToLower(in.Theme) {
	case "dark", "light":
		out.Theme = strings.ToLower(in.Theme)
	default:
		out.Theme = def.Theme
	}

	out.Whitelist = NormalizeDomainList(in.Whitelist)
	if len(out.Whitelist) == 0 {
		out.Whitelist = append([]string(nil), DefaultWhitelist...)
	}

	out.Filters = normalizeFilters(in.Filters, def.Filters)
	out.RerollLimitPerDay = clampInt(in.RerollLimitPerDay, 0, 20, def.RerollLimitPerDay)
	out.EmergencyHours = clampInt(in.EmergencyHours, 1, 24, def.EmergencyHours)
	if !dateRe.MatchString(in.DebugDate) {
		out.DebugDate = ""
	}
	return out
}

func normalizeFilters(in, def Filters) Filters {
	out := in
	out.LevelMin = clampInt(in.LevelMin, 1, 30, def.LevelMin)
	out.LevelMax = clampInt(in.LevelMax, 1, 30, def.LevelMax)
	if out.LevelMin > out.LevelMax {
		out.LevelMin, out.LevelMax = out.LevelMax, out.LevelMin
	}

	var langs []string
	for _, l := range in.Languages {
		l = strings.ToLower(strings.TrimSpace(l))
		if (l == "ko" || l == "en") && !contains(langs, l) {
			langs = append(langs, l)
		}
	}
	if len(langs) == 0 {
		langs = append([]string(nil), def.Languages...)
	}
	out.Languages = langs

	out.MinSolvedCount = clampInt(in.MinSolvedCount, 1, 1_000_000, def.MinSolvedCount)
	if in.TagBase != TagBaseNone {
		out.TagBase = TagBaseAll
	}
	out.IncludeTags = NormalizeTagList(in.IncludeTags)
	out.ExcludeTags = NormalizeTagList(in.ExcludeTags)
	return out
}

// ─── List Normalization ─────────────────────────────────────────────────────

// NormalizeTag lower-cases and trims a judge tag key. The judge indexes the
// tree category under "trees"; the singular alias is folded into it.
func NormalizeTag(raw string) string {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if tag == "tree" {
		return "trees"
	}
	return tag
}

// NormalizeTagList normalizes, dedupes and drops empty tag keys,
// preserving first-seen order.
func NormalizeTagList(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, raw := range tags {
		tag := NormalizeTag(raw)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// NormalizeDomainList lower-cases whitelist entries, strips schemes and
// trailing slashes, dedupes and drops empties.
func NormalizeDomainList(domains []string) []string {
	var out []string
	seen := make(map[string]bool, len(domains))
	for _, raw := range domains {
		d := strings.ToLower(strings.TrimSpace(raw))
		for {
			trimmed := strings.TrimPrefix(strings.TrimPrefix(d, "https://"), "http://")
			if trimmed == d {
				break
			}
			d = trimmed
		}
		d = strings.TrimRight(d, "/")
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// ParseDomainList splits free-form user input (whitespace, commas or
// newlines) into a normalized domain list.
func ParseDomainList(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ','
	})
	return NormalizeDomainList(fields)
}

// ParseTagList splits free-form user input into a normalized tag list.
func ParseTagList(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ','
	})
	return NormalizeTagList(fields)
}

func clampInt(v, min, max, fallback int) int {
	if v == 0 && fallback != 0 && min > 0 {
		// Zero-valued field on a partially populated record means "unset".
		return fallback
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
