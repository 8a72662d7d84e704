// Package judge implements the solved.ac HTTP client behind the
// domain.JudgeClient capability. Every request carries a bounded timeout and
// failures are classified into domain error codes before they cross the
// package boundary.
package judge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/dailygrind/dailygrind/internal/domain"
)

const (
	// DefaultBaseURL is the public solved.ac API root.
	DefaultBaseURL = "https://solved.ac/api/v3"
	// DefaultTimeout bounds every request; the poller depends on this so a
	// hung check cannot block the in-flight guard forever.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 4 << 20
	tagCatalogPages  = 5
)

// Config controls the judge client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
}

// Client talks to the judge API. Safe for concurrent use.
type Client struct {
	base string
	http *http.Client
}

// New creates a judge client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		base: cfg.BaseURL,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// ─── Wire Types ─────────────────────────────────────────────────────────────

type searchResponse struct {
	Count int          `json:"count"`
	Items []searchItem `json:"items"`
}

type searchItem struct {
	ProblemID int         `json:"problemId"`
	TitleKo   string      `json:"titleKo"`
	Level     int         `json:"level"`
	Titles    []wireTitle `json:"titles"`
}

type wireTitle struct {
	Language string `json:"language"`
	Title    string `json:"title"`
}

type userResponse struct {
	Handle      string `json:"handle"`
	Tier        int    `json:"tier"`
	SolvedCount int    `json:"solvedCount"`
	Rating      int    `json:"rating"`
}

type tagListResponse struct {
	Count int       `json:"count"`
	Items []wireTag `json:"items"`
}

type wireTag struct {
	Key          string `json:"key"`
	DisplayNames []struct {
		Language string `json:"language"`
		Name     string `json:"name"`
	} `json:"displayNames"`
}

// ─── Requests ───────────────────────────────────────────────────────────────

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err // url.Error implements net.Error; CodeOf classifies it
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewError(domain.CodeUnknown, fmt.Sprintf("decode %s: %v", path, err))
	}
	return nil
}

// classifyStatus maps an HTTP status to a classified error.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.NewError(domain.CodeRateLimited, fmt.Sprintf("HTTP %d", status))
	case status >= 500:
		return domain.NewError(domain.CodeServerError, fmt.Sprintf("HTTP %d", status))
	case status == http.StatusNotFound:
		return domain.NewError(domain.CodeNotFound, fmt.Sprintf("HTTP %d", status))
	default:
		return domain.NewError(domain.CodeHTTPError, fmt.Sprintf("HTTP %d", status))
	}
}

// ─── domain.JudgeClient ─────────────────────────────────────────────────────

// SearchProblems runs one page of the judge's problem search.
func (c *Client) SearchProblems(ctx context.Context, query string, page int) (domain.SearchResult, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))

	var resp searchResponse
	if err := c.get(ctx, "/search/problem", params, &resp); err != nil {
		return domain.SearchResult{}, err
	}

	result := domain.SearchResult{Count: resp.Count}
	for _, item := range resp.Items {
		if item.ProblemID <= 0 {
			continue
		}
		result.Items = append(result.Items, domain.Candidate{
			ProblemID: item.ProblemID,
			Level:     item.Level,
			TitleKo:   item.TitleKo,
			TitleEn:   englishTitle(item),
		})
	}
	return result, nil
}

// englishTitle prefers the "en" title, falling back to the first non-empty
// localized title.
func englishTitle(item searchItem) string {
	for _, t := range item.Titles {
		if t.Language == "en" && t.Title != "" {
			return t.Title
		}
	}
	for _, t := range item.Titles {
		if t.Title != "" {
			return t.Title
		}
	}
	return ""
}

// CheckSolved reports whether the handle has solved the problem. The judge
// has no direct endpoint for this; a search scoped to the user and the
// problem id returns count>0 exactly when it is solved.
func (c *Client) CheckSolved(ctx context.Context, handle string, problemID int) (bool, error) {
	query := fmt.Sprintf("@%s id:%d", handle, problemID)
	result, err := c.SearchProblems(ctx, query, 1)
	if err != nil {
		return false, err
	}
	return result.Count > 0, nil
}

// ValidateHandle resolves a handle to its user profile.
func (c *Client) ValidateHandle(ctx context.Context, handle string) (domain.UserProfile, error) {
	params := url.Values{}
	params.Set("handle", handle)

	var resp userResponse
	if err := c.get(ctx, "/user/show", params, &resp); err != nil {
		return domain.UserProfile{}, err
	}
	return domain.UserProfile{
		Handle:      resp.Handle,
		Tier:        resp.Tier,
		SolvedCount: resp.SolvedCount,
		Rating:      resp.Rating,
	}, nil
}

// FetchTagCatalog downloads the judge's tag catalog, merging paginated
// results and normalizing tag keys with the shared alias rule.
func (c *Client) FetchTagCatalog(ctx context.Context) ([]domain.Tag, error) {
	var tags []domain.Tag
	seen := make(map[string]bool)

	for page := 1; page <= tagCatalogPages; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))

		var resp tagListResponse
		if err := c.get(ctx, "/tag/list", params, &resp); err != nil {
			if page > 1 {
				// Partial catalog beats none for a settings UI.
				return tags, nil
			}
			return nil, err
		}
		if len(resp.Items) == 0 {
			break
		}
		for _, item := range resp.Items {
			key := domain.NormalizeTag(item.Key)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			names := make(map[string]string, len(item.DisplayNames))
			for _, dn := range item.DisplayNames {
				names[dn.Language] = dn.Name
			}
			tags = append(tags, domain.Tag{Key: key, DisplayName: names})
		}
		if len(tags) >= resp.Count {
			break
		}
	}
	return tags, nil
}
