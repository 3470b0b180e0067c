package news

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finresearch/pkg/errors"
)

const defaultSerpAPIURL = "https://serpapi.com/search.json"

// SerpAPI searches the Google News tab through serpapi.com
type SerpAPI struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

// NewSerpAPI creates a SerpAPI client
func NewSerpAPI(cfg Config, client *http.Client) *SerpAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSerpAPIURL
	}
	return &SerpAPI{cfg: cfg, client: client, now: time.Now}
}

func (s *SerpAPI) Name() string { return ProviderSerpAPI }

type serpResponse struct {
	Error       string       `json:"error"`
	NewsResults []serpResult `json:"news_results"`
}

type serpResult struct {
	Title   string          `json:"title"`
	Link    string          `json:"link"`
	Snippet string          `json:"snippet"`
	Date    string          `json:"date"`
	Source  json.RawMessage `json:"source"`
}

// sourceName accepts both the plain string and the {"name": ...} forms
func (r serpResult) sourceName() string {
	if len(r.Source) == 0 {
		return ""
	}
	var name string
	if json.Unmarshal(r.Source, &name) == nil {
		return strings.TrimSpace(name)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(r.Source, &obj) == nil {
		return strings.TrimSpace(obj.Name)
	}
	return ""
}

// Search runs one news query
func (s *SerpAPI) Search(ctx context.Context, query string, limit int) ([]Article, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("tbm", "nws")
	params.Set("q", query)
	params.Set("hl", strings.ToLower(s.cfg.Language))
	params.Set("gl", strings.ToLower(s.cfg.Country))
	params.Set("api_key", s.cfg.APIKey)
	if limit > 0 {
		params.Set("num", strconv.Itoa(limit))
	}

	resp, err := get(ctx, s.client, ProviderSerpAPI, s.cfg.BaseURL+"?"+params.Encode(), "application/json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var payload serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrapf(errors.ErrExternal, "serpapi: decode response: %v", err)
	}
	if payload.Error != "" {
		// an empty result set is reported as an error string
		if strings.Contains(strings.ToLower(payload.Error), "hasn't returned any results") {
			return []Article{}, nil
		}
		return nil, errors.Wrapf(errors.ErrExternal, "serpapi: %s", payload.Error)
	}

	now := s.now()
	out := make([]Article, 0, len(payload.NewsResults))
	for _, r := range payload.NewsResults {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, Article{
			Title:       strings.TrimSpace(r.Title),
			Snippet:     strings.TrimSpace(r.Snippet),
			Link:        strings.TrimSpace(r.Link),
			Source:      r.sourceName(),
			PublishedAt: parseSerpDate(r.Date, now),
		})
	}
	return out, nil
}

var serpDateLayouts = []string{
	"01/02/2006, 03:04 PM, -0700 MST",
	"Jan 2, 2006",
	"2 Jan 2006",
	time.RFC3339,
}

// parseSerpDate understands relative ("3 hours ago") and absolute dates.
// Unknown formats yield the zero time.
func parseSerpDate(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	if fields := strings.Fields(strings.ToLower(raw)); len(fields) == 3 && fields[2] == "ago" {
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return time.Time{}
		}
		unit := strings.TrimSuffix(fields[1], "s")
		var step time.Duration
		switch unit {
		case "min", "minute":
			step = time.Minute
		case "hour":
			step = time.Hour
		case "day":
			step = 24 * time.Hour
		case "week":
			step = 7 * 24 * time.Hour
		case "month":
			return now.AddDate(0, -n, 0).UTC()
		case "year":
			return now.AddDate(-n, 0, 0).UTC()
		default:
			return time.Time{}
		}
		return now.Add(-time.Duration(n) * step).UTC()
	}

	for _, layout := range serpDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
