package agents

import (
	"context"
	"time"

	"finresearch/internal/domain/quarter"
)

// MetricRow is one labelled value returned by a metrics store
type MetricRow struct {
	Label string
	Value float64
	Unit  string
}

// MetricsLookup returns valuation metrics for one quarter.
// It returns errors.ErrNotFound when the quarter has no data.
type MetricsLookup interface {
	Query(ctx context.Context, company string, q quarter.Quarter) ([]MetricRow, error)
}

// RangeMetricsLookup is implemented by stores that can answer a whole range in one call.
// Quarters without data are simply missing from the map.
type RangeMetricsLookup interface {
	QueryRange(ctx context.Context, company string, r quarter.Range) (map[quarter.Quarter][]MetricRow, error)
}

// PassageFilter restricts semantic search to an inclusive quarter span
type PassageFilter struct {
	From quarter.Quarter
	To   quarter.Quarter
}

// Matches reports whether a passage tagged with year/q passes the filter
func (f PassageFilter) Matches(year, q int) bool {
	return quarter.Range{Start: f.From, End: f.To}.Contains(quarter.Quarter{Year: year, Q: q})
}

// PassageHit is one ranked semantic search result
type PassageHit struct {
	Text     string
	Score    float64
	Year     int
	Quarter  int
	Document string
	Page     int
}

// SemanticSearch searches the report index
type SemanticSearch interface {
	Search(ctx context.Context, text string, filter PassageFilter, topK int) ([]PassageHit, error)
}

// NewsHit is one news search result
type NewsHit struct {
	Headline    string
	Snippet     string
	PublishedAt time.Time
	URL         string
	Source      string
}

// NewsSearch queries a live news provider.
// Implementations fail with errors.ErrRateLimitExceeded or errors.ErrUnavailable.
type NewsSearch interface {
	Search(ctx context.Context, text string) ([]NewsHit, error)
}

// Prompt is a rendered synthesis request
type Prompt struct {
	System string
	User   string
}

// Synthesizer turns a prompt into narrative text.
// Implementations fail with errors.ErrGenerationFailed.
type Synthesizer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// ResponseSink receives every assembled response (audit, events)
type ResponseSink interface {
	Record(ctx context.Context, resp *AgentResponse) error
}
