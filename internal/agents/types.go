package agents

import (
	"strings"
	"time"

	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
)

// AgentKind enumerates the research sub-agents. The set is closed.
type AgentKind string

const (
	AgentMetrics AgentKind = "metrics"
	AgentRAG     AgentKind = "rag"
	AgentWeb     AgentKind = "web"
)

// KnownAgents lists every agent kind in prompt assembly order
var KnownAgents = []AgentKind{AgentMetrics, AgentRAG, AgentWeb}

// ParseAgentKind maps a boundary string onto a known kind
func ParseAgentKind(s string) (AgentKind, error) {
	k := AgentKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", errors.NewValidationError("agents", "unknown agent", s)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds
func (k AgentKind) Valid() bool {
	return k.rank() >= 0
}

func (k AgentKind) rank() int {
	for i, known := range KnownAgents {
		if k == known {
			return i
		}
	}
	return -1
}

// Status of a single agent run
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ItemKind tags the populated variant of a ResultItem
type ItemKind string

const (
	ItemMetric  ItemKind = "metric"
	ItemPassage ItemKind = "passage"
	ItemNews    ItemKind = "news"
)

// MetricItem is one valuation metric for one quarter
type MetricItem struct {
	Label   string          `json:"label"`
	Value   float64         `json:"value"`
	Unit    string          `json:"unit"`
	Quarter quarter.Quarter `json:"quarter"`
}

// PassageItem is a ranked excerpt from a quarterly report
type PassageItem struct {
	Text           string  `json:"text"`
	QuarterLabel   string  `json:"quarter_label"`
	Year           int     `json:"year"`
	Quarter        int     `json:"quarter"`
	SourceDocument string  `json:"source_document"`
	Page           int     `json:"page"`
	RelevanceScore float64 `json:"relevance_score"`
}

// NewsItem is a recent headline; a zero PublishedAt means the source gave no date
type NewsItem struct {
	Headline    string    `json:"headline"`
	Snippet     string    `json:"snippet"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url"`
	Source      string    `json:"source,omitempty"`
}

// ResultItem is a tagged variant: exactly one pointer matching Kind is set
type ResultItem struct {
	Kind    ItemKind     `json:"kind"`
	Metric  *MetricItem  `json:"metric,omitempty"`
	Passage *PassageItem `json:"passage,omitempty"`
	News    *NewsItem    `json:"news,omitempty"`
}

func MetricResult(m MetricItem) ResultItem   { return ResultItem{Kind: ItemMetric, Metric: &m} }
func PassageResult(p PassageItem) ResultItem { return ResultItem{Kind: ItemPassage, Passage: &p} }
func NewsResult(n NewsItem) ResultItem       { return ResultItem{Kind: ItemNews, News: &n} }

// AgentRequest is a validated research request
type AgentRequest struct {
	Query     string        `json:"query"`
	Agents    []AgentKind   `json:"agents"`
	TimeRange quarter.Range `json:"time_range"`
}

// AgentResult is the normalized outcome of one adapter run
type AgentResult struct {
	Agent   AgentKind     `json:"agent"`
	Status  Status        `json:"status"`
	Items   []ResultItem  `json:"items"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Contributes reports whether the result feeds the synthesis prompt
func (r AgentResult) Contributes() bool {
	return r.Status != StatusFailed && len(r.Items) > 0
}

// Citation links the synthesis back to one item of one agent result
type Citation struct {
	Agent  AgentKind `json:"agent"`
	Item   int       `json:"item"`
	Kind   ItemKind  `json:"kind"`
	Match  string    `json:"match"`
	Source string    `json:"source"`
}

// AgentResponse is the final, immutable answer to a research request
type AgentResponse struct {
	ID        string                    `json:"id"`
	Query     string                    `json:"query"`
	TimeRange quarter.Range             `json:"time_range"`
	PerAgent  map[AgentKind]AgentResult `json:"per_agent"`
	Synthesis string                    `json:"synthesis"`
	Citations []Citation                `json:"citations"`
	Degraded  bool                      `json:"degraded"`
}

// Succeeded lists agents with status ok or partial, in assembly order
func (r *AgentResponse) Succeeded() []AgentKind {
	var out []AgentKind
	for _, k := range KnownAgents {
		if res, ok := r.PerAgent[k]; ok && res.Status != StatusFailed {
			out = append(out, k)
		}
	}
	return out
}

func newResult(kind AgentKind, status Status, items []ResultItem, reason string) AgentResult {
	if items == nil {
		items = []ResultItem{}
	}
	return AgentResult{Agent: kind, Status: status, Items: items, Error: reason}
}

func failedResult(kind AgentKind, reason string) AgentResult {
	return newResult(kind, StatusFailed, nil, reason)
}
