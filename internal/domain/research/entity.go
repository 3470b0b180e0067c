package research

import "time"

// Outcomes of a research request
const (
	OutcomeAnswered        = "answered"
	OutcomeFallback        = "fallback"
	OutcomeSynthesisFailed = "synthesis_failed"
)

// ResponseRecord is the audit row written for every assembled response
type ResponseRecord struct {
	ID            string            `ch:"id" json:"id"`
	Company       string            `ch:"company" json:"company"`
	Query         string            `ch:"query" json:"query"`
	StartQuarter  string            `ch:"start_quarter" json:"start_quarter"`
	EndQuarter    string            `ch:"end_quarter" json:"end_quarter"`
	Agents        []string          `ch:"agents" json:"agents"`
	AgentStatus   map[string]string `ch:"agent_status" json:"agent_status"`
	Outcome       string            `ch:"outcome" json:"outcome"`
	Degraded      bool              `ch:"degraded" json:"degraded"`
	Synthesis     string            `ch:"synthesis" json:"synthesis"`
	CitationCount uint32            `ch:"citation_count" json:"citation_count"`
	CreatedAt     time.Time         `ch:"created_at" json:"created_at"`
}
