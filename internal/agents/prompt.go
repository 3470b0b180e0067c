package agents

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
)

// Template IDs under pkg/templates/assets
const (
	tmplSystem        = "research/system"
	tmplSynthesis     = "research/synthesis"
	tmplReportSection = "research/report_section"
	tmplReportSystem  = "research/report_system"
)

// TemplateRenderer renders a prompt template by ID (pkg/templates.Registry)
type TemplateRenderer interface {
	Render(id string, data any) (string, error)
}

var sectionTitles = map[AgentKind]string{
	AgentMetrics: "Valuation metrics",
	AgentRAG:     "Quarterly report excerpts",
	AgentWeb:     "Recent news",
}

type promptSection struct {
	Agent AgentKind
	Title string
	Note  string
	Lines []string
}

type synthesisData struct {
	Company  string
	Query    string
	Range    string
	Sections []promptSection
}

type reportSectionData struct {
	Company string
	Range   string
	Title   string
	Focus   string
	Role    string
	Section promptSection
}

// PromptBuilder assembles prompts deterministically from agent results
type PromptBuilder struct {
	renderer TemplateRenderer
	company  string
}

// NewPromptBuilder creates a prompt builder for one company
func NewPromptBuilder(renderer TemplateRenderer, company string) *PromptBuilder {
	return &PromptBuilder{renderer: renderer, company: company}
}

// Synthesis builds the answer prompt from contributing results in fixed
// metrics, rag, web order. ok is false when nothing contributes.
func (b *PromptBuilder) Synthesis(query string, r quarter.Range, perAgent map[AgentKind]AgentResult) (Prompt, bool, error) {
	sections := contextSections(perAgent)
	if len(sections) == 0 {
		return Prompt{}, false, nil
	}

	data := synthesisData{
		Company:  b.company,
		Query:    strings.TrimSpace(query),
		Range:    r.String(),
		Sections: sections,
	}

	system, err := b.renderer.Render(tmplSystem, data)
	if err != nil {
		return Prompt{}, false, errors.Wrap(err, "render system prompt")
	}
	user, err := b.renderer.Render(tmplSynthesis, data)
	if err != nil {
		return Prompt{}, false, errors.Wrap(err, "render synthesis prompt")
	}
	return Prompt{System: system, User: user}, true, nil
}

// ReportSection builds the prompt for one report section fed by a single agent
func (b *PromptBuilder) ReportSection(spec reportSpec, r quarter.Range, res AgentResult) (Prompt, error) {
	data := reportSectionData{
		Company: b.company,
		Range:   r.String(),
		Title:   spec.Title,
		Focus:   spec.Focus,
		Role:    spec.Role,
		Section: sectionFor(res),
	}

	system, err := b.renderer.Render(tmplReportSystem, data)
	if err != nil {
		return Prompt{}, errors.Wrap(err, "render report system prompt")
	}
	user, err := b.renderer.Render(tmplReportSection, data)
	if err != nil {
		return Prompt{}, errors.Wrapf(err, "render report section %q", spec.Title)
	}
	return Prompt{System: system, User: user}, nil
}

func contextSections(perAgent map[AgentKind]AgentResult) []promptSection {
	var sections []promptSection
	for _, kind := range KnownAgents {
		res, ok := perAgent[kind]
		if !ok || !res.Contributes() {
			continue
		}
		sections = append(sections, sectionFor(res))
	}
	return sections
}

func sectionFor(res AgentResult) promptSection {
	s := promptSection{
		Agent: res.Agent,
		Title: sectionTitles[res.Agent],
		Lines: make([]string, 0, len(res.Items)),
	}
	if res.Status == StatusPartial {
		s.Note = res.Error
	}
	for i, item := range res.Items {
		s.Lines = append(s.Lines, formatItem(item, i))
	}
	return s
}

func marker(kind ItemKind, i int) string {
	prefix := map[ItemKind]string{ItemMetric: "M", ItemPassage: "P", ItemNews: "N"}[kind]
	return fmt.Sprintf("[%s%d]", prefix, i+1)
}

func formatItem(item ResultItem, i int) string {
	m := marker(item.Kind, i)
	switch item.Kind {
	case ItemMetric:
		v := item.Metric
		return fmt.Sprintf("%s %s %s: %s", m, v.Quarter, v.Label, formatValue(v.Value, v.Unit))
	case ItemPassage:
		p := item.Passage
		return fmt.Sprintf("%s %s | %s p.%d | score %.4f\n    %s",
			m, p.QuarterLabel, p.SourceDocument, p.Page, p.RelevanceScore, oneLine(p.Text))
	case ItemNews:
		n := item.News
		date := "undated"
		if !n.PublishedAt.IsZero() {
			date = n.PublishedAt.UTC().Format("2006-01-02")
		}
		line := fmt.Sprintf("%s %s | %s", m, date, oneLine(n.Headline))
		if n.URL != "" {
			line += " | " + n.URL
		}
		if n.Snippet != "" {
			line += "\n    " + oneLine(n.Snippet)
		}
		return line
	default:
		return m
	}
}

func formatValue(v float64, unit string) string {
	switch unit {
	case "USD":
		return "$" + humanize.CommafWithDigits(roundTo(v, 0), 0)
	case "":
		return humanize.CommafWithDigits(roundTo(v, 2), 2)
	default:
		return humanize.CommafWithDigits(roundTo(v, 2), 2) + " " + unit
	}
}

// roundTo rounds half away from zero; humanize only truncates
func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
