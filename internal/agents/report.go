package agents

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"finresearch/internal/domain/quarter"
	"finresearch/internal/metrics"
	"finresearch/pkg/errors"
)

const (
	// NoDataSection is the body of a section whose agent had nothing usable
	NoDataSection = "No data available for this section in the selected period."
	// UnavailableSection is the body of a section whose synthesis failed
	UnavailableSection = "section unavailable"
)

type reportSpec struct {
	Agent AgentKind
	Title string
	Focus string
	Role  string
}

// reportSpecs is the fixed section layout of a generated report
var reportSpecs = []reportSpec{
	{
		Agent: AgentRAG,
		Title: "Historical Performance",
		Focus: "revenue, margins, segment results, guidance and risks disclosed in the quarterly reports",
		Role:  "financial report analyst",
	},
	{
		Agent: AgentMetrics,
		Title: "Financial Metrics",
		Focus: "valuation multiples and how they moved across the period",
		Role:  "valuation analyst",
	},
	{
		Agent: AgentWeb,
		Title: "Real-time Insights",
		Focus: "recent developments, market sentiment and events that may affect the company",
		Role:  "market news analyst",
	},
}

// ChartPoint is one value of a metric series
type ChartPoint struct {
	Quarter quarter.Quarter `json:"quarter"`
	Value   float64         `json:"value"`
}

// ReportSection is one synthesized part of a report
type ReportSection struct {
	Title  string    `json:"title"`
	Agent  AgentKind `json:"agent"`
	Status Status    `json:"status"`
	Body   string    `json:"body"`
}

// Report is a multi-section research report over a range
type Report struct {
	ID          string                    `json:"id"`
	Company     string                    `json:"company"`
	TimeRange   quarter.Range             `json:"time_range"`
	Sections    []ReportSection           `json:"sections"`
	Charts      map[string][]ChartPoint   `json:"charts"`
	PerAgent    map[AgentKind]AgentResult `json:"per_agent"`
	Errors      map[string]string         `json:"errors,omitempty"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// GenerateReport gathers all agents over the range and synthesizes one section per source.
// Section failures are reported in Report.Errors; only an invalid range is returned as error.
func (o *Orchestrator) GenerateReport(ctx context.Context, r quarter.Range) (*Report, error) {
	if err := r.Validate(); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "time_range: %v", err)
	}

	id := uuid.New().String()
	ctx = errors.WithRequestID(ctx, id)
	log := o.log.WithRequest(ctx)
	start := time.Now()

	query := fmt.Sprintf("%s performance and outlook for %s", o.cfg.Company, r)
	perAgent := o.dispatch(ctx, KnownAgents, query, r)

	report := &Report{
		ID:        id,
		Company:   o.cfg.Company,
		TimeRange: r,
		Sections:  make([]ReportSection, len(reportSpecs)),
		Charts:    chartSeries(perAgent[AgentMetrics]),
		PerAgent:  perAgent,
	}

	errs := make([]error, len(reportSpecs))
	var wg sync.WaitGroup
	for i, spec := range reportSpecs {
		res := perAgent[spec.Agent]
		report.Sections[i] = ReportSection{Title: spec.Title, Agent: spec.Agent, Status: res.Status}

		if !res.Contributes() {
			report.Sections[i].Body = NoDataSection
			continue
		}

		wg.Add(1)
		go func(i int, spec reportSpec, res AgentResult) {
			defer wg.Done()
			body, err := o.synthesizeSection(ctx, spec, r, res)
			if err != nil {
				errs[i] = err
				report.Sections[i].Body = UnavailableSection
				return
			}
			report.Sections[i].Body = body
		}(i, spec, res)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		if report.Errors == nil {
			report.Errors = make(map[string]string)
		}
		report.Errors[reportSpecs[i].Title] = failureReason(err, "synthesis failed")
		log.Warnf("Report section %q failed: %v", reportSpecs[i].Title, err)
	}

	report.GeneratedAt = time.Now().UTC()
	metrics.RecordResearchRequest("report", time.Since(start))
	log.Infow("Report generated",
		"time_range", r.String(),
		"duration", time.Since(start),
		"failed_sections", len(report.Errors),
	)

	return report, nil
}

func (o *Orchestrator) synthesizeSection(ctx context.Context, spec reportSpec, r quarter.Range, res AgentResult) (string, error) {
	prompt, err := o.prompts.ReportSection(spec, r, res)
	if err != nil {
		return "", err
	}
	return o.complete(ctx, "report_section", prompt)
}

// chartSeries turns metric items into per-label series ordered by quarter
func chartSeries(res AgentResult) map[string][]ChartPoint {
	charts := make(map[string][]ChartPoint)
	for _, item := range res.Items {
		if item.Kind != ItemMetric || item.Metric == nil {
			continue
		}
		m := item.Metric
		charts[m.Label] = append(charts[m.Label], ChartPoint{Quarter: m.Quarter, Value: m.Value})
	}
	for _, series := range charts {
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Quarter.Before(series[j].Quarter)
		})
	}
	return charts
}
