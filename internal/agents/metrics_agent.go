package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

// MetricsAgent reads valuation metrics for every quarter of the range
type MetricsAgent struct {
	lookup  MetricsLookup
	company string
	log     *logger.Logger
}

// NewMetricsAgent creates the structured metrics adapter
func NewMetricsAgent(lookup MetricsLookup, company string) *MetricsAgent {
	return &MetricsAgent{
		lookup:  lookup,
		company: company,
		log:     logger.Get().With("component", "metrics_agent"),
	}
}

func (a *MetricsAgent) Kind() AgentKind { return AgentMetrics }

// Run enumerates the range; quarters without data are skipped silently
func (a *MetricsAgent) Run(ctx context.Context, _ string, r quarter.Range) AgentResult {
	byQuarter, failed, lastErr := a.collect(ctx, r)

	var items []ResultItem
	for _, q := range r.Quarters() {
		rows := append([]MetricRow(nil), byQuarter[q]...)
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Label < rows[j].Label })
		for _, row := range rows {
			items = append(items, MetricResult(MetricItem{
				Label:   row.Label,
				Value:   row.Value,
				Unit:    row.Unit,
				Quarter: q,
			}))
		}
	}

	switch {
	case len(failed) == 0 && len(items) == 0:
		return newResult(AgentMetrics, StatusPartial, nil, "no metrics in range")
	case len(failed) > 0 && len(items) == 0:
		a.log.Warnf("Metrics lookup failed for %s: %v", r, lastErr)
		return failedResult(AgentMetrics, failureReason(lastErr, "metrics lookup failed"))
	case len(failed) > 0:
		a.log.Warnf("Metrics lookup failed for %d quarter(s) of %s: %v", len(failed), r, lastErr)
		return newResult(AgentMetrics, StatusPartial, items, fmt.Sprintf("metrics unavailable for %s (%s)",
			joinQuarters(failed), failureReason(lastErr, "lookup failed")))
	default:
		return newResult(AgentMetrics, StatusOK, items, "")
	}
}

func (a *MetricsAgent) collect(ctx context.Context, r quarter.Range) (map[quarter.Quarter][]MetricRow, []quarter.Quarter, error) {
	if ranged, ok := a.lookup.(RangeMetricsLookup); ok {
		rows, err := ranged.QueryRange(ctx, a.company, r)
		switch {
		case errors.Is(err, errors.ErrNotFound):
			return nil, nil, nil
		case err != nil:
			return nil, r.Quarters(), err
		}
		return rows, nil, nil
	}

	byQuarter := make(map[quarter.Quarter][]MetricRow)
	var failed []quarter.Quarter
	var lastErr error
	for _, q := range r.Quarters() {
		if err := ctx.Err(); err != nil {
			failed = append(failed, q)
			lastErr = err
			continue
		}
		rows, err := a.lookup.Query(ctx, a.company, q)
		switch {
		case errors.Is(err, errors.ErrNotFound):
			continue
		case err != nil:
			failed = append(failed, q)
			lastErr = err
			continue
		}
		if len(rows) > 0 {
			byQuarter[q] = rows
		}
	}
	return byQuarter, failed, lastErr
}

func joinQuarters(qs []quarter.Quarter) string {
	labels := make([]string, len(qs))
	for i, q := range qs {
		labels[i] = q.String()
	}
	return strings.Join(labels, ", ")
}
