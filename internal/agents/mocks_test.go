package agents

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"finresearch/internal/domain/quarter"
)

// MockMetricsLookup is a mock for MetricsLookup
type MockMetricsLookup struct {
	mock.Mock
}

func (m *MockMetricsLookup) Query(ctx context.Context, company string, q quarter.Quarter) ([]MetricRow, error) {
	args := m.Called(ctx, company, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]MetricRow), args.Error(1)
}

// MockRangeMetricsLookup also answers whole ranges
type MockRangeMetricsLookup struct {
	MockMetricsLookup
}

func (m *MockRangeMetricsLookup) QueryRange(ctx context.Context, company string, r quarter.Range) (map[quarter.Quarter][]MetricRow, error) {
	args := m.Called(ctx, company, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[quarter.Quarter][]MetricRow), args.Error(1)
}

// MockSemanticSearch is a mock for SemanticSearch
type MockSemanticSearch struct {
	mock.Mock
}

func (m *MockSemanticSearch) Search(ctx context.Context, text string, filter PassageFilter, topK int) ([]PassageHit, error) {
	args := m.Called(ctx, text, filter, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]PassageHit), args.Error(1)
}

// MockNewsSearch is a mock for NewsSearch
type MockNewsSearch struct {
	mock.Mock
}

func (m *MockNewsSearch) Search(ctx context.Context, text string) ([]NewsHit, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]NewsHit), args.Error(1)
}

// MockSynthesizer is a mock for Synthesizer
type MockSynthesizer struct {
	mock.Mock
}

func (m *MockSynthesizer) Complete(ctx context.Context, prompt Prompt) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// MockSink is a mock for ResponseSink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Record(ctx context.Context, resp *AgentResponse) error {
	args := m.Called(ctx, resp)
	return args.Error(0)
}

// stallingNews ignores its context and sleeps before answering
type stallingNews struct {
	delay time.Duration
}

func (s stallingNews) Search(context.Context, string) ([]NewsHit, error) {
	time.Sleep(s.delay)
	return []NewsHit{{Headline: "Late headline that should never be seen"}}, nil
}

// panickingSearch panics on every call
type panickingSearch struct{}

func (panickingSearch) Search(context.Context, string, PassageFilter, int) ([]PassageHit, error) {
	panic("index corrupted")
}

func pe(v float64) []MetricRow {
	return []MetricRow{{Label: "trailing_pe", Value: v, Unit: "x"}}
}

func year2024() quarter.Range {
	r, _ := quarter.ParseRange("2024q1", "2024q4")
	return r
}

func samplePassages() []PassageHit {
	return []PassageHit{
		{Text: "Data Center revenue was a record.", Score: 0.71, Year: 2024, Quarter: 2, Document: "NVDA-Q2-2024.pdf", Page: 4},
		{Text: "Gross margin expanded on Hopper demand.", Score: 0.93, Year: 2024, Quarter: 1, Document: "NVDA-Q1-2024.pdf", Page: 2},
		{Text: "Gaming revenue grew sequentially.", Score: 0.85, Year: 2024, Quarter: 3, Document: "NVDA-Q3-2024.pdf", Page: 7},
	}
}
