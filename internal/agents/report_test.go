package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
)

func sectionPrompt(title string) interface{} {
	return mock.MatchedBy(func(p Prompt) bool {
		return strings.Contains(p.User, "Section: "+title)
	})
}

func TestGenerateReport(t *testing.T) {
	lookup := new(MockRangeMetricsLookup)
	lookup.On("QueryRange", mock.Anything, "NVIDIA", year2024()).Return(map[quarter.Quarter][]MetricRow{
		quarter.MustParse("2024q2"): {{Label: "market_cap", Value: 3.0e12, Unit: "USD"}, {Label: "trailing_pe", Value: 60, Unit: "x"}},
		quarter.MustParse("2024q1"): {{Label: "market_cap", Value: 2.2e12, Unit: "USD"}, {Label: "trailing_pe", Value: 52, Unit: "x"}},
	}, nil)

	search := new(MockSemanticSearch)
	search.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(samplePassages(), nil)

	news := new(MockNewsSearch)
	news.On("Search", mock.Anything, mock.Anything).Return(nil, errors.ErrUnavailable)

	synth := new(MockSynthesizer)
	synth.On("Complete", mock.Anything, sectionPrompt("Historical Performance")).Return("Revenue grew [P1].", nil).Once()
	synth.On("Complete", mock.Anything, sectionPrompt("Financial Metrics")).Return("Multiples expanded [M4].", nil).Once()

	o := NewOrchestrator(Config{}, Dependencies{Metrics: lookup, Passages: search, News: news, Synthesizer: synth})

	report, err := o.GenerateReport(context.Background(), year2024())
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "NVIDIA", report.Company)
	require.Len(t, report.Sections, 3)

	assert.Equal(t, "Historical Performance", report.Sections[0].Title)
	assert.Equal(t, "Revenue grew [P1].", report.Sections[0].Body)
	assert.Equal(t, "Financial Metrics", report.Sections[1].Title)
	assert.Equal(t, "Multiples expanded [M4].", report.Sections[1].Body)
	assert.Equal(t, "Real-time Insights", report.Sections[2].Title)
	assert.Equal(t, NoDataSection, report.Sections[2].Body)
	assert.Equal(t, StatusFailed, report.Sections[2].Status)
	assert.Empty(t, report.Errors)

	require.Len(t, report.Charts, 2)
	assert.Equal(t, []ChartPoint{
		{Quarter: quarter.MustParse("2024q1"), Value: 52},
		{Quarter: quarter.MustParse("2024q2"), Value: 60},
	}, report.Charts["trailing_pe"])

	assert.Len(t, report.PerAgent, 3)
	assert.False(t, report.GeneratedAt.IsZero())
	synth.AssertNumberOfCalls(t, "Complete", 2)
}

func TestGenerateReport_SectionFailure(t *testing.T) {
	search := new(MockSemanticSearch)
	search.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(samplePassages(), nil)

	news := new(MockNewsSearch)
	news.On("Search", mock.Anything, mock.Anything).Return([]NewsHit{{Headline: "NVIDIA ships Blackwell"}}, nil)

	synth := new(MockSynthesizer)
	synth.On("Complete", mock.Anything, sectionPrompt("Historical Performance")).Return("", context.DeadlineExceeded)
	synth.On("Complete", mock.Anything, sectionPrompt("Real-time Insights")).Return("Shipments began.", nil)

	o := NewOrchestrator(Config{}, Dependencies{Passages: search, News: news, Synthesizer: synth})

	report, err := o.GenerateReport(context.Background(), year2024())
	require.NoError(t, err)

	assert.Equal(t, UnavailableSection, report.Sections[0].Body)
	assert.Equal(t, NoDataSection, report.Sections[1].Body)
	assert.Equal(t, "Shipments began.", report.Sections[2].Body)
	assert.Equal(t, map[string]string{"Historical Performance": "timeout"}, report.Errors)
	assert.Empty(t, report.Charts)
}

func TestGenerateReport_InvalidRange(t *testing.T) {
	o := NewOrchestrator(Config{}, Dependencies{})

	_, err := o.GenerateReport(context.Background(), quarter.Range{
		Start: quarter.MustParse("2025q1"),
		End:   quarter.MustParse("2024q1"),
	})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
