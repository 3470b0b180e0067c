package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
)

func TestMetricsAgent_SortsByQuarterThenLabel(t *testing.T) {
	lookup := new(MockMetricsLookup)
	lookup.On("Query", mock.Anything, "NVIDIA", quarter.MustParse("2024q1")).Return([]MetricRow{
		{Label: "trailing_pe", Value: 52.1, Unit: "x"},
		{Label: "market_cap", Value: 2.2e12, Unit: "USD"},
	}, nil)
	lookup.On("Query", mock.Anything, "NVIDIA", quarter.MustParse("2024q2")).Return(pe(60.4), nil)

	r, err := quarter.ParseRange("2024q1", "2024q2")
	require.NoError(t, err)

	res := NewMetricsAgent(lookup, "NVIDIA").Run(context.Background(), "ignored", r)

	assert.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "market_cap", res.Items[0].Metric.Label)
	assert.Equal(t, "trailing_pe", res.Items[1].Metric.Label)
	assert.Equal(t, quarter.MustParse("2024q2"), res.Items[2].Metric.Quarter)
	assert.Equal(t, ItemMetric, res.Items[2].Kind)
}

func TestMetricsAgent_EmptyRangeIsPartial(t *testing.T) {
	lookup := new(MockMetricsLookup)
	lookup.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.ErrNotFound)

	res := NewMetricsAgent(lookup, "NVIDIA").Run(context.Background(), "", year2024())

	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, "no metrics in range", res.Error)
	assert.Empty(t, res.Items)
	assert.False(t, res.Contributes())
	lookup.AssertNumberOfCalls(t, "Query", 4)
}

func TestMetricsAgent_SomeQuartersFail(t *testing.T) {
	lookup := new(MockMetricsLookup)
	lookup.On("Query", mock.Anything, mock.Anything, quarter.MustParse("2024q1")).Return(pe(50), nil)
	lookup.On("Query", mock.Anything, mock.Anything, quarter.MustParse("2024q2")).Return(nil, errors.ErrUnavailable)

	r, _ := quarter.ParseRange("2024q1", "2024q2")
	res := NewMetricsAgent(lookup, "NVIDIA").Run(context.Background(), "", r)

	assert.Equal(t, StatusPartial, res.Status)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, "metrics unavailable for 2024q2 (upstream provider unavailable)", res.Error)
	assert.True(t, res.Contributes())
}

func TestMetricsAgent_UsesRangeLookup(t *testing.T) {
	lookup := new(MockRangeMetricsLookup)
	lookup.On("QueryRange", mock.Anything, "NVIDIA", year2024()).Return(map[quarter.Quarter][]MetricRow{
		quarter.MustParse("2024q3"): pe(55),
		quarter.MustParse("2024q1"): pe(52),
	}, nil)

	res := NewMetricsAgent(lookup, "NVIDIA").Run(context.Background(), "", year2024())

	assert.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Items, 2)
	assert.Equal(t, quarter.MustParse("2024q1"), res.Items[0].Metric.Quarter)
	assert.Equal(t, quarter.MustParse("2024q3"), res.Items[1].Metric.Quarter)
	lookup.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestMetricsAgent_RangeLookupFails(t *testing.T) {
	lookup := new(MockRangeMetricsLookup)
	lookup.On("QueryRange", mock.Anything, mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)

	res := NewMetricsAgent(lookup, "NVIDIA").Run(context.Background(), "", year2024())

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "timeout", res.Error)
	assert.NotNil(t, res.Items)
}

func TestRAGAgent_FiltersSortsAndCaps(t *testing.T) {
	hits := append(samplePassages(),
		PassageHit{Text: "FY2023 recap", Score: 0.99, Year: 2023, Quarter: 4, Document: "NVDA-Q4-2023.pdf", Page: 1},
		PassageHit{Text: "Networking", Score: 0.50, Year: 2024, Quarter: 4, Document: "NVDA-Q4-2024.pdf", Page: 9},
	)
	search := new(MockSemanticSearch)
	search.On("Search", mock.Anything, "margins", mock.Anything, 3).Return(hits, nil)

	res := NewRAGAgent(search, 3).Run(context.Background(), "margins", year2024())

	assert.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Items, 3)

	scores := make([]float64, 0, len(res.Items))
	for _, item := range res.Items {
		scores = append(scores, item.Passage.RelevanceScore)
		assert.Equal(t, 2024, item.Passage.Year)
	}
	assert.Equal(t, []float64{0.93, 0.85, 0.71}, scores)
	assert.Equal(t, "2024q1", res.Items[0].Passage.QuarterLabel)
	assert.Equal(t, 2, res.Items[0].Passage.Page)
}

func TestRAGAgent_NoPassagesIsPartial(t *testing.T) {
	search := new(MockSemanticSearch)
	search.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]PassageHit{}, nil)

	res := NewRAGAgent(search, 5).Run(context.Background(), "anything", year2024())

	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, "no indexed passages in range", res.Error)
	assert.False(t, res.Contributes())
}

func TestRAGAgent_SearchError(t *testing.T) {
	search := new(MockSemanticSearch)
	search.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("pq: relation does not exist"))

	res := NewRAGAgent(search, 5).Run(context.Background(), "anything", year2024())

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "semantic search failed", res.Error)
}

func TestWebAgent_OrdersNewestFirst(t *testing.T) {
	older := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	news := new(MockNewsSearch)
	news.On("Search", mock.Anything, "what is new?").Return([]NewsHit{
		{Headline: "Undated analysis"},
		{Headline: "Older headline", PublishedAt: older},
		{Headline: "   "},
		{Headline: "Newer headline", PublishedAt: newer, URL: "https://n.test/1", Source: "Reuters"},
	}, nil)

	res := NewWebAgent(news, 7).Run(context.Background(), "what is new?", year2024())

	assert.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "Newer headline", res.Items[0].News.Headline)
	assert.Equal(t, "Reuters", res.Items[0].News.Source)
	assert.Equal(t, "Older headline", res.Items[1].News.Headline)
	assert.Equal(t, "Undated analysis", res.Items[2].News.Headline)
}

func TestWebAgent_CapsResults(t *testing.T) {
	hits := make([]NewsHit, 0, 10)
	for i := 0; i < 10; i++ {
		hits = append(hits, NewsHit{Headline: "headline", PublishedAt: time.Unix(int64(i), 0)})
	}
	news := new(MockNewsSearch)
	news.On("Search", mock.Anything, mock.Anything).Return(hits, nil)

	res := NewWebAgent(news, 4).Run(context.Background(), "q", year2024())

	require.Len(t, res.Items, 4)
	assert.Equal(t, time.Unix(9, 0), res.Items[0].News.PublishedAt)
}

func TestWebAgent_FailureReasons(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: errors.Wrap(errors.ErrRateLimitExceeded, "429"), want: "rate limited by news provider"},
		{err: errors.Wrap(errors.ErrUnavailable, "503"), want: "news provider unavailable"},
		{err: context.DeadlineExceeded, want: "timeout"},
		{err: errors.New("boom"), want: "news search failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			news := new(MockNewsSearch)
			news.On("Search", mock.Anything, mock.Anything).Return(nil, tt.err)

			res := NewWebAgent(news, 5).Run(context.Background(), "q", year2024())
			assert.Equal(t, StatusFailed, res.Status)
			assert.Equal(t, tt.want, res.Error)
		})
	}
}
