package agents

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
)

func TestOrchestrator_MetricsAndRAGScenario(t *testing.T) {
	lookup := new(MockMetricsLookup)
	lookup.On("Query", mock.Anything, "NVIDIA", quarter.MustParse("2024q1")).Return(pe(52.1), nil)
	lookup.On("Query", mock.Anything, "NVIDIA", quarter.MustParse("2024q2")).Return(pe(60.4), nil)
	lookup.On("Query", mock.Anything, "NVIDIA", quarter.MustParse("2024q3")).Return(pe(55.0), nil)
	lookup.On("Query", mock.Anything, "NVIDIA", quarter.MustParse("2024q4")).Return(nil, errors.ErrNotFound)

	search := new(MockSemanticSearch)
	search.On("Search", mock.Anything, "Summarize 2024 valuation",
		PassageFilter{From: quarter.MustParse("2024q1"), To: quarter.MustParse("2024q4")}, 5).
		Return(samplePassages(), nil)

	synth := new(MockSynthesizer)
	synth.On("Complete", mock.Anything, mock.AnythingOfType("agents.Prompt")).
		Return("P/E peaked in Q2 2024 [M2] while margins expanded [P1].", nil).Once()

	o := NewOrchestrator(Config{}, Dependencies{Metrics: lookup, Passages: search, Synthesizer: synth})

	resp, err := o.Handle(context.Background(), AgentRequest{
		Query:     "Summarize 2024 valuation",
		Agents:    []AgentKind{AgentMetrics, AgentRAG},
		TimeRange: year2024(),
	})
	require.NoError(t, err)

	require.Len(t, resp.PerAgent, 2)

	metricsRes := resp.PerAgent[AgentMetrics]
	assert.Equal(t, StatusOK, metricsRes.Status)
	assert.Empty(t, metricsRes.Error)
	require.Len(t, metricsRes.Items, 3)
	for i, want := range []string{"2024q1", "2024q2", "2024q3"} {
		assert.Equal(t, want, metricsRes.Items[i].Metric.Quarter.String())
	}

	ragRes := resp.PerAgent[AgentRAG]
	assert.Equal(t, StatusOK, ragRes.Status)
	require.Len(t, ragRes.Items, 3)
	assert.Equal(t, 0.93, ragRes.Items[0].Passage.RelevanceScore)
	assert.Equal(t, 0.85, ragRes.Items[1].Passage.RelevanceScore)
	assert.Equal(t, 0.71, ragRes.Items[2].Passage.RelevanceScore)
	assert.Equal(t, "NVDA-Q1-2024.pdf", ragRes.Items[0].Passage.SourceDocument)

	assert.NotEmpty(t, resp.Synthesis)
	assert.False(t, resp.Degraded)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, []AgentKind{AgentMetrics, AgentRAG}, resp.Succeeded())

	require.NotEmpty(t, resp.Citations)
	assert.Equal(t, Citation{Agent: AgentMetrics, Item: 1, Kind: ItemMetric, Match: "[M2]", Source: "metrics 2024q2 trailing_pe"}, resp.Citations[0])

	lookup.AssertExpectations(t)
	search.AssertExpectations(t)
	synth.AssertNumberOfCalls(t, "Complete", 1)
}

func TestOrchestrator_WebRateLimitedFallsBack(t *testing.T) {
	news := new(MockNewsSearch)
	news.On("Search", mock.Anything, "latest NVIDIA news").
		Return(nil, errors.Wrap(errors.ErrRateLimitExceeded, "serpapi returned 429"))

	synth := new(MockSynthesizer)
	sink := new(MockSink)
	sink.On("Record", mock.Anything, mock.AnythingOfType("*agents.AgentResponse")).Return(nil).Once()

	o := NewOrchestrator(Config{}, Dependencies{News: news, Synthesizer: synth, Sink: sink})

	resp, err := o.Handle(context.Background(), AgentRequest{
		Query:     "latest NVIDIA news",
		Agents:    []AgentKind{AgentWeb},
		TimeRange: year2024(),
	})
	require.NoError(t, err)

	web := resp.PerAgent[AgentWeb]
	assert.Equal(t, StatusFailed, web.Status)
	assert.Contains(t, web.Error, "rate limit")
	assert.Empty(t, web.Items)

	assert.Equal(t, FallbackSynthesis, resp.Synthesis)
	assert.Empty(t, resp.Citations)
	assert.NotNil(t, resp.Citations)
	assert.True(t, resp.Degraded)
	assert.Empty(t, resp.Succeeded())

	synth.AssertNumberOfCalls(t, "Complete", 0)
	sink.AssertExpectations(t)
}

func TestOrchestrator_AllFailedNeverCallsSynthesizer(t *testing.T) {
	lookup := new(MockMetricsLookup)
	lookup.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.ErrUnavailable)
	search := new(MockSemanticSearch)
	search.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.ErrTimeout)
	news := new(MockNewsSearch)
	news.On("Search", mock.Anything, mock.Anything).Return([]NewsHit{}, nil)
	synth := new(MockSynthesizer)

	o := NewOrchestrator(Config{}, Dependencies{Metrics: lookup, Passages: search, News: news, Synthesizer: synth})

	resp, err := o.Handle(context.Background(), AgentRequest{
		Query:     "How did NVIDIA do?",
		Agents:    KnownAgents,
		TimeRange: year2024(),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, resp.PerAgent[AgentMetrics].Status)
	assert.Equal(t, "upstream provider unavailable", resp.PerAgent[AgentMetrics].Error)
	assert.Equal(t, StatusFailed, resp.PerAgent[AgentRAG].Status)
	assert.Equal(t, "timeout", resp.PerAgent[AgentRAG].Error)
	// empty news is partial but contributes nothing
	assert.Equal(t, StatusPartial, resp.PerAgent[AgentWeb].Status)
	assert.Equal(t, "no news results", resp.PerAgent[AgentWeb].Error)

	assert.Equal(t, FallbackSynthesis, resp.Synthesis)
	assert.Empty(t, resp.Citations)
	synth.AssertNumberOfCalls(t, "Complete", 0)
}

func TestOrchestrator_InvalidRequests(t *testing.T) {
	synth := new(MockSynthesizer)
	o := NewOrchestrator(Config{}, Dependencies{Synthesizer: synth})

	tests := []struct {
		name string
		req  AgentRequest
	}{
		{
			name: "no agents",
			req:  AgentRequest{Query: "q", Agents: []AgentKind{}, TimeRange: year2024()},
		},
		{
			name: "unknown agent",
			req:  AgentRequest{Query: "q", Agents: []AgentKind{"sql"}, TimeRange: year2024()},
		},
		{
			name: "inverted range",
			req: AgentRequest{Query: "q", Agents: []AgentKind{AgentRAG}, TimeRange: quarter.Range{
				Start: quarter.MustParse("2024q4"), End: quarter.MustParse("2024q1"),
			}},
		},
		{
			name: "zero range",
			req:  AgentRequest{Query: "q", Agents: []AgentKind{AgentRAG}},
		},
		{
			name: "blank query",
			req:  AgentRequest{Query: "  ", Agents: []AgentKind{AgentRAG}, TimeRange: year2024()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := o.Handle(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
		})
	}

	synth.AssertNumberOfCalls(t, "Complete", 0)
}

func TestOrchestrator_HandleRaw(t *testing.T) {
	o := NewOrchestrator(Config{}, Dependencies{})

	_, err := o.HandleRaw(context.Background(), "q", []string{}, "2024q1", "2024q4")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = o.HandleRaw(context.Background(), "q", []string{"metrics", "sql"}, "2024q1", "2024q4")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = o.HandleRaw(context.Background(), "q", []string{"rag"}, "2024q5", "2024q4")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = o.HandleRaw(context.Background(), "q", []string{"rag"}, "2024q4", "2024q1")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	// unwired sources fail per agent, not per request
	resp, err := o.HandleRaw(context.Background(), "q", []string{"RAG", "web", "rag"}, "2024Q1", "2024q1")
	require.NoError(t, err)
	require.Len(t, resp.PerAgent, 2)
	assert.Equal(t, "source not configured", resp.PerAgent[AgentRAG].Error)
	assert.Equal(t, "source not configured", resp.PerAgent[AgentWeb].Error)
	assert.Equal(t, quarter.Single(quarter.MustParse("2024q1")), resp.TimeRange)
}

func TestOrchestrator_OneEntryPerRequestedAgent(t *testing.T) {
	o := NewOrchestrator(Config{}, Dependencies{})

	subsets := [][]AgentKind{
		{AgentMetrics},
		{AgentRAG},
		{AgentWeb},
		{AgentMetrics, AgentWeb},
		{AgentWeb, AgentRAG},
		{AgentWeb, AgentRAG, AgentMetrics},
		{AgentRAG, AgentRAG, AgentWeb, AgentRAG},
	}

	for _, agents := range subsets {
		resp, err := o.Handle(context.Background(), AgentRequest{Query: "q", Agents: agents, TimeRange: year2024()})
		require.NoError(t, err)

		unique := map[AgentKind]bool{}
		for _, a := range agents {
			unique[a] = true
		}
		assert.Len(t, resp.PerAgent, len(unique))
		for a := range unique {
			res, ok := resp.PerAgent[a]
			require.True(t, ok, "missing %s", a)
			assert.Equal(t, a, res.Agent)
			assert.NotNil(t, res.Items)
		}
	}
}

func TestOrchestrator_TimeoutIsolation(t *testing.T) {
	lookup := new(MockMetricsLookup)
	lookup.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(pe(40), nil)

	synth := new(MockSynthesizer)
	synth.On("Complete", mock.Anything, mock.Anything).Return("Q1 2024 trailing_pe was 40.", nil)

	o := NewOrchestrator(Config{
		MetricsTimeout: time.Second,
		WebTimeout:     50 * time.Millisecond,
	}, Dependencies{
		Metrics:     lookup,
		News:        stallingNews{delay: 2 * time.Second},
		Synthesizer: synth,
	})

	start := time.Now()
	resp, err := o.Handle(context.Background(), AgentRequest{
		Query:     "valuation",
		Agents:    []AgentKind{AgentMetrics, AgentWeb},
		TimeRange: quarter.Single(quarter.MustParse("2024q1")),
	})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, StatusOK, resp.PerAgent[AgentMetrics].Status)
	assert.Equal(t, StatusFailed, resp.PerAgent[AgentWeb].Status)
	assert.Equal(t, "timeout", resp.PerAgent[AgentWeb].Error)
	assert.True(t, resp.Degraded)
	assert.Equal(t, "Q1 2024 trailing_pe was 40.", resp.Synthesis)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "Q1 2024", resp.Citations[0].Match)
}

func TestOrchestrator_PanickingAdapterIsContained(t *testing.T) {
	o := NewOrchestrator(Config{}, Dependencies{Passages: panickingSearch{}})

	resp, err := o.Handle(context.Background(), AgentRequest{Query: "q", Agents: []AgentKind{AgentRAG}, TimeRange: year2024()})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, resp.PerAgent[AgentRAG].Status)
	assert.Equal(t, "internal error", resp.PerAgent[AgentRAG].Error)
	assert.Equal(t, FallbackSynthesis, resp.Synthesis)
}

func TestOrchestrator_SynthesisFailureCarriesPartial(t *testing.T) {
	search := new(MockSemanticSearch)
	search.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(samplePassages(), nil)

	synth := new(MockSynthesizer)
	synth.On("Complete", mock.Anything, mock.Anything).Return("", errors.Wrap(errors.ErrGenerationFailed, "model overloaded"))

	sink := new(MockSink)
	sink.On("Record", mock.Anything, mock.Anything).Return(errors.New("kafka down"))

	o := NewOrchestrator(Config{}, Dependencies{Passages: search, Synthesizer: synth, Sink: sink})

	resp, err := o.Handle(context.Background(), AgentRequest{Query: "margins", Agents: []AgentKind{AgentRAG}, TimeRange: year2024()})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, errors.ErrSynthesisFailed))
	assert.True(t, errors.Is(err, errors.ErrGenerationFailed))

	var synthErr *SynthesisError
	require.True(t, errors.As(err, &synthErr))
	require.NotNil(t, synthErr.Partial)
	assert.Empty(t, synthErr.Partial.Synthesis)
	assert.Len(t, synthErr.Partial.PerAgent[AgentRAG].Items, 3)
	sink.AssertNumberOfCalls(t, "Record", 1)
}

func TestOrchestrator_EmptyCompletionIsFailure(t *testing.T) {
	search := new(MockSemanticSearch)
	search.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(samplePassages(), nil)
	synth := new(MockSynthesizer)
	synth.On("Complete", mock.Anything, mock.Anything).Return("  \n", nil)

	o := NewOrchestrator(Config{}, Dependencies{Passages: search, Synthesizer: synth})

	_, err := o.Handle(context.Background(), AgentRequest{Query: "margins", Agents: []AgentKind{AgentRAG}, TimeRange: year2024()})
	assert.True(t, errors.Is(err, errors.ErrSynthesisFailed))
	assert.True(t, errors.Is(err, errors.ErrGenerationFailed))
}

func TestOrchestrator_PromptFollowsFixedOrder(t *testing.T) {
	lookup := new(MockMetricsLookup)
	lookup.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(pe(50), nil)
	search := new(MockSemanticSearch)
	search.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(samplePassages(), nil)
	news := new(MockNewsSearch)
	news.On("Search", mock.Anything, mock.Anything).Return([]NewsHit{
		{Headline: "NVIDIA unveils Blackwell roadmap", URL: "https://news.example.com/blackwell"},
	}, nil)

	var prompts []Prompt
	synth := new(MockSynthesizer)
	synth.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompts = append(prompts, args.Get(1).(Prompt)) }).
		Return("ok", nil)

	o := NewOrchestrator(Config{}, Dependencies{Metrics: lookup, Passages: search, News: news, Synthesizer: synth})

	for i := 0; i < 3; i++ {
		_, err := o.Handle(context.Background(), AgentRequest{
			Query:     "overview",
			Agents:    []AgentKind{AgentWeb, AgentRAG, AgentMetrics},
			TimeRange: year2024(),
		})
		require.NoError(t, err)
	}

	require.Len(t, prompts, 3)
	assert.Equal(t, prompts[0], prompts[1])
	assert.Equal(t, prompts[1], prompts[2])

	user := prompts[0].User
	m := strings.Index(user, "Valuation metrics")
	r := strings.Index(user, "Quarterly report excerpts")
	w := strings.Index(user, "Recent news")
	require.True(t, m >= 0 && r >= 0 && w >= 0)
	assert.Less(t, m, r)
	assert.Less(t, r, w)
}

func TestAgentResponse_JSONRoundTrip(t *testing.T) {
	published := time.Date(2024, 5, 22, 20, 30, 0, 0, time.UTC)
	in := AgentResponse{
		ID:        "5f0c6a44-6f7d-4a36-b3f3-9f3fdc0e7c52",
		Query:     "Summarize 2024 valuation",
		TimeRange: year2024(),
		PerAgent: map[AgentKind]AgentResult{
			AgentMetrics: newResult(AgentMetrics, StatusOK, []ResultItem{
				MetricResult(MetricItem{Label: "market_cap", Value: 2.3e12, Unit: "USD", Quarter: quarter.MustParse("2024q1")}),
			}, ""),
			AgentRAG: newResult(AgentRAG, StatusPartial, nil, "no indexed passages in range"),
			AgentWeb: newResult(AgentWeb, StatusOK, []ResultItem{
				NewsResult(NewsItem{Headline: "Record quarter", Snippet: "Revenue up", PublishedAt: published, URL: "https://x.test/a", Source: "Reuters"}),
			}, ""),
		},
		Synthesis: "Market cap reached $2.3T in Q1 2024.",
		Citations: []Citation{{Agent: AgentMetrics, Item: 0, Kind: ItemMetric, Match: "Q1 2024", Source: "metrics 2024q1 market_cap"}},
		Degraded:  true,
	}
	in.PerAgent[AgentMetrics] = withElapsed(in.PerAgent[AgentMetrics], 120*time.Millisecond)

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out AgentResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func withElapsed(r AgentResult, d time.Duration) AgentResult {
	r.Elapsed = d
	return r
}
