package agents

import (
	"context"
	"sort"
	"strings"

	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

// WebAgent fetches recent news; the quarter range is advisory only
type WebAgent struct {
	search  NewsSearch
	maxNews int
	log     *logger.Logger
}

// NewWebAgent creates the news adapter
func NewWebAgent(search NewsSearch, maxNews int) *WebAgent {
	if maxNews <= 0 {
		maxNews = defaultMaxNews
	}
	return &WebAgent{
		search:  search,
		maxNews: maxNews,
		log:     logger.Get().With("component", "web_agent"),
	}
}

func (a *WebAgent) Kind() AgentKind { return AgentWeb }

// Run passes the raw user query to the provider
func (a *WebAgent) Run(ctx context.Context, query string, _ quarter.Range) AgentResult {
	hits, err := a.search.Search(ctx, query)
	if err != nil {
		a.log.Warnf("News search failed: %v", err)
		return failedResult(AgentWeb, newsFailureReason(err))
	}

	kept := make([]NewsHit, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.Headline) != "" {
			kept = append(kept, h)
		}
	}
	// newest first, undated last
	sort.SliceStable(kept, func(i, j int) bool {
		ti, tj := kept[i].PublishedAt, kept[j].PublishedAt
		if ti.IsZero() || tj.IsZero() {
			return !ti.IsZero() && tj.IsZero()
		}
		return ti.After(tj)
	})
	if len(kept) > a.maxNews {
		kept = kept[:a.maxNews]
	}

	if len(kept) == 0 {
		return newResult(AgentWeb, StatusPartial, nil, "no news results")
	}

	items := make([]ResultItem, 0, len(kept))
	for _, h := range kept {
		items = append(items, NewsResult(NewsItem{
			Headline:    h.Headline,
			Snippet:     h.Snippet,
			PublishedAt: h.PublishedAt,
			URL:         h.URL,
			Source:      h.Source,
		}))
	}
	return newResult(AgentWeb, StatusOK, items, "")
}

func newsFailureReason(err error) string {
	switch {
	case errors.Is(err, errors.ErrRateLimitExceeded):
		return "rate limited by news provider"
	case errors.Is(err, errors.ErrUnavailable):
		return "news provider unavailable"
	default:
		return failureReason(err, "news search failed")
	}
}
