package agents

import (
	"context"
	"sort"

	"finresearch/internal/domain/quarter"
	"finresearch/pkg/logger"
)

// RAGAgent retrieves report passages restricted to the requested quarters
type RAGAgent struct {
	search SemanticSearch
	topK   int
	log    *logger.Logger
}

// NewRAGAgent creates the passage retrieval adapter
func NewRAGAgent(search SemanticSearch, topK int) *RAGAgent {
	if topK <= 0 {
		topK = defaultPassageTopK
	}
	return &RAGAgent{
		search: search,
		topK:   topK,
		log:    logger.Get().With("component", "rag_agent"),
	}
}

func (a *RAGAgent) Kind() AgentKind { return AgentRAG }

// Run keeps provider scores and provenance verbatim
func (a *RAGAgent) Run(ctx context.Context, query string, r quarter.Range) AgentResult {
	filter := PassageFilter{From: r.Start, To: r.End}

	hits, err := a.search.Search(ctx, query, filter, a.topK)
	if err != nil {
		a.log.Warnf("Semantic search failed for %s: %v", r, err)
		return failedResult(AgentRAG, failureReason(err, "semantic search failed"))
	}

	kept := make([]PassageHit, 0, len(hits))
	for _, h := range hits {
		if filter.Matches(h.Year, h.Quarter) {
			kept = append(kept, h)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > a.topK {
		kept = kept[:a.topK]
	}

	if len(kept) == 0 {
		return newResult(AgentRAG, StatusPartial, nil, "no indexed passages in range")
	}

	items := make([]ResultItem, 0, len(kept))
	for _, h := range kept {
		items = append(items, PassageResult(PassageItem{
			Text:           h.Text,
			QuarterLabel:   quarter.Quarter{Year: h.Year, Q: h.Quarter}.String(),
			Year:           h.Year,
			Quarter:        h.Quarter,
			SourceDocument: h.Document,
			Page:           h.Page,
			RelevanceScore: h.Score,
		}))
	}
	return newResult(AgentRAG, StatusOK, items, "")
}
