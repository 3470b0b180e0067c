package agents

import (
	"fmt"
	"path"
	"strings"

	"finresearch/internal/domain/quarter"
)

// minHeadlineMatch avoids citing a headline because of a few common words
const minHeadlineMatch = 12

// ExtractCitations back-maps the synthesis onto context items. It is a
// heuristic structural match over tokens already present in the context
// (item markers, quarter labels, document names, headlines, URLs) and never
// adds facts of its own. Citations follow context order. A quarter label
// without a marker cites only the first metric of that quarter.
func ExtractCitations(text string, perAgent map[AgentKind]AgentResult) []Citation {
	citations := []Citation{}
	if strings.TrimSpace(text) == "" {
		return citations
	}
	lower := strings.ToLower(text)
	citedQuarters := map[quarter.Quarter]bool{}

	for _, kind := range KnownAgents {
		res, ok := perAgent[kind]
		if !ok || !res.Contributes() {
			continue
		}
		for i, item := range res.Items {
			match, ok := matchItem(text, lower, item, i)
			if !ok {
				continue
			}
			if item.Kind == ItemMetric {
				q := item.Metric.Quarter
				if citedQuarters[q] && match != marker(item.Kind, i) {
					continue
				}
				citedQuarters[q] = true
			}
			citations = append(citations, Citation{
				Agent:  kind,
				Item:   i,
				Kind:   item.Kind,
				Match:  match,
				Source: itemSource(item),
			})
		}
	}
	return citations
}

func matchItem(text, lower string, item ResultItem, i int) (string, bool) {
	if m := marker(item.Kind, i); strings.Contains(text, m) {
		return m, true
	}

	switch item.Kind {
	case ItemMetric:
		return findAlias(lower, item.Metric.Quarter.Aliases())
	case ItemPassage:
		p := item.Passage
		for _, token := range documentTokens(p.SourceDocument) {
			if containsFold(lower, token) {
				return token, true
			}
		}
		return findAlias(lower, quarter.Quarter{Year: p.Year, Q: p.Quarter}.Aliases())
	case ItemNews:
		n := item.News
		if len(n.Headline) >= minHeadlineMatch && containsFold(lower, n.Headline) {
			return n.Headline, true
		}
		if n.URL != "" && strings.Contains(text, n.URL) {
			return n.URL, true
		}
	}
	return "", false
}

// documentTokens returns the full document name and its stem (name without extension)
func documentTokens(doc string) []string {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return nil
	}
	base := path.Base(doc)
	tokens := []string{doc}
	if base != doc {
		tokens = append(tokens, base)
	}
	if stem := strings.TrimSuffix(base, path.Ext(base)); stem != base && len(stem) >= 4 {
		tokens = append(tokens, stem)
	}
	return tokens
}

func findAlias(lower string, aliases []string) (string, bool) {
	for _, a := range aliases {
		if containsFold(lower, a) {
			return a, true
		}
	}
	return "", false
}

func containsFold(lower, token string) bool {
	token = strings.ToLower(strings.TrimSpace(token))
	return token != "" && strings.Contains(lower, token)
}

func itemSource(item ResultItem) string {
	switch item.Kind {
	case ItemMetric:
		return fmt.Sprintf("metrics %s %s", item.Metric.Quarter, item.Metric.Label)
	case ItemPassage:
		return fmt.Sprintf("%s p.%d", item.Passage.SourceDocument, item.Passage.Page)
	case ItemNews:
		if item.News.URL != "" {
			return item.News.URL
		}
		return item.News.Headline
	}
	return ""
}
