package news

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"finresearch/internal/adapters/news"
	"finresearch/internal/adapters/ratelimit"
	"finresearch/internal/agents"
	"finresearch/internal/metrics"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

// Cache is the subset of the Redis client used for result caching
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

var _ agents.NewsSearch = (*Service)(nil)

// Config tunes the news service
type Config struct {
	Company string
	// MaxResults is requested from the provider per query
	MaxResults int
	// FinancialQuery adds a second "<company> <query> financial earnings stock" search
	FinancialQuery bool
	CacheTTL       time.Duration
}

// Service turns a research question into company-scoped news results
type Service struct {
	client  news.Client
	limiter ratelimit.Limiter
	cache   Cache
	cfg     Config
	log     *logger.Logger
}

// NewService creates a news service. limiter and cache may be nil.
func NewService(client news.Client, limiter ratelimit.Limiter, cache Cache, cfg Config, log *logger.Logger) *Service {
	if limiter == nil {
		limiter = ratelimit.NoOp{}
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return &Service{
		client:  client,
		limiter: limiter,
		cache:   cache,
		cfg:     cfg,
		log:     log.With("component", "news_service", "provider", client.Name()),
	}
}

// Search runs the company-scoped query (and optionally the financial one)
// and merges the results, dropping duplicates by URL or headline.
func (s *Service) Search(ctx context.Context, text string) ([]agents.NewsHit, error) {
	query := s.scoped(text)
	if query == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "news query is empty")
	}

	key := cacheKey(s.client.Name(), query, s.cfg.FinancialQuery)
	var cached []agents.NewsHit
	if s.lookup(ctx, key, &cached) {
		return cached, nil
	}

	articles, err := s.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	if s.cfg.FinancialQuery {
		extra, err := s.fetch(ctx, query+" financial earnings stock")
		if err != nil {
			// the primary results still stand
			s.log.Warnw("Financial news query failed", "error", err)
		} else {
			articles = append(articles, extra...)
		}
	}

	hits := dedupe(articles)
	s.store(ctx, key, hits)
	return hits, nil
}

// scoped prefixes the company name unless the question already mentions it
func (s *Service) scoped(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || s.cfg.Company == "" {
		return text
	}
	if strings.Contains(strings.ToLower(text), strings.ToLower(s.cfg.Company)) {
		return text
	}
	return s.cfg.Company + " " + text
}

func (s *Service) fetch(ctx context.Context, query string) ([]news.Article, error) {
	provider := s.client.Name()

	if err := s.limiter.Wait(ctx); err != nil {
		metrics.RecordRateLimited("news", provider)
		return nil, err
	}

	start := time.Now()
	articles, err := s.client.Search(ctx, query, s.cfg.MaxResults)
	metrics.RecordNewsAPICall(provider, time.Since(start), err)
	if err != nil {
		if errors.Is(err, errors.ErrRateLimitExceeded) {
			metrics.RecordRateLimited("news", provider)
		}
		return nil, err
	}
	return articles, nil
}

func dedupe(articles []news.Article) []agents.NewsHit {
	seen := make(map[string]struct{}, len(articles))
	out := make([]agents.NewsHit, 0, len(articles))
	for _, a := range articles {
		keys := []string{strings.ToLower(strings.TrimSpace(a.Title))}
		if a.Link != "" {
			keys = append(keys, a.Link)
		}
		dup := false
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				dup = true
			}
		}
		if dup || keys[0] == "" {
			continue
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		out = append(out, agents.NewsHit{
			Headline:    a.Title,
			Snippet:     a.Snippet,
			PublishedAt: a.PublishedAt,
			URL:         a.Link,
			Source:      a.Source,
		})
	}
	return out
}

func (s *Service) lookup(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil || s.cfg.CacheTTL <= 0 {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	switch {
	case err == nil:
		metrics.RecordCacheLookup("news", "hit")
		return true
	case errors.Is(err, errors.ErrNotFound):
		metrics.RecordCacheLookup("news", "miss")
	default:
		metrics.RecordCacheLookup("news", "error")
		s.log.Warnw("Cache read failed", "key", key, "error", err)
	}
	return false
}

func (s *Service) store(ctx context.Context, key string, hits []agents.NewsHit) {
	if s.cache == nil || s.cfg.CacheTTL <= 0 || len(hits) == 0 {
		return
	}
	if err := s.cache.Set(ctx, key, hits, s.cfg.CacheTTL); err != nil {
		s.log.Warnw("Cache write failed", "key", key, "error", err)
	}
}

func cacheKey(provider, query string, financial bool) string {
	sum := sha1.Sum([]byte(strings.ToLower(query)))
	key := "news:" + provider + ":" + hex.EncodeToString(sum[:])
	if financial {
		key += ":fin"
	}
	return key
}
