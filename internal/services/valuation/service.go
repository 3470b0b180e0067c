package valuation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finresearch/internal/agents"
	"finresearch/internal/domain/quarter"
	"finresearch/internal/domain/valuation"
	"finresearch/internal/metrics"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

// Cache is the subset of the Redis client used for lookups
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

var (
	_ agents.MetricsLookup      = (*Service)(nil)
	_ agents.RangeMetricsLookup = (*Service)(nil)
)

// Service answers metric lookups from ClickHouse with a read-through cache
type Service struct {
	repository valuation.Repository
	cache      Cache
	ttl        time.Duration
	log        *logger.Logger
}

// NewService creates a valuation service. cache may be nil.
func NewService(repository valuation.Repository, cache Cache, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{
		repository: repository,
		cache:      cache,
		ttl:        ttl,
		log:        log.With("component", "valuation_service"),
	}
}

// Query returns the labelled metrics of one quarter.
// It fails with errors.ErrNotFound when the quarter has no snapshot.
func (s *Service) Query(ctx context.Context, company string, q quarter.Quarter) ([]agents.MetricRow, error) {
	key := cacheKey(company, q)

	var cached []agents.MetricRow
	if s.lookup(ctx, key, &cached) {
		if len(cached) == 0 {
			return nil, errors.Wrapf(errors.ErrNotFound, "valuation %s %s", company, q)
		}
		return cached, nil
	}

	snap, err := s.repository.GetQuarter(ctx, company, q)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable(ctx, err)
	}

	rows := toRows(snap.Measures())
	s.store(ctx, key, rows)
	if len(rows) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "valuation %s %s has no reported measures", company, q)
	}
	return rows, nil
}

// QueryRange answers a range from the per-quarter cache and fetches the
// uncached span with one query. Quarters without a snapshot are missing
// from the result; their absence is cached too.
func (s *Service) QueryRange(ctx context.Context, company string, r quarter.Range) (map[quarter.Quarter][]agents.MetricRow, error) {
	out := make(map[quarter.Quarter][]agents.MetricRow)

	var missing []quarter.Quarter
	for _, q := range r.Quarters() {
		var cached []agents.MetricRow
		if s.lookup(ctx, cacheKey(company, q), &cached) {
			if len(cached) > 0 {
				out[q] = cached
			}
			continue
		}
		missing = append(missing, q)
	}
	if len(missing) == 0 {
		s.log.Debugw("Range lookup served from cache", "company", company, "range", r.String(), "quarters", len(out))
		return out, nil
	}

	span := quarter.Range{Start: missing[0], End: missing[len(missing)-1]}
	snapshots, err := s.repository.GetRange(ctx, company, span)
	if err != nil {
		return nil, unavailable(ctx, err)
	}

	fetched := make(map[quarter.Quarter][]agents.MetricRow, len(snapshots))
	for _, snap := range snapshots {
		q := snap.Period()
		if !span.Contains(q) {
			continue
		}
		fetched[q] = toRows(snap.Measures())
	}

	for _, q := range missing {
		rows := fetched[q]
		s.store(ctx, cacheKey(company, q), rows)
		if len(rows) > 0 {
			out[q] = rows
		}
	}

	s.log.Debugw("Range lookup", "company", company, "range", r.String(), "fetched", span.String(), "quarters", len(out))
	return out, nil
}

// Quarters lists the quarters that have valuation data
func (s *Service) Quarters(ctx context.Context, company string) ([]quarter.Quarter, error) {
	return s.repository.ListQuarters(ctx, company)
}

func (s *Service) lookup(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	switch {
	case err == nil:
		metrics.RecordCacheLookup("valuation", "hit")
		return true
	case errors.Is(err, errors.ErrNotFound):
		metrics.RecordCacheLookup("valuation", "miss")
	default:
		metrics.RecordCacheLookup("valuation", "error")
		s.log.Warnw("Cache read failed", "key", key, "error", err)
	}
	return false
}

func (s *Service) store(ctx context.Context, key string, rows []agents.MetricRow) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, rows, s.ttl); err != nil {
		s.log.Warnw("Cache write failed", "key", key, "error", err)
	}
}

func toRows(measures []valuation.Measure) []agents.MetricRow {
	rows := make([]agents.MetricRow, 0, len(measures))
	for _, m := range measures {
		rows = append(rows, agents.MetricRow{Label: m.Label, Value: m.Value, Unit: m.Unit})
	}
	return rows
}

func cacheKey(company string, q quarter.Quarter) string {
	return fmt.Sprintf("valuation:%s:%s", strings.ToLower(company), q)
}

// unavailable keeps context errors intact and marks everything else as a store outage
func unavailable(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "valuation store: %v", err)
	}
	return errors.Wrapf(errors.ErrUnavailable, "valuation store: %v", err)
}
