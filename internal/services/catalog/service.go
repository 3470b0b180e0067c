package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

// Source lists the quarters one store holds data for
type Source interface {
	Name() string
	Quarters(ctx context.Context) ([]quarter.Quarter, error)
}

// SourceFunc adapts a function to Source
type SourceFunc struct {
	Label string
	Fn    func(ctx context.Context) ([]quarter.Quarter, error)
}

func (s SourceFunc) Name() string { return s.Label }

func (s SourceFunc) Quarters(ctx context.Context) ([]quarter.Quarter, error) { return s.Fn(ctx) }

// Snapshot is the last successful catalog build
type Snapshot struct {
	Quarters  []quarter.Quarter
	BySource  map[string][]quarter.Quarter
	UpdatedAt time.Time
}

// Service keeps the union of quarters with metrics and/or indexed passages in memory
type Service struct {
	sources []Source
	log     *logger.Logger

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewService creates a catalog over the given sources
func NewService(log *logger.Logger, sources ...Source) *Service {
	return &Service{
		sources: sources,
		log:     log.With("component", "quarter_catalog"),
	}
}

// Refresh rebuilds the catalog. A failing source keeps its previous quarters;
// the error is returned only when every source failed.
func (s *Service) Refresh(ctx context.Context) error {
	prev := s.Snapshot()

	bySource := make(map[string][]quarter.Quarter, len(s.sources))
	var errs errors.MultiError
	for _, src := range s.sources {
		qs, err := src.Quarters(ctx)
		if err != nil {
			errs.Add(errors.Wrapf(err, "list %s quarters", src.Name()))
			s.log.Warnw("Quarter source failed, keeping previous entries", "source", src.Name(), "error", err)
			if old, ok := prev.BySource[src.Name()]; ok {
				bySource[src.Name()] = old
			}
			continue
		}
		bySource[src.Name()] = qs
	}

	if len(s.sources) > 0 && len(errs.Errors) == len(s.sources) {
		return errs.ToError()
	}

	next := Snapshot{
		Quarters:  union(bySource),
		BySource:  bySource,
		UpdatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.snapshot = next
	s.mu.Unlock()

	s.log.Debugw("Quarter catalog refreshed", "quarters", len(next.Quarters))
	return nil
}

// Available returns the known quarters in chronological order.
// The first call builds the catalog when no refresh has run yet.
func (s *Service) Available(ctx context.Context) ([]quarter.Quarter, error) {
	snap := s.Snapshot()
	if snap.UpdatedAt.IsZero() {
		if err := s.Refresh(ctx); err != nil {
			return nil, err
		}
		snap = s.Snapshot()
	}
	out := make([]quarter.Quarter, len(snap.Quarters))
	copy(out, snap.Quarters)
	return out, nil
}

// Snapshot returns the current catalog state
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func union(bySource map[string][]quarter.Quarter) []quarter.Quarter {
	seen := make(map[quarter.Quarter]struct{})
	out := make([]quarter.Quarter, 0)
	for _, qs := range bySource {
		for _, q := range qs {
			if _, ok := seen[q]; ok {
				continue
			}
			seen[q] = struct{}{}
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
