package filing

import (
	"context"

	"finresearch/internal/domain/quarter"
)

// Repository defines access to the passage index (Postgres + pgvector)
type Repository interface {
	// Upsert stores passages, replacing rows with the same ID
	Upsert(ctx context.Context, passages []Passage) error
	SearchSimilar(ctx context.Context, q SearchQuery) ([]ScoredPassage, error)
	ListQuarters(ctx context.Context, company string) ([]quarter.Quarter, error)
	Count(ctx context.Context, company string) (int, error)
}
