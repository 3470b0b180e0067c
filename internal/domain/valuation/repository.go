package valuation

import (
	"context"

	"finresearch/internal/domain/quarter"
)

// Repository defines access to stored valuation snapshots (ClickHouse)
type Repository interface {
	// GetQuarter returns errors.ErrNotFound when the quarter has no snapshot
	GetQuarter(ctx context.Context, company string, q quarter.Quarter) (*Snapshot, error)
	GetRange(ctx context.Context, company string, r quarter.Range) ([]Snapshot, error)
	Upsert(ctx context.Context, snapshots []Snapshot) error
	ListQuarters(ctx context.Context, company string) ([]quarter.Quarter, error)
}
