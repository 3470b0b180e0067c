package research

import (
	"context"
	"time"
)

// Repository stores the response audit log (ClickHouse)
type Repository interface {
	InsertResponses(ctx context.Context, records []ResponseRecord) error
	CountSince(ctx context.Context, since time.Time) (uint64, error)
}
