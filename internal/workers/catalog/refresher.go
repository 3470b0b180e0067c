package catalog

import (
	"context"
	"time"

	"finresearch/internal/services/catalog"
	"finresearch/internal/workers"
	"finresearch/pkg/errors"
)

// Refresher rebuilds the in-memory quarter catalog from the stores
type Refresher struct {
	*workers.BaseWorker
	catalog *catalog.Service
}

// NewRefresher creates the catalog refresh worker
func NewRefresher(svc *catalog.Service, interval time.Duration, enabled bool) *Refresher {
	return &Refresher{
		BaseWorker: workers.NewBaseWorker("catalog_refresher", interval, enabled),
		catalog:    svc,
	}
}

// Run refreshes the catalog once
func (r *Refresher) Run(ctx context.Context) error {
	before := len(r.catalog.Snapshot().Quarters)

	if err := r.catalog.Refresh(ctx); err != nil {
		return errors.Wrap(err, "refresh quarter catalog")
	}

	after := len(r.catalog.Snapshot().Quarters)
	if after != before {
		r.Log().Infow("Quarter catalog changed", "before", before, "after", after)
	}
	return nil
}
