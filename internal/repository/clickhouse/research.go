package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"finresearch/internal/domain/research"
	"finresearch/internal/metrics"
	"finresearch/pkg/errors"
)

// Compile-time check
var _ research.Repository = (*ResearchRepository)(nil)

// ResearchRepository stores the response audit log
type ResearchRepository struct {
	conn driver.Conn
}

// NewResearchRepository creates a new research audit repository
func NewResearchRepository(conn driver.Conn) *ResearchRepository {
	return &ResearchRepository{conn: conn}
}

// InsertResponses writes audit rows in one batch
func (r *ResearchRepository) InsertResponses(ctx context.Context, records []research.ResponseRecord) error {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO research_responses (
			id, company, query, start_quarter, end_quarter, agents, agent_status,
			outcome, degraded, synthesis, citation_count, created_at
		)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for i := range records {
		if err := batch.AppendStruct(&records[i]); err != nil {
			return errors.Wrap(err, "failed to append response record")
		}
	}

	err = batch.Send()
	metrics.RecordDBQuery("clickhouse", "research_insert", time.Since(start), err)
	return err
}

// CountSince counts audit rows created after since
func (r *ResearchRepository) CountSince(ctx context.Context, since time.Time) (uint64, error) {
	var count uint64
	err := r.conn.QueryRow(ctx, `SELECT count() FROM research_responses WHERE created_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "count research responses")
	}
	return count, nil
}
