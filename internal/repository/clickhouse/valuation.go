package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"finresearch/internal/domain/quarter"
	"finresearch/internal/domain/valuation"
	"finresearch/internal/metrics"
	"finresearch/pkg/errors"
)

// Compile-time check
var _ valuation.Repository = (*ValuationRepository)(nil)

const snapshotColumns = `company, year, quarter,
	market_cap, enterprise_value, trailing_pe, forward_pe, peg_ratio,
	price_to_sales, price_to_book, enterprise_to_revenue, enterprise_to_ebitda,
	updated_at`

// ValuationRepository implements valuation.Repository using ClickHouse
type ValuationRepository struct {
	conn driver.Conn
}

// NewValuationRepository creates a new valuation repository
func NewValuationRepository(conn driver.Conn) *ValuationRepository {
	return &ValuationRepository{conn: conn}
}

// GetQuarter returns the latest snapshot version for one quarter
func (r *ValuationRepository) GetQuarter(ctx context.Context, company string, q quarter.Quarter) (*valuation.Snapshot, error) {
	start := time.Now()
	var rows []valuation.Snapshot

	query := `
		SELECT ` + snapshotColumns + `
		FROM valuation_metrics FINAL
		WHERE company = $1 AND year = $2 AND quarter = $3
		LIMIT 1`

	err := r.conn.Select(ctx, &rows, query, company, uint16(q.Year), uint8(q.Q))
	metrics.RecordDBQuery("clickhouse", "valuation_get_quarter", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrapf(err, "query valuation %s %s", company, q)
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "valuation %s %s", company, q)
	}
	return &rows[0], nil
}

// GetRange returns snapshots inside r in ascending quarter order
func (r *ValuationRepository) GetRange(ctx context.Context, company string, rng quarter.Range) ([]valuation.Snapshot, error) {
	start := time.Now()
	var rows []valuation.Snapshot

	query := `
		SELECT ` + snapshotColumns + `
		FROM valuation_metrics FINAL
		WHERE company = $1
		  AND toUInt32(year) * 4 + quarter - 1 BETWEEN $2 AND $3
		ORDER BY year, quarter`

	err := r.conn.Select(ctx, &rows, query, company, uint32(rng.Start.Ordinal()), uint32(rng.End.Ordinal()))
	metrics.RecordDBQuery("clickhouse", "valuation_get_range", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrapf(err, "query valuation %s %s", company, rng)
	}
	return rows, nil
}

// Upsert inserts snapshots; ReplacingMergeTree keeps the newest updated_at per quarter
func (r *ValuationRepository) Upsert(ctx context.Context, snapshots []valuation.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, `INSERT INTO valuation_metrics (`+snapshotColumns+`)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for _, s := range snapshots {
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = time.Now().UTC()
		}
		if err := batch.AppendStruct(&s); err != nil {
			return errors.Wrap(err, "failed to append snapshot")
		}
	}

	return batch.Send()
}

// ListQuarters returns every quarter with a snapshot, ascending
func (r *ValuationRepository) ListQuarters(ctx context.Context, company string) ([]quarter.Quarter, error) {
	start := time.Now()
	var rows []struct {
		Year    uint16 `ch:"year"`
		Quarter uint8  `ch:"quarter"`
	}

	query := `
		SELECT DISTINCT year, quarter
		FROM valuation_metrics FINAL
		WHERE company = $1
		ORDER BY year, quarter`

	err := r.conn.Select(ctx, &rows, query, company)
	metrics.RecordDBQuery("clickhouse", "valuation_list_quarters", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "list valuation quarters")
	}

	out := make([]quarter.Quarter, 0, len(rows))
	for _, row := range rows {
		q, err := quarter.New(int(row.Year), int(row.Quarter))
		if err != nil {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}
