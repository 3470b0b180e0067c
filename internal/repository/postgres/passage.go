package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"finresearch/internal/domain/filing"
	"finresearch/internal/domain/quarter"
	"finresearch/internal/metrics"
	"finresearch/pkg/errors"
)

// Compile-time check
var _ filing.Repository = (*PassageRepository)(nil)

// PassageRepository implements filing.Repository using sqlx and pgvector
type PassageRepository struct {
	db DBTX
}

// NewPassageRepository creates a new passage repository
func NewPassageRepository(db DBTX) *PassageRepository {
	return &PassageRepository{db: db}
}

const upsertPassage = `
	INSERT INTO report_passages (
		id, company, year, quarter, document, page, chunk_index, content,
		embedding, embedding_model, embedding_dimensions, created_at
	) VALUES (
		:id, :company, :year, :quarter, :document, :page, :chunk_index, :content,
		:embedding, :embedding_model, :embedding_dimensions, :created_at
	)
	ON CONFLICT (id) DO UPDATE SET
		content = EXCLUDED.content,
		embedding = EXCLUDED.embedding,
		embedding_model = EXCLUDED.embedding_model,
		embedding_dimensions = EXCLUDED.embedding_dimensions,
		created_at = EXCLUDED.created_at`

// Upsert stores passages, replacing rows with the same ID
func (r *PassageRepository) Upsert(ctx context.Context, passages []filing.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	start := time.Now()

	var err error
	for i := range passages {
		if passages[i].CreatedAt.IsZero() {
			passages[i].CreatedAt = time.Now().UTC()
		}
		if _, err = r.db.NamedExecContext(ctx, upsertPassage, &passages[i]); err != nil {
			err = errors.Wrapf(err, "upsert passage %s p.%d", passages[i].Document, passages[i].Page)
			break
		}
	}

	metrics.RecordDBQuery("postgres", "passage_upsert", time.Since(start), err)
	return err
}

// SearchSimilar performs semantic search using pgvector cosine similarity,
// restricted to the query's company and inclusive quarter span
func (r *PassageRepository) SearchSimilar(ctx context.Context, q filing.SearchQuery) ([]filing.ScoredPassage, error) {
	start := time.Now()
	var hits []filing.ScoredPassage

	query := `
		SELECT id, company, year, quarter, document, page, chunk_index, content,
		       embedding_model, embedding_dimensions, created_at,
		       1 - (embedding <=> $2) AS similarity
		FROM report_passages
		WHERE company = $1
		  AND year * 4 + quarter - 1 BETWEEN $3 AND $4
		ORDER BY embedding <=> $2
		LIMIT $5`

	err := r.db.SelectContext(ctx, &hits, query,
		q.Company, q.Embedding, q.From.Ordinal(), q.To.Ordinal(), q.Limit)
	metrics.RecordDBQuery("postgres", "passage_search", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "search passages")
	}
	return hits, nil
}

// ListQuarters returns every indexed quarter, ascending
func (r *PassageRepository) ListQuarters(ctx context.Context, company string) ([]quarter.Quarter, error) {
	var rows []struct {
		Year    int `db:"year"`
		Quarter int `db:"quarter"`
	}

	err := r.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT year, quarter
		FROM report_passages
		WHERE company = $1
		ORDER BY year, quarter`, company)
	if err != nil {
		return nil, errors.Wrap(err, "list passage quarters")
	}

	out := make([]quarter.Quarter, 0, len(rows))
	for _, row := range rows {
		if q, err := quarter.New(row.Year, row.Quarter); err == nil {
			out = append(out, q)
		}
	}
	return out, nil
}

// Count returns the number of indexed passages for company
func (r *PassageRepository) Count(ctx context.Context, company string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM report_passages WHERE company = $1`, company); err != nil {
		return 0, errors.Wrap(err, "count passages")
	}
	return n, nil
}

// WithTx runs fn inside a transaction on db, committing when fn succeeds
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}
