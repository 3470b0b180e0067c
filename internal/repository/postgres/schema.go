package postgres

import (
	"context"
	"fmt"

	"finresearch/pkg/errors"
)

// EnsureSchema creates the pgvector extension and the passage table.
// dimensions must match the embedding model.
func EnsureSchema(ctx context.Context, db DBTX, dimensions int) error {
	if dimensions <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "invalid embedding dimensions %d", dimensions)
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS report_passages (
			id                   UUID PRIMARY KEY,
			company              TEXT NOT NULL,
			year                 INTEGER NOT NULL,
			quarter              SMALLINT NOT NULL CHECK (quarter BETWEEN 1 AND 4),
			document             TEXT NOT NULL,
			page                 INTEGER NOT NULL DEFAULT 0,
			chunk_index          INTEGER NOT NULL DEFAULT 0,
			content              TEXT NOT NULL,
			embedding            vector(%d) NOT NULL,
			embedding_model      TEXT NOT NULL,
			embedding_dimensions INTEGER NOT NULL,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS report_passages_company_period_idx
			ON report_passages (company, year, quarter)`,
		`CREATE INDEX IF NOT EXISTS report_passages_embedding_idx
			ON report_passages USING hnsw (embedding vector_cosine_ops)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "postgres schema")
		}
	}
	return nil
}
