package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"finresearch/internal/services/filings"
	"finresearch/pkg/errors"
)

const maxLineBytes = 1 << 20

// Indexer is the part of filings.Service the command drives
type Indexer interface {
	Index(ctx context.Context, inputs []filings.PassageInput) (int, error)
}

// Stats summarizes one indexing run
type Stats struct {
	Lines   int
	Skipped int
	Indexed int
	Batches int
}

// indexStream reads JSON Lines from r and indexes them batchSize at a time.
// Blank lines are ignored and malformed or invalid lines are skipped.
func indexStream(ctx context.Context, r io.Reader, idx Indexer, batchSize int, skip func(line int, err error)) (Stats, error) {
	if batchSize <= 0 {
		batchSize = 64
	}

	var (
		stats Stats
		batch = make([]filings.PassageInput, 0, batchSize)
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := idx.Index(ctx, batch)
		if err != nil {
			return errors.Wrapf(err, "index batch %d", stats.Batches+1)
		}
		stats.Indexed += n
		stats.Batches++
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		stats.Lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var in filings.PassageInput
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			stats.Skipped++
			skip(stats.Lines, errors.Wrap(errors.ErrInvalidInput, err.Error()))
			continue
		}
		if err := in.Validate(); err != nil {
			stats.Skipped++
			skip(stats.Lines, err)
			continue
		}

		batch = append(batch, in)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, errors.Wrap(err, "read passages")
	}

	return stats, flush()
}
