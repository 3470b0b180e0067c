package clickhouse

import (
	"context"
	"sync"
	"time"

	"finresearch/pkg/logger"
)

// FlushFunc writes one batch. It is never called with an empty batch.
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// BatchWriter buffers rows in memory and hands them to FlushFunc when the
// buffer is full, on a timer, and on shutdown. ClickHouse prefers few large
// inserts over many single-row ones.
type BatchWriter[T any] struct {
	flush FlushFunc[T]
	log   *logger.Logger

	maxBatchSize int
	maxAge       time.Duration
	maxPending   int
	table        string

	mu        sync.Mutex
	buffer    []T
	lastFlush time.Time
	dropped   int64
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// BatchWriterConfig configures a BatchWriter
type BatchWriterConfig[T any] struct {
	FlushFunc    FlushFunc[T]
	TableName    string
	MaxBatchSize int           // default 500
	MaxAge       time.Duration // default 5s
	// MaxPending caps rows kept for retry after failed flushes (default 10x MaxBatchSize).
	// Older rows are dropped first.
	MaxPending int
}

// NewBatchWriter creates a batch writer. Call Start to enable timed flushes.
func NewBatchWriter[T any](cfg BatchWriterConfig[T]) *BatchWriter[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}
	if cfg.MaxPending < cfg.MaxBatchSize {
		cfg.MaxPending = cfg.MaxBatchSize * 10
	}

	return &BatchWriter[T]{
		flush:        cfg.FlushFunc,
		maxBatchSize: cfg.MaxBatchSize,
		maxAge:       cfg.MaxAge,
		maxPending:   cfg.MaxPending,
		table:        cfg.TableName,
		buffer:       make([]T, 0, cfg.MaxBatchSize),
		lastFlush:    time.Now(),
		stopCh:       make(chan struct{}),
		log:          logger.Get().With("component", "batch_writer", "table", cfg.TableName),
	}
}

// Start begins the background flush loop. It stops when ctx ends or Stop is called.
func (bw *BatchWriter[T]) Start(ctx context.Context) {
	bw.mu.Lock()
	if bw.running {
		bw.mu.Unlock()
		return
	}
	bw.running = true
	bw.mu.Unlock()

	bw.wg.Add(1)
	go bw.loop(ctx)

	bw.log.Infof("BatchWriter started (maxBatchSize=%d, maxAge=%v)", bw.maxBatchSize, bw.maxAge)
}

// Add buffers one row and flushes synchronously once the batch is full
func (bw *BatchWriter[T]) Add(ctx context.Context, item T) error {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, item)
	full := len(bw.buffer) >= bw.maxBatchSize
	bw.mu.Unlock()

	if full {
		return bw.Flush(ctx)
	}
	return nil
}

// Flush writes everything buffered. On failure the rows go back to the
// buffer, bounded by MaxPending.
func (bw *BatchWriter[T]) Flush(ctx context.Context) error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	batch := bw.buffer
	bw.buffer = make([]T, 0, bw.maxBatchSize)
	bw.lastFlush = time.Now()
	bw.mu.Unlock()

	start := time.Now()
	if err := bw.flush(ctx, batch); err != nil {
		bw.requeue(batch)
		bw.log.Errorf("Failed to flush %d rows to %s: %v (took %v)", len(batch), bw.table, err, time.Since(start))
		return err
	}

	bw.log.Debugf("Flushed %d rows to %s (took %v)", len(batch), bw.table, time.Since(start))
	return nil
}

func (bw *BatchWriter[T]) requeue(batch []T) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	merged := append(batch, bw.buffer...)
	if over := len(merged) - bw.maxPending; over > 0 {
		merged = merged[over:]
		bw.dropped += int64(over)
		bw.log.Warnf("Dropped %d rows for %s after repeated flush failures", over, bw.table)
	}
	bw.buffer = merged
}

func (bw *BatchWriter[T]) loop(ctx context.Context) {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.maxAge)
	defer ticker.Stop()

	final := func(reason string) {
		bw.log.Infof("BatchWriter %s, performing final flush", reason)
		if err := bw.Flush(context.Background()); err != nil {
			bw.log.Errorf("Final flush failed: %v", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			final("context done")
			return
		case <-bw.stopCh:
			final("stopping")
			return
		case <-ticker.C:
			if bw.BufferSize() > 0 {
				_ = bw.Flush(ctx)
			}
		}
	}
}

// Stop flushes remaining rows and waits for the loop to exit
func (bw *BatchWriter[T]) Stop(ctx context.Context) error {
	bw.mu.Lock()
	if !bw.running {
		bw.mu.Unlock()
		return bw.Flush(ctx)
	}
	bw.running = false
	bw.mu.Unlock()

	close(bw.stopCh)

	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		bw.log.Info("BatchWriter stopped gracefully")
		return nil
	case <-ctx.Done():
		bw.log.Warn("BatchWriter stop timed out")
		return ctx.Err()
	}
}

// BufferSize returns the number of buffered rows
func (bw *BatchWriter[T]) BufferSize() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// BatchWriterStats is a monitoring snapshot
type BatchWriterStats struct {
	BufferSize   int
	Dropped      int64
	LastFlushAge time.Duration
	Running      bool
}

// Stats returns current statistics
func (bw *BatchWriter[T]) Stats() BatchWriterStats {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	return BatchWriterStats{
		BufferSize:   len(bw.buffer),
		Dropped:      bw.dropped,
		LastFlushAge: time.Since(bw.lastFlush),
		Running:      bw.running,
	}
}
