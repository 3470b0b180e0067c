package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "finresearch/internal/adapters/clickhouse"
	"finresearch/internal/adapters/kafka"
	pgclient "finresearch/internal/adapters/postgres"
	redisclient "finresearch/internal/adapters/redis"
	"finresearch/internal/api"
	"finresearch/internal/services/audit"
	"finresearch/internal/workers"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 150 * time.Second, // long enough for an in-flight synthesis
	}
}

// ShutdownTargets lists everything Shutdown releases. Nil fields are skipped.
type ShutdownTargets struct {
	WG              *sync.WaitGroup
	HTTPServer      *api.Server
	WorkerScheduler *workers.Scheduler
	AuditSink       *audit.Sink
	KafkaProducer   *kafka.Producer
	PG              *pgclient.Client
	CH              *chclient.Client
	Redis           *redisclient.Client
	ErrorTracker    errors.Tracker
}

// Shutdown releases components in dependency order:
// 1. No new requests accepted
// 2. Workers finish cleanly
// 3. Audit rows flushed while ClickHouse and Kafka are still open
// 4. Producer closed
// 5. Errors and logs flushed
// 6. Database connections last
func (l *Lifecycle) Shutdown(t ShutdownTargets, log *logger.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// ========================================
	// Step 1: Stop HTTP Server
	// ========================================
	log.Info("[1/7] Stopping HTTP server...")
	if t.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		if err := t.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		} else {
			log.Info("✓ HTTP server stopped")
		}
		httpCancel()
	}

	// ========================================
	// Step 2: Stop Background Workers
	// ========================================
	log.Info("[2/7] Stopping background workers...")
	if t.WorkerScheduler != nil && t.WorkerScheduler.IsRunning() {
		workersCtx, workersCancel := context.WithTimeout(shutdownCtx, 30*time.Second)
		if err := t.WorkerScheduler.Stop(workersCtx); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		} else {
			log.Info("✓ Workers stopped")
		}
		workersCancel()
	}

	// ========================================
	// Step 3: Wait for request and bot goroutines
	// ========================================
	log.Info("[3/7] Waiting for goroutines...")
	if t.WG != nil {
		l.waitForGoroutines(t.WG, 10*time.Second, log)
	}

	// ========================================
	// Step 4: Flush audit sink
	// ========================================
	log.Info("[4/7] Flushing audit sink...")
	if t.AuditSink != nil {
		auditCtx, auditCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		if err := t.AuditSink.Stop(auditCtx); err != nil {
			log.Errorw("Audit sink flush failed", "error", err)
		} else {
			log.Info("✓ Audit sink flushed")
		}
		auditCancel()
	}

	// ========================================
	// Step 5: Close Kafka Producer
	// ========================================
	log.Info("[5/7] Closing Kafka producer...")
	if t.KafkaProducer != nil {
		if err := t.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	// ========================================
	// Step 6: Flush error tracker and logs
	// ========================================
	log.Info("[6/7] Flushing error tracker and logs...")
	l.flushErrorTracker(shutdownCtx, t.ErrorTracker, log)
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	}

	// ========================================
	// Step 7: Close Database Connections
	// ========================================
	log.Info("[7/7] Closing database connections...")
	l.closeDatabases(t.PG, t.CH, t.Redis, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	} else {
		log.Info("✓ Error tracker flushed")
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	errs := &errors.MultiError{}

	if pgClient != nil {
		if err := pgClient.Close(); err != nil {
			errs.Add(errors.Wrap(err, "postgres"))
		}
	}

	if chClient != nil {
		if err := chClient.Close(); err != nil {
			errs.Add(errors.Wrap(err, "clickhouse"))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			errs.Add(errors.Wrap(err, "redis"))
		}
	}

	if errs.HasErrors() {
		log.Errorw("Database close errors", "error", errs.ToError())
	} else {
		log.Info("✓ Database connections closed")
	}
}
