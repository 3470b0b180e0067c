package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finresearch/internal/adapters/config"
	"finresearch/internal/adapters/embeddings"
	pgclient "finresearch/internal/adapters/postgres"
	pgrepo "finresearch/internal/repository/postgres"
	"finresearch/internal/services/filings"
	"finresearch/pkg/logger"
)

func main() {
	input := flag.String("input", "-", "JSON Lines file with pre-chunked passages (- for stdin)")
	batchSize := flag.Int("batch", 0, "Passages per embedding call (default INDEXER_BATCH_SIZE)")
	flag.Parse()

	cfg, err := config.LoadIndexer()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get().With("component", "indexer")
	if *batchSize <= 0 {
		*batchSize = cfg.BatchSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := open(*input)
	if err != nil {
		log.Fatalf("Failed to open input: %v", err)
	}
	defer src.Close()

	pg, err := pgclient.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect postgres: %v", err)
	}
	defer pg.Close()

	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider: embeddings.ProviderOpenAI,
		APIKey:   cfg.AI.OpenAIKey,
		Model:    cfg.AI.EmbeddingModel,
		Timeout:  cfg.AI.EmbeddingTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to create embedding provider: %v", err)
	}

	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = pgrepo.EnsureSchema(schemaCtx, pg.DB(), embedder.Dimensions())
	cancel()
	if err != nil {
		log.Fatalf("Failed to prepare schema: %v", err)
	}

	svc := filings.NewService(pgrepo.NewPassageRepository(pg.DB()), embedder, cfg.Company, log)

	start := time.Now()
	stats, err := indexStream(ctx, src, svc, *batchSize, func(line int, err error) {
		log.Warnw("Skipping passage", "line", line, "error", err)
	})
	if err != nil {
		log.Errorw("Indexing failed", "error", err, "indexed", stats.Indexed, "batches", stats.Batches)
		os.Exit(1)
	}

	total, err := svc.Count(ctx)
	if err != nil {
		log.Warnw("Failed to count passages", "error", err)
	}

	log.Infow("✅ Indexing completed",
		"company", cfg.Company,
		"lines", stats.Lines,
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"batches", stats.Batches,
		"total_passages", total,
		"took", time.Since(start).Round(time.Millisecond),
	)
}

func open(path string) (io.ReadCloser, error) {
	if path == "-" || path == "" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
