package bootstrap

import (
	"finresearch/internal/adapters/config"
	"finresearch/internal/services/catalog"
	"finresearch/internal/workers"
	catalogworker "finresearch/internal/workers/catalog"
	"finresearch/pkg/logger"
)

// provideWorkers registers every background worker with a fresh scheduler
func provideWorkers(cfg *config.Config, catalogSvc *catalog.Service, log *logger.Logger) *workers.Scheduler {
	scheduler := workers.NewScheduler()

	scheduler.RegisterWorker(catalogworker.NewRefresher(
		catalogSvc,
		cfg.Workers.CatalogRefreshInterval,
		cfg.Workers.CatalogRefreshEnabled,
	))

	log.Infow("✓ Workers registered",
		"count", len(scheduler.GetWorkers()),
		"catalog_refresh_interval", cfg.Workers.CatalogRefreshInterval,
	)
	return scheduler
}
