package bootstrap

import (
	"context"
	"sync"

	chclient "finresearch/internal/adapters/clickhouse"
	"finresearch/internal/adapters/config"
	"finresearch/internal/adapters/embeddings"
	"finresearch/internal/adapters/kafka"
	pgclient "finresearch/internal/adapters/postgres"
	redisclient "finresearch/internal/adapters/redis"
	"finresearch/internal/adapters/telegram"
	"finresearch/internal/agents"
	"finresearch/internal/api"
	"finresearch/internal/api/health"
	chrepo "finresearch/internal/repository/clickhouse"
	pgrepo "finresearch/internal/repository/postgres"
	"finresearch/internal/services/audit"
	"finresearch/internal/services/catalog"
	"finresearch/internal/services/filings"
	"finresearch/internal/services/news"
	"finresearch/internal/services/valuation"
	"finresearch/internal/workers"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

// Container holds all application dependencies and their lifecycle.
// Components are organized in initialization order.
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure layer (data stores)
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Adapters    *Adapters
	Services    *Services
	Business    *Business
	Application *Application
	Background  *Background

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups the storage repositories
type Repositories struct {
	Valuation *chrepo.ValuationRepository
	Research  *chrepo.ResearchRepository
	Passage   *pgrepo.PassageRepository
}

// Adapters groups external clients
type Adapters struct {
	KafkaProducer     *kafka.Producer
	EmbeddingProvider embeddings.Provider
	Synthesizer       agents.Synthesizer
}

// Services groups domain services
type Services struct {
	Valuation *valuation.Service
	Filings   *filings.Service
	News      *news.Service
	Catalog   *catalog.Service
	Audit     *audit.Sink
}

// Business groups the research orchestration
type Business struct {
	Orchestrator *agents.Orchestrator
}

// Application groups the user facing surfaces
type Application struct {
	HTTPServer      *api.Server
	HealthHandler   *health.Handler
	TelegramBot     *telegram.Bot
	TelegramHandler *telegram.CommandHandler
}

// Background groups background processing
type Background struct {
	WorkerScheduler *workers.Scheduler
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Services:    &Services{},
		Business:    &Business{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order.
// Panics on any initialization error (fail-fast at startup).
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitBusiness()
	c.MustInitApplication()
	c.MustInitBackground()
}

// Start starts the HTTP server, the audit sink, workers and the Telegram bot
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	c.Services.Audit.Start(c.Context)

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel()
		}
	}()

	if c.Application.TelegramBot != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := c.Application.TelegramBot.Start(c.Context); err != nil && c.Context.Err() == nil {
				c.Log.Errorw("Telegram bot stopped", "error", err)
			}
		}()
		c.Log.Info("✓ Telegram bot polling")
	}

	c.Log.Infow("✓ All systems operational",
		"company", c.Config.Research.Company,
		"port", c.Config.HTTP.Port,
	)
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	c.Cancel()

	c.Lifecycle.Shutdown(ShutdownTargets{
		WG:              c.WG,
		HTTPServer:      c.Application.HTTPServer,
		WorkerScheduler: c.Background.WorkerScheduler,
		AuditSink:       c.Services.Audit,
		KafkaProducer:   c.Adapters.KafkaProducer,
		PG:              c.PG,
		CH:              c.CH,
		Redis:           c.Redis,
		ErrorTracker:    c.ErrorTracker,
	}, c.Log)
}
