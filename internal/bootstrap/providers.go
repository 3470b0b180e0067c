package bootstrap

import (
	"context"
	"strings"
	"time"

	"finresearch/internal/adapters/ai"
	chclient "finresearch/internal/adapters/clickhouse"
	"finresearch/internal/adapters/config"
	"finresearch/internal/adapters/embeddings"
	errnoop "finresearch/internal/adapters/errors/noop"
	"finresearch/internal/adapters/errors/sentry"
	"finresearch/internal/adapters/kafka"
	newsclient "finresearch/internal/adapters/news"
	pgclient "finresearch/internal/adapters/postgres"
	"finresearch/internal/adapters/ratelimit"
	redisclient "finresearch/internal/adapters/redis"
	"finresearch/internal/adapters/telegram"
	"finresearch/internal/agents"
	"finresearch/internal/api"
	"finresearch/internal/api/health"
	"finresearch/internal/api/research"
	"finresearch/internal/domain/quarter"
	domainresearch "finresearch/internal/domain/research"
	"finresearch/internal/metrics"
	chrepo "finresearch/internal/repository/clickhouse"
	pgrepo "finresearch/internal/repository/postgres"
	"finresearch/internal/services/audit"
	"finresearch/internal/services/catalog"
	"finresearch/internal/services/filings"
	"finresearch/internal/services/news"
	"finresearch/internal/services/valuation"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
	"finresearch/pkg/templates"
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects data stores and makes sure their schema exists
func (c *Container) MustInitInfrastructure() {
	var err error

	c.Log.Info("Connecting to PostgreSQL...")
	c.PG, err = pgclient.NewClient(c.Config.Postgres)
	if err != nil {
		c.Log.Fatalf("failed to connect postgres: %v", err)
	}
	c.Log.Info("✓ PostgreSQL connected")

	c.Log.Info("Connecting to ClickHouse...")
	c.CH, err = chclient.NewClient(c.Config.ClickHouse)
	if err != nil {
		c.Log.Fatalf("failed to connect clickhouse: %v", err)
	}
	c.Log.Info("✓ ClickHouse connected")

	c.Log.Info("Connecting to Redis...")
	c.Redis, err = redisclient.NewClient(c.Config.Redis)
	if err != nil {
		c.Log.Fatalf("failed to connect redis: %v", err)
	}
	c.Log.Info("✓ Redis connected")

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	if err := chrepo.EnsureSchema(ctx, c.CH.Conn()); err != nil {
		c.Log.Fatalf("failed to prepare clickhouse schema: %v", err)
	}
	c.Log.Info("✓ ClickHouse schema ready")

	metrics.RegisterCustomCollector(metrics.NewCustomCollector(c.Log, c.PG.DB(), c.CH.Conn(), c.Redis.Client()))
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories initializes the storage repositories
func (c *Container) MustInitRepositories() {
	c.Repos.Valuation = chrepo.NewValuationRepository(c.CH.Conn())
	c.Repos.Research = chrepo.NewResearchRepository(c.CH.Conn())
	c.Repos.Passage = pgrepo.NewPassageRepository(c.PG.DB())

	c.Log.Info("✓ Repositories initialized")
}

// ========================================
// Phase 4: External Adapters
// ========================================

// MustInitAdapters initializes Kafka, embeddings and the synthesis provider
func (c *Container) MustInitAdapters() {
	c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)

	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider: embeddings.ProviderOpenAI,
		APIKey:   c.Config.AI.OpenAIKey,
		Model:    c.Config.AI.EmbeddingModel,
		Timeout:  c.Config.AI.EmbeddingTimeout,
	})
	if err != nil {
		c.Log.Fatalf("failed to create embedding provider: %v", err)
	}
	c.Adapters.EmbeddingProvider = embedder

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()
	if err := pgrepo.EnsureSchema(ctx, c.PG.DB(), embedder.Dimensions()); err != nil {
		c.Log.Fatalf("failed to prepare postgres schema: %v", err)
	}
	c.Log.Infow("✓ Passage index ready", "dimensions", embedder.Dimensions())

	c.Adapters.Synthesizer, err = provideSynthesizer(c.Context, c.Config, c.Redis, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to create synthesizer: %v", err)
	}
}

// ========================================
// Phase 5: Services
// ========================================

// MustInitServices initializes the data services the agents read from
func (c *Container) MustInitServices() {
	company := c.Config.Research.Company

	c.Services.Valuation = valuation.NewService(c.Repos.Valuation, c.Redis, c.Config.Redis.CacheTTL, c.Log)
	c.Services.Filings = filings.NewService(c.Repos.Passage, c.Adapters.EmbeddingProvider, company, c.Log)

	newsSvc, err := provideNewsService(c.Config, c.Redis, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to create news service: %v", err)
	}
	c.Services.News = newsSvc

	c.Services.Catalog = catalog.NewService(c.Log,
		catalog.SourceFunc{Label: "valuation", Fn: func(ctx context.Context) ([]quarter.Quarter, error) {
			return c.Services.Valuation.Quarters(ctx, company)
		}},
		catalog.SourceFunc{Label: "filings", Fn: c.Services.Filings.Quarters},
	)

	c.Services.Audit = provideAuditSink(c.Config, c.Repos.Research, c.Adapters.KafkaProducer, c.Log)

	c.Log.Info("✓ Services initialized")
}

// ========================================
// Phase 6: Business Logic
// ========================================

// MustInitBusiness builds the research orchestrator
func (c *Container) MustInitBusiness() {
	rc := c.Config.Research

	c.Business.Orchestrator = agents.NewOrchestrator(agents.Config{
		Company:          rc.Company,
		PassageTopK:      rc.PassageTopK,
		MaxNews:          rc.MaxNews,
		MetricsTimeout:   rc.MetricsTimeout,
		RAGTimeout:       rc.RAGTimeout,
		WebTimeout:       rc.WebTimeout,
		SynthesisTimeout: rc.SynthesisTimeout,
	}, agents.Dependencies{
		Metrics:     c.Services.Valuation,
		Passages:    c.Services.Filings,
		News:        c.Services.News,
		Synthesizer: c.Adapters.Synthesizer,
		Templates:   templates.Get(),
		Sink:        c.Services.Audit,
	})

	c.Log.Infow("✓ Orchestrator initialized", "company", rc.Company, "agents", agents.KnownAgents)
}

// ========================================
// Phase 7: Application Layer
// ========================================

// MustInitApplication initializes the HTTP API and the Telegram bot
func (c *Container) MustInitApplication() {
	c.Application.HealthHandler = health.New(c.Log, c.Config.App.Name, c.Config.App.Version,
		health.Component{Name: "postgres", Check: c.PG.Health},
		health.Component{Name: "clickhouse", Check: c.CH.Health},
		health.Component{Name: "redis", Check: c.Redis.Health, Optional: true},
	)

	researchHandler := research.NewHandler(c.Business.Orchestrator, c.Services.Catalog, c.Log)

	c.Application.HTTPServer = api.NewServer(api.ServerConfig{
		Port:         c.Config.HTTP.Port,
		ServiceName:  c.Config.App.Name,
		Version:      c.Config.App.Version,
		WriteTimeout: c.Config.HTTP.WriteTimeout,
	}, c.Application.HealthHandler, researchHandler, c.Log)

	if c.Config.Telegram.BotToken == "" {
		c.Log.Info("Telegram bot disabled (no token)")
		return
	}

	bot, err := telegram.NewBot(telegram.Config{
		Token:       c.Config.Telegram.BotToken,
		Debug:       c.Config.App.Env == "development",
		PollTimeout: c.Config.Telegram.PollTimeout,
	}, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to create telegram bot: %v", err)
	}

	c.Application.TelegramHandler = telegram.NewCommandHandler(
		bot,
		c.Business.Orchestrator,
		c.Services.Catalog,
		c.Repos.Research,
		c.Config.Telegram.AllowedChatIDs,
		c.Config.HTTP.WriteTimeout,
		c.Log,
	)
	bot.SetHandler(c.Application.TelegramHandler.HandleUpdate)
	c.Application.TelegramBot = bot

	c.Log.Infow("✓ Telegram bot initialized", "allowed_chats", len(c.Config.Telegram.AllowedChatIDs))
}

// ========================================
// Phase 8: Background Processing
// ========================================

// MustInitBackground registers background workers
func (c *Container) MustInitBackground() {
	c.Background.WorkerScheduler = provideWorkers(c.Config, c.Services.Catalog, c.Log)
	c.Log.Info("✓ Background processing initialized")
}

// ========================================
// Helper Provider Functions
// ========================================

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

// provideKafkaProducer returns nil when no brokers are configured
func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("Kafka brokers not configured, response events disabled")
		return nil
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		WriteTimeout: 10 * time.Second,
	})
	log.Infow("✓ Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
	return producer
}

func provideSynthesizer(ctx context.Context, cfg *config.Config, rdb *redisclient.Client, log *logger.Logger) (agents.Synthesizer, error) {
	provider := ai.NormalizeProviderName(cfg.AI.Provider)

	key := cfg.AI.GeminiKey
	if provider == ai.ProviderOpenAI {
		key = cfg.AI.OpenAIKey
	}

	limiter := ratelimit.New(ratelimit.Config{
		Name:         "llm:" + provider,
		ReqPerMinute: cfg.AI.RequestsPerMin,
	}, rdb.Client())

	synth, err := ai.NewSynthesizer(ctx, ai.Config{
		Provider:        provider,
		APIKey:          key,
		Model:           cfg.AI.Model,
		Temperature:     cfg.AI.Temperature,
		MaxOutputTokens: cfg.AI.MaxOutputTokens,
		Timeout:         cfg.Research.SynthesisTimeout,
	}, limiter)
	if err != nil {
		return nil, err
	}

	log.Infow("✓ Synthesizer initialized", "provider", provider, "model", cfg.AI.Model)
	return synth, nil
}

func provideNewsService(cfg *config.Config, rdb *redisclient.Client, log *logger.Logger) (*news.Service, error) {
	sc := cfg.Search
	provider := strings.ToLower(strings.TrimSpace(sc.Provider))

	baseURL := sc.SerpAPIURL
	if provider == newsclient.ProviderGoogleNews {
		baseURL = sc.GoogleNewsURL
	}

	client, err := newsclient.NewClient(newsclient.Config{
		Provider: provider,
		APIKey:   sc.SerpAPIKey,
		BaseURL:  baseURL,
		Language: sc.Language,
		Country:  sc.Country,
		Timeout:  sc.Timeout,
	})
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{
		Name:         "news:" + client.Name(),
		ReqPerMinute: sc.RequestsPerMin,
	}, rdb.Client())

	log.Infow("✓ News client initialized", "provider", client.Name())
	return news.NewService(client, limiter, rdb, news.Config{
		Company:        cfg.Research.Company,
		MaxResults:     cfg.Research.MaxNews,
		FinancialQuery: true,
		CacheTTL:       cfg.Redis.CacheTTL,
	}, log), nil
}

// provideAuditSink wires the ClickHouse writer and the Kafka publisher when configured
func provideAuditSink(cfg *config.Config, repo *chrepo.ResearchRepository, producer *kafka.Producer, log *logger.Logger) *audit.Sink {
	var repository domainresearch.Repository
	if cfg.Research.AuditEnabled {
		repository = repo
	}

	var publisher audit.Publisher
	if producer != nil {
		publisher = producer
	}

	log.Infow("✓ Audit sink initialized",
		"clickhouse", repository != nil,
		"kafka", publisher != nil,
	)
	return audit.NewSink(repository, publisher, audit.Config{
		Company:      cfg.Research.Company,
		MaxBatchSize: 100,
		FlushEvery:   5 * time.Second,
	}, log)
}
