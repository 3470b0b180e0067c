package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"finresearch/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	AI            AIConfig
	Search        SearchConfig
	Research      ResearchConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"finresearch"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type HTTPConfig struct {
	Port         int           `envconfig:"HTTP_PORT" default:"8080"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"150s"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"research"`
}

type RedisConfig struct {
	Host     string        `envconfig:"REDIS_HOST" required:"true"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL time.Duration `envconfig:"REDIS_CACHE_TTL" default:"15m"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig is optional: with no brokers the response events are not published
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
}

// TelegramConfig is optional: with no token the bot is not started
type TelegramConfig struct {
	BotToken       string        `envconfig:"TELEGRAM_BOT_TOKEN"`
	AllowedChatIDs []int64       `envconfig:"TELEGRAM_ALLOWED_CHAT_IDS"`
	PollTimeout    time.Duration `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"60s"`
}

type AIConfig struct {
	OpenAIKey        string        `envconfig:"OPENAI_API_KEY"`
	GeminiKey        string        `envconfig:"GEMINI_API_KEY"`
	Provider         string        `envconfig:"SYNTHESIS_PROVIDER" default:"gemini"`
	Model            string        `envconfig:"SYNTHESIS_MODEL"`
	Temperature      float64       `envconfig:"SYNTHESIS_TEMPERATURE" default:"0.2"`
	MaxOutputTokens  int           `envconfig:"SYNTHESIS_MAX_TOKENS" default:"2048"`
	RequestsPerMin   float64       `envconfig:"SYNTHESIS_REQUESTS_PER_MINUTE" default:"60"`
	EmbeddingModel   string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingTimeout time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
}

type SearchConfig struct {
	Provider       string        `envconfig:"NEWS_PROVIDER" default:"serpapi"`
	SerpAPIKey     string        `envconfig:"SERPAPI_API_KEY"`
	SerpAPIURL     string        `envconfig:"SERPAPI_URL" default:"https://serpapi.com/search.json"`
	GoogleNewsURL  string        `envconfig:"GOOGLE_NEWS_RSS_URL" default:"https://news.google.com/rss/search"`
	Language       string        `envconfig:"NEWS_LANGUAGE" default:"en"`
	Country        string        `envconfig:"NEWS_COUNTRY" default:"US"`
	RequestsPerMin float64       `envconfig:"NEWS_REQUESTS_PER_MINUTE" default:"30"`
	Timeout        time.Duration `envconfig:"NEWS_TIMEOUT" default:"10s"`
}

// ResearchConfig drives the orchestration core
type ResearchConfig struct {
	Company          string        `envconfig:"RESEARCH_COMPANY" default:"NVIDIA"`
	Ticker           string        `envconfig:"RESEARCH_TICKER" default:"NVDA"`
	PassageTopK      int           `envconfig:"RESEARCH_PASSAGE_TOP_K" default:"5"`
	MaxNews          int           `envconfig:"RESEARCH_MAX_NEWS" default:"7"`
	MetricsTimeout   time.Duration `envconfig:"RESEARCH_METRICS_TIMEOUT" default:"10s"`
	RAGTimeout       time.Duration `envconfig:"RESEARCH_RAG_TIMEOUT" default:"15s"`
	WebTimeout       time.Duration `envconfig:"RESEARCH_WEB_TIMEOUT" default:"10s"`
	SynthesisTimeout time.Duration `envconfig:"RESEARCH_SYNTHESIS_TIMEOUT" default:"60s"`
	AuditEnabled     bool          `envconfig:"RESEARCH_AUDIT_ENABLED" default:"true"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	CatalogRefreshInterval time.Duration `envconfig:"WORKER_CATALOG_REFRESH_INTERVAL" default:"10m"`
	CatalogRefreshEnabled  bool          `envconfig:"WORKER_CATALOG_REFRESH_ENABLED" default:"true"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}

// IndexerConfig is the subset needed by the passage indexer command
type IndexerConfig struct {
	App       AppConfig
	Postgres  PostgresConfig
	AI        AIConfig
	Company   string `envconfig:"RESEARCH_COMPANY" default:"NVIDIA"`
	BatchSize int    `envconfig:"INDEXER_BATCH_SIZE" default:"64"`
}

// LoadIndexer reads the indexer configuration from environment variables
func LoadIndexer() (*IndexerConfig, error) {
	_ = godotenv.Load()

	var cfg IndexerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process indexer env config")
	}

	return &cfg, nil
}
