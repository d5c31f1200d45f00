package config

import (
	"fmt"
	"slices"
	"time"

	pkgconfig "github.com/utafrali/EcommerceGo/pkg/config"
	"github.com/utafrali/EcommerceGo/pkg/database"
	"github.com/utafrali/EcommerceGo/pkg/logger"
	"github.com/utafrali/EcommerceGo/pkg/middleware"
)

// Index provider names accepted by FORUM_INDEX_PROVIDER.
const (
	IndexProviderBleve         = "bleve"
	IndexProviderElasticsearch = "elasticsearch"
	IndexProviderNone          = "none"
)

// Storage backends accepted by FORUM_STORAGE.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all configuration for the forum service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort int `env:"FORUM_HTTP_PORT" envDefault:"8014"`

	// Index provider selection (bleve, elasticsearch or none)
	IndexProvider string `env:"FORUM_INDEX_PROVIDER" envDefault:"bleve"`

	// Bleve. An empty directory keeps the index in memory.
	BleveDir string `env:"FORUM_BLEVE_DIR" envDefault:""`

	// Elasticsearch
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string `env:"FORUM_ES_INDEX_PREFIX" envDefault:"ecommerce_forum"`

	// Primary storage (postgres or memory)
	Storage string `env:"FORUM_STORAGE" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB   string `env:"FORUM_DB_NAME" envDefault:"forum_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Redis topic cache. An empty address disables the cache.
	RedisAddr          string `env:"REDIS_ADDR" envDefault:""`
	RedisPass          string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB            int    `env:"REDIS_DB" envDefault:"0"`
	TopicCacheTTLSecs  int    `env:"FORUM_TOPIC_CACHE_TTL_SECONDS" envDefault:"300"`
	ReindexBatchSize   int    `env:"FORUM_REINDEX_BATCH_SIZE" envDefault:"500"`
	SearchedBufferSize int    `env:"FORUM_SEARCHED_EVENT_BUFFER" envDefault:"256"`

	// Kafka
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	EventsEnabled bool     `env:"FORUM_EVENTS_ENABLED" envDefault:"false"`

	// Search orchestration
	PhaseTimeoutMs      int      `env:"FORUM_PHASE_TIMEOUT_MS" envDefault:"2000"`
	AdvisoryOrigins     []string `env:"FORUM_ADVISORY_ORIGINS" envDefault:"Boards/Search" envSeparator:","`
	SuggestionCacheSize int      `env:"FORUM_SUGGESTION_CACHE_SIZE" envDefault:"512"`
	MaxSuggestions      int      `env:"FORUM_MAX_SUGGESTIONS" envDefault:"3"`
	FacetSize           int      `env:"FORUM_FACET_SIZE" envDefault:"10"`

	// HTTP surface
	AdminToken         string   `env:"FORUM_ADMIN_TOKEN" envDefault:""`
	SearchCacheMaxAge  int      `env:"FORUM_SEARCH_CACHE_MAX_AGE" envDefault:"0"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	RequestTimeoutSecs int      `env:"FORUM_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"FORUM_PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables. Options replace the
// environment source, e.g. in tests.
func Load(opts ...pkgconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("load forum config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects inconsistent settings.
func (c *Config) validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "" && c.LogFormat != logger.FormatJSON && c.LogFormat != logger.FormatText {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !slices.Contains([]string{IndexProviderBleve, IndexProviderElasticsearch, IndexProviderNone}, c.IndexProvider) {
		return fmt.Errorf("FORUM_INDEX_PROVIDER must be one of bleve, elasticsearch, none, got %q", c.IndexProvider)
	}
	if c.IndexProvider == IndexProviderElasticsearch && c.ElasticsearchURL == "" {
		return fmt.Errorf("ELASTICSEARCH_URL is required for the elasticsearch provider")
	}
	if c.Storage != StoragePostgres && c.Storage != StorageMemory {
		return fmt.Errorf("FORUM_STORAGE must be postgres or memory, got %q", c.Storage)
	}
	if c.Storage == StoragePostgres {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
	}
	if c.EventsEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when FORUM_EVENTS_ENABLED is set")
	}
	if c.PhaseTimeoutMs <= 0 {
		return fmt.Errorf("FORUM_PHASE_TIMEOUT_MS must be > 0, got %d", c.PhaseTimeoutMs)
	}
	if c.TopicCacheTTLSecs <= 0 {
		return fmt.Errorf("FORUM_TOPIC_CACHE_TTL_SECONDS must be > 0, got %d", c.TopicCacheTTLSecs)
	}
	if c.FacetSize <= 0 {
		return fmt.Errorf("FORUM_FACET_SIZE must be > 0, got %d", c.FacetSize)
	}
	if c.SearchCacheMaxAge < 0 {
		return fmt.Errorf("FORUM_SEARCH_CACHE_MAX_AGE must be >= 0, got %d", c.SearchCacheMaxAge)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if _, invalid := middleware.ParsePrefixes(c.PprofAllowedCIDRs); len(invalid) > 0 {
		return fmt.Errorf("FORUM_PPROF_ALLOWED_CIDRS contains invalid entries: %v", invalid)
	}
	return nil
}

// PhaseTimeout returns the per-phase engine timeout.
func (c *Config) PhaseTimeout() time.Duration {
	return time.Duration(c.PhaseTimeoutMs) * time.Millisecond
}

// TopicCacheTTL returns how long cached topics live in Redis.
func (c *Config) TopicCacheTTL() time.Duration {
	return time.Duration(c.TopicCacheTTLSecs) * time.Second
}

// RequestTimeout returns the HTTP request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// Postgres returns the connection pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		ApplicationName: "forum-service",
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the topic cache connection settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Addr:        c.RedisAddr,
		Password:    c.RedisPass,
		DB:          c.RedisDB,
		ClientName:  "forum-service",
		DialTimeout: 5 * time.Second,
	}
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	pg := c.Postgres()
	pg.ApplicationName = ""
	return pg.DSN()
}
