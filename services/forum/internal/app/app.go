package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/EcommerceGo/pkg/database"
	"github.com/utafrali/EcommerceGo/pkg/health"
	"github.com/utafrali/EcommerceGo/pkg/httpclient"
	pkgkafka "github.com/utafrali/EcommerceGo/pkg/kafka"
	"github.com/utafrali/EcommerceGo/pkg/tracing"
	"github.com/utafrali/EcommerceGo/services/forum/internal/config"
	"github.com/utafrali/EcommerceGo/services/forum/internal/event"
	"github.com/utafrali/EcommerceGo/services/forum/internal/fallback"
	handler "github.com/utafrali/EcommerceGo/services/forum/internal/handler/http"
	"github.com/utafrali/EcommerceGo/services/forum/internal/notice"
	"github.com/utafrali/EcommerceGo/services/forum/internal/provider"
	bleveprovider "github.com/utafrali/EcommerceGo/services/forum/internal/provider/bleve"
	esprovider "github.com/utafrali/EcommerceGo/services/forum/internal/provider/elasticsearch"
	"github.com/utafrali/EcommerceGo/services/forum/internal/repository"
	"github.com/utafrali/EcommerceGo/services/forum/internal/repository/memory"
	"github.com/utafrali/EcommerceGo/services/forum/internal/repository/postgres"
	redisrepo "github.com/utafrali/EcommerceGo/services/forum/internal/repository/redis"
	"github.com/utafrali/EcommerceGo/services/forum/internal/service"
	"github.com/utafrali/EcommerceGo/services/forum/migrations"
)

const consumerGroup = "forum-service"

// App wires together all dependencies and runs the forum service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool     *pgxpool.Pool
	rdb      *redis.Client
	producer *pkgkafka.Producer
	dlq      *pkgkafka.DLQProducer
	consumer *pkgkafka.Consumer
	searched *event.KafkaListener
	bleve    *bleveprovider.Provider

	registry       *provider.Registry
	searchService  *service.SearchService
	indexService   *service.IndexService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "forum-service",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	// Primary storage.
	repo, err := a.initStorage(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	// Optional Redis topic cache in front of storage.
	var invalidator service.TopicInvalidator
	if cfg.RedisAddr != "" {
		rdb, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			a.closeResources()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)

		cache := redisrepo.NewTopicCache(repo, rdb, cfg.TopicCacheTTL(), logger)
		repo = cache
		invalidator = cache
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	// Index provider.
	a.registry = provider.NewRegistry()
	if err := a.initProvider(repo, healthHandler); err != nil {
		a.closeResources()
		return nil, err
	}

	// Search event channel.
	bus := event.NewBus(logger, event.NewLogListener(logger), event.NewMetricsListener())

	// Build the service layer.
	a.indexService = service.NewIndexService(a.registry, repo, invalidator, cfg.ReindexBatchSize, logger)
	a.searchService = service.NewSearchService(
		a.registry,
		repo,
		fallback.NewDirectSearcher(repo, cfg.FacetSize, logger),
		bus,
		notice.ContextNotifier{},
		service.SearchConfig{
			PhaseTimeout:    cfg.PhaseTimeout(),
			AdvisoryOrigins: cfg.AdvisoryOrigins,
		},
		logger,
	)

	if cfg.EventsEnabled {
		a.initKafka(bus, healthHandler)
	}

	// HTTP router.
	routerCfg := handler.DefaultRouterConfig()
	routerCfg.CORS.AllowedOrigins = cfg.CORSAllowedOrigins
	routerCfg.CORS.Environment = cfg.Environment
	routerCfg.AdminToken = cfg.AdminToken
	routerCfg.SearchCacheMaxAge = cfg.SearchCacheMaxAge
	routerCfg.PprofAllowedCIDRs = cfg.PprofAllowedCIDRs
	routerCfg.RequestTimeout = cfg.RequestTimeout()
	router := handler.NewRouter(a.searchService, a.indexService, healthHandler, routerCfg, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// initStorage connects the configured primary storage.
func (a *App) initStorage(ctx context.Context, healthHandler *health.Handler) (repository.ForumRepository, error) {
	cfg := a.cfg
	if cfg.Storage == config.StorageMemory {
		a.logger.Warn("using in-memory forum storage, data is not persisted")
		return memory.NewForumRepository(), nil
	}

	pgCfg := cfg.Postgres()

	pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "forum"); err != nil {
		a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	applied, err := database.RunMigrations(ctx, pool, migrations.FS, a.logger)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed", slog.Int("applied", applied))

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
	}

	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	return postgres.NewForumRepository(pool), nil
}

// initProvider registers the configured index provider. With no provider
// every search takes the storage fallback.
func (a *App) initProvider(repo repository.ForumRepository, healthHandler *health.Handler) error {
	cfg := a.cfg
	labels := provider.LabelFunc(repository.Labels(repo))

	switch cfg.IndexProvider {
	case config.IndexProviderBleve:
		p, err := bleveprovider.New(bleveprovider.Config{
			Dir:                 cfg.BleveDir,
			FacetSize:           cfg.FacetSize,
			MaxSuggestions:      cfg.MaxSuggestions,
			SuggestionCacheSize: cfg.SuggestionCacheSize,
		}, labels, a.logger)
		if err != nil {
			return fmt.Errorf("init bleve provider: %w", err)
		}
		a.bleve = p
		a.registry.Register(provider.DomainForum, p)
		a.logger.Info("bleve index provider initialized",
			slog.String("dir", cfg.BleveDir),
			slog.Bool("in_memory", cfg.BleveDir == ""),
		)

	case config.IndexProviderElasticsearch:
		// Requests to Elasticsearch go through the shared retrying client and
		// a circuit breaker so a struggling cluster fails fast into the
		// storage fallback.
		transport := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.Config{
				Name:            "elasticsearch",
				Timeout:         10 * time.Second,
				MaxRetries:      1,
				RetryWaitMin:    100 * time.Millisecond,
				RetryWaitMax:    time.Second,
				MaxConnsPerHost: 50,
			}),
			httpclient.DefaultCircuitBreakerConfig("forum-elasticsearch"),
			a.logger,
		)
		p, err := esprovider.New(esprovider.Config{
			URL:            cfg.ElasticsearchURL,
			IndexPrefix:    cfg.ElasticsearchIndex,
			FacetSize:      cfg.FacetSize,
			MaxSuggestions: cfg.MaxSuggestions,
			Transport:      transport,
		}, labels, a.logger)
		if err != nil {
			return fmt.Errorf("init elasticsearch provider: %w", err)
		}
		a.registry.Register(provider.DomainForum, p)
		healthHandler.RegisterNonCritical("elasticsearch", p.Ping)
		a.logger.Info("elasticsearch index provider initialized",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index_prefix", cfg.ElasticsearchIndex),
		)

	default:
		a.logger.Warn("no forum index provider configured, searches use storage")
	}

	return nil
}

// initKafka publishes completed searches and consumes post change events.
func (a *App) initKafka(bus *event.Bus, healthHandler *health.Handler) {
	cfg := a.cfg

	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), a.logger)
	a.searched = event.NewKafkaListener(a.producer, cfg.SearchedBufferSize, a.logger)
	bus.Subscribe(a.searched)

	a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, a.logger)
	eventConsumer := event.NewConsumer(a.indexService, a.logger)
	// Redelivered post events are skipped for a day. With Redis the window is
	// shared by every replica of the consumer group.
	var idempotencyStore pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(24 * time.Hour)
	if a.rdb != nil {
		idempotencyStore = pkgkafka.NewRedisIdempotencyStore(a.rdb, consumerGroup+":events", 24*time.Hour)
	}

	a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: consumerGroup,
		Topics: []string{
			event.TopicPostCreated,
			event.TopicPostUpdated,
			event.TopicPostDeleted,
		},
		MinBytes: 1,
		MaxBytes: 10e6, // 10 MB
		DLQ:      a.dlq,
	}, pkgkafka.IdempotentHandler(idempotencyStore, consumerGroup, eventConsumer.Handle, a.logger), a.logger)

	healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	a.logger.Info("kafka events enabled",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.String("searched_topic", event.TopicSearched),
	)
}

// Run starts the HTTP server and Kafka workers, blocking until the context is
// canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if a.searched != nil {
		go a.searched.Run(ctx)
	}
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	a.bootstrapIndex(ctx)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// bootstrapIndex starts a background reindex when the provider has no forum
// index yet, e.g. a fresh in-memory bleve index.
func (a *App) bootstrapIndex(ctx context.Context) {
	p, ok := a.registry.IndexProvider(provider.DomainForum)
	if !ok {
		return
	}
	if _, ok := p.(provider.Indexer); !ok {
		return
	}

	store, err := p.IndexStore(ctx, provider.DomainForum)
	if err != nil {
		a.logger.Warn("cannot resolve forum index store", slog.String("error", err.Error()))
		return
	}
	exists, err := store.Exists(ctx)
	if err != nil {
		a.logger.Warn("cannot check forum index", slog.String("error", err.Error()))
		return
	}
	if exists {
		return
	}

	a.logger.Info("forum index missing, starting initial reindex", slog.String("provider", p.Name()))
	if err := a.indexService.StartReindex(ctx); err != nil {
		a.logger.Error("initial reindex not started", slog.String("error", err.Error()))
	}
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// Background reindexes write to the provider closed below.
	if a.indexService != nil {
		a.indexService.Close()
	}

	// Drain queued searched events before the producer goes away.
	if a.searched != nil {
		a.searched.Close()
	}

	errs = append(errs, a.closeResources()...)

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases connections and index handles. It is also used to
// unwind a partially constructed App.
func (a *App) closeResources() []error {
	var errs []error

	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.bleve != nil {
		if err := a.bleve.Close(); err != nil {
			a.logger.Error("bleve close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}

	return errs
}
