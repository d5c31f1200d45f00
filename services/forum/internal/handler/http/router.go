package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/EcommerceGo/pkg/health"
	"github.com/utafrali/EcommerceGo/pkg/middleware"
	"github.com/utafrali/EcommerceGo/services/forum/internal/service"
)

const serviceName = "forum-service"

// RouterConfig holds the HTTP options of the forum service.
type RouterConfig struct {
	CORS middleware.CORSConfig

	// AdminToken guards the index maintenance routes. Empty leaves them open.
	AdminToken string

	// SearchCacheMaxAge is the Cache-Control max-age of search responses in
	// seconds. Zero disables caching.
	SearchCacheMaxAge int

	// PprofAllowedCIDRs enables /debug/pprof for the given networks.
	PprofAllowedCIDRs []string

	RequestTimeout time.Duration
}

// DefaultRouterConfig returns development defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CORS:           middleware.DefaultCORSConfig(),
		RequestTimeout: 30 * time.Second,
	}
}

// NewRouter creates a chi router with all forum service routes registered.
func NewRouter(
	searchService *service.SearchService,
	indexService *service.IndexService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Tracing(serviceName,
		middleware.WithQueryAttributes("q", "origin", "search_in"),
		middleware.WithoutTracing("/health/live", "/health/ready", "/metrics"),
	))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.PrometheusMetrics("forum"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	if len(cfg.PprofAllowedCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)
	}

	searchHandler := NewSearchHandler(searchService, logger)
	indexHandler := NewIndexHandler(indexService, logger)

	r.Route("/api/v1/forum", func(r chi.Router) {
		r.With(middleware.CacheControl(cfg.SearchCacheMaxAge)).Get("/search", searchHandler.Search)

		r.Group(func(r chi.Router) {
			if cfg.AdminToken != "" {
				r.Use(middleware.Auth(middleware.StaticTokenValidator(cfg.AdminToken, middleware.Claims{
					UserID: "forum-admin",
					Role:   middleware.RoleAdmin,
				})))
				r.Use(middleware.RequireRole(middleware.RoleAdmin))
				// Re-enrich the request logger with the authenticated caller.
				r.Use(middleware.RequestLogger(logger))
			}
			r.Use(ContentTypeJSON)
			r.Post("/index", indexHandler.IndexPost)
			r.Delete("/index/{id}", indexHandler.DeletePost)
			r.Post("/reindex", indexHandler.Reindex)
		})
	})

	return r
}
