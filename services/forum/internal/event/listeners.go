package event

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
)

// LogListener writes search lifecycle events at debug level.
type LogListener struct {
	logger *slog.Logger
}

// NewLogListener creates a listener that logs through logger.
func NewLogListener(logger *slog.Logger) *LogListener {
	return &LogListener{logger: logger}
}

func (l *LogListener) Searching(ctx context.Context, q domain.SearchQuery) {
	l.logger.DebugContext(ctx, "forum search started",
		slog.String("term", q.Term),
		slog.Int("skip", q.Skip),
		slog.Int("take", q.Take),
		slog.String("origin", q.Origin),
	)
}

func (l *LogListener) Searched(ctx context.Context, q domain.SearchQuery, res *domain.SearchResult) {
	l.logger.DebugContext(ctx, "forum search completed",
		slog.String("term", q.Term),
		slog.String("source", res.Source()),
		slog.Int("total", res.TotalCount()),
		slog.Int("skip", res.Query().Skip),
		slog.Int("suggestions", len(res.Suggestions())),
	)
}

var (
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forum_searches_total",
			Help: "Total number of completed forum searches",
		},
		[]string{"source", "origin"},
	)

	searchResultTotal = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forum_search_result_total",
			Help:    "Number of posts matched per forum search",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"source"},
	)

	searchesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forum_searches_started_total",
			Help: "Total number of forum searches that passed validation",
		},
	)
)

// MetricsListener records forum search metrics in prometheus.
type MetricsListener struct{}

// NewMetricsListener creates a prometheus-backed listener.
func NewMetricsListener() *MetricsListener { return &MetricsListener{} }

func (MetricsListener) Searching(context.Context, domain.SearchQuery) {
	searchesStarted.Inc()
}

func (MetricsListener) Searched(_ context.Context, q domain.SearchQuery, res *domain.SearchResult) {
	origin := q.Origin
	if origin == "" {
		origin = "unknown"
	}
	searchesTotal.WithLabelValues(res.Source(), origin).Inc()
	searchResultTotal.WithLabelValues(res.Source()).Observe(float64(res.TotalCount()))
}
