package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// searchPhaseFailures counts facet and suggestion phases that failed and
	// were degraded to an empty result.
	searchPhaseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forum_search_phase_failures_total",
			Help: "Total number of forum search phases that failed and were degraded",
		},
		[]string{"phase"},
	)

	// searchPhaseDuration observes how long each engine phase takes.
	searchPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forum_search_phase_duration_seconds",
			Help:    "Duration of forum search engine phases in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase", "provider"},
	)

	// searchFallbacks counts searches served from primary storage.
	searchFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forum_search_fallbacks_total",
			Help: "Total number of forum searches routed to the storage fallback",
		},
		[]string{"reason"},
	)

	// postsIndexed counts posts written to the forum index.
	postsIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forum_posts_indexed_total",
			Help: "Total number of posts written to the forum index",
		},
	)
)
