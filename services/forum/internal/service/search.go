package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/EcommerceGo/pkg/tracing"
	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/facet"
	"github.com/utafrali/EcommerceGo/services/forum/internal/notice"
	"github.com/utafrali/EcommerceGo/services/forum/internal/provider"
	"github.com/utafrali/EcommerceGo/services/forum/internal/repository"
)

// Search phases, used in logs, spans and metrics.
const (
	phaseCount       = "count"
	phaseHits        = "hits"
	phaseFacets      = "facets"
	phaseSuggestions = "suggestions"
)

const defaultPhaseTimeout = 2 * time.Second

// Fallback serves searches from primary storage when no index can be used.
type Fallback interface {
	Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchResult, error)
	PrepareQuery(query domain.SearchQuery, base *repository.PostFilter) repository.PostFilter
}

// SearchEvents receives search lifecycle notifications. Implementations must
// return promptly and never fail the search.
type SearchEvents interface {
	Searching(ctx context.Context, query domain.SearchQuery)
	Searched(ctx context.Context, query domain.SearchQuery, result *domain.SearchResult)
}

// Notifier surfaces advisory notices to the caller outside of the result.
type Notifier interface {
	Notify(ctx context.Context, n notice.Notice)
}

// SearchConfig tunes the search orchestrator.
type SearchConfig struct {
	// PhaseTimeout bounds every call into the index engine.
	PhaseTimeout time.Duration

	// AdvisoryOrigins lists the query origins that receive an "index missing"
	// notice when no index provider is registered.
	AdvisoryOrigins []string
}

// DefaultSearchConfig returns the orchestrator defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		PhaseTimeout:    defaultPhaseTimeout,
		AdvisoryOrigins: []string{domain.OriginSearchPage},
	}
}

// SearchService orchestrates forum searches across the registered index
// provider and the storage fallback.
type SearchService struct {
	registry *provider.Registry
	topics   domain.TopicFetcher
	fallback Fallback
	events   SearchEvents
	notifier Notifier
	cfg      SearchConfig
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewSearchService creates a new search orchestrator. events and notifier may
// be nil.
func NewSearchService(
	registry *provider.Registry,
	topics domain.TopicFetcher,
	fallback Fallback,
	events SearchEvents,
	notifier Notifier,
	cfg SearchConfig,
	logger *slog.Logger,
) *SearchService {
	if cfg.PhaseTimeout <= 0 {
		cfg.PhaseTimeout = defaultPhaseTimeout
	}
	return &SearchService{
		registry: registry,
		topics:   topics,
		fallback: fallback,
		events:   events,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		tracer:   tracing.Tracer("forum-service"),
	}
}

// Search runs query against the forum index, or against primary storage when
// direct is set or no index is available. Count and hit failures are returned;
// facet and suggestion failures only leave those parts of the result empty.
func (s *SearchService) Search(ctx context.Context, query domain.SearchQuery, direct bool) (_ *domain.SearchResult, err error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	query = query.Clone()

	ctx, span := s.tracer.Start(ctx, "forum.search", trace.WithAttributes(
		attribute.String("search.term", query.Term),
		attribute.Int("search.skip", query.Skip),
		attribute.Int("search.take", query.Take),
		attribute.Bool("search.direct", direct),
	))
	defer func() { tracing.End(span, err) }()

	s.searching(ctx, query)

	p, store, reason := s.resolve(ctx, query, direct)
	if p == nil {
		searchFallbacks.WithLabelValues(reason).Inc()
		span.SetAttributes(attribute.String("search.fallback", reason))

		res, err := s.fallback.Search(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("search: fallback: %w", err)
		}
		return res, nil
	}

	res, err := s.searchIndex(ctx, p, store, query)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("search.source", res.Source()),
		attribute.Int("search.total", res.TotalCount()),
	)

	s.searched(ctx, query, res)
	return res, nil
}

// PrepareQuery builds a storage filter for query narrowed by base. It always
// uses the storage path, never the index.
func (s *SearchService) PrepareQuery(query domain.SearchQuery, base *repository.PostFilter) repository.PostFilter {
	return s.fallback.PrepareQuery(query, base)
}

// resolve returns the provider and store that can serve query. A nil provider
// means the search must fall back to storage, for the returned reason.
func (s *SearchService) resolve(ctx context.Context, query domain.SearchQuery, direct bool) (provider.Provider, provider.Store, string) {
	if direct {
		return nil, nil, "direct"
	}

	p, ok := s.registry.IndexProvider(provider.DomainForum)
	if !ok {
		if s.isAdvisoryOrigin(query.Origin) {
			s.notify(ctx, notice.Notice{
				Level:   notice.LevelWarning,
				Code:    notice.CodeIndexMissing,
				Message: "The forum search index is missing. Please rebuild it.",
			})
		}
		return nil, nil, "no_provider"
	}

	store, err := p.IndexStore(ctx, provider.DomainForum)
	if err != nil {
		s.logger.WarnContext(ctx, "forum index store unavailable, using storage fallback",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		return nil, nil, "store_error"
	}

	exists, err := store.Exists(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "forum index existence check failed, using storage fallback",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		return nil, nil, "store_error"
	}
	if !exists {
		return nil, nil, "no_index"
	}

	return p, store, ""
}

func (s *SearchService) searchIndex(ctx context.Context, p provider.Provider, store provider.Store, query domain.SearchQuery) (*domain.SearchResult, error) {
	engine := p.SearchEngine(store, query)

	var (
		total       int
		loader      domain.TopicLoader
		facets      domain.FacetMap
		suggestions []string
	)

	if query.Take > 0 {
		err := s.phase(ctx, p.Name(), phaseCount, func(ctx context.Context) error {
			n, err := engine.Count(ctx)
			total = n
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("search: count: %w", err)
		}

		if corrected, changed := query.CorrectPaging(total); changed {
			s.logger.DebugContext(ctx, "forum search skip corrected",
				slog.String("term", query.Term),
				slog.Int("skip", query.Skip),
				slog.Int("corrected_skip", corrected.Skip),
				slog.Int("total", total),
			)
			query = corrected
			engine = p.SearchEngine(store, query)
		}

		var hits []domain.SearchHit
		err = s.phase(ctx, p.Name(), phaseHits, func(ctx context.Context) error {
			h, err := engine.Search(ctx)
			hits = h
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("search: hits: %w", err)
		}

		if query.Flags.Has(domain.WithHits) {
			loader = domain.NewTopicLoader(s.topics, domain.MatchedPostsFromHits(hits))
		}
	}

	var g errgroup.Group
	if query.Take > 0 && query.Flags.Has(domain.WithFacets) {
		g.Go(func() error {
			s.degradable(ctx, p.Name(), phaseFacets, query, func(ctx context.Context) error {
				fm, err := engine.FacetMap(ctx)
				if err != nil {
					return err
				}
				facet.Normalize(fm)
				facets = fm
				return nil
			})
			return nil
		})
	}
	if query.Flags.Has(domain.WithSuggestions) {
		g.Go(func() error {
			s.degradable(ctx, p.Name(), phaseSuggestions, query, func(ctx context.Context) error {
				sg, err := engine.CheckSpelling(ctx)
				if err != nil {
					return err
				}
				suggestions = sg
				return nil
			})
			return nil
		})
	}
	_ = g.Wait()

	return domain.NewSearchResult(query, total, loader, suggestions, facets, p.Name()), nil
}

// phase runs one engine call under the phase timeout inside its own span.
func (s *SearchService) phase(ctx context.Context, providerName, name string, fn func(context.Context) error) (err error) {
	ctx, span := s.tracer.Start(ctx, "forum.search."+name)
	start := time.Now()
	defer func() {
		searchPhaseDuration.WithLabelValues(name, providerName).Observe(time.Since(start).Seconds())
		tracing.End(span, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PhaseTimeout)
	defer cancel()

	return fn(ctx)
}

// degradable runs a phase whose failure must not fail the search. Errors,
// timeouts and panics are logged and counted.
func (s *SearchService) degradable(ctx context.Context, providerName, name string, query domain.SearchQuery, fn func(context.Context) error) {
	err := s.phase(ctx, providerName, name, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	})
	if err == nil {
		return
	}

	searchPhaseFailures.WithLabelValues(name).Inc()
	s.logger.WarnContext(ctx, "forum search phase failed",
		slog.String("phase", name),
		slog.String("term", query.Term),
		slog.String("origin", query.Origin),
		slog.String("error", err.Error()),
	)
}

func (s *SearchService) isAdvisoryOrigin(origin string) bool {
	return origin != "" && slices.Contains(s.cfg.AdvisoryOrigins, origin)
}

func (s *SearchService) notify(ctx context.Context, n notice.Notice) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, n)
	}
}

func (s *SearchService) searching(ctx context.Context, query domain.SearchQuery) {
	if s.events != nil {
		s.events.Searching(ctx, query)
	}
}

func (s *SearchService) searched(ctx context.Context, query domain.SearchQuery, res *domain.SearchResult) {
	if s.events != nil {
		s.events.Searched(ctx, query, res)
	}
}
