// Package fallback answers forum searches straight from primary storage when
// no full-text index is available.
package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/facet"
	"github.com/utafrali/EcommerceGo/services/forum/internal/provider"
	"github.com/utafrali/EcommerceGo/services/forum/internal/repository"
)

// DirectSearcher runs forum searches as linear scans over the repository.
type DirectSearcher struct {
	repo      repository.ForumRepository
	facetSize int
	logger    *slog.Logger
}

// NewDirectSearcher creates a storage-backed searcher. facetSize bounds the
// number of facets per group.
func NewDirectSearcher(repo repository.ForumRepository, facetSize int, logger *slog.Logger) *DirectSearcher {
	if facetSize <= 0 {
		facetSize = 10
	}
	return &DirectSearcher{
		repo:      repo,
		facetSize: facetSize,
		logger:    logger,
	}
}

// Search counts, pages and optionally facets the posts matching query. It
// applies the same skip correction as the indexed path and never returns
// suggestions.
func (d *DirectSearcher) Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	var (
		total  int
		loader domain.TopicLoader
		facets domain.FacetMap
	)

	if query.Take > 0 {
		filter := d.PrepareQuery(query, nil)

		posts, count, err := d.repo.SearchPosts(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("direct search: posts: %w", err)
		}
		total = count

		// A page past the last match carries no total.
		if len(posts) == 0 && filter.Offset > 0 {
			if total, err = d.repo.CountPosts(ctx, filter); err != nil {
				return nil, fmt.Errorf("direct search: count: %w", err)
			}
			if corrected, changed := query.CorrectPaging(total); changed {
				d.logger.DebugContext(ctx, "direct search skip corrected",
					slog.Int("skip", query.Skip),
					slog.Int("corrected_skip", corrected.Skip),
					slog.Int("total", total),
				)
				query = corrected
				filter.Offset = query.Skip
				if posts, _, err = d.repo.SearchPosts(ctx, filter); err != nil {
					return nil, fmt.Errorf("direct search: posts: %w", err)
				}
			}
		}

		if query.Flags.Has(domain.WithHits) {
			loader = domain.NewTopicLoader(d.repo, domain.MatchedPostsFromPosts(posts))
		}

		if query.Flags.Has(domain.WithFacets) {
			facets = d.facets(ctx, filter, query)
		}
	}

	return domain.NewSearchResult(query, total, loader, nil, facets, domain.SourceDirect), nil
}

// facets computes customer and forum facets. Failures degrade to no facets.
func (d *DirectSearcher) facets(ctx context.Context, filter repository.PostFilter, query domain.SearchQuery) domain.FacetMap {
	filter.Offset, filter.Limit = 0, 0

	facets := make(domain.FacetMap, 2)
	for _, group := range []string{domain.FacetGroupCustomer, domain.FacetGroupForum} {
		values, err := d.repo.FacetCounts(ctx, filter, group, d.facetSize)
		if err != nil {
			d.logger.WarnContext(ctx, "direct search facets failed",
				slog.String("phase", "facets"),
				slog.String("term", query.Term),
				slog.String("group", group),
				slog.String("error", err.Error()),
			)
			return domain.FacetMap{}
		}
		facets[group] = &domain.FacetGroup{Name: group, Facets: values}
	}

	provider.LabelFacets(ctx, repository.Labels(d.repo), facets, d.logger)
	facet.Normalize(facets)
	return facets
}

// PrepareQuery builds the storage filter for query. A non-nil base narrows
// the result further: forum ids are intersected, the later start and the
// earlier end of the two date ranges win, and ids set on the query replace
// those on the base.
func (d *DirectSearcher) PrepareQuery(query domain.SearchQuery, base *repository.PostFilter) repository.PostFilter {
	var f repository.PostFilter
	if base != nil {
		f = *base
		f.ForumIDs = slices.Clone(base.ForumIDs)
	}

	q := query.Filter
	f.Term = query.Term
	f.SearchIn = q.SearchIn
	f.Offset = query.Skip
	f.Limit = query.Take

	switch {
	case len(q.ForumIDs) == 0:
	case len(f.ForumIDs) == 0:
		f.ForumIDs = slices.Clone(q.ForumIDs)
	default:
		f.ForumIDs = intersect(f.ForumIDs, q.ForumIDs)
	}

	if q.CustomerID != nil {
		v := *q.CustomerID
		f.CustomerID = &v
	}
	if q.TopicID != nil {
		v := *q.TopicID
		f.TopicID = &v
	}
	f.From = later(f.From, q.From)
	f.To = earlier(f.To, q.To)

	return f
}

// intersect keeps the ids of a that also appear in b. An empty intersection
// yields a filter that matches nothing.
func intersect(a, b []int64) []int64 {
	out := make([]int64, 0, len(a))
	for _, id := range a {
		if slices.Contains(b, id) {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return []int64{-1}
	}
	return out
}

func later(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

func earlier(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	default:
		return a
	}
}
