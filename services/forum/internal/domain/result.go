package domain

import (
	"context"
	"slices"
	"sync"
)

// Result sources.
const (
	SourceBleve         = "bleve"
	SourceElasticsearch = "elasticsearch"
	SourceDirect        = "direct"
)

// TopicLoader produces the topics matched by a search. It is invoked at most
// once per SearchResult.
type TopicLoader func(ctx context.Context) ([]*Topic, error)

// SearchResult is the immutable outcome of one search execution.
type SearchResult struct {
	query       SearchQuery
	totalCount  int
	suggestions []string
	facets      FacetMap
	source      string

	loader TopicLoader
	mu     sync.Mutex
	loaded bool
	topics []*Topic
	err    error
}

// NewSearchResult assembles a result envelope. loader may be nil when hits
// were not requested; suggestions and facets may be nil.
func NewSearchResult(
	query SearchQuery,
	totalCount int,
	loader TopicLoader,
	suggestions []string,
	facets FacetMap,
	source string,
) *SearchResult {
	if suggestions == nil {
		suggestions = []string{}
	}
	if facets == nil {
		facets = FacetMap{}
	}
	return &SearchResult{
		query:       query,
		totalCount:  totalCount,
		loader:      loader,
		suggestions: suggestions,
		facets:      facets,
		source:      source,
	}
}

// Query returns the query that produced the result, including any paging
// correction applied during the search.
func (r *SearchResult) Query() SearchQuery { return r.query }

// TotalCount returns the number of matching posts.
func (r *SearchResult) TotalCount() int { return r.totalCount }

// Source names the backend that served the search.
func (r *SearchResult) Source() string { return r.source }

// Suggestions returns spell-check suggestions for the search term.
func (r *SearchResult) Suggestions() []string { return slices.Clone(r.suggestions) }

// Facets returns the facet groups computed for the search.
func (r *SearchResult) Facets() FacetMap { return r.facets }

// HasTopics reports whether the result carries a topic loader.
func (r *SearchResult) HasTopics() bool { return r.loader != nil }

// Topics materializes the matched topics. The loader runs on the first call
// only; later calls return the cached topics or error. Concurrent callers
// wait for the first load to finish.
func (r *SearchResult) Topics(ctx context.Context) ([]*Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		if r.loader == nil {
			r.topics = []*Topic{}
		} else {
			r.topics, r.err = r.loader(ctx)
		}
		r.loaded = true
	}
	return r.topics, r.err
}

// Loaded reports whether the topics have been materialized.
func (r *SearchResult) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}
