// Package provider defines the contract between the forum search service and
// the full-text index backends, plus the registry that resolves them by name.
package provider

import (
	"context"
	"strconv"
	"time"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
)

// DomainForum is the search domain served by the forum index.
const DomainForum = "Forum"

// Store is a named index within a provider.
type Store interface {
	// Name returns the search domain the store belongs to.
	Name() string

	// Exists reports whether the index has been built.
	Exists(ctx context.Context) (bool, error)
}

// Engine executes one query against a store. Engines are created per query
// and must be safe for concurrent read-only calls.
type Engine interface {
	// Count returns the total number of posts matching the query.
	Count(ctx context.Context) (int, error)

	// Search returns the page of hits selected by the query's skip and take.
	Search(ctx context.Context) ([]domain.SearchHit, error)

	// FacetMap returns the facet groups for the query's result set.
	FacetMap(ctx context.Context) (domain.FacetMap, error)

	// CheckSpelling returns alternate terms for the query's term.
	CheckSpelling(ctx context.Context) ([]string, error)
}

// Provider resolves index stores and binds engines to queries.
type Provider interface {
	// Name identifies the backend ("bleve", "elasticsearch").
	Name() string

	// IndexStore returns the store for the given search domain.
	IndexStore(ctx context.Context, name string) (Store, error)

	// SearchEngine binds a new engine to the store and query.
	SearchEngine(store Store, query domain.SearchQuery) Engine
}

// Indexer maintains the documents of an index store.
type Indexer interface {
	// CreateIndex creates an empty index for the domain, replacing any
	// existing one.
	CreateIndex(ctx context.Context, name string) error

	// DeleteIndex removes the index for the domain. Missing indexes are not
	// an error.
	DeleteIndex(ctx context.Context, name string) error

	// IndexPosts adds or replaces posts in the domain's index.
	IndexPosts(ctx context.Context, name string, posts []domain.Post) error

	// DeletePost removes a post from the domain's index.
	DeletePost(ctx context.Context, name string, postID int64) error

	// PromoteIndex makes the fully built staging index serve name in one
	// step, discarding the index name served before. Searches never see a
	// partially built index.
	PromoteIndex(ctx context.Context, staging, name string) error
}

// StagingName returns a fresh name for rebuilding the index of name. Names
// differ per call so a rebuild never touches an index that is serving.
func StagingName(name string, now time.Time) string {
	return name + "-rebuild-" + strconv.FormatInt(now.UnixNano(), 10)
}

// LabelFunc resolves display labels for facet values of a group. Values
// missing from the returned map keep their raw value as the label.
type LabelFunc func(ctx context.Context, group string, values []string) (map[string]string, error)
