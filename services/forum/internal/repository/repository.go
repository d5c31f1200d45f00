package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
)

// PostFilter defines the criteria for scanning posts in primary storage.
type PostFilter struct {
	Term       string
	SearchIn   domain.SearchIn
	ForumIDs   []int64
	CustomerID *int64
	TopicID    *int64
	From       *time.Time
	To         *time.Time
	Offset     int
	Limit      int
}

// ForumRepository defines the persistence operations the forum search needs.
type ForumRepository interface {
	// GetTopicsByIDs returns the topics with the given ids in the order the
	// ids were given. Unknown ids are skipped.
	GetTopicsByIDs(ctx context.Context, ids []int64) ([]*domain.Topic, error)

	// SearchPosts returns the page of posts matching the filter, oldest
	// post id first, along with the total number of matches.
	SearchPosts(ctx context.Context, filter PostFilter) ([]domain.Post, int, error)

	// CountPosts returns the number of posts matching the filter.
	CountPosts(ctx context.Context, filter PostFilter) (int, error)

	// FacetCounts groups the posts matching the filter by the facet field and
	// returns the largest groups first, at most limit of them.
	FacetCounts(ctx context.Context, filter PostFilter, field string, limit int) ([]*domain.Facet, error)

	// CustomerNames returns display names keyed by customer id.
	CustomerNames(ctx context.Context, ids []int64) (map[int64]string, error)

	// ForumNames returns forum names keyed by forum id.
	ForumNames(ctx context.Context, ids []int64) (map[int64]string, error)

	// ListPosts returns up to limit posts with an id greater than afterID,
	// ordered by id. It drives full reindexing.
	ListPosts(ctx context.Context, afterID int64, limit int) ([]domain.Post, error)
}

// Labels returns a facet label resolver backed by the repository's customer
// and forum names. Groups without a name source resolve to no labels.
func Labels(r ForumRepository) func(ctx context.Context, group string, values []string) (map[string]string, error) {
	return func(ctx context.Context, group string, values []string) (map[string]string, error) {
		var lookup func(context.Context, []int64) (map[int64]string, error)
		switch group {
		case domain.FacetGroupCustomer:
			lookup = r.CustomerNames
		case domain.FacetGroupForum:
			lookup = r.ForumNames
		default:
			return nil, nil
		}

		ids := make([]int64, 0, len(values))
		for _, v := range values {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return map[string]string{}, nil
		}

		names, err := lookup(ctx, ids)
		if err != nil {
			return nil, err
		}
		labels := make(map[string]string, len(names))
		for id, name := range names {
			labels[strconv.FormatInt(id, 10)] = name
		}
		return labels, nil
	}
}
