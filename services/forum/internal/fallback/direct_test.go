package fallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/repository"
	"github.com/utafrali/EcommerceGo/services/forum/internal/repository/memory"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedShipping stores 25 posts about shipping spread over 5 topics, written by
// two customers who share a display name.
func seedShipping() *memory.ForumRepository {
	repo := memory.NewForumRepository()
	for topic := int64(1); topic <= 5; topic++ {
		repo.SaveTopic(domain.Topic{ID: topic, ForumID: 1, Subject: fmt.Sprintf("Shipping %d", topic)})
	}
	for id := int64(1); id <= 25; id++ {
		repo.SavePost(domain.Post{
			ID:         id,
			TopicID:    (id-1)/5 + 1,
			ForumID:    1,
			CustomerID: 11 + id%2,
			Subject:    "Shipping question",
			Text:       "when does my shipping arrive",
		})
	}
	repo.SaveCustomer(11, "Alice")
	repo.SaveCustomer(12, "Alice")
	repo.SaveForum(1, "Orders")
	return repo
}

type failingFacets struct {
	*memory.ForumRepository
}

func (failingFacets) FacetCounts(context.Context, repository.PostFilter, string, int) ([]*domain.Facet, error) {
	return nil, errors.New("group by timed out")
}

// countingRepo records how often the page and count queries run.
type countingRepo struct {
	*memory.ForumRepository
	searches int
	counts   int
}

func (r *countingRepo) SearchPosts(ctx context.Context, filter repository.PostFilter) ([]domain.Post, int, error) {
	r.searches++
	return r.ForumRepository.SearchPosts(ctx, filter)
}

func (r *countingRepo) CountPosts(ctx context.Context, filter repository.PostFilter) (int, error) {
	r.counts++
	return r.ForumRepository.CountPosts(ctx, filter)
}

func TestDirectSearcher_StorageRoundTrips(t *testing.T) {
	tests := []struct {
		name         string
		skip         int
		wantSkip     int
		wantSearches int
		wantCounts   int
	}{
		{name: "page in range is one query", skip: 10, wantSkip: 10, wantSearches: 1},
		{name: "first page is one query", wantSearches: 1},
		{name: "page past the end counts and re-reads", skip: 100, wantSkip: 20, wantSearches: 2, wantCounts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &countingRepo{ForumRepository: seedShipping()}
			d := NewDirectSearcher(repo, 10, newTestLogger())

			res, err := d.Search(context.Background(), domain.SearchQuery{
				Term:  "shipping",
				Skip:  tt.skip,
				Take:  10,
				Flags: domain.WithHits,
			})
			require.NoError(t, err)
			assert.Equal(t, 25, res.TotalCount())
			assert.Equal(t, tt.wantSkip, res.Query().Skip)
			assert.Equal(t, tt.wantSearches, repo.searches)
			assert.Equal(t, tt.wantCounts, repo.counts)
		})
	}
}

func TestDirectSearcher_CorrectsSkipPastEnd(t *testing.T) {
	d := NewDirectSearcher(seedShipping(), 10, newTestLogger())

	res, err := d.Search(context.Background(), domain.SearchQuery{
		Term:  "shipping",
		Skip:  100,
		Take:  10,
		Flags: domain.WithHits,
	})
	require.NoError(t, err)
	assert.Equal(t, 25, res.TotalCount())
	assert.Equal(t, 20, res.Query().Skip)
	assert.Equal(t, domain.SourceDirect, res.Source())
	assert.Empty(t, res.Suggestions())

	topics, err := res.Topics(context.Background())
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, int64(5), topics[0].ID)
	assert.Equal(t, int64(21), topics[0].FirstMatchedPostID)
}

func TestDirectSearcher_ZeroTakeSkipsStorage(t *testing.T) {
	d := NewDirectSearcher(seedShipping(), 10, newTestLogger())

	res, err := d.Search(context.Background(), domain.SearchQuery{Term: "shipping", Flags: domain.WithAll})
	require.NoError(t, err)
	assert.Zero(t, res.TotalCount())
	assert.False(t, res.HasTopics())
	assert.Empty(t, res.Facets())
}

func TestDirectSearcher_FacetsLabelledAndNormalized(t *testing.T) {
	d := NewDirectSearcher(seedShipping(), 10, newTestLogger())

	res, err := d.Search(context.Background(), domain.SearchQuery{Term: "shipping", Take: 10, Flags: domain.WithFacets})
	require.NoError(t, err)

	customers := res.Facets()[domain.FacetGroupCustomer]
	require.NotNil(t, customers)
	require.Len(t, customers.Facets, 2)
	assert.Equal(t, "12 (12)", customers.Facets[0].Label)
	assert.Equal(t, "11 (11)", customers.Facets[1].Label)
	assert.Equal(t, "Orders", res.Facets()[domain.FacetGroupForum].Facets[0].Label)
	assert.False(t, res.HasTopics())
}

func TestDirectSearcher_FacetFailureDegrades(t *testing.T) {
	d := NewDirectSearcher(failingFacets{seedShipping()}, 10, newTestLogger())

	res, err := d.Search(context.Background(), domain.SearchQuery{Term: "shipping", Take: 10, Flags: domain.WithAll})
	require.NoError(t, err)
	assert.Equal(t, 25, res.TotalCount())
	assert.Empty(t, res.Facets())
	assert.True(t, res.HasTopics())
}

func TestDirectSearcher_InvalidQuery(t *testing.T) {
	d := NewDirectSearcher(seedShipping(), 10, newTestLogger())

	_, err := d.Search(context.Background(), domain.SearchQuery{Take: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDirectSearcher_PrepareQuery(t *testing.T) {
	d := NewDirectSearcher(memory.NewForumRepository(), 10, newTestLogger())
	customer := int64(11)
	baseFrom := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	queryFrom := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	baseTo := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	base := &repository.PostFilter{ForumIDs: []int64{1, 2, 3}, From: &baseFrom, To: &baseTo}
	q := domain.SearchQuery{
		Term: "shipping",
		Skip: 10,
		Take: 5,
		Filter: domain.SearchFilter{
			ForumIDs:   []int64{2, 3, 4},
			CustomerID: &customer,
			From:       &queryFrom,
			SearchIn:   domain.SearchInText,
		},
	}

	f := d.PrepareQuery(q, base)
	assert.Equal(t, "shipping", f.Term)
	assert.Equal(t, domain.SearchInText, f.SearchIn)
	assert.Equal(t, []int64{2, 3}, f.ForumIDs)
	assert.Equal(t, int64(11), *f.CustomerID)
	assert.Equal(t, queryFrom, *f.From)
	assert.Equal(t, baseTo, *f.To)
	assert.Equal(t, 10, f.Offset)
	assert.Equal(t, 5, f.Limit)

	assert.Equal(t, []int64{1, 2, 3}, base.ForumIDs, "base filter must not be modified")

	disjoint := d.PrepareQuery(domain.SearchQuery{Filter: domain.SearchFilter{ForumIDs: []int64{9}}}, base)
	assert.Equal(t, []int64{-1}, disjoint.ForumIDs)

	plain := d.PrepareQuery(q, nil)
	assert.Equal(t, []int64{2, 3, 4}, plain.ForumIDs)
}
