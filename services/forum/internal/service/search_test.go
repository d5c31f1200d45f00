package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/fallback"
	"github.com/utafrali/EcommerceGo/services/forum/internal/notice"
	"github.com/utafrali/EcommerceGo/services/forum/internal/provider"
	"github.com/utafrali/EcommerceGo/services/forum/internal/provider/bleve"
	"github.com/utafrali/EcommerceGo/services/forum/internal/repository"
	"github.com/utafrali/EcommerceGo/services/forum/internal/repository/memory"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ─── Fakes ───────────────────────────────────────────────────────────────────

// fakeBackend scripts engine behaviour and records every engine call.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	total       int
	hits        []domain.SearchHit
	facets      func() domain.FacetMap
	suggestions []string

	countErr   error
	hitsErr    error
	facetErr   error
	facetPanic bool
	facetBlock bool
	spellErr   error
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

type fakeEngine struct {
	b *fakeBackend
	q domain.SearchQuery
}

func (e *fakeEngine) Count(context.Context) (int, error) {
	e.b.record(fmt.Sprintf("count@%d", e.q.Skip))
	return e.b.total, e.b.countErr
}

func (e *fakeEngine) Search(context.Context) ([]domain.SearchHit, error) {
	e.b.record(fmt.Sprintf("search@%d", e.q.Skip))
	return e.b.hits, e.b.hitsErr
}

func (e *fakeEngine) FacetMap(ctx context.Context) (domain.FacetMap, error) {
	e.b.record("facets")
	switch {
	case e.b.facetPanic:
		panic("facet engine exploded")
	case e.b.facetBlock:
		<-ctx.Done()
		return nil, ctx.Err()
	case e.b.facetErr != nil:
		return nil, e.b.facetErr
	case e.b.facets != nil:
		return e.b.facets(), nil
	}
	return domain.FacetMap{}, nil
}

func (e *fakeEngine) CheckSpelling(context.Context) ([]string, error) {
	e.b.record("spelling")
	return e.b.suggestions, e.b.spellErr
}

type fakeStore struct {
	exists    bool
	existsErr error
}

func (s *fakeStore) Name() string { return provider.DomainForum }

func (s *fakeStore) Exists(context.Context) (bool, error) { return s.exists, s.existsErr }

type fakeProvider struct {
	backend  *fakeBackend
	store    *fakeStore
	storeErr error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) IndexStore(context.Context, string) (provider.Store, error) {
	if p.storeErr != nil {
		return nil, p.storeErr
	}
	return p.store, nil
}

func (p *fakeProvider) SearchEngine(_ provider.Store, q domain.SearchQuery) provider.Engine {
	return &fakeEngine{b: p.backend, q: q}
}

// recordingFallback counts delegations to the storage path.
type recordingFallback struct {
	Fallback
	searches int
	prepared int
}

func (f *recordingFallback) Search(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error) {
	f.searches++
	return f.Fallback.Search(ctx, q)
}

func (f *recordingFallback) PrepareQuery(q domain.SearchQuery, base *repository.PostFilter) repository.PostFilter {
	f.prepared++
	return f.Fallback.PrepareQuery(q, base)
}

type recordingEvents struct {
	searching []domain.SearchQuery
	searched  []*domain.SearchResult
}

func (e *recordingEvents) Searching(_ context.Context, q domain.SearchQuery) {
	e.searching = append(e.searching, q)
}

func (e *recordingEvents) Searched(_ context.Context, _ domain.SearchQuery, res *domain.SearchResult) {
	e.searched = append(e.searched, res)
}

// countingTopics counts topic loads reaching storage.
type countingTopics struct {
	*memory.ForumRepository
	calls int
}

func (c *countingTopics) GetTopicsByIDs(ctx context.Context, ids []int64) ([]*domain.Topic, error) {
	c.calls++
	return c.ForumRepository.GetTopicsByIDs(ctx, ids)
}

func hit(topicID, postID int64) domain.SearchHit {
	return domain.SearchHit{
		ID:     fmt.Sprintf("post-%d", postID),
		Fields: map[string]any{domain.FieldTopicID: float64(topicID), domain.FieldPostID: float64(postID)},
	}
}

// seedForum stores 25 shipping posts spread over 5 topics.
func seedForum() *memory.ForumRepository {
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
			CreatedAt:  time.Date(2026, 1, 1, 0, 0, int(id), 0, time.UTC),
		})
	}
	repo.SaveCustomer(11, "Alice")
	repo.SaveCustomer(12, "Alice")
	repo.SaveForum(1, "Orders")
	return repo
}

type testEnv struct {
	svc      *SearchService
	backend  *fakeBackend
	provider *fakeProvider
	registry *provider.Registry
	fallback *recordingFallback
	events   *recordingEvents
	topics   *countingTopics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := seedForum()
	backend := &fakeBackend{}
	p := &fakeProvider{backend: backend, store: &fakeStore{exists: true}}
	registry := provider.NewRegistry()
	registry.Register(provider.DomainForum, p)

	fb := &recordingFallback{Fallback: fallback.NewDirectSearcher(repo, 10, newTestLogger())}
	events := &recordingEvents{}
	topics := &countingTopics{ForumRepository: repo}

	cfg := DefaultSearchConfig()
	cfg.PhaseTimeout = 50 * time.Millisecond
	svc := NewSearchService(registry, topics, fb, events, notice.ContextNotifier{}, cfg, newTestLogger())

	return &testEnv{
		svc:      svc,
		backend:  backend,
		provider: p,
		registry: registry,
		fallback: fb,
		events:   events,
		topics:   topics,
	}
}

// ─── Validation ──────────────────────────────────────────────────────────────

func TestSearch_InvalidQueryFailsBeforeIO(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Search(context.Background(), domain.SearchQuery{Term: "shipping", Take: -1}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, env.backend.Calls())
	assert.Empty(t, env.events.searching)
	assert.Zero(t, env.fallback.searches)
}

// ─── Paging ──────────────────────────────────────────────────────────────────

func TestSearch_ZeroTakeSkipsCountAndHits(t *testing.T) {
	env := newTestEnv(t)
	env.backend.suggestions = []string{"shipping"}

	res, err := env.svc.Search(context.Background(), domain.SearchQuery{Term: "shiping", Flags: domain.WithAll}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"spelling"}, env.backend.Calls())
	assert.Zero(t, res.TotalCount())
	assert.False(t, res.HasTopics())
	assert.Empty(t, res.Facets())
	assert.Equal(t, []string{"shipping"}, res.Suggestions())
}

func TestSearch_CorrectsSkipPastEnd(t *testing.T) {
	env := newTestEnv(t)
	env.backend.total = 25
	env.backend.hits = []domain.SearchHit{hit(5, 21), hit(5, 22)}

	q := domain.SearchQuery{Term: "shipping", Skip: 100, Take: 10, Flags: domain.WithHits}
	res, err := env.svc.Search(context.Background(), q, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"count@100", "search@20"}, env.backend.Calls())
	assert.Equal(t, 25, res.TotalCount())
	assert.Equal(t, 20, res.Query().Skip)
	assert.Equal(t, 10, res.Query().Take)
	assert.Equal(t, 100, q.Skip, "caller's query must not be modified")
	assert.Equal(t, "fake", res.Source())
}

func TestSearch_PagingCorrectionFormula(t *testing.T) {
	tests := []struct {
		skip, take, total int
		want              int
	}{
		{skip: 100, take: 10, total: 25, want: 20},
		{skip: 30, take: 10, total: 30, want: 30},
		{skip: 7, take: 3, total: 7, want: 6},
		{skip: 5, take: 10, total: 25, want: 5},
		{skip: 0, take: 10, total: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("skip=%d take=%d total=%d", tt.skip, tt.take, tt.total), func(t *testing.T) {
			env := newTestEnv(t)
			env.backend.total = tt.total

			res, err := env.svc.Search(context.Background(), domain.SearchQuery{Skip: tt.skip, Take: tt.take}, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Query().Skip)
			assert.Equal(t, tt.take, res.Query().Take)
			assert.Equal(t, fmt.Sprintf("search@%d", tt.want), env.backend.Calls()[1])
		})
	}
}

// ─── Hits ────────────────────────────────────────────────────────────────────

func TestSearch_TopicLoaderIsDeferredAndMemoized(t *testing.T) {
	env := newTestEnv(t)
	env.backend.total = 6
	env.backend.hits = []domain.SearchHit{hit(2, 9), hit(1, 4), hit(2, 5), hit(2, 8)}

	res, err := env.svc.Search(context.Background(), domain.SearchQuery{Term: "shipping", Take: 10, Flags: domain.WithHits}, false)
	require.NoError(t, err)
	assert.True(t, res.HasTopics())
	assert.Zero(t, env.topics.calls, "topics must not load until read")

	for range 3 {
		topics, err := res.Topics(context.Background())
		require.NoError(t, err)
		require.Len(t, topics, 2)
		assert.Equal(t, int64(2), topics[0].ID)
		assert.Equal(t, int64(5), topics[0].FirstMatchedPostID)
		assert.Equal(t, int64(1), topics[1].ID)
		assert.Equal(t, int64(4), topics[1].FirstMatchedPostID)
	}
	assert.Equal(t, 1, env.topics.calls)
}

func TestSearch_WithoutHitsFlagHasNoLoader(t *testing.T) {
	env := newTestEnv(t)
	env.backend.total = 3
	env.backend.hits = []domain.SearchHit{hit(1, 1)}

	res, err := env.svc.Search(context.Background(), domain.SearchQuery{Take: 10}, false)
	require.NoError(t, err)
	assert.False(t, res.HasTopics())
	assert.Equal(t, 3, res.TotalCount())
}

func TestSearch_CoreFailuresPropagate(t *testing.T) {
	t.Run("count", func(t *testing.T) {
		env := newTestEnv(t)
		env.backend.countErr = errors.New("index corrupted")

		_, err := env.svc.Search(context.Background(), domain.SearchQuery{Take: 10}, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "search: count")
		assert.Empty(t, env.events.searched)
	})

	t.Run("hits", func(t *testing.T) {
		env := newTestEnv(t)
		env.backend.total = 5
		env.backend.hitsErr = errors.New("shard failure")

		_, err := env.svc.Search(context.Background(), domain.SearchQuery{Take: 10}, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "search: hits")
		assert.Contains(t, err.Error(), "shard failure")
	})
}

// ─── Facets and suggestions ──────────────────────────────────────────────────

func TestSearch_FacetsAreNormalized(t *testing.T) {
	env := newTestEnv(t)
	env.backend.total = 3
	env.backend.facets = func() domain.FacetMap {
		return domain.FacetMap{
			domain.FacetGroupCustomer: {Name: domain.FacetGroupCustomer, Facets: []*domain.Facet{
				{Value: "11", Label: "Alice", Count: 2},
				{Value: "12", Label: "Alice", Count: 1},
				{Value: "13", Label: "Bob", Count: 1},
			}},
		}
	}

	res, err := env.svc.Search(context.Background(), domain.SearchQuery{Take: 10, Flags: domain.WithFacets}, false)
	require.NoError(t, err)

	group := res.Facets()[domain.FacetGroupCustomer]
	require.NotNil(t, group)
	labels := make(map[string]bool)
	for _, f := range group.Facets {
		assert.False(t, labels[f.Label], "duplicate label %q", f.Label)
		labels[f.Label] = true
	}
	assert.True(t, labels["11 (11)"])
	assert.True(t, labels["Bob"])
}

func TestSearch_FacetFailureDegrades(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *fakeBackend)
	}{
		{name: "error", setup: func(b *fakeBackend) { b.facetErr = errors.New("aggregation failed") }},
		{name: "panic", setup: func(b *fakeBackend) { b.facetPanic = true }},
		{name: "timeout", setup: func(b *fakeBackend) { b.facetBlock = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.backend.total = 2
			env.backend.hits = []domain.SearchHit{hit(1, 1), hit(1, 2)}
			env.backend.suggestions = []string{"shipping"}
			tt.setup(env.backend)

			res, err := env.svc.Search(context.Background(), domain.SearchQuery{Term: "shiping", Take: 10, Flags: domain.WithAll}, false)
			require.NoError(t, err)
			assert.Equal(t, 2, res.TotalCount())
			assert.True(t, res.HasTopics())
			assert.Empty(t, res.Facets())
			assert.Equal(t, []string{"shipping"}, res.Suggestions())

			topics, err := res.Topics(context.Background())
			require.NoError(t, err)
			assert.Len(t, topics, 1)
		})
	}
}

func TestSearch_SuggestionFailureDegrades(t *testing.T) {
	env := newTestEnv(t)
	env.backend.total = 1
	env.backend.spellErr = errors.New("suggester offline")

	res, err := env.svc.Search(context.Background(), domain.SearchQuery{Term: "shiping", Take: 10, Flags: domain.WithSuggestions}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount())
	assert.Empty(t, res.Suggestions())
	assert.Len(t, env.events.searched, 1)
}

func TestSearch_FlagsGateOptionalPhases(t *testing.T) {
	env := newTestEnv(t)
	env.backend.total = 1

	_, err := env.svc.Search(context.Background(), domain.SearchQuery{Take: 10}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"count@0", "search@0"}, env.backend.Calls())
}

// ─── Routing ─────────────────────────────────────────────────────────────────

func TestSearch_RoutesToFallback(t *testing.T) {
	tests := []struct {
		name   string
		direct bool
		setup  func(env *testEnv)
	}{
		{name: "direct", direct: true},
		{name: "no provider", setup: func(env *testEnv) { env.registry.Unregister(provider.DomainForum) }},
		{name: "missing store", setup: func(env *testEnv) { env.provider.store.exists = false }},
		{name: "exists check fails", setup: func(env *testEnv) { env.provider.store.existsErr = errors.New("timeout") }},
		{name: "store lookup fails", setup: func(env *testEnv) { env.provider.storeErr = errors.New("closed") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}

			res, err := env.svc.Search(context.Background(), domain.SearchQuery{Term: "shipping", Skip: 100, Take: 10, Flags: domain.WithHits}, tt.direct)
			require.NoError(t, err)
			assert.Equal(t, 1, env.fallback.searches)
			assert.Empty(t, env.backend.Calls())
			assert.Equal(t, domain.SourceDirect, res.Source())
			assert.Equal(t, 25, res.TotalCount())
			assert.Equal(t, 20, res.Query().Skip)
			assert.Len(t, env.events.searching, 1)
			assert.Empty(t, env.events.searched)
		})
	}
}

func TestSearch_AdvisoryOnlyForConfiguredOrigin(t *testing.T) {
	tests := []struct {
		name       string
		origin     string
		unregister bool
		wantNotice bool
	}{
		{name: "search page without provider", origin: domain.OriginSearchPage, unregister: true, wantNotice: true},
		{name: "other origin without provider", origin: "Other", unregister: true},
		{name: "search page with missing store", origin: domain.OriginSearchPage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.unregister {
				env.registry.Unregister(provider.DomainForum)
			} else {
				env.provider.store.exists = false
			}

			ctx, collector := notice.NewContext(context.Background())
			_, err := env.svc.Search(ctx, domain.SearchQuery{Term: "shipping", Take: 10, Origin: tt.origin}, false)
			require.NoError(t, err)

			notices := collector.Notices()
			if tt.wantNotice {
				require.Len(t, notices, 1)
				assert.Equal(t, notice.CodeIndexMissing, notices[0].Code)
				assert.Equal(t, notice.LevelWarning, notices[0].Level)
			} else {
				assert.Empty(t, notices)
			}
		})
	}
}

func TestSearch_AdvisoryOriginsConfigurable(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Unregister(provider.DomainForum)
	env.svc.cfg.AdvisoryOrigins = []string{"Admin/Search"}

	ctx, collector := notice.NewContext(context.Background())
	_, err := env.svc.Search(ctx, domain.SearchQuery{Take: 10, Origin: domain.OriginSearchPage}, false)
	require.NoError(t, err)
	assert.Empty(t, collector.Notices())

	_, err = env.svc.Search(ctx, domain.SearchQuery{Take: 10, Origin: "Admin/Search"}, false)
	require.NoError(t, err)
	assert.Len(t, collector.Notices(), 1)
}

func TestSearch_PublishesEvents(t *testing.T) {
	env := newTestEnv(t)
	env.backend.total = 4

	res, err := env.svc.Search(context.Background(), domain.SearchQuery{Term: "shipping", Take: 10}, false)
	require.NoError(t, err)
	require.Len(t, env.events.searching, 1)
	assert.Equal(t, "shipping", env.events.searching[0].Term)
	require.Len(t, env.events.searched, 1)
	assert.Same(t, res, env.events.searched[0])
}

func TestSearch_NilCollaborators(t *testing.T) {
	registry := provider.NewRegistry()
	repo := seedForum()
	svc := NewSearchService(registry, repo, fallback.NewDirectSearcher(repo, 10, newTestLogger()), nil, nil, SearchConfig{}, newTestLogger())

	res, err := svc.Search(context.Background(), domain.SearchQuery{Term: "shipping", Take: 5, Origin: domain.OriginSearchPage}, false)
	require.NoError(t, err)
	assert.Equal(t, 25, res.TotalCount())
	assert.Equal(t, defaultPhaseTimeout, svc.cfg.PhaseTimeout)
}

func TestSearch_PrepareQueryDelegatesToFallback(t *testing.T) {
	env := newTestEnv(t)
	customer := int64(11)

	f := env.svc.PrepareQuery(domain.SearchQuery{
		Term:   "shipping",
		Skip:   10,
		Take:   5,
		Filter: domain.SearchFilter{ForumIDs: []int64{2, 3}, CustomerID: &customer},
	}, &repository.PostFilter{ForumIDs: []int64{1, 2}})

	assert.Equal(t, 1, env.fallback.prepared)
	assert.Empty(t, env.backend.Calls())
	assert.Equal(t, []int64{2}, f.ForumIDs)
	assert.Equal(t, int64(11), *f.CustomerID)
	assert.Equal(t, 10, f.Offset)
	assert.Equal(t, 5, f.Limit)
}

// ─── End to end with a bleve index ───────────────────────────────────────────

func newBleveService(t *testing.T, repo *memory.ForumRepository, build bool) *SearchService {
	t.Helper()
	ctx := context.Background()

	p, err := bleve.New(bleve.Config{}, repository.Labels(repo), newTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	if build {
		posts, err := repo.ListPosts(ctx, 0, 100)
		require.NoError(t, err)
		require.NoError(t, p.CreateIndex(ctx, provider.DomainForum))
		require.NoError(t, p.IndexPosts(ctx, provider.DomainForum, posts))
	}

	registry := provider.NewRegistry()
	registry.Register(provider.DomainForum, p)
	return NewSearchService(registry, repo, fallback.NewDirectSearcher(repo, 10, newTestLogger()), nil, nil, DefaultSearchConfig(), newTestLogger())
}

func TestSearch_BleveShippingScenario(t *testing.T) {
	repo := seedForum()
	svc := newBleveService(t, repo, true)

	res, err := svc.Search(context.Background(), domain.SearchQuery{Term: "shipping", Skip: 100, Take: 10, Flags: domain.WithAll}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceBleve, res.Source())
	assert.Equal(t, 25, res.TotalCount())
	assert.Equal(t, 20, res.Query().Skip)

	topics, err := res.Topics(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, topics)

	customers := res.Facets()[domain.FacetGroupCustomer]
	require.NotNil(t, customers)
	require.Len(t, customers.Facets, 2)
	assert.NotEqual(t, customers.Facets[0].Label, customers.Facets[1].Label)
}

func TestSearch_MissingIndexMatchesDirect(t *testing.T) {
	repo := seedForum()
	svc := newBleveService(t, repo, false)
	q := domain.SearchQuery{Term: "shipping", Skip: 100, Take: 10, Flags: domain.WithHits | domain.WithFacets}

	viaIndex, err := svc.Search(context.Background(), q, false)
	require.NoError(t, err)
	direct, err := svc.Search(context.Background(), q, true)
	require.NoError(t, err)

	assert.Equal(t, direct.Source(), viaIndex.Source())
	assert.Equal(t, direct.TotalCount(), viaIndex.TotalCount())
	assert.Equal(t, direct.Query(), viaIndex.Query())
	assert.Equal(t, direct.Facets(), viaIndex.Facets())

	a, err := viaIndex.Topics(context.Background())
	require.NoError(t, err)
	b, err := direct.Topics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, b, a)
}
