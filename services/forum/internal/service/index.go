package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/provider"
)

const defaultReindexBatchSize = 500

// PostLister pages through every stored post in id order.
type PostLister interface {
	ListPosts(ctx context.Context, afterID int64, limit int) ([]domain.Post, error)
}

// TopicInvalidator drops cached topics after their posts change.
type TopicInvalidator interface {
	Invalidate(ctx context.Context, ids ...int64) error
}

// ReindexStats summarizes a completed reindex.
type ReindexStats struct {
	Posts    int           `json:"posts"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// IndexService keeps the forum index in step with primary storage.
type IndexService struct {
	registry  *provider.Registry
	posts     PostLister
	cache     TopicInvalidator
	batchSize int
	logger    *slog.Logger

	reindexing atomic.Bool
	background sync.WaitGroup
	closing    context.Context
	stop       context.CancelFunc
}

// NewIndexService creates an index maintainer. cache may be nil.
func NewIndexService(registry *provider.Registry, posts PostLister, cache TopicInvalidator, batchSize int, logger *slog.Logger) *IndexService {
	if batchSize <= 0 {
		batchSize = defaultReindexBatchSize
	}
	closing, stop := context.WithCancel(context.Background())
	return &IndexService{
		registry:  registry,
		posts:     posts,
		cache:     cache,
		batchSize: batchSize,
		logger:    logger,
		closing:   closing,
		stop:      stop,
	}
}

// IndexPost adds or replaces a post in the forum index.
func (s *IndexService) IndexPost(ctx context.Context, post domain.Post) error {
	if post.ID <= 0 {
		return apperrors.InvalidInput("post id is required")
	}
	if post.TopicID <= 0 {
		return apperrors.InvalidInput("topic id is required")
	}

	idx, err := s.indexer()
	if err != nil {
		return err
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}

	if err := idx.IndexPosts(ctx, provider.DomainForum, []domain.Post{post}); err != nil {
		return fmt.Errorf("index post: %w", err)
	}
	postsIndexed.Inc()
	s.invalidate(ctx, post.TopicID)

	s.logger.InfoContext(ctx, "post indexed",
		slog.Int64("post_id", post.ID),
		slog.Int64("topic_id", post.TopicID),
	)

	return nil
}

// DeletePost removes a post from the forum index. topicID may be zero when
// unknown.
func (s *IndexService) DeletePost(ctx context.Context, postID, topicID int64) error {
	if postID <= 0 {
		return apperrors.InvalidInput("post id is required")
	}

	idx, err := s.indexer()
	if err != nil {
		return err
	}

	if err := idx.DeletePost(ctx, provider.DomainForum, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if topicID > 0 {
		s.invalidate(ctx, topicID)
	}

	s.logger.InfoContext(ctx, "post deleted from index",
		slog.Int64("post_id", postID),
	)

	return nil
}

// Reindex rebuilds the forum index from primary storage and returns when
// the rebuilt index serves searches. Only one reindex runs at a time; a
// concurrent call fails with a conflict error.
func (s *IndexService) Reindex(ctx context.Context) (ReindexStats, error) {
	idx, err := s.claimReindex()
	if err != nil {
		return ReindexStats{}, err
	}
	defer s.reindexing.Store(false)

	return s.rebuild(ctx, idx)
}

// StartReindex claims the reindex slot and rebuilds in the background. It
// fails without starting anything when a reindex is already running or no
// provider can index. The rebuild outlives ctx's cancellation but not Close.
func (s *IndexService) StartReindex(ctx context.Context) error {
	idx, err := s.claimReindex()
	if err != nil {
		return err
	}

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.closing, cancel)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer cancel()
		defer stop()
		defer s.reindexing.Store(false)

		if _, err := s.rebuild(bg, idx); err != nil {
			s.logger.ErrorContext(bg, "background reindex failed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Close cancels background reindexes and waits for them to stop. Call it
// before closing the index provider.
func (s *IndexService) Close() {
	s.stop()
	s.background.Wait()
}

// Reindexing reports whether a reindex is in progress.
func (s *IndexService) Reindexing() bool {
	return s.reindexing.Load()
}

func (s *IndexService) claimReindex() (provider.Indexer, error) {
	idx, err := s.indexer()
	if err != nil {
		return nil, err
	}
	if !s.reindexing.CompareAndSwap(false, true) {
		return nil, apperrors.Conflict("a reindex is already running")
	}
	return idx, nil
}

// rebuild fills a staging index and promotes it once every batch is in, so
// searches keep using the previous index, or the storage fallback when
// there is none, until the new one is complete.
func (s *IndexService) rebuild(ctx context.Context, idx provider.Indexer) (stats ReindexStats, err error) {
	start := time.Now()
	staging := provider.StagingName(provider.DomainForum, start)
	s.logger.InfoContext(ctx, "forum reindex started",
		slog.Int("batch_size", s.batchSize),
		slog.String("staging", staging),
	)

	if err := idx.CreateIndex(ctx, staging); err != nil {
		return stats, fmt.Errorf("reindex: create index: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if dropErr := idx.DeleteIndex(context.WithoutCancel(ctx), staging); dropErr != nil {
			s.logger.WarnContext(ctx, "failed to drop staging index",
				slog.String("staging", staging),
				slog.String("error", dropErr.Error()),
			)
		}
	}()

	var afterID int64
	for {
		posts, err := s.posts.ListPosts(ctx, afterID, s.batchSize)
		if err != nil {
			return stats, fmt.Errorf("reindex: list posts after %d: %w", afterID, err)
		}
		if len(posts) == 0 {
			break
		}

		if err := idx.IndexPosts(ctx, staging, posts); err != nil {
			return stats, fmt.Errorf("reindex: index batch %d: %w", stats.Batches+1, err)
		}
		postsIndexed.Add(float64(len(posts)))

		stats.Posts += len(posts)
		stats.Batches++
		afterID = posts[len(posts)-1].ID

		if len(posts) < s.batchSize {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("reindex: %w", err)
	}
	if err := idx.PromoteIndex(ctx, staging, provider.DomainForum); err != nil {
		return stats, fmt.Errorf("reindex: promote index: %w", err)
	}

	stats.Duration = time.Since(start)
	s.logger.InfoContext(ctx, "forum reindex completed",
		slog.Int("posts", stats.Posts),
		slog.Int("batches", stats.Batches),
		slog.Duration("duration", stats.Duration),
	)

	return stats, nil
}

func (s *IndexService) indexer() (provider.Indexer, error) {
	p, ok := s.registry.IndexProvider(provider.DomainForum)
	if !ok {
		return nil, apperrors.ServiceUnavailable("no forum index provider is configured")
	}
	idx, ok := p.(provider.Indexer)
	if !ok {
		return nil, apperrors.ServiceUnavailable(fmt.Sprintf("index provider %s is read-only", p.Name()))
	}
	return idx, nil
}

func (s *IndexService) invalidate(ctx context.Context, topicID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, topicID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate cached topic",
			slog.Int64("topic_id", topicID),
			slog.String("error", err.Error()),
		)
	}
}
