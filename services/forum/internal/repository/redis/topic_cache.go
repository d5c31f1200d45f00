package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/repository"
)

const keyPrefix = "forum:topic:"

// TopicCache decorates a ForumRepository with a Redis read-through cache for
// topics. Redis failures are logged and the call falls through to the
// underlying repository.
type TopicCache struct {
	repository.ForumRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewTopicCache wraps next with a topic cache holding entries for ttl.
func NewTopicCache(next repository.ForumRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *TopicCache {
	return &TopicCache{
		ForumRepository: next,
		client:          client,
		ttl:             ttl,
		logger:          logger,
	}
}

// GetTopicsByIDs serves cached topics and loads the rest from the underlying
// repository, preserving the order of ids.
func (c *TopicCache) GetTopicsByIDs(ctx context.Context, ids []int64) ([]*domain.Topic, error) {
	if len(ids) == 0 {
		return []*domain.Topic{}, nil
	}

	found := make(map[int64]*domain.Topic, len(ids))
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.WarnContext(ctx, "topic cache read failed", slog.String("error", err.Error()))
		values = nil
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var t domain.Topic
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			continue
		}
		found[ids[i]] = &t
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		loaded, err := c.ForumRepository.GetTopicsByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		c.store(ctx, loaded)
		for _, t := range loaded {
			found[t.ID] = t
		}
	}

	topics := make([]*domain.Topic, 0, len(found))
	for _, id := range ids {
		if t, ok := found[id]; ok {
			topics = append(topics, t)
		}
	}
	return topics, nil
}

// Invalidate drops cached topics, e.g. after one of their posts changed.
func (c *TopicCache) Invalidate(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del topics: %w", err)
	}
	return nil
}

func (c *TopicCache) store(ctx context.Context, topics []*domain.Topic) {
	if len(topics) == 0 {
		return
	}
	pipe := c.client.Pipeline()
	for _, t := range topics {
		cached := *t
		cached.FirstMatchedPostID = 0
		data, err := json.Marshal(cached)
		if err != nil {
			continue
		}
		pipe.Set(ctx, key(t.ID), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WarnContext(ctx, "topic cache write failed", slog.String("error", err.Error()))
	}
}

func key(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}
