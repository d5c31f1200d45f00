package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pkgkafka "github.com/utafrali/EcommerceGo/pkg/kafka"
	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
)

// Forum post topics consumed by the index maintainer. The event type of
// each message equals its topic.
var (
	TopicPostCreated = pkgkafka.Topic("forum", "post", "created")
	TopicPostUpdated = pkgkafka.Topic("forum", "post", "updated")
	TopicPostDeleted = pkgkafka.Topic("forum", "post", "deleted")
)

// PostEventData is the payload of post created and updated events.
type PostEventData struct {
	ID         int64     `json:"id"`
	TopicID    int64     `json:"topic_id"`
	ForumID    int64     `json:"forum_id"`
	CustomerID int64     `json:"customer_id"`
	Subject    string    `json:"subject"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

func (d PostEventData) post() domain.Post {
	return domain.Post{
		ID:         d.ID,
		TopicID:    d.TopicID,
		ForumID:    d.ForumID,
		CustomerID: d.CustomerID,
		Subject:    d.Subject,
		Text:       d.Text,
		CreatedAt:  d.CreatedAt,
	}
}

// PostDeletedData is the payload of a post deleted event. TopicID is
// optional; when set, the cached topic is dropped as well.
type PostDeletedData struct {
	ID      int64 `json:"id"`
	TopicID int64 `json:"topic_id"`
}

// PostIndexer keeps the forum index in step with post changes.
type PostIndexer interface {
	IndexPost(ctx context.Context, post domain.Post) error
	DeletePost(ctx context.Context, postID, topicID int64) error
}

// Consumer applies post events to the forum index. Payloads that cannot be
// applied are reported as permanent failures so they are dead-lettered
// without retries.
type Consumer struct {
	indexer  PostIndexer
	logger   *slog.Logger
	handlers map[string]func(context.Context, *pkgkafka.Event) error
}

// NewConsumer creates a consumer applying events to indexer.
func NewConsumer(indexer PostIndexer, logger *slog.Logger) *Consumer {
	c := &Consumer{indexer: indexer, logger: logger}
	c.handlers = map[string]func(context.Context, *pkgkafka.Event) error{
		TopicPostCreated: c.postChanged,
		TopicPostUpdated: c.postChanged,
		TopicPostDeleted: c.postDeleted,
	}
	return c
}

// Handle dispatches event by type. Unknown types are logged and skipped.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	h, ok := c.handlers[event.EventType]
	if !ok {
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
	return h(ctx, event)
}

func (c *Consumer) postChanged(ctx context.Context, event *pkgkafka.Event) error {
	var data PostEventData
	if err := event.UnmarshalData(&data); err != nil {
		return pkgkafka.Permanent(err)
	}
	if data.ID <= 0 || data.TopicID <= 0 {
		return pkgkafka.Permanent(fmt.Errorf("%s: post %d in topic %d: ids must be positive", event.EventType, data.ID, data.TopicID))
	}

	if err := c.indexer.IndexPost(ctx, data.post()); err != nil {
		return fmt.Errorf("index post %d from %s: %w", data.ID, event.EventType, err)
	}

	c.logger.InfoContext(ctx, "indexed post from event",
		slog.String("event_type", event.EventType),
		slog.Int64("post_id", data.ID),
		slog.Int64("topic_id", data.TopicID),
	)
	return nil
}

func (c *Consumer) postDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data PostDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return pkgkafka.Permanent(err)
	}
	if data.ID <= 0 {
		return pkgkafka.Permanent(errors.New("post deleted event without post id"))
	}

	if err := c.indexer.DeletePost(ctx, data.ID, data.TopicID); err != nil {
		return fmt.Errorf("delete post %d: %w", data.ID, err)
	}

	c.logger.InfoContext(ctx, "deleted post from event", slog.Int64("post_id", data.ID))
	return nil
}
