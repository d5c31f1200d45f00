package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/utafrali/EcommerceGo/pkg/logger"
)

const (
	// defaultMaxAttempts bounds how often a handler sees one message before it
	// is parked as a poison pill.
	defaultMaxAttempts = 3
	defaultRetryDelay  = 100 * time.Millisecond
)

// Handler is a function that processes a Kafka event.
type Handler func(ctx context.Context, event *Event) error

// ErrPermanent marks handler errors that another attempt cannot fix. Such a
// message is dead-lettered after its first failure.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err with ErrPermanent.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string

	// Topics subscribes the group to several topics at once. It takes
	// precedence over Topic and requires a GroupID.
	Topics []string

	MinBytes int
	MaxBytes int

	// MaxAttempts defaults to 3. RetryDelay is multiplied by the attempt
	// number between attempts and defaults to 100ms.
	MaxAttempts int
	RetryDelay  time.Duration

	// DLQ receives messages that are invalid or failed every attempt. Nil
	// drops them.
	DLQ *DLQProducer
}

// messageReader is the part of *kafka.Reader used by the consumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads events from Kafka and hands them to a Handler. A message is
// committed once it was handled, dead-lettered or dropped, so a poison
// message never blocks its partition.
type Consumer struct {
	reader      messageReader
	logger      *slog.Logger
	handler     Handler
	group       string
	topics      []string
	maxAttempts int
	retryDelay  time.Duration
	dlq         *DLQProducer
	closeOnce   sync.Once
	closeErr    error
}

// NewConsumer creates a new Kafka consumer for the configured topics and group.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	}
	topics := []string{cfg.Topic}
	if len(cfg.Topics) > 0 {
		rc.GroupTopics = cfg.Topics
		topics = cfg.Topics
	} else {
		rc.Topic = cfg.Topic
	}

	return newConsumer(kafka.NewReader(rc), cfg, topics, handler, logger)
}

func newConsumer(r messageReader, cfg ConsumerConfig, topics []string, handler Handler, logger *slog.Logger) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Consumer{
		reader:      r,
		logger:      logger,
		handler:     handler,
		group:       cfg.GroupID,
		topics:      topics,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		dlq:         cfg.DLQ,
	}
}

// Start consumes messages until ctx is canceled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.Any("topics", c.topics),
		slog.String("group", c.group),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("consumer stopping", slog.Any("topics", c.topics))
				return c.Close()
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
			case <-time.After(c.retryDelay):
			}
			continue
		}

		if !c.process(ctx, msg) {
			return c.Close()
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// process handles one message. It returns false when ctx was canceled
// before the message was settled, in which case it must not be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	ConsumerMessagesReceived.WithLabelValues(msg.Topic, c.group).Inc()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		ConsumerMessagesInvalid.WithLabelValues(msg.Topic, c.group).Inc()
		c.logger.Error("invalid event envelope",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		c.deadLetter(ctx, msg, err)
		return true
	}

	handlerCtx := ExtractTraceContext(ctx, msg.Headers)
	if event.CorrelationID != "" {
		handlerCtx = logger.WithCorrelationID(handlerCtx, event.CorrelationID)
	}
	start := time.Now()
	defer func() {
		ConsumerProcessingDuration.WithLabelValues(msg.Topic, c.group).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if lastErr = c.handler(handlerCtx, event); lastErr == nil {
			ConsumerMessagesProcessed.WithLabelValues(msg.Topic, c.group).Inc()
			return true
		}

		c.logger.Warn("handler failed",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.maxAttempts),
			slog.String("error", lastErr.Error()),
		)
		if attempt == c.maxAttempts || errors.Is(lastErr, ErrPermanent) {
			break
		}

		ConsumerHandlerRetries.WithLabelValues(msg.Topic, c.group).Inc()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * c.retryDelay):
		}
	}

	ConsumerMessagesFailed.WithLabelValues(msg.Topic, c.group).Inc()
	c.logger.Error("handler failed after all attempts, skipping message",
		slog.String("event_type", event.EventType),
		slog.String("event_id", event.EventID),
		slog.String("topic", msg.Topic),
		slog.Int64("offset", msg.Offset),
		slog.String("error", lastErr.Error()),
	)
	c.deadLetter(ctx, msg, lastErr)
	return true
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err == nil {
		ConsumerDLQPublished.WithLabelValues(msg.Topic, c.group).Inc()
	}
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.reader.Close()
	})
	return c.closeErr
}
