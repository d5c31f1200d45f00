package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DLQTopicPrefix is the default prefix for dead-letter queue topics.
const DLQTopicPrefix = TopicPrefix + ".dlq"

// Headers added to every dead-lettered message.
const (
	HeaderDLQOriginalTopic     = "dlq.original_topic"
	HeaderDLQOriginalPartition = "dlq.original_partition"
	HeaderDLQOriginalOffset    = "dlq.original_offset"
	HeaderDLQConsumerGroup     = "dlq.consumer_group"
	HeaderDLQError             = "dlq.error"
	HeaderDLQFailedAt          = "dlq.failed_at"
)

// DLQProducer parks messages that no handler could process on
// "<prefix>.<original topic>" so they can be inspected and replayed.
type DLQProducer struct {
	writer messageWriter
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewDLQProducer creates a DLQ producer writing to DLQTopicPrefix topics.
// Every write waits for all in-sync replicas.
func NewDLQProducer(brokers []string, logger *slog.Logger) *DLQProducer {
	return newDLQProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}, DLQTopicPrefix, logger)
}

func newDLQProducer(w messageWriter, prefix string, logger *slog.Logger) *DLQProducer {
	return &DLQProducer{writer: w, prefix: prefix, logger: logger, now: time.Now}
}

// DLQTopic returns the default dead-letter topic for originalTopic.
func DLQTopic(originalTopic string) string {
	return DLQTopicPrefix + "." + originalTopic
}

// Topic returns the dead-letter topic this producer uses for originalTopic.
func (d *DLQProducer) Topic(originalTopic string) string {
	return d.prefix + "." + originalTopic
}

// Publish copies msg to its dead-letter topic, keeping key, value and headers
// and recording where it came from and why it failed.
func (d *DLQProducer) Publish(ctx context.Context, msg kafka.Message, lastErr error, consumerGroup string) error {
	topic := d.Topic(msg.Topic)

	headers := make([]kafka.Header, 0, len(msg.Headers)+6)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderDLQOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderDLQOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderDLQOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderDLQConsumerGroup, Value: []byte(consumerGroup)},
		kafka.Header{Key: HeaderDLQFailedAt, Value: []byte(d.now().UTC().Format(time.RFC3339))},
	)
	if lastErr != nil {
		headers = append(headers, kafka.Header{Key: HeaderDLQError, Value: []byte(lastErr.Error())})
	}

	attrs := []any{
		slog.String("dlq_topic", topic),
		slog.String("original_topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("consumer_group", consumerGroup),
	}

	err := d.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to publish message to DLQ", append(attrs, slog.String("error", err.Error()))...)
		return fmt.Errorf("publish to DLQ %s: %w", topic, err)
	}

	d.logger.WarnContext(ctx, "message sent to DLQ", attrs...)
	return nil
}

// Close closes the DLQ producer.
func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
