package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"kafka-1:9092", "kafka-2:9092"})

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.False(t, cfg.Async)
	assert.Equal(t, kafka.Snappy, cfg.Compression)
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}
	const topic = "ecommerce.forum.publish-test"

	evt, err := NewEvent(topic, "refund", "forum_search", "forum-service", map[string]int{"total_count": 4})
	require.NoError(t, err)
	evt.WithCorrelationID("corr-5")

	require.NoError(t, p.Publish(context.Background(), topic, evt))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, "refund", string(msg.Key))
	assert.Equal(t, topic, header(msg, HeaderEventType))
	assert.Equal(t, "forum-service", header(msg, HeaderSource))
	assert.Equal(t, "corr-5", header(msg, HeaderCorrelationID))

	decoded, err := UnmarshalEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, evt.EventID, decoded.EventID)

	assert.Equal(t, 1.0, testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic)))
}

func TestProducer_PublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}
	const topic = "ecommerce.forum.publish-batch-test"

	var events []*Event
	for _, term := range []string{"refund", "shipping", "warranty"} {
		evt, err := NewEvent(topic, term, "forum_search", "forum-service", map[string]string{"term": term})
		require.NoError(t, err)
		events = append(events, evt)
	}

	require.NoError(t, p.Publish(context.Background(), topic, events...))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, 1, w.writes, "batch must be written in one call")
	for i, msg := range w.msgs {
		assert.Equal(t, events[i].AggregateID, string(msg.Key))
		assert.Empty(t, header(msg, HeaderCorrelationID))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic)))
}

func TestProducer_PublishNothing(t *testing.T) {
	w := &fakeWriter{err: errors.New("must not be called")}
	p := &Producer{writer: w, logger: testLogger()}

	require.NoError(t, p.Publish(context.Background(), "ecommerce.forum.empty"))
	assert.Zero(t, w.writes)
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &Producer{writer: w, logger: testLogger()}
	const topic = "ecommerce.forum.publish-error-test"

	evt, err := NewEvent(topic, "x", "forum_search", "forum-service", struct{}{})
	require.NoError(t, err)

	err = p.Publish(context.Background(), topic, evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Equal(t, 1.0, testutil.ToFloat64(ProducerPublishErrors.WithLabelValues(topic)))
	assert.Equal(t, 0.0, testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic)))
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers")
}

func TestPingBrokers_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := PingBrokers(ctx, []string{"127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all brokers unreachable")
}
