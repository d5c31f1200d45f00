package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func useTraceContext(t *testing.T) {
	t.Helper()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
}

func spanContext(t *testing.T) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
}

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: HeaderEventType, Value: []byte("ecommerce.forum.post.created")}}
	c := NewHeaderCarrier(&headers)

	assert.Equal(t, "ecommerce.forum.post.created", c.Get(HeaderEventType))
	assert.Empty(t, c.Get("missing"))

	c.Set("baggage", "tenant=eu")
	c.Set(HeaderEventType, "ecommerce.forum.post.updated")

	assert.Len(t, headers, 2, "Set replaces an existing key")
	assert.Equal(t, "ecommerce.forum.post.updated", c.Get(HeaderEventType))
	assert.ElementsMatch(t, []string{HeaderEventType, "baggage"}, c.Keys())
}

func TestTraceContext_RoundTrip(t *testing.T) {
	useTraceContext(t)
	sc := spanContext(t)

	var headers []kafka.Header
	InjectTraceContext(trace.ContextWithSpanContext(context.Background(), sc), &headers)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", header(kafka.Message{Headers: headers}, "traceparent"))

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	assert.True(t, got.IsValid())
	assert.Equal(t, sc.TraceID(), got.TraceID())
	assert.Equal(t, sc.SpanID(), got.SpanID())
	assert.True(t, got.IsRemote())
}

func TestTraceContext_NoSpanAddsNothing(t *testing.T) {
	useTraceContext(t)

	var headers []kafka.Header
	InjectTraceContext(context.Background(), &headers)
	assert.Empty(t, headers)

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	assert.False(t, got.IsValid())
}

func TestProducer_PublishCarriesTraceContext(t *testing.T) {
	useTraceContext(t)
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}

	evt, err := NewEvent("ecommerce.forum.trace-test", "7", "forum_post", "forum-service", map[string]int{"id": 7})
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), spanContext(t))
	require.NoError(t, p.Publish(ctx, "ecommerce.forum.trace-test", evt))

	require.Len(t, w.msgs, 1)
	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), w.msgs[0].Headers))
	assert.Equal(t, spanContext(t).TraceID(), got.TraceID())
}
