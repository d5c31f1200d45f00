package event

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	pkgkafka "github.com/utafrali/EcommerceGo/pkg/kafka"
	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
)

const (
	aggregateType = "forum_search"
	eventSource   = "forum-service"
	publishWait   = 5 * time.Second
	// maxBatch bounds how many queued events go out in one write.
	maxBatch = 64
)

// TopicSearched carries one message per completed forum search.
var TopicSearched = pkgkafka.Topic("forum", "searched")

var searchedEventsDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "forum_searched_events_dropped_total",
		Help: "Total number of forum searched events dropped because the publish buffer was full",
	},
)

// Publisher sends events to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, events ...*pkgkafka.Event) error
}

// SearchedData is the payload of a forum searched event.
type SearchedData struct {
	Term        string    `json:"term"`
	Skip        int       `json:"skip"`
	Take        int       `json:"take"`
	Origin      string    `json:"origin,omitempty"`
	Source      string    `json:"source"`
	TotalCount  int       `json:"total_count"`
	Suggestions []string  `json:"suggestions,omitempty"`
	ForumIDs    []int64   `json:"forum_ids,omitempty"`
	SearchedAt  time.Time `json:"searched_at"`
}

// KafkaListener publishes completed searches to Kafka. Searched never blocks
// the caller: events are queued on a bounded buffer drained by Run, and are
// dropped when the buffer is full.
type KafkaListener struct {
	publisher Publisher
	queue     chan *pkgkafka.Event
	logger    *slog.Logger

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	dropped func()
}

// NewKafkaListener creates a listener with a buffer of size events.
func NewKafkaListener(publisher Publisher, size int, logger *slog.Logger) *KafkaListener {
	if size <= 0 {
		size = 256
	}
	return &KafkaListener{
		publisher: publisher,
		queue:     make(chan *pkgkafka.Event, size),
		logger:    logger,
		done:      make(chan struct{}),
		dropped:   searchedEventsDropped.Inc,
	}
}

// Searching is a no-op; only completed searches are published.
func (l *KafkaListener) Searching(context.Context, domain.SearchQuery) {}

// Searched queues an event describing the completed search.
func (l *KafkaListener) Searched(ctx context.Context, q domain.SearchQuery, res *domain.SearchResult) {
	data := SearchedData{
		Term:        q.Term,
		Skip:        res.Query().Skip,
		Take:        q.Take,
		Origin:      q.Origin,
		Source:      res.Source(),
		TotalCount:  res.TotalCount(),
		Suggestions: res.Suggestions(),
		ForumIDs:    q.Filter.ForumIDs,
		SearchedAt:  time.Now().UTC(),
	}

	evt, err := pkgkafka.NewEventFromContext(ctx, TopicSearched, strings.ToLower(q.Term), aggregateType, eventSource, data)
	if err != nil {
		l.logger.WarnContext(ctx, "failed to build searched event", slog.String("error", err.Error()))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	select {
	case l.queue <- evt:
	default:
		l.dropped()
		l.logger.WarnContext(ctx, "searched event dropped, publish buffer full",
			slog.String("term", q.Term),
		)
	}
}

// Run publishes queued events until Close is called and the queue is drained.
// Events already waiting in the queue are written together, up to maxBatch.
func (l *KafkaListener) Run(ctx context.Context) {
	defer close(l.done)
	batch := make([]*pkgkafka.Event, 0, maxBatch)
	for evt := range l.queue {
		batch = append(batch[:0], evt)
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-l.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		l.publish(ctx, batch)
	}
}

func (l *KafkaListener) publish(ctx context.Context, batch []*pkgkafka.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishWait)
	defer cancel()
	if err := l.publisher.Publish(pubCtx, TopicSearched, batch...); err != nil {
		l.logger.WarnContext(ctx, "failed to publish searched events",
			slog.Int("count", len(batch)),
			slog.String("first_event_id", batch[0].EventID),
			slog.String("error", err.Error()),
		)
	}
}

// Close stops accepting events and waits for Run to drain the queue. It must
// only be called after Run has been started.
func (l *KafkaListener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
}
