// Package event fans forum search lifecycle notifications out to listeners
// and consumes post change events that keep the search index current.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
)

// Listener observes forum searches. Implementations must not block; slow work
// belongs on a goroutine the listener owns.
type Listener interface {
	// Searching is called after validation and before any backend is hit.
	Searching(ctx context.Context, query domain.SearchQuery)

	// Searched is called with the final result of a successful search.
	Searched(ctx context.Context, query domain.SearchQuery, result *domain.SearchResult)
}

// Bus dispatches search notifications to its listeners in subscription order.
// A panicking listener is logged and skipped; it never fails the search.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
	logger    *slog.Logger
}

// NewBus creates a bus with the given listeners.
func NewBus(logger *slog.Logger, listeners ...Listener) *Bus {
	return &Bus{
		listeners: listeners,
		logger:    logger,
	}
}

// Subscribe adds a listener.
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Searching notifies every listener that a search is starting.
func (b *Bus) Searching(ctx context.Context, query domain.SearchQuery) {
	b.each(ctx, "searching", func(l Listener) { l.Searching(ctx, query) })
}

// Searched notifies every listener that a search completed.
func (b *Bus) Searched(ctx context.Context, query domain.SearchQuery, result *domain.SearchResult) {
	b.each(ctx, "searched", func(l Listener) { l.Searched(ctx, query, result) })
}

func (b *Bus) each(ctx context.Context, name string, fn func(Listener)) {
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		b.dispatch(ctx, name, l, fn)
	}
}

func (b *Bus) dispatch(ctx context.Context, name string, l Listener, fn func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "search listener panicked",
				slog.String("event", name),
				slog.String("listener", fmt.Sprintf("%T", l)),
				slog.Any("panic", r),
			)
		}
	}()
	fn(l)
}
