// Package notice collects request-scoped advisory messages that are returned
// alongside a response without affecting its outcome.
package notice

import (
	"context"
	"sync"
)

// Level classifies a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Codes of notices raised by the forum service.
const (
	CodeIndexMissing = "SEARCH_INDEX_MISSING"
)

// Notice is a message for the caller.
type Notice struct {
	Level   Level  `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Collector accumulates notices for one request. It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	notices []Notice
}

// Add appends n.
func (c *Collector) Add(n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, n)
}

// Notices returns a copy of the collected notices.
func (c *Collector) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notice, len(c.notices))
	copy(out, c.notices)
	return out
}

type contextKey struct{}

// NewContext returns a context carrying a fresh collector.
func NewContext(ctx context.Context) (context.Context, *Collector) {
	c := &Collector{}
	return context.WithValue(ctx, contextKey{}, c), c
}

// FromContext returns the collector carried by ctx, if any.
func FromContext(ctx context.Context) (*Collector, bool) {
	c, ok := ctx.Value(contextKey{}).(*Collector)
	return c, ok
}

// Add records n on the collector carried by ctx. It reports false when ctx
// carries no collector.
func Add(ctx context.Context, n Notice) bool {
	c, ok := FromContext(ctx)
	if !ok {
		return false
	}
	c.Add(n)
	return true
}

// ContextNotifier delivers notices to the collector carried by the request
// context.
type ContextNotifier struct{}

// Notify records n on ctx's collector. Notices for contexts without a
// collector are discarded.
func (ContextNotifier) Notify(ctx context.Context, n Notice) {
	Add(ctx, n)
}
