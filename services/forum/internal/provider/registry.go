package provider

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
)

// Registry resolves index providers by search domain. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register binds a provider to a search domain, replacing any previous one.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Unregister removes the provider for a search domain.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
}

// IndexProvider returns the provider registered for the search domain.
func (r *Registry) IndexProvider(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// LabelFacets resolves labels for every group in facets through labels. A
// failing lookup leaves the raw values in place and is only logged.
func LabelFacets(ctx context.Context, labels LabelFunc, facets domain.FacetMap, logger *slog.Logger) {
	if labels == nil {
		for _, g := range facets {
			g.ApplyLabels(nil)
		}
		return
	}
	for name, g := range facets {
		resolved, err := labels(ctx, name, g.Values())
		if err != nil {
			logger.WarnContext(ctx, "facet label lookup failed",
				slog.String("group", name),
				slog.String("error", err.Error()),
			)
		}
		g.ApplyLabels(resolved)
	}
}

// AssembleSuggestions builds up to limit corrected phrases from the query
// tokens. corrections[i] holds the ranked alternatives for tokens[i] and is
// empty when the token is spelled correctly. The n-th phrase uses each
// token's n-th alternative, or its best one when it has fewer.
func AssembleSuggestions(tokens []string, corrections [][]string, limit int) []string {
	width := 0
	for _, c := range corrections {
		width = max(width, len(c))
	}
	width = min(width, limit)

	out := make([]string, 0, width)
	seen := make(map[string]struct{}, width)
	for n := 0; n < width; n++ {
		words := make([]string, len(tokens))
		for i, tok := range tokens {
			var c []string
			if i < len(corrections) {
				c = corrections[i]
			}
			switch {
			case len(c) == 0:
				words[i] = tok
			case n < len(c):
				words[i] = c[n]
			default:
				words[i] = c[0]
			}
		}
		phrase := strings.Join(words, " ")
		if _, dup := seen[phrase]; dup {
			continue
		}
		seen[phrase] = struct{}{}
		out = append(out, phrase)
	}
	return out
}
