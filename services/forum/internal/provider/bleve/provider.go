// Package bleve implements the forum index provider on a local bleve index.
// With an empty directory every store lives in memory; otherwise each store
// is persisted under its own subdirectory.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/provider"
)

// ProviderName identifies the bleve backend.
const ProviderName = "bleve"

// Config tunes the bleve provider.
type Config struct {
	// Dir is the root directory for on-disk indexes. Empty keeps indexes in
	// memory.
	Dir string

	FacetSize           int
	MaxSuggestions      int
	SuggestionCacheSize int
}

func (c Config) withDefaults() Config {
	if c.FacetSize <= 0 {
		c.FacetSize = 10
	}
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = 3
	}
	if c.SuggestionCacheSize <= 0 {
		c.SuggestionCacheSize = 512
	}
	return c
}

// Provider serves forum searches from bleve indexes, one per store name.
type Provider struct {
	cfg     Config
	labels  provider.LabelFunc
	logger  *slog.Logger
	mu      sync.RWMutex
	indexes map[string]bleve.Index
	spell   *lru.Cache[string, []string]
}

var (
	_ provider.Provider = (*Provider)(nil)
	_ provider.Indexer  = (*Provider)(nil)
)

// New creates a bleve provider. labels may be nil, in which case facets are
// labelled with their raw values.
func New(cfg Config, labels provider.LabelFunc, logger *slog.Logger) (*Provider, error) {
	cfg = cfg.withDefaults()
	spell, err := lru.New[string, []string](cfg.SuggestionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create suggestion cache: %w", err)
	}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir %s: %w", cfg.Dir, err)
		}
	}
	return &Provider{
		cfg:     cfg,
		labels:  labels,
		logger:  logger,
		indexes: make(map[string]bleve.Index),
		spell:   spell,
	}, nil
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return ProviderName }

// IndexStore implements provider.Provider.
func (p *Provider) IndexStore(_ context.Context, name string) (provider.Store, error) {
	if name == "" {
		return nil, errors.New("bleve: empty store name")
	}
	return &store{p: p, name: name}, nil
}

// SearchEngine implements provider.Provider.
func (p *Provider) SearchEngine(s provider.Store, query domain.SearchQuery) provider.Engine {
	return &engine{p: p, name: s.Name(), query: query}
}

// CreateIndex implements provider.Indexer.
func (p *Provider) CreateIndex(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.dropLocked(name); err != nil {
		return err
	}

	var (
		idx bleve.Index
		err error
	)
	if p.cfg.Dir == "" {
		idx, err = bleve.NewMemOnly(buildIndexMapping())
	} else {
		idx, err = bleve.New(p.path(name), buildIndexMapping())
	}
	if err != nil {
		return fmt.Errorf("bleve: create index %s: %w", name, err)
	}
	p.indexes[name] = idx
	p.purgeSuggestions(name)

	p.logger.Info("bleve index created",
		slog.String("store", name),
		slog.Bool("in_memory", p.cfg.Dir == ""),
	)
	return nil
}

// DeleteIndex implements provider.Indexer.
func (p *Provider) DeleteIndex(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeSuggestions(name)
	return p.dropLocked(name)
}

// IndexPosts implements provider.Indexer.
func (p *Provider) IndexPosts(_ context.Context, name string, posts []domain.Post) error {
	if len(posts) == 0 {
		return nil
	}
	idx, err := p.index(name)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for _, post := range posts {
		if err := batch.Index(docID(post.ID), newPostDocument(post)); err != nil {
			return fmt.Errorf("bleve: index post %d: %w", post.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("bleve: execute batch: %w", err)
	}
	p.purgeSuggestions(name)
	return nil
}

// DeletePost implements provider.Indexer.
func (p *Provider) DeletePost(_ context.Context, name string, postID int64) error {
	idx, err := p.index(name)
	if err != nil {
		return err
	}
	if err := idx.Delete(docID(postID)); err != nil {
		return fmt.Errorf("bleve: delete post %d: %w", postID, err)
	}
	p.purgeSuggestions(name)
	return nil
}

// PromoteIndex implements provider.Indexer. In memory the staging index
// is moved under name; on disk its directory is renamed and reopened while
// the provider lock is held, so no search observes a missing or partial
// index in between.
func (p *Provider) PromoteIndex(_ context.Context, staging, name string) error {
	if staging == name {
		return fmt.Errorf("bleve: promote %s onto itself", name)
	}
	if _, err := p.index(staging); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.indexes[staging]
	if p.cfg.Dir != "" {
		if err := idx.Close(); err != nil {
			return fmt.Errorf("bleve: close staging index %s: %w", staging, err)
		}
		delete(p.indexes, staging)
		if err := p.dropLocked(name); err != nil {
			return err
		}
		if err := os.Rename(p.path(staging), p.path(name)); err != nil {
			return fmt.Errorf("bleve: rename %s to %s: %w", staging, name, err)
		}
		reopened, err := bleve.Open(p.path(name))
		if err != nil {
			return fmt.Errorf("bleve: open promoted index %s: %w", name, err)
		}
		idx = reopened
	} else {
		delete(p.indexes, staging)
		if err := p.dropLocked(name); err != nil {
			return err
		}
	}
	p.indexes[name] = idx
	p.purgeSuggestions(staging)
	p.purgeSuggestions(name)

	p.logger.Info("bleve index promoted",
		slog.String("store", name),
		slog.String("staging", staging),
	)
	return nil
}

// Close closes every open index.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, idx := range p.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(p.indexes, name)
	}
	return errors.Join(errs...)
}

// index returns the open index for name, opening an on-disk index lazily.
func (p *Provider) index(name string) (bleve.Index, error) {
	p.mu.RLock()
	idx, ok := p.indexes[name]
	p.mu.RUnlock()
	if ok {
		return idx, nil
	}

	if p.cfg.Dir == "" {
		return nil, fmt.Errorf("bleve: index %s does not exist", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if idx, ok := p.indexes[name]; ok {
		return idx, nil
	}
	idx, err := bleve.Open(p.path(name))
	if err != nil {
		return nil, fmt.Errorf("bleve: open index %s: %w", name, err)
	}
	p.indexes[name] = idx
	return idx, nil
}

// exists reports whether the store has an open or openable index.
func (p *Provider) exists(name string) (bool, error) {
	p.mu.RLock()
	_, ok := p.indexes[name]
	p.mu.RUnlock()
	if ok || p.cfg.Dir == "" {
		return ok, nil
	}

	info, err := os.Stat(filepath.Join(p.path(name), "index_meta.json"))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("bleve: stat index %s: %w", name, err)
	}
	return info.Size() > 0, nil
}

func (p *Provider) dropLocked(name string) error {
	if idx, ok := p.indexes[name]; ok {
		if err := idx.Close(); err != nil {
			p.logger.Warn("bleve index close failed",
				slog.String("store", name),
				slog.String("error", err.Error()),
			)
		}
		delete(p.indexes, name)
	}
	if p.cfg.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(p.path(name)); err != nil {
		return fmt.Errorf("bleve: remove index %s: %w", name, err)
	}
	return nil
}

func (p *Provider) path(name string) string {
	return filepath.Join(p.cfg.Dir, strings.ToLower(name)+".bleve")
}

func (p *Provider) purgeSuggestions(name string) {
	prefix := name + "\x00"
	for _, key := range p.spell.Keys() {
		if strings.HasPrefix(key, prefix) {
			p.spell.Remove(key)
		}
	}
}

// store is a named bleve index.
type store struct {
	p    *Provider
	name string
}

func (s *store) Name() string { return s.name }

func (s *store) Exists(_ context.Context) (bool, error) {
	return s.p.exists(s.name)
}
