// Package elasticsearch implements the forum index provider on an
// Elasticsearch cluster.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/provider"
)

// ProviderName identifies the Elasticsearch backend.
const ProviderName = "elasticsearch"

// Config configures the Elasticsearch provider.
type Config struct {
	URL            string
	IndexPrefix    string
	FacetSize      int
	MaxSuggestions int

	// Transport replaces the client's HTTP transport, e.g. with a circuit
	// breaker. Nil uses the client default.
	Transport http.RoundTripper
}

// Provider serves forum searches from Elasticsearch indexes.
type Provider struct {
	client *elasticsearch.Client
	cfg    Config
	labels provider.LabelFunc
	logger *slog.Logger
}

var (
	_ provider.Provider = (*Provider)(nil)
	_ provider.Indexer  = (*Provider)(nil)
)

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// New creates an Elasticsearch provider. Unlike the bleve provider it does
// not create indexes; an absent index makes searches fall back to storage
// until a reindex runs.
func New(cfg Config, labels provider.LabelFunc, logger *slog.Logger) (*Provider, error) {
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = DefaultIndexPrefix
	}
	if cfg.FacetSize <= 0 {
		cfg.FacetSize = 10
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 3
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	return &Provider{
		client: client,
		cfg:    cfg,
		labels: labels,
		logger: logger,
	}, nil
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return ProviderName }

// IndexStore implements provider.Provider.
func (p *Provider) IndexStore(_ context.Context, name string) (provider.Store, error) {
	if name == "" {
		return nil, fmt.Errorf("elasticsearch: empty store name")
	}
	return &store{p: p, name: name}, nil
}

// SearchEngine implements provider.Provider.
func (p *Provider) SearchEngine(s provider.Store, query domain.SearchQuery) provider.Engine {
	return &engine{p: p, index: p.indexName(s.Name()), query: query}
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	res, err := p.client.Ping(p.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// CreateIndex implements provider.Indexer.
func (p *Provider) CreateIndex(ctx context.Context, name string) error {
	if err := p.DeleteIndex(ctx, name); err != nil {
		return err
	}

	index := p.indexName(name)
	res, err := p.client.Indices.Create(
		index,
		p.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
		p.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch create index", res)
	}

	p.logger.InfoContext(ctx, "elasticsearch index created", slog.String("index", index))
	return nil
}

// DeleteIndex implements provider.Indexer. A promoted store is an alias,
// so the indexes behind it are deleted. A 404 response is treated as
// success.
func (p *Provider) DeleteIndex(ctx context.Context, name string) error {
	index := p.indexName(name)
	targets, err := p.aliasTargets(ctx, index)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		targets = []string{index}
	}

	res, err := p.client.Indices.Delete(
		targets,
		p.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete index", res)
	}
	return nil
}

// aliasAction is one entry of an _aliases request.
type aliasAction map[string]map[string]string

// PromoteIndex implements provider.Indexer. The store name becomes an alias
// of the staging index. Moving the alias and deleting the indexes it pointed
// at, or a plain index of the same name, is one atomic _aliases request.
func (p *Provider) PromoteIndex(ctx context.Context, staging, name string) error {
	alias := p.indexName(name)
	target := p.indexName(staging)
	if alias == target {
		return fmt.Errorf("elasticsearch promote index: %s onto itself", alias)
	}

	previous, err := p.aliasTargets(ctx, alias)
	if err != nil {
		return err
	}
	if len(previous) == 0 {
		concrete, err := p.indexExists(ctx, alias)
		if err != nil {
			return err
		}
		if concrete {
			previous = []string{alias}
		}
	}

	actions := make([]aliasAction, 0, len(previous)+1)
	for _, index := range previous {
		if index != target {
			actions = append(actions, aliasAction{"remove_index": {"index": index}})
		}
	}
	actions = append(actions, aliasAction{"add": {"index": target, "alias": alias}})

	body, err := json.Marshal(map[string]any{"actions": actions})
	if err != nil {
		return fmt.Errorf("elasticsearch promote index: encode actions: %w", err)
	}
	res, err := p.client.Indices.UpdateAliases(
		bytes.NewReader(body),
		p.client.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch promote index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch promote index", res)
	}

	p.logger.InfoContext(ctx, "elasticsearch index promoted",
		slog.String("alias", alias),
		slog.String("index", target),
		slog.Int("replaced", len(previous)),
	)
	return nil
}

// aliasTargets returns the indexes alias points at. A missing alias yields
// none.
func (p *Provider) aliasTargets(ctx context.Context, alias string) ([]string, error) {
	res, err := p.client.Indices.GetAlias(
		p.client.Indices.GetAlias.WithName(alias),
		p.client.Indices.GetAlias.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get alias: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, responseError("elasticsearch get alias", res)
	}

	var byIndex map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&byIndex); err != nil {
		return nil, fmt.Errorf("elasticsearch get alias: decode response: %w", err)
	}
	targets := make([]string, 0, len(byIndex))
	for index := range byIndex {
		targets = append(targets, index)
	}
	sort.Strings(targets)
	return targets, nil
}

func (p *Provider) indexExists(ctx context.Context, index string) (bool, error) {
	res, err := p.client.Indices.Exists(
		[]string{index},
		p.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("elasticsearch index exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("elasticsearch index exists: unexpected status %s", res.Status())
	}
}

// IndexPosts implements provider.Indexer using the bulk NDJSON API.
func (p *Provider) IndexPosts(ctx context.Context, name string, posts []domain.Post) error {
	if len(posts) == 0 {
		return nil
	}

	index := p.indexName(name)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range posts {
		action := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": index,
				"_id":    strconv.FormatInt(posts[i].ID, 10),
			},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		if err := enc.Encode(newPostDocument(posts[i])); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := p.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		p.client.Bulk.WithIndex(index),
		p.client.Bulk.WithRefresh("true"),
		p.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch bulk index", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}
	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			if item.Index.Error.Type != "" {
				errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s: %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
			}
		}
		return fmt.Errorf("elasticsearch bulk index: partial errors: %s", strings.Join(errMsgs, "; "))
	}

	p.logger.DebugContext(ctx, "bulk indexed posts",
		slog.String("index", index),
		slog.Int("count", len(posts)),
	)
	return nil
}

// DeletePost implements provider.Indexer. Missing documents are ignored.
func (p *Provider) DeletePost(ctx context.Context, name string, postID int64) error {
	res, err := p.client.Delete(
		p.indexName(name),
		strconv.FormatInt(postID, 10),
		p.client.Delete.WithRefresh("true"),
		p.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete", res)
	}
	return nil
}

func (p *Provider) indexName(name string) string {
	return p.cfg.IndexPrefix + strings.ToLower(name)
}

// responseError turns an error response into an error carrying the
// Elasticsearch error type and reason when the body has them. Only an
// overloaded or unavailable cluster keeps its status; anything else is a
// server-side failure of the search, never the caller's fault.
func responseError(op string, res *esapi.Response) error {
	err := httpclient.ParseErrorBody(res.StatusCode, res.Body, ProviderName)
	if errors.Is(err, apperrors.ErrServiceUnavail) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %v", op, err)
}

// store is a named Elasticsearch index.
type store struct {
	p    *Provider
	name string
}

func (s *store) Name() string { return s.name }

func (s *store) Exists(ctx context.Context) (bool, error) {
	return s.p.indexExists(ctx, s.p.indexName(s.name))
}
