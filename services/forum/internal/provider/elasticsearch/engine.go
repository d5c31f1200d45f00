package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/provider"
)

// engine runs one forum query against an Elasticsearch index.
type engine struct {
	p     *Provider
	index string
	query domain.SearchQuery
}

type esCountResponse struct {
	Count int `json:"count"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Score  float64        `json:"_score"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type esAggregationResponse struct {
	Aggregations map[string]struct {
		Buckets []struct {
			Key      any `json:"key"`
			DocCount int `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

type esSuggestResponse struct {
	Suggest map[string][]struct {
		Text    string `json:"text"`
		Options []struct {
			Text  string  `json:"text"`
			Score float64 `json:"score"`
			Freq  int     `json:"freq"`
		} `json:"options"`
	} `json:"suggest"`
}

func (e *engine) Count(ctx context.Context) (int, error) {
	body := map[string]interface{}{"query": buildQuery(e.query)}
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count: marshal query: %w", err)
	}

	client := e.p.client
	res, err := client.Count(
		client.Count.WithIndex(e.index),
		client.Count.WithBody(bytes.NewReader(data)),
		client.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return 0, responseError("elasticsearch count", res)
	}

	var esResp esCountResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return 0, fmt.Errorf("elasticsearch count: decode response: %w", err)
	}
	return esResp.Count, nil
}

func (e *engine) Search(ctx context.Context) ([]domain.SearchHit, error) {
	if e.query.Take <= 0 {
		return []domain.SearchHit{}, nil
	}

	body := map[string]interface{}{
		"query":   buildQuery(e.query),
		"from":    e.query.Skip,
		"size":    e.query.Take,
		"_source": []string{domain.FieldTopicID, domain.FieldPostID},
		"sort": []interface{}{
			map[string]interface{}{"_score": "desc"},
			map[string]interface{}{domain.FieldPostID: "asc"},
		},
	}
	res, err := e.search(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	var esResp esSearchResponse
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		hits = append(hits, domain.SearchHit{ID: h.ID, Score: h.Score, Fields: h.Source})
	}
	return hits, nil
}

func (e *engine) FacetMap(ctx context.Context) (domain.FacetMap, error) {
	groups := []string{domain.FacetGroupCustomer, domain.FacetGroupForum}
	aggs := make(map[string]interface{}, len(groups))
	for _, g := range groups {
		aggs[g] = map[string]interface{}{
			"terms": map[string]interface{}{"field": g, "size": e.p.cfg.FacetSize},
		}
	}
	body := map[string]interface{}{
		"query": buildQuery(e.query),
		"size":  0,
		"aggs":  aggs,
	}
	res, err := e.search(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch facets: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	var esResp esAggregationResponse
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch facets: decode response: %w", err)
	}

	facets := make(domain.FacetMap, len(esResp.Aggregations))
	for name, agg := range esResp.Aggregations {
		group := &domain.FacetGroup{Name: name, Facets: make([]*domain.Facet, 0, len(agg.Buckets))}
		for _, b := range agg.Buckets {
			group.Facets = append(group.Facets, &domain.Facet{Value: fmt.Sprint(b.Key), Count: b.DocCount})
		}
		facets[name] = group
	}

	provider.LabelFacets(ctx, e.p.labels, facets, e.p.logger)
	return facets, nil
}

func (e *engine) CheckSpelling(ctx context.Context) ([]string, error) {
	term := strings.ToLower(strings.TrimSpace(e.query.Term))
	if term == "" {
		return []string{}, nil
	}

	body := map[string]interface{}{
		"size": 0,
		"suggest": map[string]interface{}{
			"text": term,
			"spelling": map[string]interface{}{
				"term": map[string]interface{}{
					"field":        fieldSpell,
					"suggest_mode": "missing",
					"sort":         "score",
					"max_edits":    2,
				},
			},
		},
	}
	res, err := e.search(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch suggest: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	var esResp esSuggestResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch suggest: decode response: %w", err)
	}

	entries := esResp.Suggest["spelling"]
	tokens := make([]string, len(entries))
	corrections := make([][]string, len(entries))
	for i, entry := range entries {
		tokens[i] = entry.Text
		for _, opt := range entry.Options {
			corrections[i] = append(corrections[i], opt.Text)
		}
	}
	return provider.AssembleSuggestions(tokens, corrections, e.p.cfg.MaxSuggestions), nil
}

// search posts body to the index's _search endpoint. The caller closes the
// response body.
func (e *engine) search(ctx context.Context, body map[string]interface{}) (*esapi.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	client := e.p.client
	res, err := client.Search(
		client.Search.WithIndex(e.index),
		client.Search.WithBody(bytes.NewReader(data)),
		client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		defer func() { _ = res.Body.Close() }()
		return nil, responseError("search", res)
	}
	return res, nil
}

// buildQuery constructs the bool query for a forum search.
func buildQuery(q domain.SearchQuery) map[string]interface{} {
	var must interface{}
	if term := strings.TrimSpace(q.Term); term != "" {
		must = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":    term,
				"fields":   searchFields(q.Filter.SearchIn),
				"type":     "best_fields",
				"operator": "and",
			},
		}
	} else {
		must = map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	}

	boolQuery := map[string]interface{}{
		"must": []interface{}{must},
	}
	if filters := buildFilters(q.Filter); len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	return map[string]interface{}{"bool": boolQuery}
}

func searchFields(in domain.SearchIn) []string {
	switch in {
	case domain.SearchInSubject:
		return []string{domain.FieldSubject}
	case domain.SearchInText:
		return []string{domain.FieldText}
	default:
		return []string{domain.FieldSubject + "^2", domain.FieldText}
	}
}

func buildFilters(f domain.SearchFilter) []interface{} {
	var filters []interface{}

	if len(f.ForumIDs) > 0 {
		ids := make([]string, 0, len(f.ForumIDs))
		for _, id := range f.ForumIDs {
			ids = append(ids, fmt.Sprint(id))
		}
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{domain.FieldForumID: ids},
		})
	}

	if f.CustomerID != nil {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{domain.FieldCustomerID: fmt.Sprint(*f.CustomerID)},
		})
	}

	if f.TopicID != nil {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{domain.FieldTopicID: *f.TopicID},
		})
	}

	if f.From != nil || f.To != nil {
		rangeFilter := map[string]interface{}{}
		if f.From != nil {
			rangeFilter["gte"] = *f.From
		}
		if f.To != nil {
			rangeFilter["lte"] = *f.To
		}
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{domain.FieldCreatedAt: rangeFilter},
		})
	}

	return filters
}
