package bleve

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/provider"
)

// engine runs one forum query against a bleve index.
type engine struct {
	p     *Provider
	name  string
	query domain.SearchQuery
}

func (e *engine) Count(ctx context.Context) (int, error) {
	idx, err := e.p.index(e.name)
	if err != nil {
		return 0, err
	}
	req := bleve.NewSearchRequestOptions(buildQuery(e.query), 0, 0, false)
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("bleve: count: %w", err)
	}
	return int(res.Total), nil
}

func (e *engine) Search(ctx context.Context) ([]domain.SearchHit, error) {
	if e.query.Take <= 0 {
		return []domain.SearchHit{}, nil
	}
	idx, err := e.p.index(e.name)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(buildQuery(e.query), e.query.Take, e.query.Skip, false)
	req.Fields = []string{domain.FieldTopicID, domain.FieldPostID}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve: search: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, domain.SearchHit{
			ID:     h.ID,
			Score:  h.Score,
			Fields: h.Fields,
		})
	}
	return hits, nil
}

func (e *engine) FacetMap(ctx context.Context) (domain.FacetMap, error) {
	idx, err := e.p.index(e.name)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(buildQuery(e.query), 0, 0, false)
	for _, group := range []string{domain.FacetGroupCustomer, domain.FacetGroupForum} {
		req.AddFacet(group, bleve.NewFacetRequest(group, e.p.cfg.FacetSize))
	}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve: facets: %w", err)
	}

	facets := make(domain.FacetMap, len(res.Facets))
	for name, fr := range res.Facets {
		group := &domain.FacetGroup{Name: name, Facets: []*domain.Facet{}}
		if fr.Terms != nil {
			for _, t := range fr.Terms.Terms() {
				group.Facets = append(group.Facets, &domain.Facet{Value: t.Term, Count: t.Count})
			}
		}
		facets[name] = group
	}

	provider.LabelFacets(ctx, e.p.labels, facets, e.p.logger)
	return facets, nil
}

func (e *engine) CheckSpelling(ctx context.Context) ([]string, error) {
	return e.p.suggest(ctx, e.name, e.query.Term)
}

// buildQuery translates a forum query into a bleve query. An empty term
// matches every post, narrowed by the filter.
func buildQuery(q domain.SearchQuery) query.Query {
	var must []query.Query

	if term := strings.TrimSpace(q.Term); term != "" {
		must = append(must, termQuery(term, q.Filter.SearchIn))
	}

	f := q.Filter
	if len(f.ForumIDs) > 0 {
		forums := make([]query.Query, 0, len(f.ForumIDs))
		for _, id := range f.ForumIDs {
			forums = append(forums, keywordQuery(domain.FieldForumID, id))
		}
		must = append(must, bleve.NewDisjunctionQuery(forums...))
	}
	if f.CustomerID != nil {
		must = append(must, keywordQuery(domain.FieldCustomerID, *f.CustomerID))
	}
	if f.TopicID != nil {
		v := float64(*f.TopicID)
		inclusive := true
		tq := bleve.NewNumericRangeInclusiveQuery(&v, &v, &inclusive, &inclusive)
		tq.SetField(domain.FieldTopicID)
		must = append(must, tq)
	}
	if f.From != nil || f.To != nil {
		var from, to time.Time
		if f.From != nil {
			from = *f.From
		}
		if f.To != nil {
			to = *f.To
		}
		inclusive := true
		dq := bleve.NewDateRangeInclusiveQuery(from, to, &inclusive, &inclusive)
		dq.SetField(domain.FieldCreatedAt)
		must = append(must, dq)
	}

	switch len(must) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return must[0]
	default:
		return bleve.NewConjunctionQuery(must...)
	}
}

func termQuery(term string, in domain.SearchIn) query.Query {
	match := func(field string) query.Query {
		mq := bleve.NewMatchQuery(term)
		mq.SetField(field)
		mq.SetOperator(query.MatchQueryOperatorAnd)
		return mq
	}
	switch in {
	case domain.SearchInSubject:
		return match(domain.FieldSubject)
	case domain.SearchInText:
		return match(domain.FieldText)
	default:
		return bleve.NewDisjunctionQuery(match(domain.FieldSubject), match(domain.FieldText))
	}
}

func keywordQuery(field string, id int64) query.Query {
	tq := bleve.NewTermQuery(strconv.FormatInt(id, 10))
	tq.SetField(field)
	return tq
}
