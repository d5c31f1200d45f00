package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/utafrali/EcommerceGo/pkg/httputil"
	"github.com/utafrali/EcommerceGo/pkg/pagination"
	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/notice"
	"github.com/utafrali/EcommerceGo/services/forum/internal/service"
)

// SearchHandler handles HTTP requests for forum search.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new forum search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Response DTOs ---

// SearchResponse is the JSON body of a forum search. Page, PerPage and Skip
// describe the page actually served, after any correction.
type SearchResponse struct {
	Term        string                            `json:"term"`
	Source      string                            `json:"source"`
	TotalCount  int                               `json:"total_count"`
	Page        int                               `json:"page"`
	PerPage     int                               `json:"per_page"`
	Skip        int                               `json:"skip"`
	Topics      *pagination.Result[*domain.Topic] `json:"topics,omitempty"`
	Facets      domain.FacetMap                   `json:"facets"`
	Suggestions []string                          `json:"suggestions"`
}

// --- Handlers ---

// Search handles GET /api/v1/forum/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query, direct, err := parseSearchQuery(r)
	if err != nil {
		writeParamError(w, err.Error())
		return
	}

	ctx, notices := notice.NewContext(r.Context())

	result, err := h.service.Search(ctx, query, direct)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	// The service may have moved skip back onto the last page.
	served := result.Query()
	page := pagination.FromOffset(served.Skip, served.Take)
	resp := SearchResponse{
		Term:        served.Term,
		Source:      result.Source(),
		TotalCount:  result.TotalCount(),
		Page:        page.Page,
		PerPage:     served.Take,
		Skip:        served.Skip,
		Facets:      result.Facets(),
		Suggestions: result.Suggestions(),
	}
	if resp.Facets == nil {
		resp.Facets = domain.FacetMap{}
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []string{}
	}

	if result.HasTopics() {
		topics, err := result.Topics(ctx)
		if err != nil {
			httputil.WriteError(w, r, fmt.Errorf("load topics: %w", err), h.logger)
			return
		}
		topicsPage := pagination.NewResult(topics, result.TotalCount(), page)
		resp.Topics = &topicsPage
	}

	out := httputil.Response{Data: resp}
	if n := notices.Notices(); len(n) > 0 {
		out.Notices = n
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// paramError is a malformed query string parameter.
type paramError struct {
	msg string
}

func (e *paramError) Error() string { return e.msg }

func invalidParam(format string, args ...any) error {
	return &paramError{msg: fmt.Sprintf(format, args...)}
}

func writeParamError(w http.ResponseWriter, msg string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: msg},
	})
}

// parseSearchQuery builds the search query from the request's query string.
// per_page=0 (or take=0) requests counts and suggestions without hits.
func parseSearchQuery(r *http.Request) (domain.SearchQuery, bool, error) {
	values := r.URL.Query()
	params, err := pagination.Parse(values)
	if err != nil {
		return domain.SearchQuery{}, false, invalidParam("%s", err.Error())
	}

	query := domain.SearchQuery{
		Term:   strings.TrimSpace(values.Get("q")),
		Skip:   params.Offset,
		Take:   params.PerPage,
		Origin: strings.TrimSpace(values.Get("origin")),
	}

	flags := []struct {
		name string
		flag domain.ResultFlags
	}{
		{name: "hits", flag: domain.WithHits},
		{name: "facets", flag: domain.WithFacets},
		{name: "suggestions", flag: domain.WithSuggestions},
	}
	for _, f := range flags {
		on, err := parseBool(values, f.name, true)
		if err != nil {
			return query, false, err
		}
		if on {
			query.Flags |= f.flag
		}
	}

	direct, err := parseBool(values, "direct", false)
	if err != nil {
		return query, false, err
	}

	forumIDs, err := parseIDList(values, "forum_id")
	if err != nil {
		return query, false, err
	}
	query.Filter.ForumIDs = forumIDs

	if query.Filter.CustomerID, err = parseID(values, "customer_id"); err != nil {
		return query, false, err
	}
	if query.Filter.TopicID, err = parseID(values, "topic_id"); err != nil {
		return query, false, err
	}
	if query.Filter.From, err = parseTime(values, "from", false); err != nil {
		return query, false, err
	}
	if query.Filter.To, err = parseTime(values, "to", true); err != nil {
		return query, false, err
	}
	if query.Filter.From != nil && query.Filter.To != nil && query.Filter.From.After(*query.Filter.To) {
		return query, false, invalidParam("from must not be after to")
	}

	searchIn := domain.SearchIn(strings.ToLower(strings.TrimSpace(values.Get("search_in"))))
	if !domain.IsValidSearchIn(searchIn) {
		return query, false, invalidParam("search_in must be one of: all, subject, text")
	}
	query.Filter.SearchIn = searchIn

	return query, direct, nil
}

func parseBool(values url.Values, name string, def bool) (bool, error) {
	v := values.Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, invalidParam("%s must be true or false", name)
	}
	return b, nil
}

func parseID(values url.Values, name string) (*int64, error) {
	v := strings.TrimSpace(values.Get(name))
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return nil, invalidParam("%s must be a positive integer", name)
	}
	return &id, nil
}

// parseIDList accepts both repeated parameters and comma separated lists.
func parseIDList(values url.Values, name string) ([]int64, error) {
	var ids []int64
	for _, raw := range values[name] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, invalidParam("%s must be a list of positive integers", name)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates. A plain date used as
// an upper bound covers the whole day.
func parseTime(values url.Values, name string, endOfDay bool) (*time.Time, error) {
	v := strings.TrimSpace(values.Get(name))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, invalidParam("%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", name)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
