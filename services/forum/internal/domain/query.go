package domain

import (
	"slices"
	"time"

	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
)

// ResultFlags selects which optional parts of a search result are computed.
type ResultFlags uint8

const (
	WithHits ResultFlags = 1 << iota
	WithFacets
	WithSuggestions

	WithAll = WithHits | WithFacets | WithSuggestions
)

// Has reports whether every bit in flag is set.
func (f ResultFlags) Has(flag ResultFlags) bool {
	return f&flag == flag
}

// SearchIn limits which post fields the term is matched against.
type SearchIn string

const (
	SearchInAll     SearchIn = "all"
	SearchInSubject SearchIn = "subject"
	SearchInText    SearchIn = "text"
)

// IsValidSearchIn checks whether s is a known search scope. An empty scope is
// treated as SearchInAll.
func IsValidSearchIn(s SearchIn) bool {
	switch s {
	case "", SearchInAll, SearchInSubject, SearchInText:
		return true
	}
	return false
}

// OriginSearchPage tags queries issued from the boards search page.
const OriginSearchPage = "Boards/Search"

// SearchFilter narrows the set of posts a query may match.
type SearchFilter struct {
	ForumIDs   []int64    `json:"forum_ids,omitempty"`
	CustomerID *int64     `json:"customer_id,omitempty"`
	TopicID    *int64     `json:"topic_id,omitempty"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
	SearchIn   SearchIn   `json:"search_in,omitempty"`
}

// SearchQuery holds all parameters for a forum search request.
type SearchQuery struct {
	Term   string       `json:"term"`
	Skip   int          `json:"skip"`
	Take   int          `json:"take"`
	Flags  ResultFlags  `json:"flags"`
	Origin string       `json:"origin,omitempty"`
	Filter SearchFilter `json:"filter"`
}

// Validate rejects queries that no engine can serve. It runs before any I/O.
func (q *SearchQuery) Validate() error {
	if q == nil {
		return apperrors.InvalidInput("search query is required")
	}
	if q.Take < 0 {
		return apperrors.InvalidInput("take must not be negative")
	}
	if q.Skip < 0 {
		return apperrors.InvalidInput("skip must not be negative")
	}
	if !IsValidSearchIn(q.Filter.SearchIn) {
		return apperrors.InvalidInput("search_in must be one of: all, subject, text")
	}
	return nil
}

// Clone returns a deep copy of the query so callers can adjust it without
// aliasing the original.
func (q SearchQuery) Clone() SearchQuery {
	c := q
	c.Filter.ForumIDs = slices.Clone(q.Filter.ForumIDs)
	if q.Filter.CustomerID != nil {
		v := *q.Filter.CustomerID
		c.Filter.CustomerID = &v
	}
	if q.Filter.TopicID != nil {
		v := *q.Filter.TopicID
		c.Filter.TopicID = &v
	}
	if q.Filter.From != nil {
		v := *q.Filter.From
		c.Filter.From = &v
	}
	if q.Filter.To != nil {
		v := *q.Filter.To
		c.Filter.To = &v
	}
	return c
}

// WithSkip returns a copy of the query starting at skip.
func (q SearchQuery) WithSkip(skip int) SearchQuery {
	c := q.Clone()
	c.Skip = skip
	return c
}

// CorrectSkip moves a skip that points past the last result back to the start
// of the last full page. take must be positive.
func CorrectSkip(skip, take, total int) (int, bool) {
	if take <= 0 || skip <= 0 || skip < total {
		return skip, false
	}
	return (total / take) * take, true
}

// CorrectPaging returns the query with its skip corrected against total, and
// whether a correction was applied. The receiver is never modified.
func (q SearchQuery) CorrectPaging(total int) (SearchQuery, bool) {
	skip, changed := CorrectSkip(q.Skip, q.Take, total)
	if !changed {
		return q, false
	}
	return q.WithSkip(skip), true
}
