// Package pagination parses paging parameters and shapes paged results.
package pagination

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params is one page window. PerPage 0 asks for no items, only totals.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// Parse reads page and per_page, or skip and take when either is present.
// Out of range or malformed values are errors.
func Parse(values url.Values) (Params, error) {
	if values.Has("skip") || values.Has("take") {
		skip, err := intParam(values, "skip", 0, 0, -1)
		if err != nil {
			return Params{}, err
		}
		take, err := intParam(values, "take", DefaultPerPage, 0, MaxPerPage)
		if err != nil {
			return Params{}, err
		}
		return FromOffset(skip, take), nil
	}

	page, err := intParam(values, "page", 1, 1, -1)
	if err != nil {
		return Params{}, err
	}
	perPage, err := intParam(values, "per_page", DefaultPerPage, 0, MaxPerPage)
	if err != nil {
		return Params{}, err
	}
	p := Params{Page: page, PerPage: perPage, Offset: (page - 1) * perPage}
	if perPage == 0 {
		p.Page, p.Offset = 1, 0
	}
	return p, nil
}

// intParam parses values[name] within [lo, hi]; hi < 0 means unbounded.
func intParam(values url.Values, name string, def, lo, hi int) (int, error) {
	raw := values.Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || (hi >= 0 && v > hi) {
		if hi >= 0 {
			return 0, fmt.Errorf("%s must be an integer between %d and %d, got %q", name, lo, hi, raw)
		}
		return 0, fmt.Errorf("%s must be an integer >= %d, got %q", name, lo, raw)
	}
	return v, nil
}

// FromOffset returns the params of the page that starts at offset. It is used
// when a service moved the requested offset, e.g. back onto the last page.
func FromOffset(offset, perPage int) Params {
	if perPage <= 0 {
		return Params{Page: 1, Offset: offset}
	}
	return Params{
		Page:    offset/perPage + 1,
		PerPage: perPage,
		Offset:  offset,
	}
}

// Result is one page of items with navigation totals.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult builds the page described by params. Data is never nil.
func NewResult[T any](data []T, totalCount int, params Params) Result[T] {
	if data == nil {
		data = []T{}
	}
	totalPages := 0
	if params.PerPage > 0 {
		totalPages = (totalCount + params.PerPage - 1) / params.PerPage
	}
	return Result[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}
