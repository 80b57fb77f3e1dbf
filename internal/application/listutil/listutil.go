package listutil

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// All is the sentinel value meaning "no restriction" for a categorical filter.
const All = "all"

// SearchKey addresses the free-text search in a partial filter merge.
const SearchKey = "search"

// DefaultPerPage is the default number of rows per page.
const DefaultPerPage = 20

// Query errors
var (
	ErrUnknownFilter      = errors.New("unknown filter")
	ErrInvalidFilterValue = errors.New("filter value not allowed")
	ErrInvalidPageSize    = errors.New("page size must be a positive integer")
	ErrInvalidPage        = errors.New("page must be a positive integer")
)

// FilterKey describes one categorical filter and the values it accepts.
type FilterKey struct {
	Name    string
	Default string   // usually All
	Values  []string // allowed values, Default included
}

// FilterSpec is the static per-domain list of permitted filters.
type FilterSpec struct {
	Keys []FilterKey
}

// Key returns the filter definition for name.
func (s FilterSpec) Key(name string) (FilterKey, bool) {
	for _, k := range s.Keys {
		if k.Name == name {
			return k, true
		}
	}
	return FilterKey{}, false
}

// Validate checks that name is a known filter and value one of its allowed values.
// PRE: none
// POST: Returns ErrUnknownFilter or ErrInvalidFilterValue (wrapped), nil if valid
func (s FilterSpec) Validate(name, value string) error {
	k, ok := s.Key(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	for _, v := range k.Values {
		if v == value {
			return nil
		}
	}
	return fmt.Errorf("%w: %s=%q", ErrInvalidFilterValue, name, value)
}

// Defaults returns a fresh map holding every filter at its default value.
func (s FilterSpec) Defaults() map[string]string {
	m := make(map[string]string, len(s.Keys))
	for _, k := range s.Keys {
		m[k.Name] = k.Default
	}
	return m
}

// Query is the current search, filter and page position of one collection.
// Query is a value: every operation returns a new Query and never mutates
// the receiver's Filters map.
type Query struct {
	Search   string
	Filters  map[string]string
	Page     int // 1-indexed
	PageSize int

	spec FilterSpec
}

// NewQuery returns the default query for spec.
// PRE: pageSize > 0 (falls back to DefaultPerPage otherwise)
// POST: All filters at their defaults, empty search, page 1
func NewQuery(spec FilterSpec, pageSize int) Query {
	if pageSize < 1 {
		pageSize = DefaultPerPage
	}
	return Query{
		Filters:  spec.Defaults(),
		Page:     1,
		PageSize: pageSize,
		spec:     spec,
	}
}

// Spec returns the filter spec the query validates against.
func (q Query) Spec() FilterSpec {
	return q.spec
}

// Filter returns the current value of a filter, or its default when unset.
func (q Query) Filter(name string) string {
	if v, ok := q.Filters[name]; ok {
		return v
	}
	if k, ok := q.spec.Key(name); ok {
		return k.Default
	}
	return ""
}

// MergeFilters shallow-merges partial into the query, later keys replacing
// earlier ones. Two values are normalized on the way in: the search text
// (key SearchKey) is trimmed of surrounding whitespace, and an empty value
// for a categorical filter stores that filter's default, so a cleared
// select box and "all" are the same query.
// PRE: none
// POST: On success keys absent from partial are untouched and Page is 1.
// On error the receiver is returned unchanged.
func (q Query) MergeFilters(partial map[string]string) (Query, error) {
	for name, value := range partial {
		if name == SearchKey || value == "" {
			if name != SearchKey {
				if _, ok := q.spec.Key(name); !ok {
					return q, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
				}
			}
			continue
		}
		if err := q.spec.Validate(name, value); err != nil {
			return q, err
		}
	}

	next := q.clone()
	for name, value := range partial {
		if name == SearchKey {
			next.Search = strings.TrimSpace(value)
			continue
		}
		if value == "" {
			k, _ := q.spec.Key(name)
			value = k.Default
		}
		next.Filters[name] = value
	}
	next.Page = 1
	return next, nil
}

// Reset restores every filter to its default and clears the search.
// INVARIANT: Reset is idempotent
func (q Query) Reset() Query {
	next := q
	next.Search = ""
	next.Filters = q.spec.Defaults()
	next.Page = 1
	return next
}

// SetPage moves to page n, clamped to [1, max(totalPages, 1)].
// POST: Filters and Search are unchanged
func (q Query) SetPage(n, totalPages int) Query {
	upper := totalPages
	if upper < 1 {
		upper = 1
	}
	if n < 1 {
		n = 1
	}
	if n > upper {
		n = upper
	}
	next := q
	next.Page = n
	return next
}

// SetPageSize changes the page size and returns to the first page.
// PRE: n > 0
// POST: Returns ErrInvalidPageSize and the unchanged receiver otherwise
func (q Query) SetPageSize(n int) (Query, error) {
	if n < 1 {
		return q, fmt.Errorf("%w: %d", ErrInvalidPageSize, n)
	}
	next := q
	next.PageSize = n
	next.Page = 1
	return next, nil
}

// HasActiveFilters reports whether the search is non-empty or any filter
// differs from its default.
func (q Query) HasActiveFilters() bool {
	if q.Search != "" {
		return true
	}
	for _, k := range q.spec.Keys {
		if q.Filter(k.Name) != k.Default {
			return true
		}
	}
	return false
}

// Values encodes the query for the list endpoint:
// search=&page=&limit=&<filterKeys>. Filters at the All sentinel are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("search", q.Search)
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.PageSize))
	for _, k := range q.spec.Keys {
		if val := q.Filter(k.Name); val != "" && val != All {
			v.Set(k.Name, val)
		}
	}
	return v
}

func (q Query) clone() Query {
	next := q
	next.Filters = make(map[string]string, len(q.Filters))
	for k, v := range q.Filters {
		next.Filters[k] = v
	}
	return next
}

// ParseQuery builds a query from URL-style values: search, page, limit and
// one key per filter. Missing keys keep their defaults; search text is
// normalized as in MergeFilters.
// PRE: defaultPerPage > 0
// POST: Returns ErrUnknownFilter, ErrInvalidFilterValue, ErrInvalidPage or
// ErrInvalidPageSize (wrapped) for the first bad key, in sorted key order
func ParseQuery(v url.Values, spec FilterSpec, defaultPerPage int) (Query, error) {
	q := NewQuery(spec, defaultPerPage)
	for _, name := range slices.Sorted(maps.Keys(v)) {
		value := v.Get(name)
		switch name {
		case SearchKey:
			q.Search = strings.TrimSpace(value)
		case "page":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return Query{}, fmt.Errorf("%w: %q", ErrInvalidPage, value)
			}
			q.Page = n
		case "limit":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return Query{}, fmt.Errorf("%w: %q", ErrInvalidPageSize, value)
			}
			q.PageSize = n
		default:
			if value == "" {
				if _, ok := spec.Key(name); !ok {
					return Query{}, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
				}
				continue
			}
			if err := spec.Validate(name, value); err != nil {
				return Query{}, err
			}
			q.Filters[name] = value
		}
	}
	return q, nil
}

// PageInfo carries pagination metadata for rendering.
type PageInfo struct {
	Page       int // current page (1-indexed)
	PerPage    int // rows per page
	Total      int // total matching rows
	TotalPages int // ceil(Total / PerPage)
}

// NewPageInfo computes pagination metadata.
// PRE: total >= 0, perPage > 0, page >= 1
// POST: returns PageInfo with TotalPages = ceil(total/perPage); Page clamped to [1, max(TotalPages,1)]
func NewPageInfo(page, perPage, total int) PageInfo {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if total < 0 {
		total = 0
	}
	totalPages := (total + perPage - 1) / perPage
	upper := totalPages
	if upper < 1 {
		upper = 1
	}
	if page > upper {
		page = upper
	}
	if page < 1 {
		page = 1
	}
	return PageInfo{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}

// Offset returns the zero-based index of the first row on the current page.
// PRE: PageInfo is valid
// POST: Returns (Page-1) * PerPage
func (p PageInfo) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// StartRow returns the 1-indexed first row number on the current page.
// PRE: PageInfo is valid
// POST: Returns 0 if Total is 0, otherwise Offset+1
func (p PageInfo) StartRow() int {
	if p.Total == 0 {
		return 0
	}
	return p.Offset() + 1
}

// EndRow returns the 1-indexed last row number on the current page.
// PRE: PageInfo is valid
// POST: Returns min(Offset+PerPage, Total)
func (p PageInfo) EndRow() int {
	end := p.Offset() + p.PerPage
	if end > p.Total {
		end = p.Total
	}
	return end
}

// PageNumbers returns the page numbers to display in pagination controls.
// Shows at most 5 pages centered around the current page.
// PRE: PageInfo is valid
// POST: Returns slice of at most 5 page numbers centered on current page
func (p PageInfo) PageNumbers() []int {
	const maxButtons = 5
	start := p.Page - maxButtons/2
	if start < 1 {
		start = 1
	}
	end := start + maxButtons - 1
	if end > p.TotalPages {
		end = p.TotalPages
		start = end - maxButtons + 1
		if start < 1 {
			start = 1
		}
	}
	pages := make([]int, 0, maxButtons)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages
}

// ShowPagination returns true if pagination controls should be displayed.
// PRE: PageInfo is valid
// POST: Returns true if Total > PerPage
func (p PageInfo) ShowPagination() bool {
	return p.Total > p.PerPage
}
