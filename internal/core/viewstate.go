package core

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"raceview/pkg/domain"
)

// ErrUnknownSortField is returned when a sort is requested on a field that is
// not declared sortable.
var ErrUnknownSortField = errors.New("unknown sort field")

// SortableFields are the field identifiers a view may be sorted by.
func SortableFields() []domain.Field {
	return domain.KnownFields()
}

// IsSortable reports whether f may be used as a sort field.
func IsSortable(f domain.Field) bool {
	return f.IsKnown()
}

// Order names a sort direction in URLs.
type Order string

// Sort directions.
const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ViewState is the transient sort and filter state of one view.
// The zero value is not the default state; use DefaultViewState.
type ViewState struct {
	SortField domain.Field `json:"sort,omitempty"`
	Ascending bool         `json:"ascending"`
	Filter    string       `json:"filter,omitempty"`
}

// DefaultViewState returns the initial state: original order, no filter.
func DefaultViewState() ViewState {
	return ViewState{Ascending: true}
}

// NewViewState builds a validated state. The filter is lowercased.
func NewViewState(field domain.Field, ascending bool, filter string) (ViewState, error) {
	if field != "" && !IsSortable(field) {
		return DefaultViewState(), fmt.Errorf("%w: %q", ErrUnknownSortField, field)
	}
	return ViewState{SortField: field, Ascending: ascending, Filter: strings.ToLower(filter)}, nil
}

// Order returns the sort direction.
func (s ViewState) Order() Order {
	if s.Ascending {
		return OrderAsc
	}
	return OrderDesc
}

// Sorted reports whether the view is sorted by field f.
func (s ViewState) Sorted(f domain.Field) bool {
	return s.SortField != "" && s.SortField == f
}

// Arrow is the glyph for the active sort direction.
func (s ViewState) Arrow() string {
	if s.Ascending {
		return "↑"
	}
	return "↓"
}

// Toggled returns the state after a header click on f: the same field flips
// direction, a different field becomes active ascending. The filter is kept.
func (s ViewState) Toggled(f domain.Field) ViewState {
	if s.SortField == f {
		s.Ascending = !s.Ascending
		return s
	}
	s.SortField = f
	s.Ascending = true
	return s
}

// Query encodes the state as URL parameters (sort, order, q). Defaults are
// omitted so the unsorted, unfiltered view has an empty query.
func (s ViewState) Query() url.Values {
	v := url.Values{}
	if s.SortField != "" {
		v.Set("sort", string(s.SortField))
		v.Set("order", string(s.Order()))
	}
	if s.Filter != "" {
		v.Set("q", s.Filter)
	}
	return v
}

// ParseViewState reads sort, order and q from URL parameters. An unknown sort
// field is dropped and reported through the returned error alongside a
// usable state.
func ParseViewState(q url.Values) (ViewState, error) {
	ascending := !strings.EqualFold(q.Get("order"), string(OrderDesc))
	field := domain.Field(strings.ToLower(strings.TrimSpace(q.Get("sort"))))
	state, err := NewViewState(field, ascending, q.Get("q"))
	if err != nil {
		state.Filter = strings.ToLower(q.Get("q"))
		return state, err
	}
	return state, nil
}
