// Package query turns list request parameters into a backend-neutral query:
// a filter, a page window, and a sort order. Storage backends translate the
// filter into their own predicate language.
package query

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"soundcrate/internal/apperr"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Sort selects the ordering of a list. Every ordering is descending and ties
// break on id ascending so page boundaries are stable.
type Sort int

const (
	SortReleaseDate Sort = iota
	SortFollowers
	SortPlays
	SortNewest
)

func (s Sort) String() string {
	switch s {
	case SortFollowers:
		return "followers"
	case SortPlays:
		return "plays"
	case SortNewest:
		return "createdAt"
	default:
		return "releaseDate"
	}
}

// Filter holds the optional match conditions. Empty fields are ignored.
type Filter struct {
	// Genre matches exactly, ignoring case.
	Genre string
	// ArtistID matches the owning artist exactly.
	ArtistID string
	// AlbumID matches the owning album exactly. Songs only.
	AlbumID string
	// Search is a case-insensitive substring matched against several fields
	// with OR semantics.
	Search string
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return f.Genre == "" && f.ArtistID == "" && f.AlbumID == "" && f.Search == ""
}

// Query is a filter plus a page window and ordering.
type Query struct {
	Filter
	Page  int
	Limit int
	Sort  Sort
}

// Skip is the number of matching records before the current page.
func (q Query) Skip() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// New returns a query for the first page with the default limit.
func New(sort Sort) Query {
	return Query{Page: DefaultPage, Limit: DefaultLimit, Sort: sort}
}

// Parse reads genre, artist, album, search, page and limit from values.
// Malformed or out-of-range page windows are rejected rather than clamped.
func Parse(values url.Values, sort Sort) (Query, error) {
	q := New(sort)
	q.Genre = strings.TrimSpace(values.Get("genre"))
	q.ArtistID = strings.TrimSpace(values.Get("artist"))
	q.AlbumID = strings.TrimSpace(values.Get("album"))
	q.Search = strings.TrimSpace(values.Get("search"))

	page, err := parsePositive(values.Get("page"), "page", DefaultPage, 0)
	if err != nil {
		return Query{}, err
	}
	limit, err := ParseLimit(values.Get("limit"))
	if err != nil {
		return Query{}, err
	}
	if page-1 > math.MaxInt32/limit {
		return Query{}, apperr.Validation("page is out of range")
	}
	q.Page = page
	q.Limit = limit
	return q, nil
}

// ParseLimit validates a standalone limit parameter such as the one used by
// the top and new-release listings.
func ParseLimit(raw string) (int, error) {
	return parsePositive(raw, "limit", DefaultLimit, MaxLimit)
}

func parsePositive(raw, name string, fallback, max int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil || value < 1 {
		return 0, apperr.Validation("%s must be a positive integer", name)
	}
	if max > 0 && value > max {
		return 0, apperr.Validation("%s must not exceed %d", name, max)
	}
	return value, nil
}

// TotalPages is ceil(total/limit).
func TotalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// Envelope is one page of results plus the totals computed from the same
// filter without the page window.
type Envelope[T any] struct {
	Items      []T
	Page       int
	TotalPages int
	TotalCount int
}

func NewEnvelope[T any](q Query, items []T, total int) Envelope[T] {
	if items == nil {
		items = []T{}
	}
	return Envelope[T]{
		Items:      items,
		Page:       q.Page,
		TotalPages: TotalPages(total, q.Limit),
		TotalCount: total,
	}
}

// EqualFold reports an exact case-insensitive match.
func EqualFold(value, want string) bool {
	return strings.EqualFold(strings.TrimSpace(value), want)
}

// ContainsFold reports whether needle occurs in value ignoring case.
func ContainsFold(value, needle string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(needle))
}

// SearchMatches reports whether the filter's search term occurs in any field.
// An empty search term matches.
func (f Filter) SearchMatches(fields ...string) bool {
	if f.Search == "" {
		return true
	}
	for _, field := range fields {
		if ContainsFold(field, f.Search) {
			return true
		}
	}
	return false
}
