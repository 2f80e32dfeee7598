package query

import (
	"errors"
	"net/url"
	"testing"

	"soundcrate/internal/apperr"
)

func TestParseDefaults(t *testing.T) {
	q, err := Parse(url.Values{}, SortReleaseDate)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if q.Page != DefaultPage || q.Limit != DefaultLimit {
		t.Fatalf("expected page %d limit %d, got page %d limit %d", DefaultPage, DefaultLimit, q.Page, q.Limit)
	}
	if q.Skip() != 0 {
		t.Fatalf("expected skip 0, got %d", q.Skip())
	}
	if !q.Filter.Empty() {
		t.Fatalf("expected empty filter, got %+v", q.Filter)
	}
}

func TestParseReadsFilterAndWindow(t *testing.T) {
	values := url.Values{
		"genre":  {" Pop "},
		"artist": {"artist-1"},
		"search": {"pink"},
		"page":   {"3"},
		"limit":  {"20"},
	}
	q, err := Parse(values, SortFollowers)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if q.Genre != "Pop" || q.ArtistID != "artist-1" || q.Search != "pink" {
		t.Fatalf("unexpected filter %+v", q.Filter)
	}
	if q.Skip() != 40 {
		t.Fatalf("expected skip 40, got %d", q.Skip())
	}
	if q.Sort != SortFollowers {
		t.Fatalf("expected followers sort, got %v", q.Sort)
	}
}

func TestParseRejectsBadWindow(t *testing.T) {
	cases := []url.Values{
		{"page": {"0"}},
		{"page": {"-1"}},
		{"page": {"two"}},
		{"limit": {"0"}},
		{"limit": {"-5"}},
		{"limit": {"ten"}},
		{"limit": {"101"}},
		{"page": {"1.5"}},
		{"page": {"1844674407370955162"}},
		{"page": {"300000000"}, "limit": {"100"}},
	}
	for _, values := range cases {
		_, err := Parse(values, SortReleaseDate)
		if err == nil {
			t.Fatalf("expected error for %v", values)
		}
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("expected validation error for %v, got %v", values, err)
		}
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total, limit, want int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 7, 4},
	}
	for _, tc := range cases {
		if got := TotalPages(tc.total, tc.limit); got != tc.want {
			t.Fatalf("TotalPages(%d, %d) = %d, want %d", tc.total, tc.limit, got, tc.want)
		}
	}
}

func TestNewEnvelopeNeverReturnsNilItems(t *testing.T) {
	env := NewEnvelope[string](New(SortReleaseDate), nil, 0)
	if env.Items == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if env.TotalPages != 0 || env.Page != 1 {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestSearchMatchesIgnoresCase(t *testing.T) {
	f := Filter{Search: "POP"}
	if !f.SearchMatches("Synth", "dream pop") {
		t.Fatal("expected match across fields")
	}
	if f.SearchMatches("rock", "metal") {
		t.Fatal("unexpected match")
	}
	if !(Filter{}).SearchMatches("anything") {
		t.Fatal("empty search should match")
	}
}
