package diff

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-harvest/app/feed"
)

type fakeLister struct {
	items []Projection
	err   error
	limit int
}

func (f *fakeLister) RecentProjections(_ context.Context, _ int64, limit int) ([]Projection, error) {
	f.limit = limit
	return f.items, f.err
}

func projections(n int) []Projection {
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	out := make([]Projection, n)
	for i := range out {
		out[i] = Projection{
			URL:         fmt.Sprintf("https://example.com/post/%d", n-i),
			Title:       fmt.Sprintf("Post %d", n-i),
			PublishedAt: base.Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestFindNewItemBoundary_MatchAtK(t *testing.T) {
	parsed := projections(10)
	for k := 0; k < len(parsed); k++ {
		stored := []Projection{{URL: parsed[k].URL}}
		assert.Equal(t, k, FindNewItemBoundary(parsed, stored), "k=%d", k)
	}
}

func TestFindNewItemBoundary_NoMatch(t *testing.T) {
	parsed := projections(5)
	stored := []Projection{{URL: "https://example.com/other", Title: "Other"}}

	assert.Equal(t, 5, FindNewItemBoundary(parsed, stored))
	assert.Equal(t, 5, FindNewItemBoundary(parsed, nil))
}

func TestFindNewItemBoundary_UnchangedFeedIsZero(t *testing.T) {
	parsed := projections(8)

	assert.Equal(t, 0, FindNewItemBoundary(parsed, parsed))
}

func TestFindNewItemBoundary_TitleAndTime(t *testing.T) {
	published := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	parsed := []Projection{
		{URL: "https://a.example.com/new", Title: "Fresh", PublishedAt: published.Add(time.Hour)},
		{URL: "https://a.example.com/moved?utm=1", Title: "Cafe\u0301  news", PublishedAt: published.Add(45 * time.Second)},
	}

	stored := []Projection{{URL: "https://a.example.com/moved", Title: "Caf\u00e9 news", PublishedAt: published}}
	assert.Equal(t, 1, FindNewItemBoundary(parsed, stored))

	stored[0].PublishedAt = published.Add(-2 * time.Minute)
	assert.Equal(t, 2, FindNewItemBoundary(parsed, stored))
}

func TestFindNewItemBoundary_TitleWithoutDatesDoesNotMatch(t *testing.T) {
	parsed := []Projection{{URL: "https://x.example.com/1", Title: "Same"}}
	stored := []Projection{{URL: "https://x.example.com/2", Title: "Same"}}

	assert.Equal(t, 1, FindNewItemBoundary(parsed, stored))
}

func TestDetector_Boundary(t *testing.T) {
	published := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	items := []feed.FeedItem{
		{Link: "https://example.com/3", Title: "Three", PublishedAt: &published},
		{Link: "https://example.com/2", Title: "Two"},
		{Link: "https://example.com/1", Title: "One"},
	}
	lister := &fakeLister{items: []Projection{{URL: "https://example.com/2"}}}

	got, err := NewDetector(lister, 0).Boundary(context.Background(), 1, items)

	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, DefaultRecentLimit, lister.limit)
}

func TestDetector_BoundaryError(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}

	_, err := NewDetector(lister, 5).Boundary(context.Background(), 1, nil)

	assert.Error(t, err)
}

func TestBoundary_MatchesGUIDOnlyItemsByURL(t *testing.T) {
	lister := &fakeLister{items: []Projection{
		{URL: "https://example.com/post/1", Title: "Stored title", PublishedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
	}}
	items := []feed.FeedItem{
		{GUID: "https://example.com/post/2", Title: "New"},
		{GUID: "https://example.com/post/1", Title: "Retitled upstream"},
	}

	n, err := NewDetector(lister, 0).Boundary(context.Background(), 1, items)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
