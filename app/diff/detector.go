// Package diff finds where a freshly parsed feed meets already stored articles.
package diff

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/lysyi3m/rss-harvest/app/feed"
)

const (
	DefaultRecentLimit = 20
	PublishTolerance   = 60 * time.Second
)

// Projection is the cheap identity of an item used for matching.
type Projection struct {
	URL         string
	Title       string
	PublishedAt time.Time
}

// RecentLister returns the newest stored articles of a source as projections.
type RecentLister interface {
	RecentProjections(ctx context.Context, sourceID int64, limit int) ([]Projection, error)
}

type Detector struct {
	store RecentLister
	limit int
}

func NewDetector(store RecentLister, limit int) *Detector {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &Detector{store: store, limit: limit}
}

// Boundary returns how many leading items of the feed are new.
func (d *Detector) Boundary(ctx context.Context, sourceID int64, items []feed.FeedItem) (int, error) {
	stored, err := d.store.RecentProjections(ctx, sourceID, d.limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load recent articles: %w", err)
	}
	return FindNewItemBoundary(Project(items), stored), nil
}

func Project(items []feed.FeedItem) []Projection {
	out := make([]Projection, len(items))
	for i, item := range items {
		p := Projection{URL: item.ArticleURL(), Title: item.Title}
		if item.PublishedAt != nil {
			p.PublishedAt = *item.PublishedAt
		}
		out[i] = p
	}
	return out
}

// FindNewItemBoundary walks parsed items newest first and returns the index of
// the first one already present in stored, or len(parsed) when none is.
func FindNewItemBoundary(parsed, stored []Projection) int {
	if len(stored) == 0 {
		return len(parsed)
	}

	urls := make(map[string]struct{}, len(stored))
	titles := make(map[string][]time.Time, len(stored))
	for _, s := range stored {
		if s.URL != "" {
			urls[s.URL] = struct{}{}
		}
		if t := normalizeTitle(s.Title); t != "" {
			titles[t] = append(titles[t], s.PublishedAt)
		}
	}

	for i, p := range parsed {
		if _, ok := urls[p.URL]; ok && p.URL != "" {
			return i
		}
		for _, ts := range titles[normalizeTitle(p.Title)] {
			if withinTolerance(p.PublishedAt, ts) {
				return i
			}
		}
	}
	return len(parsed)
}

func normalizeTitle(title string) string {
	return norm.NFC.String(strings.Join(strings.Fields(title), " "))
}

func withinTolerance(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= PublishTolerance
}
