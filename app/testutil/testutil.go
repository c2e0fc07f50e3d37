// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/feeds"

	"github.com/lysyi3m/rss-harvest/app/database"
)

type Item struct {
	Title       string
	Link        string
	Description string
	Content     string
	Published   time.Time
}

// RSS renders an RSS 2.0 document, newest item first as given.
func RSS(t *testing.T, title string, items []Item) string {
	t.Helper()

	f := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: "https://example.com"},
		Description: title + " test feed",
		Created:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, it := range items {
		published := it.Published
		if published.IsZero() {
			published = f.Created
		}
		f.Items = append(f.Items, &feeds.Item{
			Title:       it.Title,
			Link:        &feeds.Link{Href: it.Link},
			Id:          it.Link,
			Description: it.Description,
			Content:     it.Content,
			Created:     published,
		})
	}

	rss, err := f.ToRss()
	if err != nil {
		t.Fatalf("render rss: %v", err)
	}
	return rss
}

// FeedServer serves documents by path and counts requests.
type FeedServer struct {
	*httptest.Server

	mu     sync.RWMutex
	bodies map[string]string
	status map[string]int
	hits   map[string]int
}

func NewFeedServer(t *testing.T) *FeedServer {
	t.Helper()

	fs := &FeedServer{
		bodies: make(map[string]string),
		status: make(map[string]int),
		hits:   make(map[string]int),
	}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.Close)
	return fs
}

// Set registers body at path and returns its absolute URL.
func (f *FeedServer) Set(path, body string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[path] = body
	delete(f.status, path)
	return f.URL + path
}

// Fail makes path answer with the given status code.
func (f *FeedServer) Fail(path string, code int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[path] = code
	return f.URL + path
}

func (f *FeedServer) Hits(path string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hits[path]
}

func (f *FeedServer) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	code, failing := f.status[r.URL.Path]
	body, ok := f.bodies[r.URL.Path]
	f.mu.Unlock()

	if failing {
		http.Error(w, http.StatusText(code), code)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

// OpenDB returns a migrated SQLite database in a temp dir.
func OpenDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

func TimePtr(tm time.Time) *time.Time {
	return &tm
}
