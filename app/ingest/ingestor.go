// Package ingest refreshes one source: resolve, fetch, parse, diff, normalize,
// select images and persist.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/rss-harvest/app/content"
	"github.com/lysyi3m/rss-harvest/app/database"
	"github.com/lysyi3m/rss-harvest/app/diff"
	"github.com/lysyi3m/rss-harvest/app/feed"
	"github.com/lysyi3m/rss-harvest/app/fetch"
	"github.com/lysyi3m/rss-harvest/app/images"
)

type State string

const (
	StateResolving   State = "resolving"
	StateFetching    State = "fetching"
	StateParsing     State = "parsing"
	StateDiffing     State = "diffing"
	StateNormalizing State = "normalizing"
	StatePersisting  State = "persisting"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

type ArticleStore interface {
	ArticleExists(ctx context.Context, sourceID int64, url string) (bool, error)
	InsertArticle(ctx context.Context, a *database.Article) (int64, error)
	RecentProjections(ctx context.Context, sourceID int64, limit int) ([]diff.Projection, error)
}

type SourceStore interface {
	RecordFetch(ctx context.Context, id int64, fetchedAt time.Time) error
}

// Deps are the collaborators of an Ingestor. Resolver may be nil when no
// source uses the indirection scheme.
type Deps struct {
	Transport  Transport
	Resolver   Resolver
	Parser     *feed.Parser
	Normalizer *content.Normalizer
	Images     *images.Selector
	Articles   ArticleStore
	Sources    SourceStore
	// OnState, when set, observes every state transition.
	OnState func(source database.Source, state State)
}

type Ingestor struct {
	deps     Deps
	detector *diff.Detector
	now      func() time.Time
}

func NewIngestor(deps Deps) *Ingestor {
	return &Ingestor{
		deps:     deps,
		detector: diff.NewDetector(deps.Articles, diff.DefaultRecentLimit),
		now:      time.Now,
	}
}

func (i *Ingestor) Transport() string {
	return i.deps.Transport.Name()
}

// FetchArticles runs one refresh of source and returns the newly stored articles.
func (i *Ingestor) FetchArticles(ctx context.Context, source database.Source) ([]database.Article, error) {
	started := i.now()

	i.enter(source, StateResolving)
	feedURL := source.URL
	if i.deps.Resolver != nil {
		resolved, err := i.deps.Resolver.Resolve(ctx, source.URL)
		if err != nil {
			return nil, i.fail(source, fmt.Errorf("failed to resolve source URL: %w", err))
		}
		feedURL = resolved
	}

	i.enter(source, StateFetching)
	data, err := i.deps.Transport.FetchFeed(ctx, feedURL)
	if err != nil {
		return nil, i.fail(source, fmt.Errorf("failed to fetch feed: %w", err))
	}
	if !feed.LooksLikeXML(data) {
		return nil, i.fail(source, fmt.Errorf("failed to fetch feed: %w", fetch.ErrNotXML))
	}

	i.enter(source, StateParsing)
	parsed, err := i.deps.Parser.Run(data)
	if err != nil {
		return nil, i.fail(source, fmt.Errorf("failed to parse feed: %w", err))
	}

	i.enter(source, StateDiffing)
	boundary, err := i.detector.Boundary(ctx, source.ID, parsed.Items)
	if err != nil {
		slog.Warn("Incremental diff failed, treating all items as new", "source", source.Name, "error", err)
		boundary = len(parsed.Items)
	}

	var candidates []database.Article
	if boundary > 0 {
		i.enter(source, StateNormalizing)
		candidates = i.normalize(ctx, source, feedURL, parsed.Items[:boundary])
	}

	i.enter(source, StatePersisting)
	inserted := i.persist(ctx, source, candidates)

	if err := i.deps.Sources.RecordFetch(ctx, source.ID, i.now()); err != nil {
		slog.Warn("Failed to update source stats", "source", source.Name, "error", err)
	}

	i.enter(source, StateDone)
	slog.Info("Task completed",
		"type", "IngestSource",
		"source", source.Name,
		"transport", i.deps.Transport.Name(),
		"duration", i.now().Sub(started),
		"total", len(parsed.Items),
		"boundary", boundary,
		"new", len(inserted))

	return inserted, nil
}

func (i *Ingestor) normalize(ctx context.Context, source database.Source, feedURL string, items []feed.FeedItem) []database.Article {
	out := make([]database.Article, 0, len(items))
	for _, item := range items {
		link := item.ArticleURL()
		if link == "" {
			slog.Debug("Skipping item without link", "source", source.Name, "title", item.Title)
			continue
		}

		res := i.deps.Normalizer.Normalize(ctx, item.RawContentHTML, link, source.ContentMode)

		a := database.Article{
			SourceID:           source.ID,
			SourceName:         source.Name,
			GUID:               item.GUID,
			Title:              articleTitle(item, res.Summary),
			URL:                link,
			Author:             item.AuthorName,
			ContentHTML:        res.HTML,
			Summary:            res.Summary,
			WordCount:          res.WordCount,
			ReadingTimeMinutes: res.ReadingTimeMinutes,
			PublishedAt:        i.publishedAt(item),
			Tags:               []string{},
		}

		if source.ContentMode == content.ModeImageText && i.deps.Images != nil {
			if sel, ok := i.deps.Images.SelectBestImage(item, feedURL); ok {
				a.ImageURL = sel.URL
				a.ImageCaption = sel.Caption
				a.ImageCredit = sel.Credit
			}
		}

		out = append(out, a)
	}
	return out
}

func (i *Ingestor) persist(ctx context.Context, source database.Source, articles []database.Article) []database.Article {
	inserted := make([]database.Article, 0, len(articles))
	for _, a := range articles {
		exists, err := i.deps.Articles.ArticleExists(ctx, source.ID, a.URL)
		if err != nil {
			slog.Warn("Existence check failed, dropping article", "source", source.Name, "url", a.URL, "error", err)
			continue
		}
		if exists {
			continue
		}

		if _, err := i.deps.Articles.InsertArticle(ctx, &a); err != nil {
			if !errors.Is(err, database.ErrDuplicate) {
				slog.Warn("Failed to store article", "source", source.Name, "url", a.URL, "error", err)
			}
			continue
		}
		inserted = append(inserted, a)
	}
	return inserted
}

func (i *Ingestor) publishedAt(item feed.FeedItem) time.Time {
	if item.PublishedAt != nil {
		return item.PublishedAt.UTC()
	}
	return content.ParseDate(item.PublishedRaw, i.now().UTC()).UTC()
}

func (i *Ingestor) enter(source database.Source, state State) {
	slog.Debug("Ingestion state", "source", source.Name, "state", string(state))
	if i.deps.OnState != nil {
		i.deps.OnState(source, state)
	}
}

func (i *Ingestor) fail(source database.Source, err error) error {
	i.enter(source, StateFailed)
	return err
}

func articleTitle(item feed.FeedItem, summary string) string {
	if title := strings.TrimSpace(item.Title); title != "" {
		return title
	}
	if summary != "" {
		return content.Summarize(summary, 80)
	}
	return "Untitled"
}
