package subscriptions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-harvest/app/database"
)

type SourceStore interface {
	UpsertSource(ctx context.Context, s database.Source) (int64, error)
	ListSources(ctx context.Context, activeOnly bool) ([]database.Source, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Syncer reloads subscription files and upserts them as sources by URL. Active
// sources whose file has disappeared are deactivated; their articles are kept.
type Syncer struct {
	cache   *Cache
	sources SourceStore
}

func NewSyncer(cache *Cache, sources SourceStore) *Syncer {
	return &Syncer{cache: cache, sources: sources}
}

func (s *Syncer) Sync(ctx context.Context) (int, error) {
	if err := s.cache.Run(); err != nil {
		return 0, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	subscribed := make(map[string]struct{})
	var n int
	for _, sub := range s.cache.Subscriptions() {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		_, err := s.sources.UpsertSource(ctx, database.Source{
			URL:         sub.URL,
			Name:        sub.Name,
			Category:    sub.Category,
			ContentMode: sub.ContentMode,
			IsActive:    sub.IsEnabled(),
			SortOrder:   sub.SortOrder,
		})
		if err != nil {
			return n, fmt.Errorf("failed to sync subscription %s: %w", sub.File, err)
		}
		subscribed[sub.URL] = struct{}{}
		n++
	}

	if err := s.deactivateRemoved(ctx, subscribed); err != nil {
		return n, err
	}
	return n, nil
}

func (s *Syncer) deactivateRemoved(ctx context.Context, subscribed map[string]struct{}) error {
	active, err := s.sources.ListSources(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	for _, src := range active {
		if _, ok := subscribed[src.URL]; ok {
			continue
		}
		if err := s.sources.SetActive(ctx, src.ID, false); err != nil {
			return fmt.Errorf("failed to deactivate source %s: %w", src.Name, err)
		}
		slog.Info("Subscription removed, source deactivated", "source", src.Name, "url", src.URL)
	}
	return nil
}
