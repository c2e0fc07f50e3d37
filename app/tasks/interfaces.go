package tasks

import (
	"context"

	"github.com/lysyi3m/rss-harvest/app/database"
)

// TaskSchedulerInterface is what the server needs from the background scheduler.
//
//	scheduler, err := NewScheduler(orchestrator, sourceRepo, syncer, "@every 30m", 3)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	RunNow(ctx context.Context) (RefreshResult, error)
}

// ArticleFetcher runs one source refresh; ingest.Ingestor implements it.
type ArticleFetcher interface {
	FetchArticles(ctx context.Context, source database.Source) ([]database.Article, error)
}

// SourceTracker records per-source refresh outcomes.
type SourceTracker interface {
	RecordSuccess(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, message string) error
}

type SourceLister interface {
	ListSources(ctx context.Context, activeOnly bool) ([]database.Source, error)
}

// Syncer pushes subscription files into storage.
type Syncer interface {
	Sync(ctx context.Context) (int, error)
}
