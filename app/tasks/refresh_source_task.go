package tasks

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/rss-harvest/app/database"
	"github.com/lysyi3m/rss-harvest/app/metrics"
)

type RefreshSourceTask struct {
	Task
	Source  database.Source
	fetcher ArticleFetcher
	tracker SourceTracker
	locks   *keyedMutex
}

func NewRefreshSourceTask(source database.Source, fetcher ArticleFetcher, tracker SourceTracker, locks *keyedMutex) *RefreshSourceTask {
	return &RefreshSourceTask{
		Task:    NewTask(TaskTypeRefreshSource, source.Name),
		Source:  source,
		fetcher: fetcher,
		tracker: tracker,
		locks:   locks,
	}
}

// Execute refreshes the source while holding its lock, so a scheduled run and
// a manual one never ingest the same source at once.
func (t *RefreshSourceTask) Execute(ctx context.Context) ([]database.Article, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	unlock := t.locks.Lock(t.Source.ID)
	defer unlock()

	t.Start()
	articles, err := t.fetcher.FetchArticles(ctx, t.Source)
	metrics.RecordSourceRefresh(err == nil, len(articles))
	if err != nil {
		slog.Error("Task failed", t.LogAttrs("source", t.Source.Name, "duration", t.Elapsed(), "error", err)...)
		if t.tracker != nil {
			if recErr := t.tracker.RecordFailure(context.WithoutCancel(ctx), t.Source.ID, err.Error()); recErr != nil {
				slog.Warn("Failed to record source failure", "source", t.Source.Name, "error", recErr)
			}
		}
		return nil, err
	}

	if t.tracker != nil {
		if recErr := t.tracker.RecordSuccess(ctx, t.Source.ID); recErr != nil {
			slog.Warn("Failed to reset source errors", "source", t.Source.Name, "error", recErr)
		}
	}

	return articles, nil
}
