package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/rss-harvest/app/database"
	"github.com/lysyi3m/rss-harvest/app/metrics"
)

const DefaultMaxConcurrent = 3

type Options struct {
	MaxConcurrent int
	// OnProgress runs after every completed source with a strictly increasing count.
	OnProgress func(completed, total int, sourceName string)
	OnError    func(err error, sourceName string)
}

type SourceError struct {
	SourceName string `json:"source_name"`
	Message    string `json:"message"`
}

type RefreshResult struct {
	RunID            string        `json:"run_id"`
	SuccessCount     int           `json:"success_count"`
	FailedCount      int           `json:"failed_count"`
	TotalNewArticles int           `json:"total_new_articles"`
	Errors           []SourceError `json:"errors"`
	Duration         time.Duration `json:"duration"`
}

// Orchestrator refreshes many sources through a bounded pool.
type Orchestrator struct {
	fetcher ArticleFetcher
	tracker SourceTracker
	locks   *keyedMutex
}

func NewOrchestrator(fetcher ArticleFetcher, tracker SourceTracker) *Orchestrator {
	return &Orchestrator{
		fetcher: fetcher,
		tracker: tracker,
		locks:   newKeyedMutex(),
	}
}

// RefreshSource refreshes a single source outside of a batch.
func (o *Orchestrator) RefreshSource(ctx context.Context, source database.Source) ([]database.Article, error) {
	return NewRefreshSourceTask(source, o.fetcher, o.tracker, o.locks).Execute(ctx)
}

// RefreshAll ingests every source with at most MaxConcurrent in flight. A failing
// source is counted and reported but never stops the others.
func (o *Orchestrator) RefreshAll(ctx context.Context, sources []database.Source, opts Options) RefreshResult {
	run := NewTask(TaskTypeRefreshAll, "all")
	run.Start()

	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}

	result := RefreshResult{RunID: run.ID, Errors: []SourceError{}}
	total := len(sources)

	var (
		mu        sync.Mutex
		completed int
	)

	g := new(errgroup.Group)
	g.SetLimit(limit)

	for _, source := range sources {
		g.Go(func() error {
			articles, err := o.RefreshSource(ctx, source)

			mu.Lock()
			defer mu.Unlock()

			completed++
			if err != nil {
				result.FailedCount++
				result.Errors = append(result.Errors, SourceError{SourceName: source.Name, Message: err.Error()})
				if opts.OnError != nil {
					opts.OnError(err, source.Name)
				}
			} else {
				result.SuccessCount++
				result.TotalNewArticles += len(articles)
			}
			if opts.OnProgress != nil {
				opts.OnProgress(completed, total, source.Name)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = run.Elapsed()
	metrics.RecordRefreshRun(result.Duration)
	slog.Info("Task completed", run.LogAttrs(
		"duration", result.Duration,
		"sources", total,
		"succeeded", result.SuccessCount,
		"failed", result.FailedCount,
		"new", result.TotalNewArticles)...)

	return result
}
