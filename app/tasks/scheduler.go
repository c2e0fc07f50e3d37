package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

var ErrRefreshRunning = errors.New("refresh already running")

// Scheduler refreshes active sources at startup and on a cron schedule. Each
// scheduled run syncs subscriptions first. Runs never overlap.
type Scheduler struct {
	orchestrator  *Orchestrator
	sources       SourceLister
	syncer        Syncer
	maxConcurrent int
	cron          *cron.Cron
	running       atomic.Bool
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewScheduler validates schedule; an empty schedule disables periodic runs.
// syncer may be nil.
func NewScheduler(orchestrator *Orchestrator, sources SourceLister, syncer Syncer, schedule string, maxConcurrent int) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		orchestrator:  orchestrator,
		sources:       sources,
		syncer:        syncer,
		maxConcurrent: maxConcurrent,
		cron:          cron.New(),
		ctx:           ctx,
		cancel:        cancel,
	}

	if schedule == "" {
		return s, nil
	}
	if _, err := s.cron.AddFunc(schedule, s.scheduledRun); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.scheduledRun()
	}()
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// RunNow refreshes all active sources immediately unless a run is in progress.
func (s *Scheduler) RunNow(ctx context.Context) (RefreshResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RefreshResult{}, ErrRefreshRunning
	}
	defer s.running.Store(false)

	sources, err := s.sources.ListSources(ctx, true)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("failed to list active sources: %w", err)
	}

	return s.orchestrator.RefreshAll(ctx, sources, Options{
		MaxConcurrent: s.maxConcurrent,
		OnProgress: func(completed, total int, name string) {
			slog.Debug("Refresh progress", "completed", completed, "total", total, "source", name)
		},
		OnError: func(err error, name string) {
			slog.Warn("Source refresh failed", "source", name, "error", err)
		},
	}), nil
}

func (s *Scheduler) scheduledRun() {
	if s.ctx.Err() != nil {
		return
	}
	s.syncSubscriptions()
	if _, err := s.RunNow(s.ctx); err != nil {
		if errors.Is(err, ErrRefreshRunning) {
			slog.Debug("Skipping scheduled refresh, previous run still active")
			return
		}
		slog.Error("Scheduled refresh failed", "error", err)
	}
}

func (s *Scheduler) syncSubscriptions() {
	if s.syncer == nil {
		return
	}

	task := NewTask(TaskTypeSyncSubscriptions, "subscriptions")
	task.Start()
	n, err := s.syncer.Sync(s.ctx)
	if err != nil {
		slog.Error("Task failed", task.LogAttrs("error", err)...)
		return
	}
	slog.Info("Task completed", task.LogAttrs("duration", task.Elapsed(), "sources", n)...)
}
