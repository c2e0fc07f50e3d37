package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-harvest/app/database"
)

type fakeFetcher struct {
	delay   time.Duration
	failing map[int64]bool
	perRun  int

	active    atomic.Int32
	maxActive atomic.Int32
	calls     atomic.Int32
}

func (f *fakeFetcher) FetchArticles(_ context.Context, source database.Source) ([]database.Article, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	defer f.active.Add(-1)

	time.Sleep(f.delay)
	if f.failing[source.ID] {
		return nil, errors.New("malformed feed")
	}
	return make([]database.Article, f.perRun), nil
}

type fakeTracker struct {
	mu        sync.Mutex
	failures  map[int64]string
	successes map[int64]int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{failures: map[int64]string{}, successes: map[int64]int{}}
}

func (f *fakeTracker) RecordSuccess(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes[id]++
	return nil
}

func (f *fakeTracker) RecordFailure(_ context.Context, id int64, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = message
	return nil
}

func sourceList(n int) []database.Source {
	out := make([]database.Source, n)
	for i := range out {
		out[i] = database.Source{ID: int64(i + 1), Name: fmt.Sprintf("source-%d", i+1)}
	}
	return out
}

func TestRefreshAll_BoundedConcurrency(t *testing.T) {
	fetcher := &fakeFetcher{delay: 20 * time.Millisecond, perRun: 2}
	o := NewOrchestrator(fetcher, nil)

	var (
		mu       sync.Mutex
		progress []int
		names    = map[string]bool{}
	)
	result := o.RefreshAll(context.Background(), sourceList(10), Options{
		MaxConcurrent: 3,
		OnProgress: func(completed, total int, name string) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 10, total)
			progress = append(progress, completed)
			names[name] = true
		},
	})

	assert.LessOrEqual(t, fetcher.maxActive.Load(), int32(3))
	assert.Equal(t, int32(10), fetcher.calls.Load())
	require.Len(t, progress, 10)
	for i, c := range progress {
		assert.Equal(t, i+1, c)
	}
	assert.Len(t, names, 10)
	assert.Equal(t, 10, result.SuccessCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Equal(t, 20, result.TotalNewArticles)
	assert.NotEmpty(t, result.RunID)
	assert.Empty(t, result.Errors)
}

func TestRefreshAll_DefaultsConcurrency(t *testing.T) {
	fetcher := &fakeFetcher{delay: 10 * time.Millisecond}
	o := NewOrchestrator(fetcher, nil)

	o.RefreshAll(context.Background(), sourceList(8), Options{})

	assert.LessOrEqual(t, fetcher.maxActive.Load(), int32(DefaultMaxConcurrent))
}

func TestRefreshAll_IsolatesFailures(t *testing.T) {
	fetcher := &fakeFetcher{failing: map[int64]bool{3: true}, perRun: 1}
	tracker := newFakeTracker()
	o := NewOrchestrator(fetcher, tracker)

	var errs []string
	var mu sync.Mutex
	result := o.RefreshAll(context.Background(), sourceList(5), Options{
		MaxConcurrent: 2,
		OnError: func(err error, name string) {
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, name+": "+err.Error())
		},
	})

	assert.Equal(t, 4, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, 4, result.TotalNewArticles)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, SourceError{SourceName: "source-3", Message: "malformed feed"}, result.Errors[0])
	assert.Equal(t, []string{"source-3: malformed feed"}, errs)
	assert.Equal(t, "malformed feed", tracker.failures[3])
	assert.Len(t, tracker.successes, 4)
}

func TestRefreshAll_Empty(t *testing.T) {
	o := NewOrchestrator(&fakeFetcher{}, nil)

	result := o.RefreshAll(context.Background(), nil, Options{})

	assert.Zero(t, result.SuccessCount)
	assert.Zero(t, result.FailedCount)
	assert.NotNil(t, result.Errors)
}

func TestRefreshSource_SerializesSameSource(t *testing.T) {
	fetcher := &fakeFetcher{delay: 15 * time.Millisecond}
	o := NewOrchestrator(fetcher, nil)
	source := database.Source{ID: 7, Name: "same"}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.RefreshSource(context.Background(), source)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.maxActive.Load())
	assert.Equal(t, 0, o.locks.size())
}

func TestRefreshSource_CancelledContext(t *testing.T) {
	fetcher := &fakeFetcher{}
	o := NewOrchestrator(fetcher, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.RefreshSource(ctx, database.Source{ID: 1})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fetcher.calls.Load())
}
