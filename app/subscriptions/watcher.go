package subscriptions

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 2 * time.Second

type SyncRunner interface {
	Sync(ctx context.Context) (int, error)
}

// Watcher re-syncs subscriptions when files in the feeds directory change.
// Bursts of events within the debounce window trigger a single sync.
type Watcher struct {
	dir      string
	syncer   SyncRunner
	debounce time.Duration
	fs       *fsnotify.Watcher
}

func NewWatcher(dir string, syncer SyncRunner, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{dir: dir, syncer: syncer, debounce: debounce, fs: fs}, nil
}

// Run blocks until ctx is cancelled or the underlying watcher closes.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fs.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	slog.Info("Watching subscriptions", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			slog.Debug("Subscription file changed", "file", filepath.Base(event.Name), "op", event.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("Subscription watcher error", "error", err)

		case <-timer.C:
			n, err := w.syncer.Sync(ctx)
			if err != nil {
				slog.Error("Failed to sync subscriptions", "error", err)
				continue
			}
			slog.Info("Subscriptions synced", "count", n)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if filepath.Ext(event.Name) != fileExt {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
