// Package watch reloads the source store when its file changes on disk,
// so sources edited by another process or by hand reach a running
// supervisor without a restart.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events produced by one save.
const DefaultDebounce = 250 * time.Millisecond

// FileWatcher calls onChange after the watched file settles.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func()
	log      *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// New watches path. The parent directory is watched rather than the file
// itself because the store replaces the file with a rename on every write.
func New(path string, debounce time.Duration, onChange func(), log *slog.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = slog.Default()
	}

	return &FileWatcher{
		watcher:  w,
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		log:      log.With("component", "store-watcher"),
	}, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (w *FileWatcher) Run(ctx context.Context) {
	defer w.Close()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debug("store file event", "op", event.Op.String())
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

// schedule (re)arms the debounce timer so only the last event in a burst
// triggers a reload.
func (w *FileWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.log.Info("store file changed, reloading")
		w.onChange()
	})
}

// Close stops the watcher and any pending reload.
func (w *FileWatcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
