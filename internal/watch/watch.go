// Package watch re-runs a callback whenever a response file changes on disk.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"apex-preview/internal/logging"
)

// DefaultDebounce batches the burst of events a single editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Handler receives the file's content after each settled change.
type Handler func(ctx context.Context, content []byte) error

// Watcher watches one file. The parent directory is watched so that editors
// which replace the file by rename are followed.
type Watcher struct {
	path     string
	debounce time.Duration
	handle   Handler
	log      *zap.Logger
}

// New creates a watcher for path.
func New(path string, debounce time.Duration, handle Handler) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{path: abs, debounce: debounce, handle: handle, log: logging.Named("watch")}, nil
}

// Run calls the handler once for the current content, then after every
// change until ctx is done. Handler errors are logged and do not stop the
// watch.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.log.Info("watching", zap.String("path", w.path))

	w.fire(ctx)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-timerC:
			timerC = nil
			w.fire(ctx)
		}
	}
}

func (w *Watcher) fire(ctx context.Context) {
	content, err := os.ReadFile(w.path)
	if err != nil {
		// Mid-rename or deleted; the next event retries.
		w.log.Debug("read failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.handle(ctx, content); err != nil {
		w.log.Warn("handler failed", zap.String("path", w.path), zap.Error(err))
	}
}
