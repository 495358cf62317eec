package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 200 * time.Millisecond

// Watcher reports external edits to a store file. The parent directory is
// watched rather than the file itself because FileStore replaces the file by
// rename, which drops a file-level watch on most platforms.
type Watcher struct {
	path     string
	base     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	onChange func()
	logger   *slog.Logger
}

func NewWatcher(path string, onChange func(), logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("storage: watch path is required")
	}
	if onChange == nil {
		return nil, errors.New("storage: watch callback is required")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		base:     filepath.Base(path),
		debounce: defaultWatchDebounce,
		watcher:  fw,
		onChange: onChange,
		logger:   loggerOrDefault(logger).With("path", path),
	}, nil
}

// Run blocks until ctx is cancelled. Bursts of events within the debounce
// window produce a single callback.
func (w *Watcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	defer w.watcher.Close()
	w.logger.Debug("watching store for external edits")

	var fire <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("store watcher error", "error", err)
		case <-fire:
			fire = nil
			w.logger.Info("store changed on disk")
			w.onChange()
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != w.base {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
