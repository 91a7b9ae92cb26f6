// Package watch re-runs a sync whenever the source directory changes.
//
// Changes are debounced: a sync starts once no event has arrived for the
// debounce period. Syncs run on the watch loop itself, so at most one runs at
// a time; changes made during a sync schedule another one after it.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SyncFunc runs one sync.
type SyncFunc func(ctx context.Context) error

// Watcher watches a directory tree and triggers syncs.
type Watcher struct {
	root     string
	debounce time.Duration
	sync     SyncFunc
	logger   *slog.Logger
	ignore   func(path string) bool
	initial  bool

	events <-chan fsnotify.Event
	errors <-chan error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithIgnore skips events for paths matching ignore, such as snapshot files
// kept inside the watched tree.
func WithIgnore(ignore func(path string) bool) Option {
	return func(w *Watcher) {
		w.ignore = ignore
	}
}

// WithInitialSync controls whether a sync runs as soon as the watcher
// starts. It is enabled by default.
func WithInitialSync(enabled bool) Option {
	return func(w *Watcher) {
		w.initial = enabled
	}
}

// WithEvents makes the watcher consume events from the given channels
// instead of watching root itself.
func WithEvents(events <-chan fsnotify.Event, errs <-chan error) Option {
	return func(w *Watcher) {
		w.events = events
		w.errors = errs
	}
}

// New creates a watcher running sync after changes below root.
func New(root string, debounce time.Duration, sync SyncFunc, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		debounce: debounce,
		sync:     sync,
		logger:   slog.New(slog.DiscardHandler),
		initial:  true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done. Sync failures are logged and do not stop
// the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	var fsw *fsnotify.Watcher
	events, errs := w.events, w.errors
	if events == nil {
		var err error
		fsw, err = fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		defer fsw.Close() //nolint:errcheck // shutting down

		if err := w.addTree(fsw, w.root); err != nil {
			return err
		}
		events, errs = fsw.Events, fsw.Errors
	}

	w.logger.Info("Watching for changes", "root", w.root, "debounce", w.debounce)
	if w.initial {
		w.runSync(ctx)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-events:
			if !ok {
				return fmt.Errorf("watcher event stream closed")
			}
			if w.ignore != nil && w.ignore(event.Name) {
				continue
			}
			w.logger.Debug("Change detected", "path", event.Name, "op", event.Op.String())
			if fsw != nil && event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fsw, event.Name); err != nil {
						w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("Watcher error", "error", err)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			w.runSync(ctx)
		}
	}
}

func (w *Watcher) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := w.sync(ctx); err != nil {
		w.logger.Error("Sync failed", "error", err)
	}
}

// addTree watches dir and every directory below it. fsnotify watches are not
// recursive.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignore != nil && w.ignore(p) {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}
