// Package watch reloads the dataset when its file changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"raceview/internal/core"
)

// DefaultDebounce batches the burst of events an editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// Reloader is the part of core.Service the watcher drives.
type Reloader interface {
	Reload(ctx context.Context) (core.Snapshot, error)
}

// Watcher watches the directory holding one data file and calls Reload after
// the file is written, created or renamed into place.
type Watcher struct {
	path     string
	reloader Reloader
	logger   *zap.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	reloads   atomic.Uint64
	closeOnce sync.Once
	closeErr  error
}

// New starts watching the directory of path. A non-positive debounce uses
// DefaultDebounce.
func New(path string, r Reloader, logger *zap.Logger, debounce time.Duration) (*Watcher, error) {
	if r == nil {
		return nil, errors.New("watch: reloader required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	// Watch the directory: editors and publishers often replace the file.
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{path: abs, reloader: r, logger: logger, debounce: debounce, watcher: fw}, nil
}

// Path is the absolute path of the watched file.
func (w *Watcher) Path() string { return w.path }

// Reloads counts the reloads the watcher has triggered.
func (w *Watcher) Reloads() uint64 { return w.reloads.Load() }

// Run handles events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.Close() }()
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	w.logger.Info("watching data file", zap.String("path", w.path))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				w.logger.Debug("data file changed", zap.String("op", event.Op.String()))
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) reload(ctx context.Context) {
	w.reloads.Add(1)
	snap, err := w.reloader.Reload(ctx)
	switch {
	case errors.Is(err, core.ErrStaleLoad):
		w.logger.Debug("watch reload superseded", zap.Uint64("generation", snap.Generation))
	case err != nil:
		w.logger.Warn("watch reload failed", zap.Error(err))
	default:
		w.logger.Info("watch reload applied",
			zap.Uint64("generation", snap.Generation),
			zap.Int("records", snap.Count()))
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { w.closeErr = w.watcher.Close() })
	return w.closeErr
}
