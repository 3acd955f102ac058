package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/langs"
	"github.com/albertocavalcante/slnsync/internal/log"
	"github.com/fsnotify/fsnotify"
)

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")

// WatcherConfig configures the platform watcher.
type WatcherConfig struct {
	Filter *langs.Filter

	// Handle receives every translated notification.
	Handle func(Change)

	// Rescan is called after the watcher was re-established so changes
	// missed while it was down are recovered.
	Rescan func(ctx context.Context) error

	// RetryInterval is the delay between re-establish attempts.
	RetryInterval time.Duration

	// OnError observes watcher errors. Optional.
	OnError func(error)
}

// Watcher translates fsnotify events for a directory tree into Changes.
// Watcher failures are recovered internally and never returned from Run.
type Watcher struct {
	config WatcherConfig

	mu        sync.Mutex
	fsWatcher *fsnotify.Watcher
	closed    bool
}

// NewWatcher creates a watcher. The fsnotify handle is created by Run.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	return &Watcher{config: cfg}
}

// Run watches until ctx is cancelled or Close is called. When the event or
// error channel fails, the fsnotify watcher is replaced, every directory is
// re-added and Rescan runs. Attempts repeat every RetryInterval.
func (w *Watcher) Run(ctx context.Context) error {
	logger := log.Component("watcher")

	fsw, err := w.establish()
	if err != nil {
		return err
	}

	for {
		restart := w.loop(ctx, fsw)
		if !restart {
			return nil
		}

		w.closeCurrent()
		logger.Warn("watcher failed, re-establishing", "root", w.config.Filter.Root())

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.config.RetryInterval):
			}
			if w.isClosed() {
				return nil
			}

			fsw, err = w.establish()
			if err != nil {
				w.reportError(fmt.Errorf("failed to re-establish watcher: %w", err))
				continue
			}
			if w.config.Rescan != nil {
				if err := w.config.Rescan(ctx); err != nil {
					w.reportError(fmt.Errorf("rescan after re-establish failed: %w", err))
				}
			}
			logger.Info("watcher re-established", "root", w.config.Filter.Root())
			break
		}
	}
}

// loop pumps events until shutdown (false) or a watcher failure (true). Any
// error reported by fsnotify counts as a failure.
func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) bool {
	for {
		select {
		case <-ctx.Done():
			return false

		case event, ok := <-fsw.Events:
			if !ok {
				return !w.isClosed()
			}
			w.handleEvent(fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return !w.isClosed()
			}
			if err == nil {
				continue
			}
			// The handle may have dropped events; only a fresh one and a
			// rescan are trustworthy.
			w.reportError(err)
			return !w.isClosed()
		}
	}
}

// establish creates a fresh fsnotify watcher and adds the whole tree.
func (w *Watcher) establish() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.addRecursive(fsw, w.config.Filter.Root()); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch workspace: %w", err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = fsw.Close()
		return nil, errors.New("watcher closed")
	}
	w.fsWatcher = fsw
	w.mu.Unlock()
	return fsw, nil
}

// addRecursive adds a directory and all non-ignored subdirectories.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				log.Component("watcher").Debug("permission denied", "path", path)
				return nil
			}
			if path == root {
				return err
			}
			return nil
		}

		if !d.IsDir() {
			return nil
		}
		if path != w.config.Filter.Root() && w.config.Filter.IsIgnoredDir(path) {
			return filepath.SkipDir
		}

		if err := fsw.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w for %s: %w\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288",
					ErrWatchLimitReached, path, err)
			}
			log.Component("watcher").Debug("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// handleEvent translates a single filesystem event.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) {
	path := event.Name

	// New directories need watches before their files are picked up.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.config.Filter.IsIgnoredDir(path) {
				return
			}
			if err := w.addRecursive(fsw, path); err != nil {
				w.reportError(fmt.Errorf("failed to watch new directory %s: %w", path, err))
			}
		}
	}

	kind, ok := translate(event)
	if !ok || w.config.Handle == nil {
		return
	}
	w.config.Handle(Change{Kind: kind, Path: path})
}

// translate maps fsnotify operations to change kinds. A rename reports the
// old name only; the new name arrives as a separate Create.
func translate(event fsnotify.Event) (ChangeKind, bool) {
	switch {
	case event.Has(fsnotify.Create):
		return Created, true
	case event.Has(fsnotify.Write):
		return Modified, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return Deleted, true
	default:
		return 0, false
	}
}

func (w *Watcher) reportError(err error) {
	log.Component("watcher").Warn("watch error", "error", err)
	if w.config.OnError != nil {
		w.config.OnError(err)
	}
}

func (w *Watcher) closeCurrent() {
	w.mu.Lock()
	fsw := w.fsWatcher
	w.fsWatcher = nil
	w.mu.Unlock()
	if fsw != nil {
		_ = fsw.Close()
	}
}

func (w *Watcher) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close closes the watcher and releases resources. Run returns afterwards.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	fsw := w.fsWatcher
	w.fsWatcher = nil
	w.mu.Unlock()

	if fsw != nil {
		return fsw.Close()
	}
	return nil
}
