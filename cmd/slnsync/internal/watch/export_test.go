package watch

import "github.com/fsnotify/fsnotify"

// fail forces the current fsnotify watcher closed, as an OS failure would.
func (w *Watcher) fail() {
	w.closeCurrent()
}

// current returns the live fsnotify handle, or nil between attempts.
func (w *Watcher) current() *fsnotify.Watcher {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fsWatcher
}
