package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/langs"
	"github.com/fsnotify/fsnotify"
)

func TestIsWatchLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no space", errors.New("no space left on device"), true},
		{"too many files", errors.New("too many open files"), true},
		{"other", errors.New("permission denied"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWatchLimitError(tt.err); got != tt.want {
				t.Errorf("isWatchLimitError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want ChangeKind
		ok   bool
	}{
		{fsnotify.Create, Created, true},
		{fsnotify.Write, Modified, true},
		{fsnotify.Remove, Deleted, true},
		{fsnotify.Rename, Deleted, true},
		{fsnotify.Chmod, 0, false},
	}

	for _, tt := range tests {
		got, ok := translate(fsnotify.Event{Name: "/w/A.cs", Op: tt.op})
		if got != tt.want || ok != tt.ok {
			t.Errorf("translate(%v) = %v, %v; want %v, %v", tt.op, got, ok, tt.want, tt.ok)
		}
	}
}

func TestWatcherCloseBeforeRun(t *testing.T) {
	w := NewWatcher(WatcherConfig{})
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (c *changeLog) add(ch Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, ch)
}

func (c *changeLog) has(path string, kind ChangeKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.changes {
		if ch.Path == path && ch.Kind == kind {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestWatcherDeliversEvents(t *testing.T) {
	root := t.TempDir()
	filter, err := langs.NewFilter(root, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	var log changeLog
	w := NewWatcher(WatcherConfig{Filter: filter, Handle: log.add, RetryInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		_ = w.Close()
		<-done
	}()

	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(root, "A.cs")
	if err := os.WriteFile(path, []byte("class A {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, func() bool { return log.has(path, Created) }) {
		t.Error("expected a Created change for the new file")
	}
}

func TestWatcherReestablishesAfterFailure(t *testing.T) {
	root := t.TempDir()
	filter, err := langs.NewFilter(root, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	var rescans atomic.Int32
	var log changeLog
	w := NewWatcher(WatcherConfig{
		Filter:        filter,
		Handle:        log.add,
		RetryInterval: 20 * time.Millisecond,
		Rescan: func(context.Context) error {
			rescans.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		_ = w.Close()
		<-done
	}()

	time.Sleep(100 * time.Millisecond)
	w.fail()

	if !waitFor(t, func() bool { return rescans.Load() == 1 }) {
		t.Fatal("expected a rescan after the watcher was re-established")
	}

	path := filepath.Join(root, "B.cs")
	if err := os.WriteFile(path, []byte("class B {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return log.has(path, Created) }) {
		t.Error("re-established watcher should deliver events")
	}
}

func TestWatcherReestablishesAfterError(t *testing.T) {
	root := t.TempDir()
	filter, err := langs.NewFilter(root, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	var rescans atomic.Int32
	var reported atomic.Int32
	w := NewWatcher(WatcherConfig{
		Filter:        filter,
		RetryInterval: 20 * time.Millisecond,
		Rescan: func(context.Context) error {
			rescans.Add(1)
			return nil
		},
		OnError: func(error) { reported.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		_ = w.Close()
		<-done
	}()

	var first *fsnotify.Watcher
	if !waitFor(t, func() bool { first = w.current(); return first != nil }) {
		t.Fatal("watcher never started")
	}

	select {
	case first.Errors <- errors.New("inotify: read failed: input/output error"):
	case <-time.After(time.Second):
		t.Fatal("watcher did not read from its error channel")
	}

	if !waitFor(t, func() bool { return rescans.Load() == 1 }) {
		t.Fatal("expected a rescan after a watcher error")
	}
	if reported.Load() == 0 {
		t.Error("the error should be reported")
	}
	if next := w.current(); next == nil || next == first {
		t.Error("expected a fresh fsnotify watcher")
	}
}
