package watch

import (
	"sync"
	"time"
)

// Batcher coalesces file changes into a pending set that is drained on a
// fixed interval. A path appears at most once per flush.
//
// Flushes run synchronously on the ticker goroutine, so a slow flush delays
// the next one instead of overlapping it.
type Batcher struct {
	mu       sync.Mutex
	pending  Batch
	interval time.Duration
	onFlush  func(Batch)
	stopped  bool

	// flushMu serializes ticker flushes with FlushNow and Stop.
	flushMu sync.Mutex

	stop chan struct{}
	done chan struct{}
}

// NewBatcher creates a batcher that calls onFlush with each non-empty batch.
func NewBatcher(interval time.Duration, onFlush func(Batch)) *Batcher {
	return &Batcher{
		pending:  make(Batch),
		interval: interval,
		onFlush:  onFlush,
	}
}

// Start begins the ticker. Calling Start twice is a no-op.
func (b *Batcher) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil || b.stopped {
		return
	}
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.loop(b.stop, b.done)
}

func (b *Batcher) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.FlushNow()
		}
	}
}

// Add records a change. Repeated changes to the same path merge into one entry.
func (b *Batcher) Add(path string, kind ChangeKind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.pending[path] = mergeKind(b.pending[path], kind)
}

// take swaps the pending set for an empty one.
func (b *Batcher) take() Batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = make(Batch)
	return batch
}

// FlushNow drains pending changes immediately. Empty sets are a no-op.
func (b *Batcher) FlushNow() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	batch := b.take()
	if len(batch) == 0 || b.onFlush == nil {
		return
	}
	b.onFlush(batch)
}

// Clear discards pending changes without flushing them.
func (b *Batcher) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = make(Batch)
}

// Stop stops the ticker and flushes what is pending. Later Adds are ignored.
func (b *Batcher) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	stop, done := b.stop, b.done
	b.stop = nil
	b.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	b.FlushNow()

	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
}

// PendingCount returns the number of paths waiting to be flushed.
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Interval returns the flush interval.
func (b *Batcher) Interval() time.Duration {
	return b.interval
}
