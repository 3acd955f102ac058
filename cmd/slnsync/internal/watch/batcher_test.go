package watch

import (
	"sync"
	"testing"
	"time"
)

type flushRecorder struct {
	mu      sync.Mutex
	batches []Batch
}

func (r *flushRecorder) onFlush(b Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *flushRecorder) snapshot() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Batch, len(r.batches))
	copy(out, r.batches)
	return out
}

func TestBatcher_Coalesces(t *testing.T) {
	var rec flushRecorder
	b := NewBatcher(time.Hour, rec.onFlush)

	for range 5 {
		b.Add("/w/A.cs", Modified)
	}
	if b.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", b.PendingCount())
	}

	b.FlushNow()
	batches := rec.snapshot()
	if len(batches) != 1 || len(batches[0]) != 1 || batches[0]["/w/A.cs"] != Modified {
		t.Errorf("unexpected batches %v", batches)
	}
	if b.PendingCount() != 0 {
		t.Error("flush should clear the pending set")
	}
}

func TestBatcher_MergeKinds(t *testing.T) {
	tests := []struct {
		name string
		in   []ChangeKind
		want ChangeKind
	}{
		{"created then modified", []ChangeKind{Created, Modified}, Created},
		{"deleted then modified", []ChangeKind{Deleted, Modified}, Deleted},
		{"modified then deleted", []ChangeKind{Modified, Deleted}, Deleted},
		{"deleted then created", []ChangeKind{Deleted, Created}, Created},
		{"modified only", []ChangeKind{Modified, Modified}, Modified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec flushRecorder
			b := NewBatcher(time.Hour, rec.onFlush)
			for _, k := range tt.in {
				b.Add("/w/A.cs", k)
			}
			b.FlushNow()
			got := rec.snapshot()[0]["/w/A.cs"]
			if got != tt.want {
				t.Errorf("merged kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBatcher_EmptyFlushIsNoop(t *testing.T) {
	var rec flushRecorder
	b := NewBatcher(time.Hour, rec.onFlush)
	b.FlushNow()
	if len(rec.snapshot()) != 0 {
		t.Error("empty flush should not call onFlush")
	}
}

func TestBatcher_TickerFlush(t *testing.T) {
	var rec flushRecorder
	b := NewBatcher(20*time.Millisecond, rec.onFlush)
	b.Start()
	defer b.Stop()

	b.Add("/w/A.cs", Modified)
	b.Add("/w/B.cs", Created)

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	batches := rec.snapshot()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if len(batches[0]) != 2 {
		t.Errorf("expected 2 paths, got %v", batches[0])
	}
}

func TestBatcher_StopFlushesPending(t *testing.T) {
	var rec flushRecorder
	b := NewBatcher(time.Hour, rec.onFlush)
	b.Start()

	b.Add("/w/A.cs", Modified)
	b.Stop()

	if len(rec.snapshot()) != 1 {
		t.Error("Stop should flush pending changes")
	}

	// Adds after stop are ignored
	b.Add("/w/B.cs", Modified)
	if b.PendingCount() != 0 {
		t.Error("Add after Stop should be ignored")
	}

	// Second stop is safe
	b.Stop()
}

func TestBatcher_Clear(t *testing.T) {
	var rec flushRecorder
	b := NewBatcher(time.Hour, rec.onFlush)
	b.Add("/w/A.cs", Created)
	b.Clear()
	b.FlushNow()
	if len(rec.snapshot()) != 0 {
		t.Error("cleared changes should not be flushed")
	}
}

func TestBatcher_AddDuringFlush(t *testing.T) {
	var rec flushRecorder
	var b *Batcher
	b = NewBatcher(time.Hour, func(batch Batch) {
		rec.onFlush(batch)
		// Changes arriving mid-flush land in the next batch.
		if _, ok := batch["/w/A.cs"]; ok {
			b.Add("/w/B.cs", Modified)
		}
	})

	b.Add("/w/A.cs", Modified)
	b.FlushNow()
	b.FlushNow()

	batches := rec.snapshot()
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if _, ok := batches[1]["/w/B.cs"]; !ok {
		t.Error("change added during flush should be flushed next")
	}
}

func TestBatchIsStructural(t *testing.T) {
	tests := []struct {
		name  string
		batch Batch
		want  bool
	}{
		{"modify only", Batch{"/w/A.cs": Modified}, false},
		{"create", Batch{"/w/A.cs": Modified, "/w/B.cs": Created}, true},
		{"delete", Batch{"/w/A.cs": Deleted}, true},
		{"module definition modified", Batch{"/w/Core/Core.asmdef": Modified}, true},
	}
	for _, tt := range tests {
		if got := tt.batch.IsStructural(); got != tt.want {
			t.Errorf("%s: IsStructural() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseChangeKind(t *testing.T) {
	for _, k := range []ChangeKind{Created, Modified, Deleted, Renamed} {
		got, err := ParseChangeKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseChangeKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseChangeKind("exploded"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
