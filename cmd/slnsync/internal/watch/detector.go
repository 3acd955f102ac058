package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/incremental"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/langs"
	"github.com/albertocavalcante/slnsync/internal/log"
)

// Sink receives detected changes. *Batcher implements it.
type Sink interface {
	Add(path string, kind ChangeKind)
}

// Detector owns the tracked file set. It fingerprints files on notification,
// suppresses notifications whose content did not change, and forwards real
// changes to a Sink.
type Detector struct {
	filter  *langs.Filter
	scanner *incremental.Scanner
	sink    Sink

	mu      sync.Mutex
	tracked *incremental.Index

	suppressed atomic.Int64

	// OnChange, when set, observes every change forwarded to the sink.
	OnChange func(path string, kind ChangeKind)
}

// NewDetector creates a detector with an empty tracked set.
func NewDetector(filter *langs.Filter, sink Sink) *Detector {
	return &Detector{
		filter:  filter,
		scanner: incremental.NewScanner(filter),
		sink:    sink,
		tracked: incremental.NewIndex(),
	}
}

// Filter returns the file filter in use.
func (d *Detector) Filter() *langs.Filter {
	return d.filter
}

// Scan replaces the tracked set with a full scan of the root. Nothing is
// enqueued. The returned index is a copy.
func (d *Detector) Scan(ctx context.Context) (*incremental.Index, error) {
	idx, err := d.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", d.filter.Root(), err)
	}

	d.mu.Lock()
	d.tracked = idx
	d.mu.Unlock()

	return idx.Clone(), nil
}

// Rescan scans the root, enqueues the difference against the tracked set and
// adopts the scan as the new tracked set.
func (d *Detector) Rescan(ctx context.Context) (*incremental.ChangeSet, error) {
	idx, err := d.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to rescan %s: %w", d.filter.Root(), err)
	}

	d.mu.Lock()
	cs := d.tracked.Diff(idx)
	d.tracked = idx
	d.mu.Unlock()

	for _, rel := range cs.Added {
		d.emit(rel, Created)
	}
	for _, rel := range cs.Modified {
		d.emit(rel, Modified)
	}
	for _, rel := range cs.Deleted {
		d.emit(rel, Deleted)
	}
	return cs, nil
}

// Reset forgets every tracked file.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.tracked = incremental.NewIndex()
	d.mu.Unlock()
}

// Snapshot returns a copy of the tracked set.
func (d *Detector) Snapshot() *incremental.Index {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracked.Clone()
}

// TrackedCount returns the number of tracked files.
func (d *Detector) TrackedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracked.Len()
}

// Suppressed returns how many notifications were dropped because the content
// fingerprint was unchanged or the file could not be read.
func (d *Detector) Suppressed() int64 {
	return d.suppressed.Load()
}

// Handle applies a single change notification.
func (d *Detector) Handle(c Change) {
	switch c.Kind {
	case Created:
		d.created(c.Path)
	case Modified:
		d.modified(c.Path)
	case Deleted:
		d.removed(c.Path)
	case Renamed:
		if c.OldPath != "" {
			d.removed(c.OldPath)
		}
		d.created(c.Path)
	default:
		log.Component("detector").Debug("ignoring change", "kind", c.Kind, "path", c.Path)
	}
}

func (d *Detector) created(path string) {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		d.createdDir(path)
		return
	}
	if !d.filter.Matches(path) {
		return
	}
	rel, ok := d.filter.Rel(path)
	if !ok {
		return
	}

	entry, err := incremental.StatEntry(d.filter.Abs(rel), rel)
	if err != nil {
		// Not enqueued; a later modify or rescan picks it up.
		log.Component("detector").Debug("skipping unreadable file", "path", path, "error", err)
		return
	}

	d.mu.Lock()
	prev, exists := d.tracked.Get(rel)
	d.tracked.Add(entry)
	d.mu.Unlock()

	switch {
	case !exists:
		d.emit(rel, Created)
	case prev.Hash != entry.Hash:
		d.emit(rel, Modified)
	default:
		d.suppressed.Add(1)
	}
}

// createdDir tracks every matching file below a directory that appeared
// after the initial scan (e.g. moved into the tree).
func (d *Detector) createdDir(dir string) {
	if d.filter.IsIgnoredDir(dir) {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if path != dir && d.filter.IsIgnoredDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		d.created(path)
		return nil
	})
}

func (d *Detector) modified(path string) {
	if !d.filter.Matches(path) {
		return
	}
	rel, ok := d.filter.Rel(path)
	if !ok {
		return
	}

	entry, err := incremental.StatEntry(d.filter.Abs(rel), rel)
	if err != nil {
		if errors.Is(err, incremental.ErrUnreadable) {
			d.suppressed.Add(1)
			log.Component("detector").Debug("suppressing unreadable modify", "path", path, "error", err)
		}
		return
	}

	d.mu.Lock()
	prev, exists := d.tracked.Get(rel)
	d.tracked.Add(entry)
	d.mu.Unlock()

	switch {
	case !exists:
		d.emit(rel, Created)
	case prev.Hash != entry.Hash:
		d.emit(rel, Modified)
	default:
		d.suppressed.Add(1)
	}
}

func (d *Detector) removed(path string) {
	rel, ok := d.filter.Rel(path)
	if !ok {
		return
	}

	d.mu.Lock()
	var gone []string
	if d.tracked.Remove(rel) {
		gone = []string{rel}
	} else {
		gone = d.tracked.RemoveUnder(rel)
	}
	d.mu.Unlock()

	for _, r := range gone {
		d.emit(r, Deleted)
	}
}

func (d *Detector) emit(rel string, kind ChangeKind) {
	abs := d.filter.Abs(rel)
	if d.sink != nil {
		d.sink.Add(abs, kind)
	}
	if d.OnChange != nil {
		d.OnChange(abs, kind)
	}
}
