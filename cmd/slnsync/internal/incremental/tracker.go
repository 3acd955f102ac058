package incremental

import (
	"context"
	"fmt"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/langs"
)

// Report describes how the tree drifted from the persisted state.
type Report struct {
	// Sources are tracked files added, modified or deleted since the last pass.
	Sources *ChangeSet
	// Artifacts are generated files deleted or edited since the last pass.
	Artifacts []string
	// Modules are the module names of the last pass.
	Modules []string
}

// UpToDate reports whether neither sources nor artifacts drifted.
func (r *Report) UpToDate() bool {
	return r.Sources.IsEmpty() && len(r.Artifacts) == 0
}

// Tracker compares persisted state against the filesystem.
type Tracker struct {
	store   *Store
	scanner *Scanner
	filter  *langs.Filter
}

// NewTracker creates a tracker for the project selected by filter.
func NewTracker(filter *langs.Filter) *Tracker {
	return &Tracker{
		store:   NewStore(filter.Root()),
		scanner: NewScanner(filter),
		filter:  filter,
	}
}

// HasState reports whether a previous pass left state behind.
func (t *Tracker) HasState() bool {
	return t.store.Exists()
}

// Load returns the persisted state, or an empty one when none exists.
func (t *Tracker) Load() (*State, error) {
	return t.store.Load()
}

// Save persists the state of a completed pass.
func (t *Tracker) Save(st *State) error {
	if err := t.store.Save(st); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Status compares the persisted state with the tree without writing.
func (t *Tracker) Status(ctx context.Context) (*Report, error) {
	st, err := t.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	fast, err := t.scanner.ScanFast(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}

	return &Report{
		Sources:   t.diffLazy(st.Sources, fast),
		Artifacts: st.StaleArtifacts(t.filter.Root()),
		Modules:   st.ModuleNames(),
	}, nil
}

// diffLazy is Diff against an unhashed index: files whose mtime or size
// moved are fingerprinted before being called modified.
func (t *Tracker) diffLazy(old, fast *Index) *ChangeSet {
	cs := NewChangeSet()

	for path, now := range fast.Entries {
		prev, ok := old.Get(path)
		if !ok {
			cs.Added = append(cs.Added, path)
			continue
		}
		if prev.ModTime == now.ModTime && prev.Size == now.Size {
			continue
		}
		fp, err := FingerprintFile(t.filter.Abs(path))
		if err != nil || prev.Hash != fp.String() {
			cs.Modified = append(cs.Modified, path)
		}
	}

	for _, path := range old.Paths() {
		if _, ok := fast.Get(path); !ok {
			cs.Deleted = append(cs.Deleted, path)
		}
	}

	cs.sort()
	return cs
}
