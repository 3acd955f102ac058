package incremental

import (
	"maps"
	"slices"
	"strings"
)

// Index is the set of tracked sources keyed by root-relative slash path.
type Index struct {
	Entries map[string]*Entry `json:"entries"`
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{Entries: make(map[string]*Entry)}
}

// Add adds or updates an entry.
func (idx *Index) Add(e *Entry) {
	if idx == nil || e == nil {
		return
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*Entry)
	}
	idx.Entries[e.Path] = e
}

// Get retrieves an entry by path.
func (idx *Index) Get(path string) (*Entry, bool) {
	if idx == nil || idx.Entries == nil {
		return nil, false
	}
	e, ok := idx.Entries[path]
	return e, ok
}

// Remove deletes an entry, reporting whether it was present.
func (idx *Index) Remove(path string) bool {
	if idx == nil || idx.Entries == nil {
		return false
	}
	if _, ok := idx.Entries[path]; !ok {
		return false
	}
	delete(idx.Entries, path)
	return true
}

// RemoveUnder deletes every entry below dir and returns their paths, sorted.
func (idx *Index) RemoveUnder(dir string) []string {
	if idx == nil || idx.Entries == nil {
		return nil
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	if dir == "." || dir == "" {
		prefix = ""
	}

	var removed []string
	for path := range idx.Entries {
		if strings.HasPrefix(path, prefix) {
			removed = append(removed, path)
		}
	}
	for _, path := range removed {
		delete(idx.Entries, path)
	}
	slices.Sort(removed)
	return removed
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.Entries)
}

// Paths returns all entry paths, sorted.
func (idx *Index) Paths() []string {
	if idx == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(idx.Entries))
}

// Clone returns a copy sharing no maps with idx. Entries are copied by value.
func (idx *Index) Clone() *Index {
	out := NewIndex()
	if idx == nil {
		return out
	}
	for path, e := range idx.Entries {
		c := *e
		out.Entries[path] = &c
	}
	return out
}

// Diff compares this index against another, returning changes.
// The receiver (idx) is the "old" state, other is the "new" state.
func (idx *Index) Diff(other *Index) *ChangeSet {
	cs := NewChangeSet()

	if idx == nil && other == nil {
		return cs
	}

	oldEntries := make(map[string]*Entry)
	newEntries := make(map[string]*Entry)

	if idx != nil && idx.Entries != nil {
		oldEntries = idx.Entries
	}
	if other != nil && other.Entries != nil {
		newEntries = other.Entries
	}

	// Check for new and modified files
	for path, newEntry := range newEntries {
		oldEntry, exists := oldEntries[path]
		if !exists {
			cs.Added = append(cs.Added, path)
			continue
		}

		// Fast path: if mtime and size unchanged, skip hash comparison
		if oldEntry.ModTime == newEntry.ModTime && oldEntry.Size == newEntry.Size {
			continue
		}

		// Hash changed means content changed
		if oldEntry.Hash != newEntry.Hash {
			cs.Modified = append(cs.Modified, path)
		}
	}

	// Check for deleted files
	for path := range oldEntries {
		if _, exists := newEntries[path]; !exists {
			cs.Deleted = append(cs.Deleted, path)
		}
	}

	cs.sort()
	return cs
}
