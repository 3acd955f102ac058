// Package watch implements change detection for automatic project synchronization.
package watch

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/langs"
)

// ChangeKind classifies a file notification.
type ChangeKind int

const (
	Created ChangeKind = iota + 1
	Modified
	Deleted
	Renamed
)

// String returns the lowercase kind name.
func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// IsStructural reports whether the kind adds or removes files.
func (k ChangeKind) IsStructural() bool {
	return k == Created || k == Deleted || k == Renamed
}

// Symbol maps the kind to its console marker.
func (k ChangeKind) Symbol() ChangeType {
	switch k {
	case Created:
		return ChangeAdded
	case Deleted:
		return ChangeDeleted
	default:
		return ChangeModified
	}
}

// ParseChangeKind parses the names produced by String.
func ParseChangeKind(s string) (ChangeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created", "create", "added":
		return Created, nil
	case "modified", "modify", "changed":
		return Modified, nil
	case "deleted", "delete", "removed":
		return Deleted, nil
	case "renamed", "rename", "moved":
		return Renamed, nil
	}
	return 0, fmt.Errorf("unknown change kind %q", s)
}

// Change is a single file notification from the platform watcher or a host.
// OldPath is only set for Renamed.
type Change struct {
	Kind    ChangeKind
	Path    string
	OldPath string
}

// Batch is a drained pending change set, keyed by absolute path.
type Batch map[string]ChangeKind

// Paths returns the batch paths, sorted.
func (b Batch) Paths() []string {
	return slices.Sorted(maps.Keys(b))
}

// IsStructural reports whether the batch adds or removes files or touches a
// module definition.
func (b Batch) IsStructural() bool {
	for path, kind := range b {
		if kind.IsStructural() || langs.IsModuleDefinition(path) {
			return true
		}
	}
	return false
}

// mergeKind combines a pending kind with a new one. Structural kinds are
// never downgraded to Modified.
func mergeKind(prev, next ChangeKind) ChangeKind {
	if prev == 0 {
		return next
	}
	if next == Modified && prev.IsStructural() {
		return prev
	}
	return next
}
