// Package incremental tracks source file state for change detection.
package incremental

import (
	"fmt"
	"os"
)

// Entry represents a single tracked file's metadata and content fingerprint.
type Entry struct {
	Path    string `json:"path"`     // slash-separated, relative to the root
	Hash    string `json:"hash"`     // BLAKE2b-256 hex
	ModTime int64  `json:"mtime_ns"` // UnixNano
	Size    int64  `json:"size"`
}

// StatEntry builds an Entry for the file at abs, recorded under rel.
// Errors wrap ErrUnreadable.
func StatEntry(abs, rel string) (*Entry, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, abs, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnreadable, abs)
	}

	fp, err := FingerprintFile(abs)
	if err != nil {
		return nil, err
	}

	return &Entry{
		Path:    rel,
		Hash:    fp.String(),
		ModTime: info.ModTime().UnixNano(),
		Size:    info.Size(),
	}, nil
}
