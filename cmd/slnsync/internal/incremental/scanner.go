package incremental

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/langs"
	"github.com/albertocavalcante/slnsync/internal/log"
)

// Scanner builds an Index by walking the filesystem.
type Scanner struct {
	filter *langs.Filter
}

// NewScanner creates a scanner that selects files through filter.
func NewScanner(filter *langs.Filter) *Scanner {
	return &Scanner{filter: filter}
}

// Scan walks the filesystem and builds a fingerprinted Index.
// Files that disappear or cannot be read mid-walk are skipped.
func (s *Scanner) Scan(ctx context.Context) (*Index, error) {
	return s.walk(ctx, true)
}

// ScanFast performs a fast scan that only records mtime/size without hashing.
// This is useful for quickly detecting if a full scan is needed.
func (s *Scanner) ScanFast(ctx context.Context) (*Index, error) {
	return s.walk(ctx, false)
}

func (s *Scanner) walk(ctx context.Context, hash bool) (*Index, error) {
	idx := NewIndex()
	root := s.filter.Root()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if path != root && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		// Skip ignored directories
		if d.IsDir() {
			if path != root && s.filter.IsIgnoredDir(path) {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.filter.Matches(path) {
			return nil
		}

		rel, ok := s.filter.Rel(path)
		if !ok {
			return nil
		}

		if hash {
			entry, err := StatEntry(path, rel)
			if err != nil {
				log.Component("scanner").Debug("skipping unreadable file", "path", path, "error", err)
				return nil
			}
			idx.Add(entry)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		idx.Add(&Entry{
			Path:    rel,
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
		})
		return nil
	})

	if err != nil {
		return nil, err
	}

	return idx, nil
}
