// Package artifact writes generated files atomically.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/slnsync/internal/log"
)

// Status describes what Write did.
type Status int

const (
	// Unchanged means the file already held identical bytes.
	Unchanged Status = iota
	// Written means the file was created or replaced.
	Written
	// Stale means the file differs but check mode prevented the write.
	Stale
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Written:
		return "written"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// WriteError reports a failed artifact write. Any previous file at Path is
// left as it was.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Writer writes artifacts, skipping files whose content is already current.
type Writer struct {
	check bool
	perm  os.FileMode
}

// NewWriter creates a writer. In check mode nothing is written and differing
// files are reported as Stale.
func NewWriter(check bool) *Writer {
	return &Writer{check: check, perm: 0o644}
}

// Check reports whether the writer is in check mode.
func (w *Writer) Check() bool {
	return w.check
}

// Write stores data at path through a temp file in the same directory and a
// rename, so readers never observe a partial file.
func (w *Writer) Write(path string, data []byte) (Status, error) {
	if current(path, data) {
		return Unchanged, nil
	}
	if w.check {
		return Stale, nil
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, &WriteError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	cleanup := func(cause error) (Status, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, &WriteError{Path: path, Err: cause}
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(w.perm); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, &WriteError{Path: path, Err: err}
	}

	log.Component("artifact").Debug("wrote artifact", "path", path, "bytes", len(data))
	return Written, nil
}

// current reports whether path already holds exactly data.
func current(path string, data []byte) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() != int64(len(data)) {
		return false
	}
	existing, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Equal(existing, data)
}

// IsWriteError reports whether err contains a WriteError and returns it.
func IsWriteError(err error) (*WriteError, bool) {
	var we *WriteError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}
