// Package log holds the process-wide slnsync logger.
//
// Verbosity follows -v=N: 0 errors, 1 warnings, 2 pass summaries, 3 per-file
// events, 4 per-file events with source locations.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
)

// Log formats accepted by Setup.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures the process logger.
type Options struct {
	Verbosity int
	// Format is FormatText or FormatJSON; empty means text.
	Format string
	// Output defaults to stderr. Stdout is reserved for command output.
	Output io.Writer
}

var current atomic.Pointer[slog.Logger]

func init() {
	// Warnings only until Setup runs.
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

// Setup installs the logger described by opts as the process default.
func Setup(opts Options) error {
	h, err := newHandler(opts)
	if err != nil {
		return err
	}
	l := slog.New(h)
	current.Store(l)
	slog.SetDefault(l)
	return nil
}

func newHandler(opts Options) (slog.Handler, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	ho := &slog.HandlerOptions{
		Level:     levelFor(opts.Verbosity),
		AddSource: opts.Verbosity >= 4,
	}
	switch opts.Format {
	case "", FormatText:
		return slog.NewTextHandler(out, ho), nil
	case FormatJSON:
		return slog.NewJSONHandler(out, ho), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want %s or %s)", opts.Format, FormatText, FormatJSON)
	}
}

func levelFor(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError
	case v == 1:
		return slog.LevelWarn
	case v == 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// OpenFile opens path for appending daemon logs, creating its directory.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Warn logs on the process logger.
func Warn(msg string, args ...any) {
	current.Load().Warn(msg, args...)
}

// Component returns the process logger tagged with a subsystem name
// (engine, watcher, detector, daemon, asmdef).
func Component(name string) *slog.Logger {
	return current.Load().With("component", name)
}
