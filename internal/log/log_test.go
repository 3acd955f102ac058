package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupBuffer(t *testing.T, opts Options) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	opts.Output = &buf
	if err := Setup(opts); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = Setup(Options{Verbosity: 1}) })
	return &buf
}

func TestSetupVerbosity(t *testing.T) {
	tests := []struct {
		verbosity int
		enabled   slog.Level
		disabled  slog.Level
	}{
		{-1, slog.LevelError, slog.LevelWarn},
		{0, slog.LevelError, slog.LevelWarn},
		{1, slog.LevelWarn, slog.LevelInfo},
		{2, slog.LevelInfo, slog.LevelDebug},
		{3, slog.LevelDebug, slog.LevelDebug - 1},
		{7, slog.LevelDebug, slog.LevelDebug - 1},
	}

	for _, tt := range tests {
		setupBuffer(t, Options{Verbosity: tt.verbosity})
		l := Component("engine")
		if !l.Enabled(context.Background(), tt.enabled) {
			t.Errorf("-v=%d: expected %v enabled", tt.verbosity, tt.enabled)
		}
		if l.Enabled(context.Background(), tt.disabled) {
			t.Errorf("-v=%d: expected %v disabled", tt.verbosity, tt.disabled)
		}
	}
}

func TestComponentJSON(t *testing.T) {
	buf := setupBuffer(t, Options{Verbosity: 2, Format: FormatJSON})

	Component("engine").Info("generated all", "modules", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON record, got %q: %v", buf.String(), err)
	}
	if rec["component"] != "engine" {
		t.Errorf("component = %v, want engine", rec["component"])
	}
	if rec["msg"] != "generated all" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["modules"] != float64(3) {
		t.Errorf("modules = %v, want 3", rec["modules"])
	}
}

func TestWarnText(t *testing.T) {
	buf := setupBuffer(t, Options{Verbosity: 1})

	Warn("failed to clean up stale files", "error", "busy")
	Component("watcher").Info("hidden")

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "error=busy") {
		t.Errorf("unexpected output: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("info record leaked at -v=1: %q", out)
	}
}

func TestSourceLocationsAtHighestVerbosity(t *testing.T) {
	buf := setupBuffer(t, Options{Verbosity: 3})
	Component("detector").Debug("ignoring change")
	if strings.Contains(buf.String(), "source=") {
		t.Errorf("unexpected source at -v=3: %q", buf.String())
	}

	buf = setupBuffer(t, Options{Verbosity: 4})
	Component("detector").Debug("ignoring change")
	if !strings.Contains(buf.String(), "log_test.go") {
		t.Errorf("expected source location at -v=4: %q", buf.String())
	}
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	before := Component("x")
	err := Setup(Options{Format: "xml"})
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
	if !strings.Contains(err.Error(), `"xml"`) {
		t.Errorf("error should name the format: %v", err)
	}
	if before.Handler() == nil {
		t.Error("previous logger should stay usable")
	}
}

func TestOpenFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon", "slnsync.log")

	for _, line := range []string{"first\n", "second\n"} {
		f, err := OpenFile(path)
		if err != nil {
			t.Fatalf("OpenFile: %v", err)
		}
		if _, err := f.WriteString(line); err != nil {
			t.Fatal(err)
		}
		_ = f.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("log file = %q", data)
	}
}
