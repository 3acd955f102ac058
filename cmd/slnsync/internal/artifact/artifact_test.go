package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteCreates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Core.csproj")
	w := NewWriter(false)

	status, err := w.Write(path, []byte("content"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if status != Written {
		t.Errorf("Write() status = %v, want %v", status, Written)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "content" {
		t.Errorf("file content = %q, want %q", got, "content")
	}
}

func TestWriteSkipsIdentical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Core.csproj")
	if err := os.WriteFile(path, []byte("same"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	status, err := NewWriter(false).Write(path, []byte("same"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if status != Unchanged {
		t.Errorf("Write() status = %v, want %v", status, Unchanged)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(old) {
		t.Errorf("mtime changed: %v, want %v", info.ModTime(), old)
	}
}

func TestWriteReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Game.sln")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	status, err := NewWriter(false).Write(path, []byte("new content"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if status != Written {
		t.Errorf("Write() status = %v, want %v", status, Written)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "new content" {
		t.Errorf("file content = %q", got)
	}
}

func TestWriteReplacesSameSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Core.csproj")
	if err := os.WriteFile(path, []byte("aaaa"), 0o644); err != nil {
		t.Fatal(err)
	}

	status, err := NewWriter(false).Write(path, []byte("aaab"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if status != Written {
		t.Errorf("Write() status = %v, want %v", status, Written)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "aaab" {
		t.Errorf("file content = %q, want %q", got, "aaab")
	}
}

func TestWriteCheckMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Core.csproj")
	w := NewWriter(true)

	status, err := w.Write(path, []byte("content"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if status != Stale {
		t.Errorf("Write() status = %v, want %v", status, Stale)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("check mode must not create files")
	}
	if !w.Check() {
		t.Error("Check() = false, want true")
	}
}

func TestWriteFailureLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory at the target makes the rename fail.
	target := filepath.Join(dir, "Core.csproj")
	if err := os.MkdirAll(filepath.Join(target, "keep"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := NewWriter(false).Write(target, []byte("content"))
	if err == nil {
		t.Fatal("Write() expected error")
	}

	we, ok := IsWriteError(err)
	if !ok {
		t.Fatalf("error %v is not a WriteError", err)
	}
	if we.Path != target {
		t.Errorf("WriteError.Path = %q, want %q", we.Path, target)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	if _, err := os.Stat(filepath.Join(target, "keep")); err != nil {
		t.Error("previous content at target was disturbed")
	}
}

func TestWriteMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "Core.csproj")

	_, err := NewWriter(false).Write(path, []byte("x"))
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("Write() error = %v, want WriteError", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error %q does not name the path", err)
	}
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		Unchanged: "unchanged",
		Written:   "written",
		Stale:     "stale",
		Status(9): "Status(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
