package incremental

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/langs"
	"golang.org/x/crypto/blake2b"
)

func newFilter(t *testing.T, root string) *langs.Filter {
	t.Helper()
	f, err := langs.NewFilter(root, nil, nil)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	return f
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHashBytes(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "empty",
			input: []byte{},
			want:  "ef46db3751d8e999", // xxHash64 of empty input
		},
		{
			name:  "hello",
			input: []byte("hello"),
			want:  "26c7827d889f6da3", // xxHash64 of "hello"
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HashBytes(tt.input)
			if got != tt.want {
				t.Errorf("HashBytes(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHashFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := "file content for hashing"
	testFile := writeFile(t, tmpDir, "test.txt", content)

	hash, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}

	if expected := HashBytes([]byte(content)); hash != expected {
		t.Errorf("HashFile() = %q, want %q", hash, expected)
	}
}

func TestFingerprintFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "A.cs", "class A {}")

	fp, err := FingerprintFile(path)
	if err != nil {
		t.Fatalf("FingerprintFile() error = %v", err)
	}
	if fp != Fingerprint(blake2b.Sum256([]byte("class A {}"))) {
		t.Error("FingerprintFile() should equal the BLAKE2b-256 digest of the content")
	}
	if len(fp.String()) != 64 {
		t.Errorf("String() length = %d, want 64", len(fp.String()))
	}

	// Same content, different file
	other := writeFile(t, tmpDir, "B.cs", "class A {}")
	fp2, err := FingerprintFile(other)
	if err != nil {
		t.Fatal(err)
	}
	if fp != fp2 {
		t.Error("identical content should produce identical fingerprints")
	}
}

func TestFingerprintFileUnreadable(t *testing.T) {
	_, err := FingerprintFile("/nonexistent/file.cs")
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("FingerprintFile() error = %v, want ErrUnreadable", err)
	}

	if _, err := FingerprintFile(t.TempDir()); !errors.Is(err, ErrUnreadable) {
		t.Errorf("FingerprintFile(dir) error = %v, want ErrUnreadable", err)
	}
}

func TestStatEntry(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "Assets/A.cs", "class A {}")

	e, err := StatEntry(path, "Assets/A.cs")
	if err != nil {
		t.Fatalf("StatEntry() error = %v", err)
	}
	if e.Path != "Assets/A.cs" || e.Size != 10 || e.ModTime == 0 {
		t.Errorf("unexpected entry %+v", e)
	}

	if _, err := StatEntry(filepath.Join(tmpDir, "missing.cs"), "missing.cs"); !errors.Is(err, ErrUnreadable) {
		t.Errorf("StatEntry(missing) error = %v, want ErrUnreadable", err)
	}
}

func TestIndexAddGetRemove(t *testing.T) {
	idx := NewIndex()
	idx.Add(&Entry{Path: "Assets/A.cs", Hash: "abc123"})

	got, ok := idx.Get("Assets/A.cs")
	if !ok || got.Hash != "abc123" {
		t.Fatalf("Get() = %v, %v", got, ok)
	}
	if !idx.Remove("Assets/A.cs") {
		t.Error("Remove() should report a present entry")
	}
	if idx.Remove("Assets/A.cs") {
		t.Error("Remove() should report false for an absent entry")
	}
}

func TestIndexNilSafety(t *testing.T) {
	var idx *Index
	idx.Add(&Entry{Path: "a.cs"}) // Should not panic
	if _, ok := idx.Get("a.cs"); ok {
		t.Error("Get() on nil index should return false")
	}
	if idx.Len() != 0 || idx.Remove("a.cs") || idx.RemoveUnder("x") != nil {
		t.Error("nil index should behave as empty")
	}
	if idx.Clone().Len() != 0 {
		t.Error("Clone() of nil index should be empty")
	}

	idx = NewIndex()
	idx.Add(nil) // Should not panic
}

func TestIndexRemoveUnder(t *testing.T) {
	idx := NewIndex()
	for _, p := range []string{"Assets/Core/A.cs", "Assets/Core/Sub/B.cs", "Assets/CoreX/C.cs", "Assets/D.cs"} {
		idx.Add(&Entry{Path: p})
	}

	removed := idx.RemoveUnder("Assets/Core")
	if len(removed) != 2 || removed[0] != "Assets/Core/A.cs" || removed[1] != "Assets/Core/Sub/B.cs" {
		t.Errorf("RemoveUnder() = %v", removed)
	}
	if idx.Len() != 2 {
		t.Errorf("Len() = %d, want 2", idx.Len())
	}
	if _, ok := idx.Get("Assets/CoreX/C.cs"); !ok {
		t.Error("sibling directory with shared prefix must survive")
	}
}

func TestIndexClone(t *testing.T) {
	idx := NewIndex()
	idx.Add(&Entry{Path: "a.cs", Hash: "1"})

	c := idx.Clone()
	c.Entries["a.cs"].Hash = "2"
	c.Add(&Entry{Path: "b.cs"})

	if e, _ := idx.Get("a.cs"); e.Hash != "1" {
		t.Error("Clone() must not share entries")
	}
	if idx.Len() != 1 {
		t.Error("Clone() must not share the map")
	}
}

func TestIndexDiff(t *testing.T) {
	old := NewIndex()
	old.Add(&Entry{Path: "unchanged.cs", Hash: "hash1", ModTime: 1000, Size: 10})
	old.Add(&Entry{Path: "modified.cs", Hash: "hash2", ModTime: 1000, Size: 20})
	old.Add(&Entry{Path: "touched.cs", Hash: "hash5", ModTime: 1000, Size: 20})
	old.Add(&Entry{Path: "deleted.cs", Hash: "hash3", ModTime: 1000, Size: 30})

	cur := NewIndex()
	cur.Add(&Entry{Path: "unchanged.cs", Hash: "hash1", ModTime: 1000, Size: 10})
	cur.Add(&Entry{Path: "modified.cs", Hash: "hash2-changed", ModTime: 2000, Size: 25})
	cur.Add(&Entry{Path: "touched.cs", Hash: "hash5", ModTime: 3000, Size: 20})
	cur.Add(&Entry{Path: "added.cs", Hash: "hash4", ModTime: 1000, Size: 40})

	cs := old.Diff(cur)

	if len(cs.Added) != 1 || cs.Added[0] != "added.cs" {
		t.Errorf("Added = %v, want [added.cs]", cs.Added)
	}
	if len(cs.Modified) != 1 || cs.Modified[0] != "modified.cs" {
		t.Errorf("Modified = %v, want [modified.cs]", cs.Modified)
	}
	if len(cs.Deleted) != 1 || cs.Deleted[0] != "deleted.cs" {
		t.Errorf("Deleted = %v, want [deleted.cs]", cs.Deleted)
	}
	if !cs.IsStructural() {
		t.Error("added/deleted files make the change set structural")
	}
}

func TestIndexDiffNilSafety(t *testing.T) {
	var idx *Index
	if cs := idx.Diff(nil); !cs.IsEmpty() {
		t.Error("Diff of nil indexes should be empty")
	}

	idx = NewIndex()
	if cs := idx.Diff(nil); !cs.IsEmpty() {
		t.Error("Diff with nil other should be empty")
	}
}

func TestChangeSet(t *testing.T) {
	var nilCS *ChangeSet
	if !nilCS.IsEmpty() || nilCS.TotalChanges() != 0 || nilCS.AffectedDirs() != nil || nilCS.IsStructural() {
		t.Error("nil ChangeSet should be empty")
	}

	cs := NewChangeSet()
	if !cs.IsEmpty() {
		t.Error("New ChangeSet should be empty")
	}

	cs.Added = []string{"Assets/a.cs"}
	cs.Modified = []string{"Assets/b.cs", "Lib/c.cs"}
	cs.Deleted = []string{"Plugins/Old/d.cs"}
	if cs.TotalChanges() != 4 {
		t.Errorf("TotalChanges() = %d, want 4", cs.TotalChanges())
	}

	dirs := cs.AffectedDirs()
	expected := []string{"Assets", "Lib", "Plugins/Old"}
	if len(dirs) != len(expected) {
		t.Fatalf("AffectedDirs() = %v, want %v", dirs, expected)
	}
	for i, dir := range dirs {
		if dir != expected[i] {
			t.Errorf("AffectedDirs()[%d] = %q, want %q", i, dir, expected[i])
		}
	}

	modOnly := &ChangeSet{Modified: []string{"x.cs"}}
	if modOnly.IsStructural() {
		t.Error("modifications alone are not structural")
	}
}

func TestScan(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "Assets/Player.cs", "class Player {}")
	writeFile(t, tmpDir, "Assets/Core/Core.asmdef", `{"name":"Core"}`)
	writeFile(t, tmpDir, "Assets/Core/A.cs", "class A {}")
	writeFile(t, tmpDir, "README.md", "# Readme")
	writeFile(t, tmpDir, "Library/Cache.cs", "class Cache {}")
	writeFile(t, tmpDir, "Temp/Gen.cs", "class Gen {}")

	idx, err := NewScanner(newFilter(t, tmpDir)).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	for _, want := range []string{"Assets/Player.cs", "Assets/Core/Core.asmdef", "Assets/Core/A.cs"} {
		e, ok := idx.Get(want)
		if !ok {
			t.Errorf("Scan() should find %s", want)
			continue
		}
		if e.Hash == "" {
			t.Errorf("%s should be fingerprinted", want)
		}
	}
	if idx.Len() != 3 {
		t.Errorf("Scan() found %d files, want 3: %v", idx.Len(), idx.Paths())
	}
}

func TestScanFast(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "Assets/A.cs", "class A {}")

	idx, err := NewScanner(newFilter(t, tmpDir)).ScanFast(context.Background())
	if err != nil {
		t.Fatalf("ScanFast() error = %v", err)
	}
	e, ok := idx.Get("Assets/A.cs")
	if !ok {
		t.Fatal("ScanFast() should find Assets/A.cs")
	}
	if e.Hash != "" {
		t.Error("ScanFast() should not fingerprint")
	}
}

func TestScanContextCancellation(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "A.cs", "class A {}")

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	if _, err := NewScanner(newFilter(t, tmpDir)).Scan(ctx); err == nil {
		t.Error("Scan() should return error when context is cancelled")
	}
}

func TestStoreLoadSave(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewStore(tmpDir)

	// A missing file loads as an empty state.
	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.Version != StateVersion || st.Sources.Len() != 0 {
		t.Errorf("empty state = %+v", st)
	}

	st.Sources.Add(&Entry{Path: "Assets/A.cs", Hash: "abc123", ModTime: 1234567890, Size: 100})
	st.Artifacts["Core.csproj"] = Artifact{Module: "Core", Hash: HashBytes([]byte("<Project />"))}
	st.Modules["Core"] = "{0A1B}"
	if err := store.Save(st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	statePath := filepath.Join(tmpDir, ".slnsync", "state.json")
	if store.Path() != statePath {
		t.Errorf("Path() = %q, want %q", store.Path(), statePath)
	}
	if !store.Exists() {
		t.Error("state file should exist after Save()")
	}

	loaded, err := NewStore(tmpDir).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if entry, ok := loaded.Sources.Get("Assets/A.cs"); !ok || entry.Hash != "abc123" {
		t.Errorf("Sources entry = %+v, %v", entry, ok)
	}
	if a := loaded.Artifacts["Core.csproj"]; a.Module != "Core" {
		t.Errorf("Artifacts[Core.csproj] = %+v", a)
	}
	if names := loaded.ModuleNames(); len(names) != 1 || names[0] != "Core" {
		t.Errorf("ModuleNames() = %v", names)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set by Save()")
	}
}

func TestStoreRejectsOtherVersions(t *testing.T) {
	for _, version := range []int{1, 99} {
		tmpDir := t.TempDir()
		writeFile(t, tmpDir, ".slnsync/state.json", fmt.Sprintf(`{"version": %d, "entries": {}}`, version))

		_, err := NewStore(tmpDir).Load()
		if !errors.Is(err, ErrIncompatibleState) {
			t.Errorf("Load() version %d error = %v, want ErrIncompatibleState", version, err)
		}
	}
}

func TestStaleArtifacts(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "Core.csproj", "core")
	writeFile(t, tmpDir, "Game.sln", "edited")

	st := NewState()
	st.Artifacts["Core.csproj"] = Artifact{Module: "Core", Hash: HashBytes([]byte("core"))}
	st.Artifacts["Game.sln"] = Artifact{Hash: HashBytes([]byte("solution"))}
	st.Artifacts["Gone.csproj"] = Artifact{Module: "Gone", Hash: HashBytes([]byte("gone"))}

	got := st.StaleArtifacts(tmpDir)
	want := []string{"Game.sln", "Gone.csproj"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("StaleArtifacts() = %v, want %v", got, want)
	}

	var nilState *State
	if nilState.StaleArtifacts(tmpDir) != nil || nilState.ModuleNames() != nil {
		t.Error("nil state should report nothing")
	}
}

// saveScan records the current tree as the state of a completed pass.
func saveScan(t *testing.T, tracker *Tracker, root string) {
	t.Helper()
	idx, err := NewScanner(newFilter(t, root)).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	st := NewState()
	st.Sources = idx
	if err := tracker.Save(st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func TestTrackerStatus(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "unchanged.cs", "class Unchanged {}")
	writeFile(t, tmpDir, "modified.cs", "class Modified {}")
	writeFile(t, tmpDir, "deleted.cs", "class Deleted {}")

	tracker := NewTracker(newFilter(t, tmpDir))
	ctx := context.Background()
	saveScan(t, tracker, tmpDir)

	writeFile(t, tmpDir, "new.cs", "class New {}")
	writeFile(t, tmpDir, "modified.cs", "class Modified { int x; }")
	if err := os.Remove(filepath.Join(tmpDir, "deleted.cs")); err != nil {
		t.Fatal(err)
	}

	report, err := tracker.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	cs := report.Sources

	if len(cs.Added) != 1 || cs.Added[0] != "new.cs" {
		t.Errorf("Added = %v, want [new.cs]", cs.Added)
	}
	if len(cs.Modified) != 1 || cs.Modified[0] != "modified.cs" {
		t.Errorf("Modified = %v, want [modified.cs]", cs.Modified)
	}
	if len(cs.Deleted) != 1 || cs.Deleted[0] != "deleted.cs" {
		t.Errorf("Deleted = %v, want [deleted.cs]", cs.Deleted)
	}
	if report.UpToDate() {
		t.Error("UpToDate() = true with changed sources")
	}
}

func TestTrackerStatusNoChanges(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "main.cs", "class Main {}")

	tracker := NewTracker(newFilter(t, tmpDir))
	if tracker.HasState() {
		t.Error("HasState() should return false before the first save")
	}
	saveScan(t, tracker, tmpDir)
	if !tracker.HasState() {
		t.Error("HasState() should return true after Save()")
	}

	report, err := tracker.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !report.UpToDate() {
		t.Errorf("report should be up to date, got %+v", report.Sources)
	}
}

func TestTrackerStatusReportsEditedArtifacts(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "main.cs", "class Main {}")
	writeFile(t, tmpDir, "Main.csproj", "generated")

	tracker := NewTracker(newFilter(t, tmpDir))
	idx, err := NewScanner(newFilter(t, tmpDir)).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	st := NewState()
	st.Sources = idx
	st.Artifacts["Main.csproj"] = Artifact{Module: "Main", Hash: HashBytes([]byte("generated"))}
	st.Modules["Main"] = "{ID}"
	if err := tracker.Save(st); err != nil {
		t.Fatal(err)
	}

	writeFile(t, tmpDir, "Main.csproj", "hand edited")

	report, err := tracker.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !report.Sources.IsEmpty() {
		t.Errorf("Sources = %+v, want empty", report.Sources)
	}
	if len(report.Artifacts) != 1 || report.Artifacts[0] != "Main.csproj" {
		t.Errorf("Artifacts = %v, want [Main.csproj]", report.Artifacts)
	}
	if len(report.Modules) != 1 || report.Modules[0] != "Main" {
		t.Errorf("Modules = %v", report.Modules)
	}
}
