package incremental

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/artifact"
)

// StateDir holds slnsync state below the project root.
const StateDir = ".slnsync"

const stateFile = "state.json"

// StateVersion is the state file format. Files with another version are
// treated as absent so the next pass regenerates everything.
const StateVersion = 2

// ErrIncompatibleState is returned when the state file has another version.
var ErrIncompatibleState = errors.New("incompatible state file")

// Artifact is a generated file as written by the last pass.
type Artifact struct {
	// Module owns a descriptor; empty for the solution manifest.
	Module string `json:"module,omitempty"`
	// Hash is the xxHash64 of the written bytes.
	Hash string `json:"hash"`
}

// State is what a completed sync pass leaves behind: the sources it saw, the
// artifacts it produced and the identifiers it assigned.
type State struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Sources   *Index    `json:"sources"`
	// Artifacts are keyed by root-relative slash path.
	Artifacts map[string]Artifact `json:"artifacts,omitempty"`
	// Modules maps module names to braced identifiers.
	Modules map[string]string `json:"modules,omitempty"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Version:   StateVersion,
		Sources:   NewIndex(),
		Artifacts: make(map[string]Artifact),
		Modules:   make(map[string]string),
	}
}

// ModuleNames returns the recorded module names, sorted.
func (s *State) ModuleNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Modules))
	for name := range s.Modules {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// StaleArtifacts returns the recorded artifacts under root that are missing
// or no longer hold the bytes the last pass wrote, sorted.
func (s *State) StaleArtifacts(root string) []string {
	if s == nil {
		return nil
	}
	var stale []string
	for rel, a := range s.Artifacts {
		sum, err := HashFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || sum != a.Hash {
			stale = append(stale, rel)
		}
	}
	slices.Sort(stale)
	return stale
}

// Store reads and writes <root>/.slnsync/state.json.
type Store struct {
	path   string
	writer *artifact.Writer
}

// NewStore creates a store for the project at root.
func NewStore(root string) *Store {
	return &Store{
		path:   filepath.Join(root, StateDir, stateFile),
		writer: artifact.NewWriter(false),
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a state file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the state. A missing file yields an empty state.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if st.Version != StateVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrIncompatibleState, st.Version, StateVersion)
	}
	if st.Sources == nil {
		st.Sources = NewIndex()
	}
	if st.Sources.Entries == nil {
		st.Sources.Entries = make(map[string]*Entry)
	}
	return &st, nil
}

// Save replaces the state file atomically.
func (s *Store) Save(st *State) error {
	if st == nil {
		return errors.New("cannot save nil state")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	st.Version = StateVersion
	st.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if _, err := s.writer.Write(s.path, data); err != nil {
		return err
	}
	return nil
}
