package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModules(root string) []Module {
	return []Module{
		{
			Name:             "Gameplay",
			SourceFiles:      []string{filepath.Join(root, "Gameplay", "Player.cs")},
			ModuleReferences: []string{"Core"},
		},
		{
			Name:        "Core",
			SourceFiles: []string{filepath.Join(root, "Core", "A.cs"), filepath.Join(root, "Core", "B.cs")},
		},
	}
}

func TestNewSortsAndIndexes(t *testing.T) {
	root := t.TempDir()
	g, err := New(sampleModules(root))
	require.NoError(t, err)

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []string{"Core", "Gameplay"}, g.Names())
	assert.True(t, g.Has("Core"))
	assert.False(t, g.Has("Missing"))

	core, ok := g.Module("Core")
	require.True(t, ok)
	assert.Len(t, core.SourceFiles, 2)
	assert.Equal(t, filepath.Join(root, "Core", "A.cs"), core.SourceFiles[0], "source order is preserved")
}

func TestNewRejectsInvalid(t *testing.T) {
	_, err := New([]Module{{Name: "A"}, {Name: "A"}})
	assert.Error(t, err)

	_, err = New([]Module{{Name: " "}})
	assert.Error(t, err)
}

func TestOwner(t *testing.T) {
	root := t.TempDir()
	g := MustNew(sampleModules(root))

	owner, ok := g.Owner(filepath.Join(root, "Core", "B.cs"))
	require.True(t, ok)
	assert.Equal(t, "Core", owner)

	owner, ok = g.Owner(filepath.Join(root, "Core", "..", "Gameplay", "Player.cs"))
	require.True(t, ok, "paths are cleaned before lookup")
	assert.Equal(t, "Gameplay", owner)

	_, ok = g.Owner(filepath.Join(root, "Core", "C.cs"))
	assert.False(t, ok)
}

func TestSnapshotIsImmutable(t *testing.T) {
	root := t.TempDir()
	mods := sampleModules(root)
	g := MustNew(mods)

	mods[1].SourceFiles[0] = "mutated"
	core, _ := g.Module("Core")
	assert.NotEqual(t, "mutated", core.SourceFiles[0])

	core.SourceFiles[0] = "mutated again"
	again, _ := g.Module("Core")
	assert.NotEqual(t, "mutated again", again.SourceFiles[0])

	listed := g.Modules()
	listed[0].Name = "Renamed"
	assert.Equal(t, []string{"Core", "Gameplay"}, g.Names())
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"Core", true},
		{"Tools.Editor", true},
		{"Game Play", true},
		{"", false},
		{"  ", false},
		{`Bad"Name`, false},
		{"a/b", false},
		{`a\b`, false},
		{"a:b", false},
		{"tab\tname", false},
	}

	for _, tt := range tests {
		err := ValidateName(tt.name)
		if tt.ok {
			assert.NoError(t, err, tt.name)
		} else {
			assert.Error(t, err, tt.name)
		}
	}
}

func TestNewRejectsQuotedName(t *testing.T) {
	_, err := New([]Module{{Name: `Core"`}})
	assert.Error(t, err)
}

func TestNilGraph(t *testing.T) {
	var g *Graph
	assert.Equal(t, 0, g.Len())
	assert.Nil(t, g.Modules())
	assert.False(t, g.Has("Core"))
	_, ok := g.Owner("x")
	assert.False(t, ok)
}

func TestEnumerators(t *testing.T) {
	g := MustNew(sampleModules(t.TempDir()))

	got, err := Static{Graph: g}.Enumerate(context.Background())
	require.NoError(t, err)
	assert.Same(t, g, got)

	empty, err := Static{}.Enumerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}
