package solution

import (
	"strings"
	"testing"

	"github.com/albertocavalcante/slnsync/pkg/graph"
	"github.com/albertocavalcante/slnsync/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coreGameplay() []graph.Module {
	return []graph.Module{
		{Name: "Gameplay", ModuleReferences: []string{"Core"}},
		{Name: "Core"},
	}
}

func TestRenderCoreGameplay(t *testing.T) {
	out := string(Render(coreGameplay(), registry.New(), Options{}))

	assert.Equal(t, 4, strings.Count(out, ".ActiveCfg = "), "2 modules x 2 configurations")
	assert.Zero(t, strings.Count(out, ".Build.0"))
	assert.Contains(t, out, "{504E03C0-6643-55C2-87DE-3E0A7C2B6E4C}.Debug|Any CPU.ActiveCfg = Debug|Any CPU")
	assert.Contains(t, out, "{CEC07C86-12E6-552C-8572-3DFFA002CBCB}.Release|Any CPU.ActiveCfg = Release|Any CPU")
	assert.Contains(t, out,
		`Project("{FAE04EC0-301F-11D3-BF4B-00C04F79EFBC}") = "Core", "Core.csproj", "{504E03C0-6643-55C2-87DE-3E0A7C2B6E4C}"`)
}

func TestRenderSortedByName(t *testing.T) {
	out := string(Render(coreGameplay(), registry.New(), Options{}))

	core := strings.Index(out, `= "Core"`)
	gameplay := strings.Index(out, `= "Gameplay"`)
	require.NotEqual(t, -1, core)
	assert.Less(t, core, gameplay)
}

func TestRenderStructure(t *testing.T) {
	out := string(Render(coreGameplay(), registry.New(), Options{}))
	lines := strings.Split(out, "\r\n")

	assert.Equal(t, "", lines[0])
	assert.Equal(t, "Microsoft Visual Studio Solution File, Format Version 11.00", lines[1])
	assert.Equal(t, 2, strings.Count(out, "EndProject\r\n"))
	assert.Contains(t, out, "\t\tDebug|Any CPU = Debug|Any CPU\r\n")
	assert.Contains(t, out, "\t\tRelease|Any CPU = Release|Any CPU\r\n")
	assert.Contains(t, out, "\t\tHideSolutionNode = FALSE\r\n")
	assert.True(t, strings.HasSuffix(out, "EndGlobal\r\n"))
	assert.NotContains(t, strings.ReplaceAll(out, "\r\n", ""), "\n")
}

func TestRenderIdempotent(t *testing.T) {
	a := Render(coreGameplay(), registry.New(), Options{})
	b := Render([]graph.Module{{Name: "Core"}, {Name: "Gameplay"}}, registry.New(), Options{})
	assert.Equal(t, a, b, "input order does not matter")
}

func TestRenderEmpty(t *testing.T) {
	out := string(Render(nil, registry.New(), Options{LineEnding: "\n"}))

	assert.NotContains(t, out, "Project(")
	assert.NotContains(t, out, "ActiveCfg")
	assert.Contains(t, out, "Global\n")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Game.sln", FileName("Game"))
}
