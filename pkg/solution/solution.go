// Package solution renders the aggregate solution manifest.
package solution

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/albertocavalcante/slnsync/pkg/graph"
	"github.com/albertocavalcante/slnsync/pkg/msbuild"
	"github.com/albertocavalcante/slnsync/pkg/registry"
)

// Extension is the manifest file extension.
const Extension = ".sln"

// CSharpProjectType is the project type GUID of C# projects.
const CSharpProjectType = "{FAE04EC0-301F-11D3-BF4B-00C04F79EFBC}"

// Platform is the solution platform name. Solutions spell it with a space,
// projects without.
const Platform = "Any CPU"

// Options controls rendering.
type Options struct {
	// FormatVersion is the solution file format version. Empty means 11.00.
	FormatVersion string

	// LineEnding separates output lines. Empty means CRLF.
	LineEnding string
}

// FileName returns the manifest file name for a solution.
func FileName(name string) string {
	return name + Extension
}

// Render produces the manifest listing modules sorted by name.
func Render(modules []graph.Module, reg *registry.Registry, opts Options) []byte {
	eol := opts.LineEnding
	if eol == "" {
		eol = "\r\n"
	}
	version := opts.FormatVersion
	if version == "" {
		version = "11.00"
	}

	sorted := slices.Clone(modules)
	slices.SortFunc(sorted, func(a, b graph.Module) int {
		return strings.Compare(a.Name, b.Name)
	})
	sorted = slices.CompactFunc(sorted, func(a, b graph.Module) bool {
		return a.Name == b.Name
	})

	var buf bytes.Buffer
	line := func(format string, args ...any) {
		fmt.Fprintf(&buf, format, args...)
		buf.WriteString(eol)
	}

	line("")
	line("Microsoft Visual Studio Solution File, Format Version %s", version)
	line("# Visual Studio 2010")
	for _, m := range sorted {
		line(`Project("%s") = "%s", "%s", "%s"`,
			CSharpProjectType, m.Name, msbuild.FileName(m.Name), reg.BracedFor(m.Name))
		line("EndProject")
	}

	line("Global")
	line("\tGlobalSection(SolutionConfigurationPlatforms) = preSolution")
	for _, cfg := range msbuild.Configurations {
		line("\t\t%s|%s = %s|%s", cfg, Platform, cfg, Platform)
	}
	line("\tEndGlobalSection")

	line("\tGlobalSection(ProjectConfigurationPlatforms) = postSolution")
	for _, m := range sorted {
		id := reg.BracedFor(m.Name)
		for _, cfg := range msbuild.Configurations {
			line("\t\t%s.%s|%s.ActiveCfg = %s|%s", id, cfg, Platform, cfg, Platform)
		}
	}
	line("\tEndGlobalSection")

	line("\tGlobalSection(SolutionProperties) = preSolution")
	line("\t\tHideSolutionNode = FALSE")
	line("\tEndGlobalSection")
	line("EndGlobal")

	return buf.Bytes()
}
