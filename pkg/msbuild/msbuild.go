// Package msbuild renders per-module C# project descriptors.
//
// The output is a legacy (non-SDK) MSBuild project: it lists every source
// explicitly, so IDEs see exactly the files the module graph assigns.
package msbuild

import (
	"bytes"
	"encoding/xml"
	"path/filepath"
	"slices"
	"strings"

	"github.com/albertocavalcante/slnsync/pkg/graph"
	"github.com/albertocavalcante/slnsync/pkg/registry"
	"github.com/albertocavalcante/slnsync/pkg/util"
)

// Extension is the descriptor file extension.
const Extension = ".csproj"

// Configurations are the build configurations every descriptor declares.
var Configurations = []string{"Debug", "Release"}

// Platform is the MSBuild platform name used in descriptor conditions.
const Platform = "AnyCPU"

// Options controls rendering.
type Options struct {
	// Root is the project root; every path is written relative to it.
	Root string

	// TargetFramework is written as TargetFrameworkVersion. Empty means v4.7.1.
	TargetFramework string

	// LangVersion is the C# language version. Empty means latest.
	LangVersion string

	// Analyzers are absolute analyzer assembly paths. Nil omits the section.
	Analyzers []string

	// LineEnding separates output lines. Empty means CRLF.
	LineEnding string
}

// FileName returns the descriptor file name for a module.
func FileName(name string) string {
	return name + Extension
}

// Render produces the descriptor for m. Output depends only on its inputs.
func Render(m graph.Module, g *graph.Graph, reg *registry.Registry, opts Options) []byte {
	w := &writer{eol: opts.LineEnding}
	if w.eol == "" {
		w.eol = "\r\n"
	}
	framework := opts.TargetFramework
	if framework == "" {
		framework = "v4.7.1"
	}
	lang := opts.LangVersion
	if lang == "" {
		lang = "latest"
	}

	w.line(0, `<?xml version="1.0" encoding="utf-8"?>`)
	w.line(0, `<Project ToolsVersion="4.0" DefaultTargets="Build" xmlns="http://schemas.microsoft.com/developer/msbuild/2003">`)

	w.line(1, "<PropertyGroup>")
	w.line(2, "<LangVersion>"+esc(lang)+"</LangVersion>")
	w.line(1, "</PropertyGroup>")

	w.line(1, "<PropertyGroup>")
	w.line(2, `<Configuration Condition=" '$(Configuration)' == '' ">`+Configurations[0]+"</Configuration>")
	w.line(2, `<Platform Condition=" '$(Platform)' == '' ">`+Platform+"</Platform>")
	w.line(2, "<ProductVersion>10.0.20506</ProductVersion>")
	w.line(2, "<SchemaVersion>2.0</SchemaVersion>")
	w.line(2, "<ProjectGuid>"+reg.BracedFor(m.Name)+"</ProjectGuid>")
	w.line(2, "<OutputType>Library</OutputType>")
	w.line(2, "<AppDesignerFolder>Properties</AppDesignerFolder>")
	w.line(2, "<RootNamespace></RootNamespace>")
	w.line(2, "<AssemblyName>"+esc(m.Name)+"</AssemblyName>")
	w.line(2, "<TargetFrameworkVersion>"+esc(framework)+"</TargetFrameworkVersion>")
	w.line(2, "<FileAlignment>512</FileAlignment>")
	w.line(2, "<BaseDirectory>.</BaseDirectory>")
	w.line(1, "</PropertyGroup>")

	defines := util.SortedUnique(m.CompileDefines)
	for _, cfg := range Configurations {
		debug := cfg == "Debug"
		w.line(1, `<PropertyGroup Condition=" '$(Configuration)|$(Platform)' == '`+cfg+"|"+Platform+`' ">`)
		if debug {
			w.line(2, "<DebugSymbols>true</DebugSymbols>")
			w.line(2, "<DebugType>full</DebugType>")
			w.line(2, "<Optimize>false</Optimize>")
		} else {
			w.line(2, "<DebugType>pdbonly</DebugType>")
			w.line(2, "<Optimize>true</Optimize>")
		}
		w.line(2, `<OutputPath>Temp\bin\`+cfg+`\</OutputPath>`)
		w.line(2, "<DefineConstants>"+esc(defineConstants(debug, defines))+"</DefineConstants>")
		w.line(2, "<ErrorReport>prompt</ErrorReport>")
		w.line(2, "<WarningLevel>4</WarningLevel>")
		w.line(2, "<NoWarn>0169</NoWarn>")
		w.line(2, "<AllowUnsafeBlocks>"+boolText(m.AllowUnsafe)+"</AllowUnsafeBlocks>")
		w.line(1, "</PropertyGroup>")
	}

	if len(m.SourceFiles) > 0 {
		w.line(1, "<ItemGroup>")
		for _, src := range m.SourceFiles {
			w.line(2, `<Compile Include="`+esc(relPath(opts.Root, src))+`" />`)
		}
		w.line(1, "</ItemGroup>")
	}

	refs := externalReferences(m, g)
	if len(refs) > 0 {
		w.line(1, "<ItemGroup>")
		for _, ref := range refs {
			w.line(2, `<Reference Include="`+esc(stem(ref))+`">`)
			w.line(3, "<HintPath>"+esc(relPath(opts.Root, ref))+"</HintPath>")
			w.line(2, "</Reference>")
		}
		w.line(1, "</ItemGroup>")
	}

	deps := util.SortedUnique(m.ModuleReferences)
	deps = slices.DeleteFunc(deps, func(name string) bool { return name == m.Name })
	if len(deps) > 0 {
		w.line(1, "<ItemGroup>")
		for _, dep := range deps {
			w.line(2, `<ProjectReference Include="`+esc(FileName(dep))+`">`)
			w.line(3, "<Project>"+reg.BracedFor(dep)+"</Project>")
			w.line(3, "<Name>"+esc(dep)+"</Name>")
			w.line(2, "</ProjectReference>")
		}
		w.line(1, "</ItemGroup>")
	}

	if len(opts.Analyzers) > 0 {
		w.line(1, "<ItemGroup>")
		for _, a := range util.SortedUnique(opts.Analyzers) {
			w.line(2, `<Analyzer Include="`+esc(relPath(opts.Root, a))+`" />`)
		}
		w.line(1, "</ItemGroup>")
	}

	w.line(1, `<Import Project="$(MSBuildToolsPath)\Microsoft.CSharp.targets" />`)
	w.line(0, "</Project>")
	return w.buf.Bytes()
}

// externalReferences returns m's references minus those naming an in-graph
// module, which are expressed as project references instead.
func externalReferences(m graph.Module, g *graph.Graph) []string {
	var out []string
	for _, ref := range util.SortedUnique(m.ExternalReferences) {
		if g.Has(stem(ref)) {
			continue
		}
		out = append(out, ref)
	}
	return out
}

func defineConstants(debug bool, defines []string) string {
	base := []string{"TRACE"}
	if debug {
		base = []string{"DEBUG", "TRACE"}
	}
	for _, d := range defines {
		if !slices.Contains(base, d) {
			base = append(base, d)
		}
	}
	return strings.Join(base, ";")
}

func boolText(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// stem returns the file name without directory or extension.
func stem(path string) string {
	base := filepath.Base(filepath.FromSlash(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// relPath returns path relative to root with forward slashes. Paths that
// cannot be made relative are kept absolute.
func relPath(root, path string) string {
	if root == "" || !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// esc escapes s for XML text and attribute values.
func esc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

type writer struct {
	buf bytes.Buffer
	eol string
}

func (w *writer) line(indent int, s string) {
	for range indent {
		w.buf.WriteString("  ")
	}
	w.buf.WriteString(s)
	w.buf.WriteString(w.eol)
}
