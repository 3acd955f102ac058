// Package graph holds the module dependency graph consumed by the generators.
//
// A Graph is an immutable snapshot. Enumerators build a fresh one on every
// refresh; nothing mutates a Graph after New returns.
package graph

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Module is a compilable unit with its own sources and references.
type Module struct {
	// Name is unique within a graph and names the descriptor file.
	Name string

	// SourceFiles are absolute paths in the order they should be listed.
	SourceFiles []string

	// ExternalReferences are paths to prebuilt assemblies.
	ExternalReferences []string

	// ModuleReferences are names of other modules.
	ModuleReferences []string

	// CompileDefines are preprocessor symbols.
	CompileDefines []string

	// AllowUnsafe permits unsafe code.
	AllowUnsafe bool

	// Definition is the file the module was declared in, if any.
	Definition string
}

// clone deep-copies m so snapshots never share slices with callers.
func (m Module) clone() Module {
	m.SourceFiles = slices.Clone(m.SourceFiles)
	m.ExternalReferences = slices.Clone(m.ExternalReferences)
	m.ModuleReferences = slices.Clone(m.ModuleReferences)
	m.CompileDefines = slices.Clone(m.CompileDefines)
	return m
}

// Graph is an immutable module snapshot.
type Graph struct {
	modules []Module
	byName  map[string]int
	owners  map[string]string
}

// invalidNameChars cannot appear in a module name: the name becomes a file
// name and a quoted field of the solution manifest.
const invalidNameChars = `"<>|:*?/\`

// ValidateName reports why name cannot be used as a module name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("module with empty name")
	}
	if i := strings.IndexAny(name, invalidNameChars); i >= 0 {
		return fmt.Errorf("module name %q contains invalid character %q", name, name[i])
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("module name %q contains a control character", name)
		}
	}
	return nil
}

// New builds a graph. Module names must be unique and pass ValidateName.
// Source paths are cleaned; a path listed by two modules is attributed to the
// first by name.
func New(modules []Module) (*Graph, error) {
	g := &Graph{
		modules: make([]Module, 0, len(modules)),
		byName:  make(map[string]int, len(modules)),
		owners:  make(map[string]string),
	}

	for _, m := range modules {
		if err := ValidateName(m.Name); err != nil {
			return nil, err
		}
		if _, dup := g.byName[m.Name]; dup {
			return nil, fmt.Errorf("duplicate module %q", m.Name)
		}
		m = m.clone()
		for i, src := range m.SourceFiles {
			m.SourceFiles[i] = filepath.Clean(src)
		}
		g.byName[m.Name] = -1
		g.modules = append(g.modules, m)
	}

	slices.SortFunc(g.modules, func(a, b Module) int {
		return strings.Compare(a.Name, b.Name)
	})
	for i, m := range g.modules {
		g.byName[m.Name] = i
		for _, src := range m.SourceFiles {
			if _, taken := g.owners[src]; !taken {
				g.owners[src] = m.Name
			}
		}
	}

	return g, nil
}

// MustNew is New that panics on error, for tests and static tables.
func MustNew(modules []Module) *Graph {
	g, err := New(modules)
	if err != nil {
		panic(err)
	}
	return g
}

// Empty returns a graph with no modules.
func Empty() *Graph {
	return MustNew(nil)
}

// Len returns the number of modules.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.modules)
}

// Modules returns copies of all modules sorted by name.
func (g *Graph) Modules() []Module {
	if g == nil {
		return nil
	}
	out := make([]Module, len(g.modules))
	for i, m := range g.modules {
		out[i] = m.clone()
	}
	return out
}

// Names returns all module names, sorted.
func (g *Graph) Names() []string {
	if g == nil {
		return nil
	}
	names := make([]string, len(g.modules))
	for i, m := range g.modules {
		names[i] = m.Name
	}
	return names
}

// Module returns a copy of the named module.
func (g *Graph) Module(name string) (Module, bool) {
	if g == nil {
		return Module{}, false
	}
	i, ok := g.byName[name]
	if !ok {
		return Module{}, false
	}
	return g.modules[i].clone(), true
}

// Has reports whether a module with that name exists.
func (g *Graph) Has(name string) bool {
	if g == nil {
		return false
	}
	_, ok := g.byName[name]
	return ok
}

// Owner returns the name of the module listing path as a source.
func (g *Graph) Owner(path string) (string, bool) {
	if g == nil {
		return "", false
	}
	name, ok := g.owners[filepath.Clean(path)]
	return name, ok
}

// Enumerator produces module graph snapshots.
type Enumerator interface {
	Enumerate(ctx context.Context) (*Graph, error)
}

// Static always returns the same graph.
type Static struct {
	Graph *Graph
}

// Enumerate returns s.Graph.
func (s Static) Enumerate(context.Context) (*Graph, error) {
	if s.Graph == nil {
		return Empty(), nil
	}
	return s.Graph, nil
}
