package asmdef

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/albertocavalcante/slnsync/internal/log"
	"github.com/albertocavalcante/slnsync/pkg/graph"
	"github.com/albertocavalcante/slnsync/pkg/util"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Extension is the assembly definition file extension.
const Extension = ".asmdef"

// DefaultModuleName receives sources outside every definition.
const DefaultModuleName = "Assembly-CSharp"

const cacheSize = 512

// Options configures an Enumerator.
type Options struct {
	// Root is the directory to enumerate.
	Root string

	// Skip reports whether a root-relative slash path is excluded. Directories
	// are passed with a trailing slash. Optional.
	Skip func(rel string) bool

	// DefaultModule names the module for unowned sources. Empty means
	// DefaultModuleName.
	DefaultModule string

	// Defines are added to every module.
	Defines []string

	// References are assembly paths added to every module. Relative paths
	// are resolved against Root.
	References []string
}

type cached struct {
	modTime int64
	size    int64
	def     *Definition
	guid    string
}

// Enumerator builds module graphs from the definition files under a root.
// Parsed definitions are cached and revalidated by modification time and size.
type Enumerator struct {
	opts  Options
	cache *lru.Cache[string, cached]
}

// New creates an enumerator.
func New(opts Options) (*Enumerator, error) {
	if opts.Root == "" {
		return nil, errors.New("asmdef: root is required")
	}
	if opts.DefaultModule == "" {
		opts.DefaultModule = DefaultModuleName
	}
	opts.Root = filepath.Clean(opts.Root)

	cache, err := lru.New[string, cached](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("asmdef: failed to create cache: %w", err)
	}
	return &Enumerator{opts: opts, cache: cache}, nil
}

// Root returns the enumerated directory.
func (e *Enumerator) Root() string {
	return e.opts.Root
}

// tree is the raw result of one filesystem walk.
type tree struct {
	definitions []string
	sources     []string
	dlls        map[string]string // lower-case base name -> path
}

// Enumerate walks the root and returns a fresh graph.
func (e *Enumerator) Enumerate(ctx context.Context) (*graph.Graph, error) {
	t, err := e.walk(ctx)
	if err != nil {
		return nil, err
	}

	logger := log.Component("asmdef")

	// Definition directory -> module; first definition per directory wins.
	byDir := make(map[string]declaration)
	guids := make(map[string]string)
	var order []string

	for _, path := range t.definitions {
		def, guid, err := e.load(path)
		if err == nil {
			err = graph.ValidateName(def.Name)
		}
		if err != nil {
			logger.Warn("skipping module definition", "path", path, "error", err)
			continue
		}
		dir := filepath.Dir(path)
		if prev, dup := byDir[dir]; dup {
			logger.Warn("multiple module definitions in one directory", "dir", dir, "using", prev.path, "ignored", path)
			continue
		}
		byDir[dir] = declaration{path: path, def: def}
		order = append(order, dir)
		if guid != "" {
			guids[guid] = def.Name
		}
	}

	modules := make(map[string]*graph.Module)
	var defaultSources []string

	for _, dir := range order {
		d := byDir[dir]
		if _, dup := modules[d.def.Name]; dup {
			logger.Warn("duplicate module name", "name", d.def.Name, "path", d.path)
			delete(byDir, dir)
			continue
		}
		modules[d.def.Name] = e.module(d.path, d.def, guids, t.dlls)
	}

	for _, src := range t.sources {
		if owner := nearest(byDir, filepath.Dir(src), e.opts.Root); owner != nil {
			m := modules[owner.Name]
			m.SourceFiles = append(m.SourceFiles, src)
			continue
		}
		defaultSources = append(defaultSources, src)
	}

	if len(defaultSources) > 0 {
		if _, taken := modules[e.opts.DefaultModule]; taken {
			return nil, fmt.Errorf("asmdef: module %q collides with the default module", e.opts.DefaultModule)
		}
		var refs []string
		for _, dir := range order {
			d, ok := byDir[dir]
			if ok && d.def.IsAutoReferenced() {
				refs = append(refs, d.def.Name)
			}
		}
		modules[e.opts.DefaultModule] = &graph.Module{
			Name:               e.opts.DefaultModule,
			SourceFiles:        defaultSources,
			ModuleReferences:   util.SortedUnique(refs),
			ExternalReferences: e.globalReferences(),
			CompileDefines:     util.SortedUnique(e.opts.Defines),
		}
	}

	list := make([]graph.Module, 0, len(modules))
	for _, name := range util.SortedKeys(modules) {
		list = append(list, *modules[name])
	}
	return graph.New(list)
}

// declaration is a parsed definition and the file it came from.
type declaration struct {
	path string
	def  *Definition
}

// nearest returns the definition governing dir, walking up to root.
func nearest(byDir map[string]declaration, dir, root string) *Definition {
	for {
		if d, ok := byDir[dir]; ok {
			return d.def
		}
		if dir == root {
			return nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

func (e *Enumerator) module(path string, def *Definition, guids, dlls map[string]string) *graph.Module {
	var refs []string
	for _, ref := range def.References {
		ref = strings.TrimSpace(ref)
		if guid, ok := strings.CutPrefix(ref, GUIDPrefix); ok {
			name, found := guids[strings.ToLower(guid)]
			if !found {
				log.Component("asmdef").Debug("unresolved GUID reference", "module", def.Name, "guid", guid)
				continue
			}
			ref = name
		}
		if ref != "" && ref != def.Name {
			refs = append(refs, ref)
		}
	}

	external := e.globalReferences()
	for _, dll := range def.PrecompiledReferences {
		if p, ok := dlls[strings.ToLower(filepath.Base(dll))]; ok {
			external = append(external, p)
		}
	}

	return &graph.Module{
		Name:               def.Name,
		ModuleReferences:   util.SortedUnique(refs),
		ExternalReferences: util.SortedUnique(external),
		CompileDefines:     util.SortedUnique(e.opts.Defines, def.Defines()),
		AllowUnsafe:        def.AllowUnsafeCode,
		Definition:         path,
	}
}

func (e *Enumerator) globalReferences() []string {
	out := make([]string, 0, len(e.opts.References))
	for _, ref := range e.opts.References {
		if !filepath.IsAbs(ref) {
			ref = filepath.Join(e.opts.Root, ref)
		}
		out = append(out, filepath.Clean(ref))
	}
	return out
}

// load returns a parsed definition, using the cache when the file is unchanged.
func (e *Enumerator) load(path string) (*Definition, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	if c, ok := e.cache.Get(path); ok && c.modTime == info.ModTime().UnixNano() && c.size == info.Size() {
		return c.def, c.guid, nil
	}

	def, err := ParseFile(path)
	if err != nil {
		e.cache.Remove(path)
		return nil, "", err
	}
	guid := ReadGUID(path)
	e.cache.Add(path, cached{
		modTime: info.ModTime().UnixNano(),
		size:    info.Size(),
		def:     def,
		guid:    guid,
	})
	return def, guid, nil
}

func (e *Enumerator) skip(path string, dir bool) bool {
	if e.opts.Skip == nil || path == e.opts.Root {
		return false
	}
	rel, err := filepath.Rel(e.opts.Root, path)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	if dir {
		rel += "/"
	}
	return e.opts.Skip(rel)
}

func (e *Enumerator) walk(ctx context.Context) (*tree, error) {
	t := &tree{dlls: make(map[string]string)}

	err := filepath.WalkDir(e.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path != e.opts.Root && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		if d.IsDir() {
			if e.skip(path, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if e.skip(path, false) {
			return nil
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case Extension:
			t.definitions = append(t.definitions, path)
		case ".cs":
			t.sources = append(t.sources, path)
		case ".dll":
			key := strings.ToLower(filepath.Base(path))
			if _, seen := t.dlls[key]; !seen {
				t.dlls[key] = path
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("asmdef: failed to walk %s: %w", e.opts.Root, err)
	}

	slices.Sort(t.definitions)
	slices.Sort(t.sources)
	return t, nil
}
