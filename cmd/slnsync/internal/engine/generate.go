package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/artifact"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/incremental"
	"github.com/albertocavalcante/slnsync/internal/log"
	"github.com/albertocavalcante/slnsync/pkg/graph"
	"github.com/albertocavalcante/slnsync/pkg/msbuild"
	"github.com/albertocavalcante/slnsync/pkg/solution"
	"github.com/albertocavalcante/slnsync/pkg/util"
)

// Result summarizes a generation pass. Paths are absolute.
type Result struct {
	Modules   int
	Written   []string
	Unchanged []string
	// Stale lists artifacts that differ from disk in check mode.
	Stale []string
	// Err joins every failure of the pass.
	Err error
}

// Changed reports whether any artifact was written or is stale.
func (r Result) Changed() bool {
	return len(r.Written) > 0 || len(r.Stale) > 0
}

func (r *Result) record(path string, status artifact.Status) {
	switch status {
	case artifact.Written:
		r.Written = append(r.Written, path)
	case artifact.Stale:
		r.Stale = append(r.Stale, path)
	default:
		r.Unchanged = append(r.Unchanged, path)
	}
}

// SolutionName returns the manifest base name.
func (e *Engine) SolutionName() string {
	if e.cfg.Project.SolutionName != "" {
		return e.cfg.Project.SolutionName
	}
	return filepath.Base(e.root)
}

// SolutionPath returns the absolute manifest path.
func (e *Engine) SolutionPath() string {
	return filepath.Join(e.root, solution.FileName(e.SolutionName()))
}

// DescriptorPath returns the absolute descriptor path of a module.
func (e *Engine) DescriptorPath(module string) string {
	return filepath.Join(e.root, msbuild.FileName(module))
}

// GenerateAll enumerates the module graph and regenerates every descriptor
// and the manifest. Failures are collected per artifact and the pass goes on;
// GenerateAll never panics.
func (e *Engine) GenerateAll(ctx context.Context) (res Result) {
	e.genMu.Lock()
	defer e.genMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			res.Err = errors.Join(res.Err, fmt.Errorf("generation panicked: %v", r))
			e.reportError(res.Err)
		}
	}()

	e.fullGenerations.Add(1)
	e.notify(Event{Kind: EventUpdating})

	if err := e.refresh(ctx); err != nil {
		res.Err = err
		e.reportError(err)
		return res
	}
	snap := e.Snapshot()
	res.Modules = snap.Len()
	e.artifacts = make(map[string]incremental.Artifact)

	var errs []error
	if e.cfg.ProjectsEnabled() {
		for _, m := range snap.Modules() {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			path, status, err := e.writeDescriptor(m, snap)
			if err != nil {
				errs = append(errs, err)
				e.reportError(err)
				continue
			}
			res.record(path, status)
			e.announce(path, status)
		}
	}

	if e.cfg.SolutionEnabled() {
		path := e.SolutionPath()
		data := solution.Render(snap.Modules(), e.registry, solution.Options{})
		status, err := e.write(path, "", data)
		if err != nil {
			errs = append(errs, err)
			e.reportError(err)
		} else {
			res.record(path, status)
			e.announce(path, status)
		}
	}

	res.Err = errors.Join(errs...)
	if len(res.Unchanged) > 0 {
		e.notify(Event{Kind: EventUnchanged, Count: len(res.Unchanged)})
	}

	if res.Err == nil {
		e.persist()
	}

	log.Component("engine").Info("generated all",
		"modules", res.Modules,
		"written", len(res.Written),
		"unchanged", len(res.Unchanged),
		"stale", len(res.Stale),
		"errors", len(errs))
	return res
}

// SyncOne regenerates the descriptor of the module owning path. It returns
// ErrUnattributed when no module in the cached snapshot lists path.
func (e *Engine) SyncOne(ctx context.Context, path string) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.root, path)
	}

	if e.Snapshot() == nil {
		e.genMu.Lock()
		err := e.refresh(ctx)
		e.genMu.Unlock()
		if err != nil {
			return err
		}
	}

	owner, ok := e.Snapshot().Owner(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnattributed, path)
	}
	return e.syncModules(ctx, map[string]bool{owner: true})
}

// syncModules regenerates the named descriptors from the cached snapshot.
func (e *Engine) syncModules(ctx context.Context, names map[string]bool) error {
	e.genMu.Lock()
	defer e.genMu.Unlock()

	if !e.cfg.ProjectsEnabled() {
		return nil
	}

	modules := util.SortedKeys(names)
	e.notify(Event{Kind: EventUpdating, Modules: modules})

	snap := e.Snapshot()
	var errs []error
	unchanged := 0
	for _, name := range modules {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, ok := snap.Module(name)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: module %s", ErrUnattributed, name))
			continue
		}
		path, status, err := e.writeDescriptor(m, snap)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if status == artifact.Unchanged {
			unchanged++
		}
		e.announce(path, status)
	}
	if unchanged > 0 {
		e.notify(Event{Kind: EventUnchanged, Count: unchanged})
	}

	if len(errs) == 0 {
		e.persist()
	}
	return errors.Join(errs...)
}

// refresh enumerates a fresh snapshot and, when enabled, rediscovers
// analyzers. Callers hold genMu.
func (e *Engine) refresh(ctx context.Context) error {
	g, err := e.enumerator.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate modules: %w", err)
	}

	var analyzers []string
	if e.cfg.AnalyzersEnabled() {
		analyzers, err = msbuild.FindAnalyzers(ctx, e.root, e.cfg.Project.AnalyzerPatterns, skipFunc(e.filter))
		if err != nil {
			log.Component("engine").Warn("analyzer discovery failed", "error", err)
		}
	}

	for _, name := range g.Names() {
		e.registry.IDFor(name)
	}

	e.snapMu.Lock()
	e.snapshot = g
	e.analyzers = analyzers
	e.snapMu.Unlock()
	return nil
}

func (e *Engine) writeDescriptor(m graph.Module, g *graph.Graph) (string, artifact.Status, error) {
	e.snapMu.RLock()
	analyzers := slices.Clone(e.analyzers)
	e.snapMu.RUnlock()

	path := e.DescriptorPath(m.Name)
	data := msbuild.Render(m, g, e.registry, msbuild.Options{
		Root:            e.root,
		TargetFramework: e.cfg.Project.TargetFramework,
		LangVersion:     e.cfg.Project.LangVersion,
		Analyzers:       analyzers,
	})
	e.renders.Add(1)

	status, err := e.write(path, m.Name, data)
	return path, status, err
}

// write stores one artifact and remembers what it holds. Callers hold genMu.
func (e *Engine) write(path, module string, data []byte) (artifact.Status, error) {
	status, err := e.writer.Write(path, data)
	if err != nil || status == artifact.Stale {
		return status, err
	}
	if rel, ok := e.filter.Rel(path); ok {
		e.artifacts[rel] = incremental.Artifact{Module: module, Hash: incremental.HashBytes(data)}
	}
	return status, nil
}

// persist records the tracked sources, the artifacts and the module
// identifiers of the current snapshot. Callers hold genMu.
func (e *Engine) persist() {
	if e.writer.Check() {
		return
	}
	st := incremental.NewState()
	st.Sources = e.detector.Snapshot()
	maps.Copy(st.Artifacts, e.artifacts)
	for _, name := range e.Snapshot().Names() {
		st.Modules[name] = e.registry.BracedFor(name)
	}
	if err := e.tracker.Save(st); err != nil {
		log.Component("engine").Warn("failed to persist state", "error", err)
	}
}

func (e *Engine) announce(path string, status artifact.Status) {
	if status == artifact.Written {
		e.notify(Event{Kind: EventWritten, Path: path})
	}
}
