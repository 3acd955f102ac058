// Package engine keeps generated project descriptors and the solution
// manifest in step with a source tree.
//
// An Engine owns a detector, a batcher and optionally a platform watcher.
// File notifications only touch the tracked and pending sets; generation
// happens on the flush path, serialized by a mutex.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/artifact"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/incremental"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/langs"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/watch"
	"github.com/albertocavalcante/slnsync/internal/log"
	"github.com/albertocavalcante/slnsync/pkg/asmdef"
	"github.com/albertocavalcante/slnsync/pkg/config"
	"github.com/albertocavalcante/slnsync/pkg/graph"
	"github.com/albertocavalcante/slnsync/pkg/registry"
)

// ErrUnattributed is returned by SyncOne when no module lists the path.
// Callers fall back to GenerateAll.
var ErrUnattributed = errors.New("path is not attributed to any module")

// Options configures an Engine.
type Options struct {
	// Root is the project root. Artifacts are written here.
	Root string

	// Config supplies feature switches and rendering options. Nil means
	// config.NewConfig().
	Config *config.Config

	// Enumerator builds the module graph. Nil means an asmdef enumerator
	// over Root.
	Enumerator graph.Enumerator

	// Notifier receives engine events. Optional.
	Notifier Notifier

	// Check reports stale artifacts instead of writing them.
	Check bool

	// DisableWatcher skips the platform watcher; changes then arrive only
	// through NotifyFileChanged.
	DisableWatcher bool
}

// Stats are engine counters.
type Stats struct {
	Flushes           int64
	FullGenerations   int64
	DescriptorRenders int64
	Suppressed        int64
	Tracked           int
	Modules           int
	Pending           int
}

// Engine is an explicitly owned synchronization instance.
type Engine struct {
	root       string
	cfg        *config.Config
	filter     *langs.Filter
	enumerator graph.Enumerator
	registry   *registry.Registry
	writer     *artifact.Writer
	tracker    *incremental.Tracker
	detector   *watch.Detector
	notifier   Notifier
	noWatch    bool

	lifeMu      sync.Mutex
	initialized bool
	cancel      context.CancelFunc
	watcher     *watch.Watcher
	watchDone   chan struct{}

	// batchMu guards batcher and runCtx. It is never held across a flush.
	batchMu sync.Mutex
	batcher *watch.Batcher
	runCtx  context.Context

	// genMu serializes generation passes and guards artifacts.
	genMu     sync.Mutex
	artifacts map[string]incremental.Artifact
	snapMu    sync.RWMutex
	snapshot  *graph.Graph
	analyzers []string

	flushes         atomic.Int64
	fullGenerations atomic.Int64
	renders         atomic.Int64
}

// New creates an engine. Nothing is scanned or watched until Initialize.
func New(opts Options) (*Engine, error) {
	if opts.Root == "" {
		return nil, errors.New("engine root is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", opts.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory: %s", root)
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}

	filter, err := langs.NewFilter(root, cfg.Watch.Extensions, cfg.Watch.Ignore)
	if err != nil {
		return nil, err
	}

	enumerator := opts.Enumerator
	if enumerator == nil {
		enumerator, err = asmdef.New(asmdef.Options{
			Root:          root,
			Skip:          skipFunc(filter),
			DefaultModule: cfg.Project.DefaultModule,
			Defines:       cfg.Project.Defines,
			References:    cfg.Project.References,
		})
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{
		root:       root,
		cfg:        cfg,
		filter:     filter,
		enumerator: enumerator,
		registry:   registry.New(),
		writer:     artifact.NewWriter(opts.Check),
		tracker:    incremental.NewTracker(filter),
		artifacts:  make(map[string]incremental.Artifact),
		notifier:   opts.Notifier,
		noWatch:    opts.DisableWatcher,
	}
	e.detector = watch.NewDetector(filter, engineSink{e})
	e.detector.OnChange = func(path string, kind watch.ChangeKind) {
		e.notify(Event{Kind: EventChange, Path: path, Change: kind})
	}
	return e, nil
}

// skipFunc adapts the filter to root-relative slash paths.
func skipFunc(f *langs.Filter) func(rel string) bool {
	return func(rel string) bool {
		return f.IsIgnored(strings.TrimSuffix(rel, "/"))
	}
}

// engineSink forwards detector output to the current batcher.
type engineSink struct{ e *Engine }

func (s engineSink) Add(path string, kind watch.ChangeKind) {
	s.e.batchMu.Lock()
	b := s.e.batcher
	s.e.batchMu.Unlock()
	if b != nil {
		b.Add(path, kind)
	}
}

// Root returns the absolute project root.
func (e *Engine) Root() string {
	return e.root
}

// Config returns the configuration in use.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Registry returns the identifier registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Initialized reports whether Initialize completed and Shutdown has not run.
func (e *Engine) Initialized() bool {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	return e.initialized
}

// Initialize scans the root, starts the flush ticker and the platform
// watcher, and generates everything when the persisted state is out of date.
// It is a no-op when sync is disabled or the engine is already initialized.
func (e *Engine) Initialize(ctx context.Context) error {
	logger := log.Component("engine")

	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if !e.cfg.SyncEnabled() {
		logger.Info("sync disabled, not initializing", "root", e.root)
		return nil
	}
	if e.initialized {
		return nil
	}

	idx, err := e.detector.Scan(ctx)
	if err != nil {
		return err
	}
	logger.Info("initial scan complete", "root", e.root, "files", idx.Len())

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel

	b := watch.NewBatcher(e.cfg.Interval(), e.handleBatch)
	e.batchMu.Lock()
	e.batcher = b
	e.runCtx = runCtx
	e.batchMu.Unlock()

	if e.needsSync(idx) {
		logger.Info("state out of date, generating")
		e.GenerateAll(ctx)
	} else if err := e.refresh(ctx); err != nil {
		e.reportError(err)
	}

	b.Start()

	if !e.noWatch {
		e.startWatcher()
	}

	e.initialized = true
	return nil
}

// needsSync compares the persisted state with a fresh scan. Drifted
// sources, edited or deleted artifacts, and a missing manifest all require a
// full pass. When nothing drifted, the recorded artifacts are adopted so
// later partial passes keep them in the state file.
func (e *Engine) needsSync(current *incremental.Index) bool {
	logger := log.Component("engine")
	if !e.tracker.HasState() {
		return true
	}
	prev, err := e.tracker.Load()
	if err != nil {
		logger.Warn("failed to load state", "error", err)
		return true
	}
	if cs := prev.Sources.Diff(current); !cs.IsEmpty() {
		logger.Debug("sources drifted", "changes", cs.TotalChanges())
		return true
	}
	if stale := prev.StaleArtifacts(e.root); len(stale) > 0 {
		logger.Debug("artifacts drifted", "paths", stale)
		return true
	}
	if e.cfg.SolutionEnabled() {
		if _, err := os.Stat(e.SolutionPath()); err != nil {
			return true
		}
	}

	e.genMu.Lock()
	e.artifacts = prev.Artifacts
	if e.artifacts == nil {
		e.artifacts = make(map[string]incremental.Artifact)
	}
	e.genMu.Unlock()
	return false
}

func (e *Engine) startWatcher() {
	w := watch.NewWatcher(watch.WatcherConfig{
		Filter: e.filter,
		Handle: e.detector.Handle,
		Rescan: func(ctx context.Context) error {
			cs, err := e.detector.Rescan(ctx)
			if err == nil {
				log.Component("engine").Info("rescan after watcher failure", "changes", cs.TotalChanges())
			}
			return err
		},
		RetryInterval: e.cfg.Interval(),
		OnError:       e.reportError,
	})
	done := make(chan struct{})
	e.watcher = w
	e.watchDone = done

	ctx := e.context()
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			e.reportError(fmt.Errorf("watcher stopped: %w", err))
		}
	}()
}

// Shutdown stops watching, flushes pending changes and releases in-memory
// state. It is safe to call when not initialized.
func (e *Engine) Shutdown() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.watcher != nil {
		_ = e.watcher.Close()
		<-e.watchDone
		e.watcher = nil
		e.watchDone = nil
	}

	e.batchMu.Lock()
	b := e.batcher
	e.batchMu.Unlock()
	if b != nil {
		b.Stop()
	}
	e.batchMu.Lock()
	e.batcher = nil
	e.runCtx = nil
	e.batchMu.Unlock()

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	e.detector.Reset()
	e.snapMu.Lock()
	e.snapshot = nil
	e.analyzers = nil
	e.snapMu.Unlock()
	e.genMu.Lock()
	e.artifacts = make(map[string]incremental.Artifact)
	e.genMu.Unlock()

	if e.initialized {
		log.Component("engine").Info("shut down", "root", e.root)
	}
	e.initialized = false
}

// NotifyFileChanged applies a host-reported change. It goes through the same
// fingerprint checks as platform notifications and only updates the pending
// set; generation happens on the next flush. Changes reported while the
// engine is not initialized are ignored.
func (e *Engine) NotifyFileChanged(c watch.Change) {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if !e.initialized {
		log.Component("engine").Debug("ignoring change, not initialized", "path", c.Path)
		return
	}

	if !filepath.IsAbs(c.Path) {
		c.Path = filepath.Join(e.root, c.Path)
	}
	if c.OldPath != "" && !filepath.IsAbs(c.OldPath) {
		c.OldPath = filepath.Join(e.root, c.OldPath)
	}
	e.detector.Handle(c)
}

// Flush drains pending changes now instead of waiting for the ticker.
func (e *Engine) Flush() {
	e.batchMu.Lock()
	b := e.batcher
	e.batchMu.Unlock()
	if b != nil {
		b.FlushNow()
	}
}

// ForceSync rescans everything from scratch, drops pending changes and
// regenerates all artifacts.
func (e *Engine) ForceSync(ctx context.Context) Result {
	e.detector.Reset()

	e.batchMu.Lock()
	if e.batcher != nil {
		e.batcher.Clear()
	}
	e.batchMu.Unlock()

	if _, err := e.detector.Scan(ctx); err != nil {
		e.reportError(err)
		return Result{Err: err}
	}
	return e.GenerateAll(ctx)
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Flushes:           e.flushes.Load(),
		FullGenerations:   e.fullGenerations.Load(),
		DescriptorRenders: e.renders.Load(),
		Suppressed:        e.detector.Suppressed(),
		Tracked:           e.detector.TrackedCount(),
	}
	e.snapMu.RLock()
	s.Modules = e.snapshot.Len()
	e.snapMu.RUnlock()

	e.batchMu.Lock()
	if e.batcher != nil {
		s.Pending = e.batcher.PendingCount()
	}
	e.batchMu.Unlock()
	return s
}

// Snapshot returns the cached module graph, or nil before the first pass.
func (e *Engine) Snapshot() *graph.Graph {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapshot
}

// handleBatch runs on the flush path. Structural batches and batches with
// unattributed paths regenerate everything; otherwise each owning module is
// regenerated once.
func (e *Engine) handleBatch(batch watch.Batch) {
	e.flushes.Add(1)
	ctx := e.context()
	logger := log.Component("engine")

	if batch.IsStructural() {
		logger.Debug("structural batch", "paths", len(batch))
		e.GenerateAll(ctx)
		return
	}

	snap := e.Snapshot()
	owners := make(map[string]bool)
	for _, path := range batch.Paths() {
		owner, ok := snap.Owner(path)
		if !ok {
			logger.Debug("unattributed change, regenerating all", "path", path)
			e.GenerateAll(ctx)
			return
		}
		owners[owner] = true
	}

	if err := e.syncModules(ctx, owners); err != nil {
		e.reportError(err)
	}
}

func (e *Engine) context() context.Context {
	e.batchMu.Lock()
	ctx := e.runCtx
	e.batchMu.Unlock()
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func (e *Engine) notify(ev Event) {
	if e.notifier != nil {
		e.notifier.Notify(ev)
	}
}

func (e *Engine) reportError(err error) {
	log.Component("engine").Error("sync error", "error", err)
	e.notify(Event{Kind: EventError, Err: err})
}
