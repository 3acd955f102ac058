package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/langs"
	"github.com/albertocavalcante/slnsync/pkg/solution"
)

// ChangeType is the console marker for a file change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "+"
	ChangeModified ChangeType = "~"
	ChangeDeleted  ChangeType = "-"
)

var ansi = map[ChangeType]string{
	ChangeAdded:    "\033[32m",
	ChangeModified: "\033[33m",
	ChangeDeleted:  "\033[31m",
}

// SessionStats counts what a watch session produced.
type SessionStats struct {
	Passes    int
	Projects  int
	Solutions int
	Errors    int
	Started   time.Time
}

// LoggerConfig configures the console.
type LoggerConfig struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// Logger renders sync activity either for a terminal or as JSON lines.
// Source edits only show when verbose; module definition edits always do
// because they reshape the solution.
type Logger struct {
	w       io.Writer
	color   bool
	verbose bool
	json    bool

	mu    sync.Mutex
	stats SessionStats
}

// NewLogger creates a console writing to cfg.Writer, or stdout.
func NewLogger(cfg LoggerConfig) *Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	color := false
	if f, ok := w.(*os.File); ok && !cfg.NoColor {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Logger{
		w:       w,
		color:   color,
		verbose: cfg.Verbose,
		json:    cfg.JSON,
		stats:   SessionStats{Started: time.Now()},
	}
}

// record is one console line. JSON output is the record itself.
type record struct {
	Event    string   `json:"event"`
	Path     string   `json:"path,omitempty"`
	Change   string   `json:"change,omitempty"`
	Kind     string   `json:"kind,omitempty"`
	Modules  []string `json:"modules,omitempty"`
	Full     bool     `json:"full,omitempty"`
	Count    int      `json:"count,omitempty"`
	Interval string   `json:"interval,omitempty"`
	Duration string   `json:"duration,omitempty"`
	Errors   int      `json:"errors,omitempty"`
	Error    string   `json:"error,omitempty"`
	Time     string   `json:"time"`

	text string
}

// Ready announces the watched tree.
func (l *Logger) Ready(files int, root string, interval time.Duration) {
	l.emit(record{
		Event:    "ready",
		Path:     root,
		Count:    files,
		Interval: interval.String(),
		text: fmt.Sprintf("slnsync: watching %d files in %s\nslnsync: flushing every %s\nslnsync: ready\n",
			files, root, interval),
	})
}

// FileChanged reports a change accepted by the detector.
func (l *Logger) FileChanged(rel string, change ChangeType) {
	kind := "source"
	if langs.IsModuleDefinition(rel) {
		kind = "module definition"
	}
	r := record{Event: "file_changed", Path: rel, Change: string(change), Kind: kind}
	if l.verbose || kind != "source" {
		r.text = fmt.Sprintf("[%s] %s %s", stamp(), l.paint(string(change), change), rel)
		if kind != "source" {
			r.text += " (" + kind + ")"
		}
	}
	l.emit(r)
}

// Updating reports the start of a pass. A full pass names no modules.
func (l *Logger) Updating(modules []string) {
	l.mu.Lock()
	l.stats.Passes++
	l.mu.Unlock()

	var what string
	switch len(modules) {
	case 0:
		what = "all projects and the solution"
	case 1:
		what = modules[0]
	default:
		what = fmt.Sprintf("%d projects", len(modules))
	}
	l.emit(record{
		Event:   "updating",
		Modules: modules,
		Full:    len(modules) == 0,
		text:    fmt.Sprintf("[%s] regenerating %s...", stamp(), what),
	})
}

// Updated reports a written project or solution file.
func (l *Logger) Updated(rel string) {
	kind := "project"
	if strings.EqualFold(path.Ext(rel), solution.Extension) {
		kind = "solution"
	}
	l.mu.Lock()
	if kind == "solution" {
		l.stats.Solutions++
	} else {
		l.stats.Projects++
	}
	l.mu.Unlock()

	l.emit(record{
		Event: "updated",
		Path:  rel,
		Kind:  kind,
		text:  fmt.Sprintf("[%s] %s %s updated", stamp(), l.paint("✓", ChangeAdded), rel),
	})
}

// Unchanged reports files a pass left alone because they were current.
func (l *Logger) Unchanged(count int) {
	if count == 0 {
		return
	}
	r := record{Event: "unchanged", Count: count}
	if l.verbose {
		r.text = fmt.Sprintf("[%s] %d files already current", stamp(), count)
	}
	l.emit(r)
}

// Error reports a failure the engine survived.
func (l *Logger) Error(err error) {
	l.mu.Lock()
	l.stats.Errors++
	l.mu.Unlock()

	l.emit(record{
		Event: "error",
		Error: err.Error(),
		text:  fmt.Sprintf("[%s] %s error: %v", stamp(), l.paint("✗", ChangeDeleted), err),
	})
}

// Shutdown prints the session summary.
func (l *Logger) Shutdown() {
	s := l.Stats()
	l.emit(record{
		Event:    "shutdown",
		Count:    s.Projects + s.Solutions,
		Duration: time.Since(s.Started).Round(time.Second).String(),
		Errors:   s.Errors,
		text: fmt.Sprintf("\nslnsync: shutting down (%d passes, %d projects and %d solutions written, %d errors)",
			s.Passes, s.Projects, s.Solutions, s.Errors),
	})
}

// Stats returns a snapshot of the session counters.
func (l *Logger) Stats() SessionStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// emit writes r. Text records without text are quiet. Write errors are
// ignored.
func (l *Logger) emit(r record) {
	var line string
	if l.json {
		r.Time = time.Now().Format(time.RFC3339)
		data, err := json.Marshal(r)
		if err != nil {
			data = []byte(`{"event":"internal_error","error":"json marshal failed"}`)
		}
		line = string(data)
	} else {
		if r.text == "" {
			return
		}
		line = strings.TrimSuffix(r.text, "\n")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintln(l.w, line)
}

func (l *Logger) paint(s string, change ChangeType) string {
	if !l.color {
		return s
	}
	return ansi[change] + s + "\033[0m"
}

func stamp() string {
	return time.Now().Format("15:04:05")
}
