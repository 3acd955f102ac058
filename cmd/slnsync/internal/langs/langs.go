// Package langs provides the shared file selection rules for slnsync.
//
// # Single Source of Truth
//
// This package defines which files participate in synchronization. The
// scanner, the detector and the fsnotify watcher all filter through a
// [Filter] rather than keeping their own extension or directory lists, so a
// file is either tracked everywhere or nowhere.
//
// # Usage
//
//	f, err := langs.NewFilter(root, nil, cfg.Watch.Ignore)
//	if f.Matches(path) {
//	    // path is a tracked source or module definition
//	}
package langs

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Source and module definition extensions.
const (
	SourceExt           = ".cs"
	ModuleDefinitionExt = ".asmdef"
)

// Extensions is the default allow-list of tracked file extensions.
var Extensions = []string{SourceExt, ModuleDefinitionExt}

// IgnorePatterns contains doublestar patterns, relative to the watched root,
// that are skipped during scanning and watching.
//
// Patterns are matched against slash-separated relative paths; directories
// are matched both as "dir" and "dir/".
var IgnorePatterns = []string{
	"**/.git/**",
	"**/.vs/**",
	"**/.idea/**",
	"**/.slnsync/**",
	"**/Library/**",
	"**/Temp/**",
	"**/Logs/**",
	"**/obj/**",
	"**/bin/**",
	"**/node_modules/**",
}

// Filter decides whether a path under Root is tracked.
type Filter struct {
	root       string
	extensions map[string]bool
	ignores    []string
}

// NewFilter builds a filter for root. Empty extensions means the defaults.
// Additional ignore patterns are appended to IgnorePatterns.
func NewFilter(root string, extensions, ignores []string) (*Filter, error) {
	if len(extensions) == 0 {
		extensions = Extensions
	}

	all := slices.Concat(IgnorePatterns, ignores)
	for _, pat := range all {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pat)
		}
	}

	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = true
	}

	return &Filter{
		root:       filepath.Clean(root),
		extensions: exts,
		ignores:    all,
	}, nil
}

// Root returns the watched root directory.
func (f *Filter) Root() string {
	return f.root
}

// Rel returns path relative to the root using forward slashes. The second
// result is false when path lies outside the root.
func (f *Filter) Rel(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.root, path)
	}
	rel, err := filepath.Rel(f.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Abs returns the absolute path for a root-relative slash path.
func (f *Filter) Abs(rel string) string {
	return filepath.Join(f.root, filepath.FromSlash(rel))
}

// HasExtension reports whether path carries a tracked extension.
func (f *Filter) HasExtension(path string) bool {
	return f.extensions[strings.ToLower(filepath.Ext(path))]
}

// IsIgnored reports whether a root-relative slash path matches an ignore pattern.
func (f *Filter) IsIgnored(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	for _, pat := range f.ignores {
		if matched, err := doublestar.Match(pat, rel); err == nil && matched {
			return true
		}
		if matched, err := doublestar.Match(pat, rel+"/"); err == nil && matched {
			return true
		}
	}
	return false
}

// IsIgnoredDir reports whether an absolute directory should not be walked or watched.
func (f *Filter) IsIgnoredDir(path string) bool {
	rel, ok := f.Rel(path)
	if !ok {
		return true
	}
	return f.IsIgnored(rel)
}

// Matches reports whether an absolute or root-relative file path is tracked.
func (f *Filter) Matches(path string) bool {
	if !f.HasExtension(path) {
		return false
	}
	rel, ok := f.Rel(path)
	if !ok {
		return false
	}
	return !f.IsIgnored(rel)
}

// IsModuleDefinition reports whether path is a module definition file.
func IsModuleDefinition(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ModuleDefinitionExt)
}

