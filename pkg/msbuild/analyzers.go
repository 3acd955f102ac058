package msbuild

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultAnalyzerPatterns locate analyzer assemblies under the project root.
var DefaultAnalyzerPatterns = []string{"**/*Analyzer*.dll", "**/*Analyzers*.dll"}

// FindAnalyzers returns absolute paths of files under root whose slash
// relative path matches any pattern, sorted. skip excludes root-relative
// slash paths; directories are passed with a trailing slash.
func FindAnalyzers(ctx context.Context, root string, patterns []string, skip func(rel string) bool) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultAnalyzerPatterns
	}
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid analyzer pattern %q", pat)
		}
	}

	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path != root && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skip != nil && skip(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if skip != nil && skip(rel) {
			return nil
		}
		for _, pat := range patterns {
			if ok, _ := doublestar.Match(pat, rel); ok {
				found = append(found, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search analyzers under %s: %w", root, err)
	}

	slices.Sort(found)
	return found, nil
}
