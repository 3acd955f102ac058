// Package config provides configuration management for slnsync.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/slnsync/config.toml)
//  3. Project config (.slnsync/config.toml or slnsync.toml)
//  4. .env file in the project root
//  5. Environment variables (SLNSYNC_*)
//  6. CLI flags (highest priority)
package config

import (
	"slices"
	"time"
)

// Poll interval bounds, in seconds.
const (
	DefaultPollInterval = 1.0
	MinPollInterval     = 0.1
)

// Config is the main configuration struct for slnsync.
type Config struct {
	// Sync holds the switches owned by the host (enable flag, interval, features).
	Sync SyncConfig `toml:"sync"`

	// Watch configures which files participate in change detection.
	Watch WatchConfig `toml:"watch"`

	// Project configures the generated descriptors and manifest.
	Project ProjectConfig `toml:"project"`
}

// SyncConfig is the configuration surface consumed by the engine.
type SyncConfig struct {
	// Enabled turns synchronization on or off entirely.
	Enabled *bool `toml:"enabled"`

	// PollInterval is the flush interval in seconds. Values below
	// MinPollInterval are clamped.
	PollInterval float64 `toml:"poll_interval"`

	// GenerateProjects enables per-module descriptor generation.
	GenerateProjects *bool `toml:"generate_projects"`

	// GenerateSolution enables manifest generation.
	GenerateSolution *bool `toml:"generate_solution"`

	// IncludeAnalyzers adds discovered analyzer assemblies to descriptors.
	IncludeAnalyzers *bool `toml:"include_analyzers"`
}

// WatchConfig configures the watched file set.
type WatchConfig struct {
	// Extensions is the allow-list of file extensions (with leading dot).
	Extensions []string `toml:"extensions"`

	// Ignore holds additional doublestar patterns, relative to the root.
	Ignore []string `toml:"ignore"`
}

// ProjectConfig configures rendering.
type ProjectConfig struct {
	// SolutionName is the manifest base name. Empty means the root directory name.
	SolutionName string `toml:"solution_name"`

	// DefaultModule receives sources not covered by any module definition.
	DefaultModule string `toml:"default_module"`

	// Defines are compile symbols added to every module.
	Defines []string `toml:"defines"`

	// References are assembly paths added to every module.
	References []string `toml:"references"`

	// TargetFramework is the TargetFrameworkVersion written to descriptors.
	TargetFramework string `toml:"target_framework"`

	// LangVersion is the C# language version written to descriptors.
	LangVersion string `toml:"lang_version"`

	// AnalyzerPatterns are doublestar patterns locating analyzer assemblies.
	AnalyzerPatterns []string `toml:"analyzer_patterns"`
}

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	trueVal := true
	falseVal := false
	return &Config{
		Sync: SyncConfig{
			Enabled:          &trueVal,
			PollInterval:     DefaultPollInterval,
			GenerateProjects: &trueVal,
			GenerateSolution: &trueVal,
			IncludeAnalyzers: &falseVal,
		},
		Watch: WatchConfig{
			Extensions: []string{".cs", ".asmdef"},
			Ignore:     []string{},
		},
		Project: ProjectConfig{
			DefaultModule:    "Assembly-CSharp",
			Defines:          []string{},
			References:       []string{},
			TargetFramework:  "v4.7.1",
			LangVersion:      "latest",
			AnalyzerPatterns: []string{"**/*Analyzer*.dll", "**/*Analyzers*.dll"},
		},
	}
}

// SyncEnabled reports whether synchronization is enabled.
func (c *Config) SyncEnabled() bool {
	return boolValue(c.Sync.Enabled, true)
}

// ProjectsEnabled reports whether descriptors are generated.
func (c *Config) ProjectsEnabled() bool {
	return boolValue(c.Sync.GenerateProjects, true)
}

// SolutionEnabled reports whether the manifest is generated.
func (c *Config) SolutionEnabled() bool {
	return boolValue(c.Sync.GenerateSolution, true)
}

// AnalyzersEnabled reports whether analyzer discovery runs.
func (c *Config) AnalyzersEnabled() bool {
	return boolValue(c.Sync.IncludeAnalyzers, false)
}

// Interval returns the poll interval as a duration, clamped to MinPollInterval.
// Zero or negative values fall back to DefaultPollInterval.
func (c *Config) Interval() time.Duration {
	return ClampInterval(c.Sync.PollInterval)
}

// ClampInterval converts seconds to a duration, applying the default and minimum.
func ClampInterval(seconds float64) time.Duration {
	if seconds <= 0 {
		seconds = DefaultPollInterval
	}
	if seconds < MinPollInterval {
		seconds = MinPollInterval
	}
	return time.Duration(seconds * float64(time.Second))
}

// HasExtension reports whether ext is in the watch allow-list.
func (c *Config) HasExtension(ext string) bool {
	return slices.Contains(c.Watch.Extensions, ext)
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Sync
	if other.Sync.Enabled != nil {
		c.Sync.Enabled = other.Sync.Enabled
	}
	if other.Sync.PollInterval != 0 {
		c.Sync.PollInterval = other.Sync.PollInterval
	}
	if other.Sync.GenerateProjects != nil {
		c.Sync.GenerateProjects = other.Sync.GenerateProjects
	}
	if other.Sync.GenerateSolution != nil {
		c.Sync.GenerateSolution = other.Sync.GenerateSolution
	}
	if other.Sync.IncludeAnalyzers != nil {
		c.Sync.IncludeAnalyzers = other.Sync.IncludeAnalyzers
	}

	// Watch
	if len(other.Watch.Extensions) > 0 {
		c.Watch.Extensions = other.Watch.Extensions
	}
	if len(other.Watch.Ignore) > 0 {
		c.Watch.Ignore = append(c.Watch.Ignore, other.Watch.Ignore...)
	}

	// Project
	if other.Project.SolutionName != "" {
		c.Project.SolutionName = other.Project.SolutionName
	}
	if other.Project.DefaultModule != "" {
		c.Project.DefaultModule = other.Project.DefaultModule
	}
	if len(other.Project.Defines) > 0 {
		c.Project.Defines = other.Project.Defines
	}
	if len(other.Project.References) > 0 {
		c.Project.References = other.Project.References
	}
	if other.Project.TargetFramework != "" {
		c.Project.TargetFramework = other.Project.TargetFramework
	}
	if other.Project.LangVersion != "" {
		c.Project.LangVersion = other.Project.LangVersion
	}
	if len(other.Project.AnalyzerPatterns) > 0 {
		c.Project.AnalyzerPatterns = other.Project.AnalyzerPatterns
	}
}

func boolValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
