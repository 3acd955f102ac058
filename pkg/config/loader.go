package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "slnsync.toml"

// ConfigDirName is the name of the project-level state and config directory.
const ConfigDirName = ".slnsync"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "slnsync"

// EnvFileName is the dotenv file read from the project root.
const EnvFileName = ".env"

// Load loads configuration for the current working directory.
// CLI flags are applied separately after Load returns.
func Load() *Config {
	wd, err := os.Getwd()
	if err != nil {
		return LoadFrom("")
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration starting from a specific directory:
//  1. Built-in defaults
//  2. Global user config
//  3. Project config (searched from dir upwards)
//  4. .env in dir (does not override variables already set)
//  5. Environment variables (SLNSYNC_*)
func LoadFrom(dir string) *Config {
	cfg := NewConfig()

	if globalCfg := loadGlobalConfig(); globalCfg != nil {
		cfg.Merge(globalCfg)
	}

	if dir != "" {
		if projectCfg := loadProjectConfigFrom(dir); projectCfg != nil {
			cfg.Merge(projectCfg)
		}
		loadEnvFile(dir)
	}

	applyEnvironmentVariables(cfg)

	return cfg
}

// loadGlobalConfig loads the global user configuration.
func loadGlobalConfig() *Config {
	path := GetGlobalConfigPath()
	if path == "" {
		return nil
	}
	return loadConfigFile(path)
}

// loadProjectConfigFrom looks for project configuration starting from dir.
func loadProjectConfigFrom(dir string) *Config {
	current := dir
	for {
		for _, path := range GetProjectConfigPaths(current) {
			if cfg := loadConfigFile(path); cfg != nil {
				return cfg
			}
		}

		// Stop at filesystem root or a workspace root
		if isWorkspaceRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil
}

// isWorkspaceRoot checks for markers of a project root.
func isWorkspaceRoot(dir string) bool {
	markers := []string{".git", "Assets", "ProjectSettings", ConfigFileName}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file.
func loadConfigFile(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil
	}

	return &cfg
}

// loadEnvFile reads dir/.env into the process environment.
// Variables already present in the environment win.
func loadEnvFile(dir string) {
	path := filepath.Join(dir, EnvFileName)
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// applyEnvironmentVariables applies SLNSYNC_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) {
	applyBoolEnv("SLNSYNC_ENABLED", &cfg.Sync.Enabled)
	applyBoolEnv("SLNSYNC_GENERATE_PROJECTS", &cfg.Sync.GenerateProjects)
	applyBoolEnv("SLNSYNC_GENERATE_SOLUTION", &cfg.Sync.GenerateSolution)
	applyBoolEnv("SLNSYNC_INCLUDE_ANALYZERS", &cfg.Sync.IncludeAnalyzers)

	if v := os.Getenv("SLNSYNC_POLL_INTERVAL"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Sync.PollInterval = f
		}
	}

	// SLNSYNC_EXTENSIONS: comma-separated extension allow-list
	if v := os.Getenv("SLNSYNC_EXTENSIONS"); v != "" {
		cfg.Watch.Extensions = splitAndTrim(v)
	}
	if v := os.Getenv("SLNSYNC_IGNORE"); v != "" {
		cfg.Watch.Ignore = append(cfg.Watch.Ignore, splitAndTrim(v)...)
	}

	if v := os.Getenv("SLNSYNC_SOLUTION_NAME"); v != "" {
		cfg.Project.SolutionName = v
	}
	if v := os.Getenv("SLNSYNC_DEFAULT_MODULE"); v != "" {
		cfg.Project.DefaultModule = v
	}
	if v := os.Getenv("SLNSYNC_DEFINES"); v != "" {
		cfg.Project.Defines = splitAndTrim(v)
	}
	if v := os.Getenv("SLNSYNC_REFERENCES"); v != "" {
		cfg.Project.References = splitAndTrim(v)
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

// Encode renders cfg as TOML.
func Encode(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
