// Package cli implements the slnsync command-line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/slnsync/internal/log"
	"github.com/albertocavalcante/slnsync/pkg/config"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags holds persistent flags that apply to all commands
var globalFlags struct {
	verbosity int
	logFormat string
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "slnsync",
	Short: "Keep C# project and solution files in sync with a source tree",
	Long: `slnsync watches a source tree and regenerates one .csproj per module and
a single .sln whenever sources or module definitions (*.asmdef) change.

Unchanged files are never rewritten, so an IDE holding the solution open
only reloads what actually changed.

Use 'slnsync generate' for a one-shot pass and 'slnsync watch' or
'slnsync daemon start' to keep the project files current.`,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return log.Setup(log.Options{Verbosity: globalFlags.verbosity, Format: globalFlags.logFormat})
	},
	// Default behavior: show help
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "slnsync %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Global flags (persistent across all commands)
	rootCmd.PersistentFlags().IntVarP(&globalFlags.verbosity, "verbosity", "v", 1,
		"Verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=debug with source locations)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.logFormat, "log-format", "text",
		"Log format (text, json)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}

// resolveRoot returns the absolute project root from an optional path
// argument, defaulting to the working directory.
func resolveRoot(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path must be a directory: %s", abs)
	}
	return abs, nil
}

// loadConfig loads layered configuration for root.
func loadConfig(root string) *config.Config {
	return config.LoadFrom(root)
}
