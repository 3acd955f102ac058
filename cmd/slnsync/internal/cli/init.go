package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/langs"
	"github.com/albertocavalcante/slnsync/pkg/asmdef"
	"github.com/albertocavalcante/slnsync/pkg/config"
	"github.com/spf13/cobra"
)

var initFlags struct {
	dryRun       bool
	force        bool
	solutionName string
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a slnsync.toml for a project",
	Long: `Writes slnsync.toml with the built-in defaults into path (default:
current directory) and lists the modules that would be generated.

An existing file is left alone unless --force is given.
Use --dry-run to print the file without writing it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initFlags.dryRun, "dry-run", false,
		"Show what would be written without applying")
	initCmd.Flags().BoolVar(&initFlags.force, "force", false,
		"Overwrite an existing slnsync.toml")
	initCmd.Flags().StringVar(&initFlags.solutionName, "solution-name", "",
		"Solution file base name (defaults to directory name)")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	if modules, err := detectModules(cmd, root); err != nil {
		fmt.Fprintf(w, "Module scan failed: %v\n", err)
	} else if len(modules) == 0 {
		fmt.Fprintln(w, "No C# sources found.")
	} else {
		fmt.Fprintf(w, "Modules: %s\n", strings.Join(modules, ", "))
	}

	content, err := initContent(initFlags.solutionName)
	if err != nil {
		return err
	}
	path := filepath.Join(root, config.ConfigFileName)

	if initFlags.dryRun {
		return runInitDryRun(w, path, content)
	}
	return runInitApply(w, path, content, initFlags.force)
}

// detectModules lists the module names a generate pass would produce.
func detectModules(cmd *cobra.Command, root string) ([]string, error) {
	filter, err := langs.NewFilter(root, nil, nil)
	if err != nil {
		return nil, err
	}
	enum, err := asmdef.New(asmdef.Options{
		Root: root,
		Skip: func(rel string) bool { return filter.IsIgnored(strings.TrimSuffix(rel, "/")) },
	})
	if err != nil {
		return nil, err
	}
	g, err := enum.Enumerate(cmd.Context())
	if err != nil {
		return nil, err
	}
	return g.Names(), nil
}

// initContent renders the default configuration.
func initContent(solutionName string) ([]byte, error) {
	cfg := config.NewConfig()
	cfg.Project.SolutionName = solutionName

	body, err := config.Encode(cfg)
	if err != nil {
		return nil, err
	}
	header := "# slnsync configuration. Environment variables (SLNSYNC_*) override these values.\n\n"
	return append([]byte(header), body...), nil
}

func runInitDryRun(w io.Writer, path string, content []byte) error {
	if fileExists(path) && !initFlags.force {
		fmt.Fprintf(w, "%s exists (would not modify)\n", path)
		return nil
	}
	fmt.Fprintf(w, "Would write %s:\n", path)
	fmt.Fprintln(w, string(content))
	return nil
}

func runInitApply(w io.Writer, path string, content []byte, force bool) error {
	if fileExists(path) && !force {
		fmt.Fprintf(w, "%s already exists (skipping)\n", filepath.Base(path))
		return nil
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	fmt.Fprintf(w, "Created %s\n", path)

	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintln(w, "  1. Adjust target_framework and defines in slnsync.toml")
	fmt.Fprintln(w, "  2. Run 'slnsync generate' to write project files")
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
