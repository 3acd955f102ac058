package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/engine"
	"github.com/spf13/cobra"
)

// errStale is returned by generate --check when artifacts are out of date.
var errStale = errors.New("project files are out of date")

var generateFlags struct {
	check        bool
	verbose      bool
	solutionName string
}

var generateCmd = &cobra.Command{
	Use:   "generate [path]",
	Short: "Generate project and solution files",
	Long: `Enumerates module definitions under path (default: current directory)
and writes one .csproj per module plus the .sln.

Files whose content would not change are left untouched.

Use --check in CI to fail when generated files are out of date without
writing anything.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&generateFlags.check, "check", false,
		"Report out-of-date files and exit non-zero instead of writing")
	generateCmd.Flags().BoolVar(&generateFlags.verbose, "verbose", false,
		"List unchanged files too")
	generateCmd.Flags().StringVar(&generateFlags.solutionName, "solution-name", "",
		"Solution file base name (default: directory name)")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	cfg := loadConfig(root)
	if generateFlags.solutionName != "" {
		cfg.Project.SolutionName = generateFlags.solutionName
	}

	eng, err := engine.New(engine.Options{
		Root:           root,
		Config:         cfg,
		Check:          generateFlags.check,
		DisableWatcher: true,
	})
	if err != nil {
		return err
	}

	// ForceSync scans first so the recorded state matches what was generated.
	res := eng.ForceSync(cmd.Context())
	printResult(cmd.OutOrStdout(), root, res, generateFlags.check, generateFlags.verbose)

	if res.Err != nil {
		return res.Err
	}
	if generateFlags.check && len(res.Stale) > 0 {
		return errStale
	}
	return nil
}

func printResult(w io.Writer, root string, res engine.Result, check, verbose bool) {
	rel := func(p string) string {
		if r, err := filepath.Rel(root, p); err == nil {
			return r
		}
		return p
	}

	for _, p := range res.Written {
		fmt.Fprintf(w, "  wrote %s\n", rel(p))
	}
	for _, p := range res.Stale {
		fmt.Fprintf(w, "  stale %s\n", rel(p))
	}
	if verbose {
		for _, p := range res.Unchanged {
			fmt.Fprintf(w, "  unchanged %s\n", rel(p))
		}
	}

	switch {
	case check && len(res.Stale) > 0:
		fmt.Fprintf(w, "%d of %d files out of date (%d modules)\n",
			len(res.Stale), len(res.Stale)+len(res.Unchanged), res.Modules)
	case check:
		fmt.Fprintf(w, "Project files are up to date (%d modules)\n", res.Modules)
	default:
		fmt.Fprintf(w, "%d modules: %d written, %d unchanged\n",
			res.Modules, len(res.Written), len(res.Unchanged))
	}
}
