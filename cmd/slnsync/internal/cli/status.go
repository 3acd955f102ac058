package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/incremental"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/langs"
	"github.com/spf13/cobra"
)

var statusFlags struct {
	verbose bool
	json    bool
}

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show sources changed since the last sync",
	Long: `Compares the current source tree against the state recorded by the
last successful 'slnsync generate' or watch pass.

The --verbose flag shows individual file changes (new, modified, deleted).
The --json flag outputs the result as JSON for scripting.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.verbose, "verbose", false,
		"Show individual file changes")
	statusCmd.Flags().BoolVar(&statusFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(statusCmd)
}

// StatusOutput is the JSON output format for slnsync status.
type StatusOutput struct {
	Stale          bool     `json:"stale"`
	Changes        int      `json:"changes"`
	StaleDirs      []string `json:"stale_dirs"`
	NewFiles       []string `json:"new_files,omitempty"`
	ModifiedFiles  []string `json:"modified_files,omitempty"`
	DeletedFiles   []string `json:"deleted_files,omitempty"`
	StaleArtifacts []string `json:"stale_artifacts,omitempty"`
	Modules        []string `json:"modules,omitempty"`
	Error          string   `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	cfg := loadConfig(root)
	filter, err := langs.NewFilter(root, cfg.Watch.Extensions, cfg.Watch.Ignore)
	if err != nil {
		return err
	}
	tracker := incremental.NewTracker(filter)
	w := cmd.OutOrStdout()

	if !tracker.HasState() {
		if statusFlags.json {
			return outputJSON(w, StatusOutput{
				Stale:     true,
				StaleDirs: []string{"."},
				Error:     "no state found",
			})
		}
		fmt.Fprintln(w, "No state found. Run 'slnsync generate' to create initial state.")
		return nil
	}

	report, err := tracker.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to detect changes: %w", err)
	}

	if statusFlags.json {
		cs := report.Sources
		return outputJSON(w, StatusOutput{
			Stale:          !report.UpToDate(),
			Changes:        cs.TotalChanges(),
			StaleDirs:      cs.AffectedDirs(),
			NewFiles:       cs.Added,
			ModifiedFiles:  cs.Modified,
			DeletedFiles:   cs.Deleted,
			StaleArtifacts: report.Artifacts,
			Modules:        report.Modules,
		})
	}

	printReport(w, report, statusFlags.verbose)
	return nil
}

func printReport(w io.Writer, r *incremental.Report, verbose bool) {
	if r.UpToDate() {
		fmt.Fprintf(w, "Project files are up to date (%d modules)\n", len(r.Modules))
		return
	}

	cs := r.Sources
	if !cs.IsEmpty() {
		dirs := cs.AffectedDirs()
		fmt.Fprintf(w, "%d changed sources in %d directories:\n", cs.TotalChanges(), len(dirs))
		for _, dir := range dirs {
			fmt.Fprintf(w, "  %s\n", dir)
		}
	}

	if verbose {
		groups := []struct {
			title  string
			marker string
			files  []string
		}{
			{"New files", "+", cs.Added},
			{"Modified files", "~", cs.Modified},
			{"Deleted files", "-", cs.Deleted},
		}
		for _, g := range groups {
			if len(g.files) == 0 {
				continue
			}
			fmt.Fprintf(w, "\n%s (%d):\n", g.title, len(g.files))
			for _, f := range g.files {
				fmt.Fprintf(w, "  %s %s\n", g.marker, f)
			}
		}
	}

	if len(r.Artifacts) > 0 {
		fmt.Fprintf(w, "\nEdited or missing project files (%d):\n", len(r.Artifacts))
		for _, a := range r.Artifacts {
			fmt.Fprintf(w, "  ! %s\n", a)
		}
	}

	if cs.IsStructural() {
		fmt.Fprintln(w, "\nRun 'slnsync generate' to refresh the module graph and solution")
		return
	}
	fmt.Fprintln(w, "\nRun 'slnsync generate' to update project files")
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
