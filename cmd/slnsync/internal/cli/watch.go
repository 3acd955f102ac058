package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/engine"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/watch"
	"github.com/spf13/cobra"
)

var watchFlags struct {
	interval float64
	verbose  bool
	json     bool
	noColor  bool
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch for source changes and keep project files in sync",
	Long: `Watches the project for source and module definition changes and
regenerates the affected project files on every flush tick.

Content-identical saves are ignored. Structural changes (files added,
removed or renamed, and any module definition edit) refresh the module
graph and the solution.

Example output:

  $ slnsync watch

  slnsync: watching 1247 files in /path/to/game
  slnsync: flushing every 1s
  slnsync: ready

  [14:32:15] ~ Assets/Core/Player.cs
  [14:32:16] regenerating Core...
  [14:32:16] ✓ Core.csproj updated

Press Ctrl+C to stop watching.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Float64Var(&watchFlags.interval, "interval", 0,
		"Flush interval in seconds (default from config, minimum 0.1)")
	watchCmd.Flags().BoolVar(&watchFlags.verbose, "verbose", false,
		"Show file-level changes")
	watchCmd.Flags().BoolVar(&watchFlags.json, "json", false,
		"Stream JSON events (for tooling integration)")
	watchCmd.Flags().BoolVar(&watchFlags.noColor, "no-color", false,
		"Disable colored output")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	cfg := loadConfig(root)
	if watchFlags.interval > 0 {
		cfg.Sync.PollInterval = watchFlags.interval
	}

	// Include SIGHUP to handle terminal hangup
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	out := watch.NewLogger(watch.LoggerConfig{
		Writer:  cmd.OutOrStdout(),
		Verbose: watchFlags.verbose,
		NoColor: watchFlags.noColor,
		JSON:    watchFlags.json,
	})

	eng, err := engine.New(engine.Options{
		Root:     root,
		Config:   cfg,
		Notifier: consoleNotifier(out, root),
	})
	if err != nil {
		return err
	}

	if err := eng.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}
	if !eng.Initialized() {
		fmt.Fprintln(cmd.OutOrStdout(), "slnsync: sync is disabled in configuration")
		return nil
	}

	out.Ready(eng.Stats().Tracked, root, cfg.Interval())
	<-ctx.Done()

	eng.Shutdown()
	out.Shutdown()
	return nil
}

// consoleNotifier renders engine events through the watch logger with
// root-relative paths.
func consoleNotifier(out *watch.Logger, root string) engine.Notifier {
	rel := func(p string) string {
		if r, err := filepath.Rel(root, p); err == nil {
			return filepath.ToSlash(r)
		}
		return p
	}

	return engine.NotifierFunc(func(ev engine.Event) {
		switch ev.Kind {
		case engine.EventChange:
			out.FileChanged(rel(ev.Path), ev.Change.Symbol())
		case engine.EventUpdating:
			out.Updating(ev.Modules)
		case engine.EventWritten:
			out.Updated(rel(ev.Path))
		case engine.EventUnchanged:
			out.Unchanged(ev.Count)
		case engine.EventError:
			out.Error(ev.Err)
		}
	})
}
