package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/daemon"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/watch"
	"github.com/spf13/cobra"
)

var notifyFlags struct {
	root   string
	socket string
	flush  bool
}

var notifyCmd = &cobra.Command{
	Use:   "notify <created|modified|deleted|renamed> <path> [old-path]",
	Short: "Report a file change to the running daemon",
	Long: `Sends a file change notification to the daemon serving the project.

Editors and build hooks use this when they know about a change before the
filesystem watcher does. Relative paths are resolved against the working
directory. Renames take the new path first and the old path second.

Use --flush to apply the change immediately instead of waiting for the
next flush tick.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runNotify,
}

func init() {
	notifyCmd.Flags().StringVar(&notifyFlags.root, "root", ".",
		"Project root served by the daemon")
	notifyCmd.Flags().StringVar(&notifyFlags.socket, "socket", "",
		"Custom socket path")
	notifyCmd.Flags().BoolVar(&notifyFlags.flush, "flush", false,
		"Flush pending changes after notifying")

	rootCmd.AddCommand(notifyCmd)
}

func runNotify(cmd *cobra.Command, args []string) error {
	params, err := notifyParams(args)
	if err != nil {
		return err
	}

	var paths *daemon.Paths
	if notifyFlags.socket != "" {
		paths = daemon.SocketPaths(notifyFlags.socket)
	} else {
		root, err := resolveRoot([]string{notifyFlags.root})
		if err != nil {
			return err
		}
		paths = daemon.WorkspacePaths(root)
	}

	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	res, err := client.Notify(ctx, params)
	if err != nil {
		return err
	}
	if notifyFlags.flush {
		if _, err := client.Flush(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "flushed")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d pending\n", res.Pending)
	return nil
}

// notifyParams validates CLI arguments into wire params with absolute paths.
func notifyParams(args []string) (*daemon.NotifyParams, error) {
	kind, err := watch.ParseChangeKind(args[0])
	if err != nil {
		return nil, err
	}

	path, err := filepath.Abs(args[1])
	if err != nil {
		return nil, err
	}
	params := &daemon.NotifyParams{Kind: kind.String(), Path: path}

	if kind == watch.Renamed {
		if len(args) < 3 {
			return nil, fmt.Errorf("renamed requires the old path")
		}
		if params.OldPath, err = filepath.Abs(args[2]); err != nil {
			return nil, err
		}
	} else if len(args) > 2 {
		return nil, fmt.Errorf("old path is only valid for renamed")
	}
	return params, nil
}
