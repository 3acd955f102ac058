package cli

import (
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/daemon"
	"github.com/spf13/cobra"
)

// daemonFlags are shared by every daemon subcommand.
var daemonFlags struct {
	socket string
}

// daemonCmd is the parent command for daemon operations.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the slnsync daemon",
	Long: `Manage the slnsync background daemon for a project.

The daemon owns one sync engine and serves JSON-RPC over a Unix socket in
the project's .slnsync directory. Editors and tools connect to it to push
file notifications, trigger generation and receive sync/event
notifications whenever a project file is written.

Commands:
  start   - Start the daemon process
  stop    - Stop the running daemon
  status  - Show daemon status

Examples:
  slnsync daemon start              # Start daemon in background
  slnsync daemon start --foreground # Run daemon in foreground (for debugging)
  slnsync daemon status             # Check if daemon is running
  slnsync daemon stop               # Stop the daemon`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	daemonCmd.PersistentFlags().StringVar(&daemonFlags.socket, "socket", "",
		"Custom socket path (default: <project>/.slnsync/daemon.sock)")

	rootCmd.AddCommand(daemonCmd)
}

// daemonPaths returns the daemon paths for the project in args, honoring
// --socket.
func daemonPaths(args []string) (string, *daemon.Paths, error) {
	root, err := resolveRoot(args)
	if err != nil {
		return "", nil, err
	}
	if daemonFlags.socket != "" {
		return root, daemon.SocketPaths(daemonFlags.socket), nil
	}
	return root, daemon.WorkspacePaths(root), nil
}
