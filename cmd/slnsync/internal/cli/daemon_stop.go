package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/daemon"
	"github.com/spf13/cobra"
)

var daemonStopFlags struct {
	force bool
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop [path]",
	Short: "Stop the running daemon",
	Long: `Stop the slnsync daemon.

By default, sends a graceful shutdown request via the socket; pending
changes are flushed before the daemon exits. If the daemon doesn't exit
within 5 seconds, use --force to send SIGKILL.

Examples:
  slnsync daemon stop         # Graceful shutdown
  slnsync daemon stop --force # Force kill if graceful fails`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDaemonStop,
}

func init() {
	daemonStopCmd.Flags().BoolVar(&daemonStopFlags.force, "force", false,
		"Force kill if graceful shutdown fails")

	daemonCmd.AddCommand(daemonStopCmd)
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	_, paths, err := daemonPaths(args)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	status := daemon.GetStatus(paths)
	if status.Stale {
		fmt.Fprintln(w, "Daemon not running (cleaning up stale files)")
		_ = paths.Release()
		return nil
	}
	if !status.Running {
		fmt.Fprintln(w, "Daemon not running")
		return nil
	}

	fmt.Fprintf(w, "Stopping daemon (PID: %d)...\n", status.PID)

	if err := tryGracefulShutdown(cmd.Context(), paths); err == nil {
		if waitForExit(status.PID, 5*time.Second) {
			fmt.Fprintln(w, "Daemon stopped")
			return nil
		}
	}

	if !daemonStopFlags.force {
		fmt.Fprintln(w, "Graceful shutdown timed out. Use --force to kill.")
		return fmt.Errorf("shutdown timed out")
	}

	fmt.Fprintln(w, "Forcing shutdown...")
	if err := daemon.KillProcess(status.PID); err != nil {
		// Process might have exited between checks
		if !daemon.IsProcessRunning(status.PID) {
			fmt.Fprintln(w, "Daemon stopped")
			_ = paths.Release()
			return nil
		}
		return fmt.Errorf("failed to kill daemon: %w", err)
	}

	if waitForExit(status.PID, 2*time.Second) {
		fmt.Fprintln(w, "Daemon stopped (forced)")
		_ = paths.Release()
		return nil
	}
	return fmt.Errorf("failed to stop daemon")
}

// tryGracefulShutdown attempts to stop the daemon via RPC.
func tryGracefulShutdown(ctx context.Context, paths *daemon.Paths) error {
	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = client.Shutdown(ctx)
	return err
}

// waitForExit waits for a process to exit.
func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !daemon.IsProcessRunning(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
