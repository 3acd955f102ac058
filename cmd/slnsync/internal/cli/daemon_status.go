package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/daemon"
	"github.com/spf13/cobra"
)

var daemonStatusFlags struct {
	jsonOutput bool
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show daemon status",
	Long: `Show the status of the slnsync daemon.

Displays whether the daemon is running, the project it syncs, its PID,
socket path, uptime and the sync engine counters. The project and engine
state come from the daemon's lease file, so they are shown even when the
daemon does not answer.

Examples:
  slnsync daemon status        # Show status as text
  slnsync daemon status --json # Show status as JSON`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDaemonStatus,
}

func init() {
	daemonStatusCmd.Flags().BoolVar(&daemonStatusFlags.jsonOutput, "json", false,
		"Output as JSON")

	daemonCmd.AddCommand(daemonStatusCmd)
}

// DaemonStatusOutput is the JSON output format for daemon status.
type DaemonStatusOutput struct {
	Running    bool                 `json:"running"`
	PID        int                  `json:"pid,omitempty"`
	SocketPath string               `json:"socket_path"`
	Lease      *daemon.Lease        `json:"lease,omitempty"`
	Version    string               `json:"version,omitempty"`
	Uptime     string               `json:"uptime,omitempty"`
	StartTime  string               `json:"start_time,omitempty"`
	Sync       *daemon.StatusResult `json:"sync,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	_, paths, err := daemonPaths(args)
	if err != nil {
		return err
	}

	status := daemon.GetStatus(paths)
	output := DaemonStatusOutput{
		Running:    status.Running,
		PID:        status.PID,
		SocketPath: paths.Socket,
		Lease:      status.Lease,
	}

	if status.Running {
		if err := enrichStatusFromDaemon(cmd.Context(), paths, &output); err != nil {
			output.Error = err.Error()
		}
	} else if status.Stale {
		output.Error = "stale lease file (daemon crashed)"
	}

	if daemonStatusFlags.jsonOutput {
		return outputJSON(cmd.OutOrStdout(), output)
	}
	outputDaemonStatusText(cmd.OutOrStdout(), output, status)
	return nil
}

// enrichStatusFromDaemon connects to the daemon to get detailed status.
func enrichStatusFromDaemon(ctx context.Context, paths *daemon.Paths, output *DaemonStatusOutput) error {
	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ping, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	output.Version = ping.Version
	output.Uptime = ping.Uptime
	output.StartTime = ping.StartTime

	sync, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("sync status failed: %w", err)
	}
	output.Sync = sync
	return nil
}

// outputDaemonStatusText outputs status as human-readable text.
func outputDaemonStatusText(w io.Writer, output DaemonStatusOutput, status *daemon.DaemonStatus) {
	if !output.Running {
		fmt.Fprintln(w, "Daemon: not running")
		if status.Stale {
			fmt.Fprintf(w, "  (stale lease for PID %d, project %s)\n", status.PID, status.Lease.Root)
			fmt.Fprintln(w, "  Run 'slnsync daemon start' to start the daemon")
		}
		return
	}

	fmt.Fprintf(w, "Daemon: running (PID: %d)\n", output.PID)
	fmt.Fprintf(w, "Socket: %s\n", output.SocketPath)
	if output.Version != "" {
		fmt.Fprintf(w, "Version: %s\n", output.Version)
	}
	if output.Uptime != "" {
		fmt.Fprintf(w, "Uptime: %s\n", formatUptime(output.Uptime))
	}
	if l := output.Lease; l != nil && output.Sync == nil {
		fmt.Fprintf(w, "Project: %s (initialized: %t, %d modules as of %s)\n",
			l.Root, l.Initialized, l.Modules, l.Updated.Format(time.RFC3339))
	}

	if s := output.Sync; s != nil {
		if s.Initialized {
			fmt.Fprintf(w, "Syncing: yes (%s)\n", s.Root)
			fmt.Fprintf(w, "  Tracked files: %d\n", s.Tracked)
			fmt.Fprintf(w, "  Modules: %d\n", s.Modules)
			fmt.Fprintf(w, "  Pending changes: %d\n", s.Pending)
			fmt.Fprintf(w, "  Flushes: %d (full generations: %d, project renders: %d)\n",
				s.Flushes, s.FullGenerations, s.DescriptorRenders)
			fmt.Fprintf(w, "  Suppressed no-op saves: %d\n", s.Suppressed)
		} else {
			fmt.Fprintln(w, "Syncing: no")
		}
	}

	if output.Error != "" {
		fmt.Fprintf(w, "Warning: %s\n", output.Error)
	}
}

// formatUptime formats the uptime string for display.
func formatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}

	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
