package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/daemon"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/engine"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/watch"
	"github.com/albertocavalcante/slnsync/internal/log"
	"github.com/spf13/cobra"
)

var daemonStartFlags struct {
	foreground bool
	logFile    string
	noInit     bool
}

var daemonStartCmd = &cobra.Command{
	Use:   "start [path]",
	Short: "Start the daemon process",
	Long: `Start the slnsync daemon for the project at path (default: current
directory).

By default, the daemon runs in the background and starts syncing right
away. Use --no-init to wait for a client to send sync/initialize, and
--foreground to run in the foreground for debugging.

Examples:
  slnsync daemon start              # Start in background
  slnsync daemon start --foreground # Run in foreground (Ctrl+C to stop)
  slnsync daemon start --socket /tmp/game.sock`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDaemonStart,
}

func init() {
	daemonStartCmd.Flags().BoolVar(&daemonStartFlags.foreground, "foreground", false,
		"Run in foreground (don't daemonize)")
	daemonStartCmd.Flags().StringVar(&daemonStartFlags.logFile, "log", "",
		"Log file path (default: <project>/.slnsync/daemon.log)")
	daemonStartCmd.Flags().BoolVar(&daemonStartFlags.noInit, "no-init", false,
		"Do not start syncing until a client initializes")

	daemonCmd.AddCommand(daemonStartCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	root, paths, err := daemonPaths(args)
	if err != nil {
		return err
	}

	status := daemon.GetStatus(paths)
	if status.Running {
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon already running (PID: %d)\n", status.PID)
		return nil
	}

	if status.Stale {
		if _, err := daemon.CleanupStale(paths); err != nil {
			log.Warn("failed to clean up stale files", "error", err)
		}
	}

	if daemonStartFlags.foreground {
		return runDaemonForeground(cmd, root, paths)
	}
	return runDaemonBackground(cmd, root, paths)
}

// runDaemonForeground runs the daemon in the foreground.
func runDaemonForeground(cmd *cobra.Command, root string, paths *daemon.Paths) error {
	if daemonStartFlags.logFile != "" {
		f, err := log.OpenFile(daemonStartFlags.logFile)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		if err := log.Setup(log.Options{
			Verbosity: globalFlags.verbosity,
			Format:    globalFlags.logFormat,
			Output:    f,
		}); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Starting daemon in foreground (PID: %d)\n", os.Getpid())
	fmt.Fprintf(w, "Project: %s\n", root)
	fmt.Fprintf(w, "Socket: %s\n", paths.Socket)
	fmt.Fprintln(w, "Press Ctrl+C to stop")
	fmt.Fprintln(w)

	console := consoleNotifier(watch.NewLogger(watch.LoggerConfig{Writer: w}), root)
	server, err := newDaemonServer(root, paths, !daemonStartFlags.noInit, console)
	if err != nil {
		return err
	}

	// Run server (blocks until shutdown)
	return server.Start(context.Background())
}

// newDaemonServer wires an engine to a server. The handler is created
// first so it can receive engine events; extra notifiers see the same events.
func newDaemonServer(root string, paths *daemon.Paths, initialize bool, extra ...engine.Notifier) (*daemon.Server, error) {
	handler := daemon.NewHandler(nil)
	eng, err := engine.New(engine.Options{
		Root:     root,
		Config:   loadConfig(root),
		Notifier: append(engine.Multi{handler}, extra...),
	})
	if err != nil {
		return nil, err
	}
	handler.SetEngine(eng)

	return daemon.NewServer(daemon.ServerConfig{
		Paths:      paths,
		Version:    Version,
		Handler:    handler,
		Initialize: initialize,
	}), nil
}

// runDaemonBackground starts the daemon in a background process.
func runDaemonBackground(cmd *cobra.Command, root string, paths *daemon.Paths) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Build command args for foreground mode
	args := []string{"daemon", "start", root, "--foreground",
		"--verbosity", strconv.Itoa(globalFlags.verbosity),
		"--log-format", globalFlags.logFormat}
	if daemonFlags.socket != "" {
		args = append(args, "--socket", daemonFlags.socket)
	}
	if daemonStartFlags.noInit {
		args = append(args, "--no-init")
	}

	if err := paths.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create daemon directory: %w", err)
	}

	logPath := paths.Log
	if daemonStartFlags.logFile != "" {
		logPath = daemonStartFlags.logFile
	}

	logFile, err := log.OpenFile(logPath)
	if err != nil {
		return err
	}

	child := exec.Command(executable, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.Stdin = nil
	child.Dir = root

	// Detach from parent process
	child.SysProcAttr = daemonSysProcAttr()

	if err := child.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Close log file in parent (child keeps its own handle)
	_ = logFile.Close()
	_ = child.Process.Release()

	if !waitForStart(paths, 5*time.Second) {
		return fmt.Errorf("daemon failed to start (check %s for details)", logPath)
	}

	status := daemon.GetStatus(paths)
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Daemon started (PID: %d)\n", status.PID)
	fmt.Fprintf(w, "Socket: %s\n", paths.Socket)
	fmt.Fprintf(w, "Log: %s\n", logPath)
	return nil
}

// waitForStart polls until the daemon answers on its socket.
func waitForStart(paths *daemon.Paths, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if daemon.IsDaemonRunningAt(paths) {
			if client, err := daemon.Connect(paths.Socket); err == nil {
				_ = client.Close()
				return true
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
