package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/artifact"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/incremental"
)

// Daemon file names inside the state directory.
const (
	DefaultSocketName = "daemon.sock"
	DefaultLeaseName  = "daemon.json"
	DefaultLogName    = "daemon.log"
)

// maxSocketPath is the portable limit for sun_path (104 on macOS).
const maxSocketPath = 100

// Paths locates the files of one daemon.
type Paths struct {
	Dir    string
	Socket string
	Lease  string
	Log    string
}

// WorkspacePaths keeps daemon files next to the sync state of root. The
// socket moves to the temp directory, named by a hash of the root, when the
// workspace path would exceed the socket path limit.
func WorkspacePaths(root string) *Paths {
	dir := filepath.Join(root, incremental.StateDir)
	socket := filepath.Join(dir, DefaultSocketName)
	if len(socket) > maxSocketPath {
		socket = filepath.Join(os.TempDir(), "slnsync-"+incremental.HashBytes([]byte(root))+".sock")
	}
	return &Paths{
		Dir:    dir,
		Socket: socket,
		Lease:  filepath.Join(dir, DefaultLeaseName),
		Log:    filepath.Join(dir, DefaultLogName),
	}
}

// SocketPaths derives daemon file paths from a custom socket path.
func SocketPaths(socket string) *Paths {
	return &Paths{
		Dir:    filepath.Dir(socket),
		Socket: socket,
		Lease:  socket + ".json",
		Log:    socket + ".log",
	}
}

// EnsureDir creates the daemon directory.
func (p *Paths) EnsureDir() error {
	return os.MkdirAll(p.Dir, 0o700)
}

// Lease is published by a running daemon. It names the process that owns
// the socket and mirrors the engine lifecycle, so clients can see which
// project a daemon syncs without connecting to it.
type Lease struct {
	PID         int       `json:"pid"`
	Root        string    `json:"root"`
	Socket      string    `json:"socket"`
	Version     string    `json:"version"`
	Started     time.Time `json:"started"`
	Initialized bool      `json:"initialized"`
	Modules     int       `json:"modules"`
	Updated     time.Time `json:"updated"`
}

// WriteLease replaces the lease file atomically.
func (p *Paths) WriteLease(l *Lease) error {
	if err := p.EnsureDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lease: %w", err)
	}
	_, err = artifact.NewWriter(false).Write(p.Lease, data)
	return err
}

// ReadLease reads the lease file.
func (p *Paths) ReadLease() (*Lease, error) {
	data, err := os.ReadFile(p.Lease)
	if err != nil {
		return nil, err
	}
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("invalid lease file: %w", err)
	}
	if l.PID <= 0 {
		return nil, fmt.Errorf("invalid lease file: pid %d", l.PID)
	}
	return &l, nil
}

// Release removes the lease and the socket. Missing files are fine.
func (p *Paths) Release() error {
	var errs []error
	for _, path := range []string{p.Lease, p.Socket} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsProcessRunning reports whether pid names a live process.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix; signal 0 probes for existence.
	return process.Signal(syscall.Signal(0)) == nil
}

// DaemonStatus is what the files on disk say about a daemon.
type DaemonStatus struct {
	Running    bool
	PID        int
	SocketPath string
	// Stale is set when a lease survives its process.
	Stale bool
	// Lease is the last published lease, if any.
	Lease *Lease
}

// GetStatus inspects the lease at paths. A nil paths is never running.
func GetStatus(paths *Paths) *DaemonStatus {
	if paths == nil {
		return &DaemonStatus{}
	}
	status := &DaemonStatus{SocketPath: paths.Socket}

	lease, err := paths.ReadLease()
	if err != nil {
		return status
	}
	status.Lease = lease
	status.PID = lease.PID
	status.Running = IsProcessRunning(lease.PID)
	status.Stale = !status.Running
	return status
}

// CleanupStale removes the files of a daemon that is no longer running:
// a dead lease together with its socket, or a socket nobody leased.
// It reports whether anything was removed.
func CleanupStale(paths *Paths) (bool, error) {
	if paths == nil {
		return false, nil
	}
	status := GetStatus(paths)
	if status.Running {
		return false, nil
	}
	if !status.Stale {
		if _, err := os.Stat(paths.Socket); err != nil {
			return false, nil
		}
	}
	if err := paths.Release(); err != nil {
		return false, fmt.Errorf("failed to remove stale daemon files: %w", err)
	}
	return true, nil
}

// KillProcess sends SIGKILL to pid.
func KillProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	return process.Signal(syscall.SIGKILL)
}
