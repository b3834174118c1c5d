package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// pidFilePermissions matches the catalog database's file permissions.
const pidFilePermissions = 0o644

// pidDirPermissions matches the config directory's permissions.
const pidDirPermissions = 0o755

// writePIDFile writes the current process ID to path under an exclusive
// flock, so a second `sync --watch` against the same library refuses to
// start instead of racing the first one's Catalog writes. Ported close to
// 1:1 from the teacher's pidfile.go.
func writePIDFile(path string) (cleanup func(), err error) {
	if path == "" {
		return nil, fmt.Errorf("PID file path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, pidDirPermissions); err != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another sync --watch is already running against this library (could not lock %s)", path)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating PID file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing PID file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("syncing PID file: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// watchPIDPath returns the fixed PID file location for `sync --watch`
// against the given library root, matching the path runWatch writes to.
func watchPIDPath(root string) string {
	return filepath.Join(root, ".libsync.pid")
}

// sendSIGHUP signals a running `sync --watch` daemon to re-read pause
// state from the Catalog. Non-fatal for callers: no daemon running is a
// normal condition, not an error worth surfacing loudly.
func sendSIGHUP(pidPath string) error {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no running daemon found (no PID file at %s)", pidPath)
		}

		return fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("invalid PID in %s: %w", pidPath, err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("daemon (PID %d) is not running (stale PID file removed)", pid)
	}

	return proc.Signal(syscall.SIGHUP)
}
