// Package pidfile keeps a single fmcamera daemon per user and lets the
// control commands find it.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// RunningError reports the daemon that already holds the file
type RunningError struct {
	PID int
}

func (e *RunningError) Error() string {
	return fmt.Sprintf("another instance is already running (PID %d)", e.PID)
}

// PIDFile is a held PID file
type PIDFile struct {
	path string
	pid  int
}

// Acquire writes the current PID to path. A file left by a dead process is
// replaced; one held by a live process yields a *RunningError.
func Acquire(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create PID directory: %w", err)
	}

	if pid, running := Lookup(path); running {
		return nil, &RunningError{PID: pid}
	} else if pid != 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale PID file: %w", err)
		}
	}

	current := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(current)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return &PIDFile{path: path, pid: current}, nil
}

// PID is the process that holds the file
func (p *PIDFile) PID() int { return p.pid }

// Path is where the file lives
func (p *PIDFile) Path() string { return p.path }

// Remove deletes the file if it still names this process
func (p *PIDFile) Remove() error {
	if p == nil {
		return nil
	}
	if pid := readPID(p.path); pid == p.pid {
		return os.Remove(p.path)
	}
	return nil
}

// Lookup reads path and reports whether its process is alive. pid is 0
// when the file is missing or unreadable.
func Lookup(path string) (pid int, running bool) {
	pid = readPID(path)
	if pid <= 0 {
		return 0, false
	}
	return pid, isProcessRunning(pid)
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// isProcessRunning probes pid with signal 0
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// exists, owned by someone else
		return true
	default:
		return false
	}
}

// DefaultPath returns ~/.cache/fmcamera/<name>.pid
func DefaultPath(name string) string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "fmcamera", name+".pid")
}
