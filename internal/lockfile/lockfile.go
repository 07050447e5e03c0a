package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Lock represents a single-instance lock held by one netwatch process.
// Only one capture/collection session may run against a given storage
// path at a time, since internal/store opens that path with a single
// write connection.
type Lock struct {
	path string
	file *os.File
}

// Info is the PID and owner label recorded in a lock file. Owner
// identifies which subcommand holds the lock (e.g. "live" or
// "packets:eth0"), so a contended-lock error names what's running
// instead of just a bare PID.
type Info struct {
	PID   int
	Owner string
}

// Acquire attempts to acquire an exclusive lock on lockPath, tagging
// it with owner for diagnostics. Returns an error describing the
// current holder if another netwatch instance already holds the lock.
func Acquire(lockPath, owner string) (*Lock, error) {
	dir := filepath.Dir(lockPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if err == syscall.EWOULDBLOCK {
			if info, readErr := ReadInfo(lockPath); readErr == nil && info.PID != 0 {
				return nil, fmt.Errorf("another netwatch instance is already running: pid=%d owner=%q (lock held at %s)", info.PID, info.Owner, lockPath)
			}
			return nil, fmt.Errorf("another instance is already running (lock held at %s)", lockPath)
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if err := writeInfo(file, Info{PID: os.Getpid(), Owner: owner}); err != nil {
		file.Close()
		return nil, err
	}

	return &Lock{
		path: lockPath,
		file: file,
	}, nil
}

func writeInfo(file *os.File, info Info) error {
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate lock file: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(file, "%d\n%s\n", info.PID, info.Owner); err != nil {
		return fmt.Errorf("failed to write lock info: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync lock file: %w", err)
	}
	return nil
}

// Release releases the lock
// Note: Does NOT remove the lock file to avoid race conditions where a second
// process could create a new file (different inode) between LOCK_UN and os.Remove,
// causing both processes to hold locks on different inodes.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close lock file: %w", err)
	}
	l.file = nil

	return nil
}

// Path returns the path to the lock file
func (l *Lock) Path() string {
	return l.path
}

// ReadInfo reads the PID and owner recorded in a lock file. Returns a
// zero Info if the file doesn't exist.
func ReadInfo(lockPath string) (Info, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, nil
		}
		return Info{}, fmt.Errorf("failed to read lock file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return Info{}, fmt.Errorf("lock file is empty")
	}

	lines := strings.SplitN(content, "\n", 2)
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Info{}, fmt.Errorf("failed to parse PID from lock file: %w", err)
	}

	owner := ""
	if len(lines) == 2 {
		owner = strings.TrimSpace(lines[1])
	}
	return Info{PID: pid, Owner: owner}, nil
}

// IsProcessRunning checks if a process with the given PID is running
func IsProcessRunning(pid int) bool {
	// Send signal 0 to check if process exists
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send a signal
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// Stale reports whether lockPath names a PID that is no longer
// running. flock itself is released by the kernel when its owning
// process dies, so Acquire never needs this to reclaim a lock; it
// exists purely so a caller can log a clearer diagnostic when a lock
// file's recorded owner looks abandoned (e.g. after a hard host crash
// left the file behind on a filesystem that doesn't enforce flock).
func Stale(lockPath string) bool {
	info, err := ReadInfo(lockPath)
	if err != nil || info.PID == 0 {
		return false
	}
	return !IsProcessRunning(info.PID)
}

// GetLockPath returns the default lock file path based on database path
func GetLockPath(dbPath string) string {
	return dbPath + ".lock"
}
