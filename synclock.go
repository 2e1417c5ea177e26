package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// syncLockName lives next to the catalog database, so two catalogs can
// sync side by side.
const syncLockName = "mediavault.sync.lock"

// errSyncRunning means another process holds the sync lock of the catalog.
var errSyncRunning = errors.New("another mediavault sync is already running")

// syncLock is the exclusive advisory lock a syncing process holds on its
// catalog. The file carries the holder's PID so that a second `sync` can
// hand its request to the running daemon.
type syncLock struct {
	path string
	file *os.File
}

func syncLockPath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), syncLockName)
}

// acquireSyncLock takes the sync lock of the catalog at dbPath without
// blocking. A held lock yields an error wrapping errSyncRunning.
func acquireSyncLock(dbPath string) (*syncLock, error) {
	if dbPath == "" {
		return nil, errors.New("sync lock: catalog database path is empty")
	}

	path := syncLockPath(dbPath)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sync lock: creating directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sync lock: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (lock %s)", errSyncRunning, path)
		}

		return nil, fmt.Errorf("sync lock: %w", err)
	}

	if err := recordHolder(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync lock: %w", err)
	}

	return &syncLock{path: path, file: f}, nil
}

func recordHolder(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}

	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return err
	}

	return f.Sync()
}

// Release removes the lock file and drops the lock.
func (l *syncLock) Release() {
	os.Remove(l.path)
	l.file.Close()
}

// lockHolder returns the PID recorded in the lock file at path.
func lockHolder(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("sync lock %s holds no valid PID", path)
	}

	return pid, nil
}

// requestForcedSync asks the daemon holding the sync lock of dbPath for an
// immediate forced cycle and returns its PID. A lock file left by a dead
// process is removed.
func requestForcedSync(dbPath string) (int, error) {
	path := syncLockPath(dbPath)

	pid, err := lockHolder(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("no running sync daemon (no lock at %s)", path)
	}

	if err != nil {
		return 0, err
	}

	if err := syscall.Kill(pid, 0); err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("sync daemon (PID %d) is not running; removed stale lock", pid)
	}

	if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
		return 0, fmt.Errorf("signalling sync daemon (PID %d): %w", pid, err)
	}

	return pid, nil
}

// lockOrHandOff takes the sync lock of dbPath. When a daemon already holds
// it, the request is handed to the daemon instead and the returned lock is
// nil.
func lockOrHandOff(dbPath string) (lock *syncLock, daemonPID int, err error) {
	lock, err = acquireSyncLock(dbPath)
	if !errors.Is(err, errSyncRunning) {
		return lock, 0, err
	}

	daemonPID, err = requestForcedSync(dbPath)
	if err != nil {
		return nil, 0, err
	}

	return nil, daemonPID, nil
}
