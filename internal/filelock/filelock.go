// Package filelock provides OS-level advisory file locking and atomic
// file writes used by the Source-Tree Manager for marker files. It has
// no connection to the coordination store's own FileLock records (§5:
// "Locks are held in CS only; they never acquire OS-level file locks");
// this package exists purely for filesystem-level write atomicity.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock wraps github.com/gofrs/flock for a single path.
type FileLock struct {
	path string
	fl   *flock.Flock
}

// NewFileLock returns a lock handle for path. No filesystem operation
// happens until Lock/TryLock is called.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, fl: flock.New(path)}
}

// Lock blocks until the lock is acquired.
func (l *FileLock) Lock() error {
	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", l.path, err)
	}
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *FileLock) TryLock() (bool, error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("try-locking %s: %w", l.path, err)
	}
	return ok, nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return nil
}

// AtomicWrite writes data to path atomically: it creates a temp file in
// the same directory, writes and syncs it, then renames it over path.
// This avoids ever leaving a partially-written marker or schema file
// observable to a concurrent reader.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if _, statErr := os.Stat(tmpPath); statErr == nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("chmod temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// LockAndWrite acquires path+".lock" and performs an AtomicWrite of path
// while holding it, so concurrent writers (e.g. two extract calls) never
// interleave.
func LockAndWrite(path string, data []byte) error {
	lock := NewFileLock(path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()
	return AtomicWrite(path, data)
}
