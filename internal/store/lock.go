package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockFile is the advisory lock file created in the index directory.
const LockFile = ".lock"

const lockRetryDelay = 50 * time.Millisecond

// DirLock is a cross-process advisory lock on an index directory.
// Saves take it exclusively and loads take it shared, so another docrag
// process never reads a half-written set of artifacts.
type DirLock struct {
	path  string
	flock *flock.Flock
}

// NewDirLock creates a lock for dir. The lock file is <dir>/.lock.
func NewDirLock(dir string) *DirLock {
	path := filepath.Join(dir, LockFile)
	return &DirLock{path: path, flock: flock.New(path)}
}

// Lock blocks until the exclusive lock is held or ctx is done.
func (l *DirLock) Lock(ctx context.Context) error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	ok, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to acquire lock on %s", l.path)
	}
	return nil
}

// RLock blocks until a shared lock is held or ctx is done.
func (l *DirLock) RLock(ctx context.Context) error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	ok, err := l.flock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire shared lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to acquire shared lock on %s", l.path)
	}
	return nil
}

// Unlock releases the lock. It is safe to call on an unlocked DirLock.
func (l *DirLock) Unlock() error {
	if !l.flock.Locked() && !l.flock.RLocked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}

func (l *DirLock) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	return nil
}
