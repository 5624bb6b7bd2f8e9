// Package flock provides a cross-process advisory file lock used to
// serialize read-modify-write cycles against the activity cache document.
package flock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/starford/gitsee/internal/apperr"
)

// DefaultTimeout is the default lock acquisition budget.
const DefaultTimeout = 10 * time.Second

const (
	minBackoff = 10 * time.Millisecond
	maxBackoff = 500 * time.Millisecond
)

// WithLock acquires an exclusive flock on path, runs fn, and releases the
// lock on every exit path. If the lock cannot be acquired within timeout,
// it returns apperr.ErrLockTimeout without running fn.
//
// The lock is scoped to path: callers guarding different files do not
// contend. flock(2) locks follow the open file description, so the guard
// holds across processes as well as goroutines.
func WithLock(path string, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("flock: create lock dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("flock: open lock file: %w", err)
	}
	defer f.Close()

	if err := acquire(f, timeout); err != nil {
		return err
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()

	return fn()
}

// acquire polls for the lock with backoff until the deadline.
func acquire(f *os.File, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	backoff := minBackoff

	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			return fmt.Errorf("flock: %w", err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s: %s", apperr.ErrLockTimeout, timeout, f.Name())
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
