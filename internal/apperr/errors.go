package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrCacheSync marks a failed cache update after a successful ledger
	// write. The ledger id is still valid; the cache heals at the next
	// reconciliation cycle.
	ErrCacheSync = errors.New("cache sync failed")

	// ErrLockTimeout is returned when the cache file lock could not be
	// acquired within the configured budget.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrSnapshotNotFound is returned when a restore is requested but no
	// matching backup snapshot exists.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
