package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/gitsee/internal/apperr"
	"github.com/starford/gitsee/internal/checksum"
)

// DefaultRetention is how many backup snapshots are kept.
const DefaultRetention = 7

const (
	snapshotPrefix = "records_"
	snapshotSuffix = ".json"
	snapshotStamp  = "20060102_150405"
)

// Snapshots manages timestamped, read-only backup copies of the cache
// document. Names sort by timestamp, so lexicographic order is
// chronological. Two snapshots within the same second collide and the
// later write wins; reconciliation intervals make that acceptable.
type Snapshots struct {
	source string // live cache document path
	dir    string
	retain int
}

// NewSnapshots manages backups of the document at source, stored in dir.
func NewSnapshots(source, dir string, retain int) *Snapshots {
	if retain <= 0 {
		retain = DefaultRetention
	}
	return &Snapshots{source: source, dir: dir, retain: retain}
}

// Create copies the current cache document into a new timestamped backup
// file and returns its path.
func (s *Snapshots) Create() (string, error) {
	data, err := os.ReadFile(s.source)
	if err != nil {
		return "", fmt.Errorf("snapshot: read source: %w", err)
	}

	name := snapshotPrefix + time.Now().UTC().Format(snapshotStamp) + snapshotSuffix
	path := filepath.Join(s.dir, name)
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("snapshot: write %s: %w", name, err)
	}
	return path, nil
}

// List returns snapshot file names, newest first.
func (s *Snapshots) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), snapshotPrefix) && strings.HasSuffix(e.Name(), snapshotSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Prune deletes all snapshots beyond the retention count, oldest first.
func (s *Snapshots) Prune() error {
	names, err := s.List()
	if err != nil {
		return err
	}
	for _, name := range names[min(len(names), s.retain):] {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("snapshot: prune %s: %w", name, err)
		}
	}
	return nil
}

// Restore copies the named snapshot (or the most recent when name is
// empty) over the live cache document and verifies the copy by checksum.
// The ledger is untouched; the next reconciliation converges the restored
// cache back toward ledger truth.
func (s *Snapshots) Restore(name string) error {
	if name == "" {
		names, err := s.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return apperr.ErrSnapshotNotFound
		}
		name = names[0]
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", apperr.ErrSnapshotNotFound, name)
		}
		return fmt.Errorf("snapshot: read %s: %w", name, err)
	}

	if err := writeFileAtomic(s.source, data); err != nil {
		return fmt.Errorf("snapshot: restore %s: %w", name, err)
	}

	restored, err := os.ReadFile(s.source)
	if err != nil {
		return fmt.Errorf("snapshot: verify restore: %w", err)
	}
	if !checksum.Equal(restored, data) {
		return fmt.Errorf("snapshot: restore verification mismatch for %s: got %s, want %s",
			name, checksum.Sum(restored), checksum.Sum(data))
	}
	return nil
}
