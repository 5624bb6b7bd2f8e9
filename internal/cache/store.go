package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/gitsee/internal/flock"
	"github.com/starford/gitsee/internal/ledger"
)

// Store persists the cache document at a fixed path. Every
// read-modify-write cycle runs under the path-scoped file lock; plain
// reads go lock-free and rely on the atomic rename performed by writers.
type Store struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
	max         int
}

// NewStore creates a store for the document at path. The lock file lives
// next to the document.
func NewStore(path string) *Store {
	return &Store{
		path:        path,
		lockPath:    path + ".lock",
		lockTimeout: flock.DefaultTimeout,
		max:         MaxActivities,
	}
}

// Path returns the document's file path.
func (s *Store) Path() string {
	return s.path
}

// Init writes the empty default document if none exists yet.
func (s *Store) Init() error {
	return flock.WithLock(s.lockPath, s.lockTimeout, func() error {
		if _, err := os.Stat(s.path); err == nil {
			return nil
		}
		return s.write(NewDocument())
	})
}

// Load reads the current document. A missing or corrupt file yields the
// empty default shape rather than an error; the next write or
// reconciliation cycle re-establishes it on disk.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDocument(), nil
		}
		return nil, fmt.Errorf("cache: read document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return NewDocument(), nil
	}
	if doc.Activities == nil {
		doc.Activities = []ledger.ActivityRecord{}
	}
	return &doc, nil
}

// Insert prepends one freshly ledgered record to the recent window,
// truncates to the cap, and installs the given statistics. The whole
// read-modify-write cycle holds the file lock.
func (s *Store) Insert(rec ledger.ActivityRecord, stats Statistics) error {
	return flock.WithLock(s.lockPath, s.lockTimeout, func() error {
		doc, err := s.Load()
		if err != nil {
			return err
		}

		doc.Activities = append([]ledger.ActivityRecord{rec}, doc.Activities...)
		if len(doc.Activities) > s.max {
			doc.Activities = doc.Activities[:s.max]
		}
		doc.Statistics = stats
		doc.LastUpdated = time.Now().UTC()
		doc.Version = SchemaVersion

		return s.write(doc)
	})
}

// Rebuild replaces the whole document from an authoritative ledger scan.
// records must be ordered most recently inserted first; only the first
// cap-many are kept.
func (s *Store) Rebuild(records []ledger.ActivityRecord, stats Statistics) error {
	if len(records) > s.max {
		records = records[:s.max]
	}
	doc := &Document{
		Version:     SchemaVersion,
		LastUpdated: time.Now().UTC(),
		Activities:  records,
		Statistics:  stats,
	}
	if doc.Activities == nil {
		doc.Activities = []ledger.ActivityRecord{}
	}

	return flock.WithLock(s.lockPath, s.lockTimeout, func() error {
		return s.write(doc)
	})
}

// Activities returns up to limit records from the recent window
// (all of it when limit <= 0).
func (s *Store) Activities(limit int) ([]ledger.ActivityRecord, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(doc.Activities) > limit {
		return doc.Activities[:limit], nil
	}
	return doc.Activities, nil
}

// Statistics returns the cached summary block.
func (s *Store) Statistics() (Statistics, error) {
	doc, err := s.Load()
	if err != nil {
		return Statistics{}, err
	}
	return doc.Statistics, nil
}

// write marshals doc and atomically replaces the document file.
func (s *Store) write(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal document: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("cache: write document: %w", err)
	}
	return nil
}

// writeFileAtomic writes content via tmp file + fsync + rename so readers
// never observe a torn document.
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".gitsee-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	success = true
	return nil
}
