// Package testutil provides shared test helpers for setting up ledgers
// and cache stores.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/gitsee/internal/cache"
	"github.com/starford/gitsee/internal/ledger"
)

// TestLedger creates a temporary SQLite ledger that is automatically cleaned up.
func TestLedger(t *testing.T) *ledger.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "gitsee-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := ledger.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCacheStore creates an initialized cache store in a temp directory.
func TestCacheStore(t *testing.T) *cache.Store {
	t.Helper()
	dir := t.TempDir()
	cs := cache.NewStore(filepath.Join(dir, "records.json"))
	if err := cs.Init(); err != nil {
		t.Fatal(err)
	}
	return cs
}
