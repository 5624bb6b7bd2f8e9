package activity

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/gitsee/internal/apperr"
	"github.com/starford/gitsee/internal/cache"
	"github.com/starford/gitsee/internal/ledger"
	"github.com/starford/gitsee/internal/reconciler"
	"github.com/starford/gitsee/internal/testutil"
)

func commitData(repo, branch, msg string) Data {
	return Data{
		ActivityType:  ledger.TypeCommit,
		RepoPath:      repo,
		BranchName:    branch,
		CommitHash:    "abc1234",
		CommitMessage: msg,
		AuthorName:    "dev",
		AuthorEmail:   "dev@example.com",
		FilesChanged:  2,
		Insertions:    10,
		Deletions:     3,
	}
}

func TestRecordWritesBothStores(t *testing.T) {
	db := testutil.TestLedger(t)
	cs := testutil.TestCacheStore(t)
	svc := NewService(db, cs, nil)

	id, err := svc.Record(context.Background(), commitData("/src/alpha", "main", "feat: init"))
	if err != nil {
		t.Fatal(err)
	}
	if id <= 0 {
		t.Fatalf("id = %d, want > 0", id)
	}

	// Ledger side.
	rec, err := db.GetActivity(id)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.CommitMessage != "feat: init" {
		t.Fatalf("ledger record = %+v", rec)
	}

	// Cache side.
	recent, err := svc.CachedActivities(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != id {
		t.Fatalf("cached activities = %+v", recent)
	}
	stats, err := svc.CachedStatistics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCommits != 1 || stats.MostActiveRepo != "/src/alpha" {
		t.Fatalf("cached statistics = %+v", stats)
	}
}

func TestRecordDefaultsTimestamp(t *testing.T) {
	db := testutil.TestLedger(t)
	cs := testutil.TestCacheStore(t)
	svc := NewService(db, cs, nil)

	before := time.Now().UTC().Add(-time.Second)
	id, err := svc.Record(context.Background(), commitData("/src/alpha", "main", "x"))
	if err != nil {
		t.Fatal(err)
	}

	rec, err := db.GetActivity(id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Timestamp.Before(before) {
		t.Errorf("timestamp %s not defaulted to now", rec.Timestamp)
	}
}

func TestRecordCacheFailureKeepsLedgerWrite(t *testing.T) {
	db := testutil.TestLedger(t)
	cs := testutil.TestCacheStore(t)
	svc := NewService(db, cs, nil)

	// A directory squatting on the lock path makes every locked cache
	// write fail while the ledger stays healthy.
	lockPath := cs.Path() + ".lock"
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if err := os.Mkdir(lockPath, 0o755); err != nil {
		t.Fatal(err)
	}

	id, err := svc.Record(context.Background(), commitData("/src/alpha", "main", "degraded"))
	if !errors.Is(err, apperr.ErrCacheSync) {
		t.Fatalf("err = %v, want ErrCacheSync", err)
	}
	if id <= 0 {
		t.Fatalf("id = %d, want valid id despite cache failure", id)
	}

	rec, err := db.GetActivity(id)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("ledger write lost")
	}

	recent, err := svc.CachedActivities(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Fatalf("cache has %d records, want 0", len(recent))
	}
}

func TestReconcileHealsDegradedCache(t *testing.T) {
	db := testutil.TestLedger(t)
	cs := testutil.TestCacheStore(t)
	svc := NewService(db, cs, nil)

	lockPath := cs.Path() + ".lock"
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if err := os.Mkdir(lockPath, 0o755); err != nil {
		t.Fatal(err)
	}

	id, err := svc.Record(context.Background(), commitData("/src/alpha", "main", "degraded"))
	if !errors.Is(err, apperr.ErrCacheSync) {
		t.Fatalf("err = %v, want ErrCacheSync", err)
	}

	// Clear the fault and reconcile; the cache must converge to ledger truth.
	if err := os.Remove(lockPath); err != nil {
		t.Fatal(err)
	}
	snaps := cache.NewSnapshots(cs.Path(), t.TempDir(), 0)
	rec := reconciler.New(db, cs, snaps, 0, nil)
	if err := rec.RunOnce(); err != nil {
		t.Fatal(err)
	}

	recent, err := svc.CachedActivities(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != id {
		t.Fatalf("cache after reconcile = %+v", recent)
	}
	stats, err := svc.CachedStatistics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCommits != 1 {
		t.Fatalf("cached statistics after reconcile = %+v", stats)
	}
}

func TestPurgeLeavesCacheStaleUntilReconcile(t *testing.T) {
	db := testutil.TestLedger(t)
	cs := testutil.TestCacheStore(t)
	svc := NewService(db, cs, nil)

	d := commitData("/src/alpha", "main", "short-lived")
	d.FilesChanged, d.Insertions, d.Deletions = 3, 10, 2
	if _, err := svc.Record(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.CachedStatistics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCommits != 1 {
		t.Fatalf("cached statistics = %+v", stats)
	}

	n, err := db.PurgeOlderThan(0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged = %d, want 1", n)
	}
	records, err := db.AllActivities()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("ledger has %d records after purge, want 0", len(records))
	}

	// The cache keeps the stale total until the next reconciliation.
	stats, err = svc.CachedStatistics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCommits != 1 {
		t.Fatalf("cached statistics after purge = %+v, want stale total 1", stats)
	}

	snaps := cache.NewSnapshots(cs.Path(), t.TempDir(), 0)
	if err := reconciler.New(db, cs, snaps, 0, nil).RunOnce(); err != nil {
		t.Fatal(err)
	}
	stats, err = svc.CachedStatistics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCommits != 0 {
		t.Fatalf("cached statistics after reconcile = %+v, want 0", stats)
	}
}
