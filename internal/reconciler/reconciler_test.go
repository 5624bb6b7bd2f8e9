package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/starford/gitsee/internal/cache"
	"github.com/starford/gitsee/internal/ledger"
	"github.com/starford/gitsee/internal/testutil"
)

func seed(t *testing.T, db *ledger.DB, n int) {
	t.Helper()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		typ := ledger.TypeCommit
		if i%3 == 0 {
			typ = ledger.TypePush
		}
		_, err := db.InsertActivity(ledger.ActivityRecord{
			ActivityType: typ,
			Timestamp:    base.Add(time.Duration(i) * time.Hour),
			RepoPath:     "/src/alpha",
			BranchName:   "main",
			AuthorName:   "dev",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestRunOnceRebuildsCacheFromLedger(t *testing.T) {
	db := testutil.TestLedger(t)
	cs := testutil.TestCacheStore(t)
	seed(t, db, 6)

	snaps := cache.NewSnapshots(cs.Path(), t.TempDir(), 0)
	r := New(db, cs, snaps, 0, nil)

	if err := r.RunOnce(); err != nil {
		t.Fatal(err)
	}

	recs, err := cs.Activities(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 6 {
		t.Fatalf("cache has %d records, want 6", len(recs))
	}
	// Ledger scan is newest insert first.
	if recs[0].ID <= recs[1].ID {
		t.Errorf("cache order: ids %d, %d", recs[0].ID, recs[1].ID)
	}

	stats, err := cs.Statistics()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCommits != 4 || stats.TotalPushes != 2 {
		t.Fatalf("statistics = %+v", stats)
	}
}

func TestRunOnceCreatesAndPrunesSnapshots(t *testing.T) {
	db := testutil.TestLedger(t)
	cs := testutil.TestCacheStore(t)
	seed(t, db, 2)

	snaps := cache.NewSnapshots(cs.Path(), t.TempDir(), 2)
	r := New(db, cs, snaps, 0, nil)

	if err := r.RunOnce(); err != nil {
		t.Fatal(err)
	}
	names, err := snaps.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 {
		t.Fatalf("snapshots after first cycle = %v", names)
	}
}

func TestRunOnceIsIdempotent(t *testing.T) {
	db := testutil.TestLedger(t)
	cs := testutil.TestCacheStore(t)
	seed(t, db, 3)

	snaps := cache.NewSnapshots(cs.Path(), t.TempDir(), 3)
	r := New(db, cs, snaps, 0, nil)

	if err := r.RunOnce(); err != nil {
		t.Fatal(err)
	}
	first, err := cs.Load()
	if err != nil {
		t.Fatal(err)
	}

	if err := r.RunOnce(); err != nil {
		t.Fatal(err)
	}
	second, err := cs.Load()
	if err != nil {
		t.Fatal(err)
	}

	if len(first.Activities) != len(second.Activities) {
		t.Fatalf("activities: %d then %d", len(first.Activities), len(second.Activities))
	}
	if first.Statistics != second.Statistics {
		t.Fatalf("statistics drifted: %+v then %+v", first.Statistics, second.Statistics)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	db := testutil.TestLedger(t)
	cs := testutil.TestCacheStore(t)

	snaps := cache.NewSnapshots(cs.Path(), t.TempDir(), 0)
	r := New(db, cs, snaps, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
