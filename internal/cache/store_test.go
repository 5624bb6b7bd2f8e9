package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/gitsee/internal/ledger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "records.json"))
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	return s
}

func rec(id int64, repo string) ledger.ActivityRecord {
	return ledger.ActivityRecord{
		ID:           id,
		ActivityType: ledger.TypeCommit,
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		RepoPath:     repo,
		BranchName:   "main",
		CreatedAt:    time.Now().UTC(),
	}
}

func TestInitWritesDefaultDocument(t *testing.T) {
	s := testStore(t)

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if doc.Version != SchemaVersion {
		t.Errorf("version = %q, want %q", doc.Version, SchemaVersion)
	}
	if len(doc.Activities) != 0 {
		t.Errorf("activities = %d, want 0", len(doc.Activities))
	}

	// Init again is a no-op; document is not rewritten.
	before, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	after, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) && after.Size() != before.Size() {
		t.Error("second Init rewrote the document")
	}
}

func TestLoadMissingFileYieldsDefault(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "records.json"))
	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if doc.Version != SchemaVersion || len(doc.Activities) != 0 {
		t.Errorf("unexpected default: %+v", doc)
	}
}

func TestLoadCorruptFileYieldsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path)
	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if doc.Version != SchemaVersion || len(doc.Activities) != 0 {
		t.Errorf("corrupt file should load as default, got %+v", doc)
	}
}

func TestInsertPrependsAndSetsStats(t *testing.T) {
	s := testStore(t)

	stats := Statistics{TotalCommits: 1, MostActiveRepo: "/src/a", MostActiveBranch: "main"}
	if err := s.Insert(rec(1, "/src/a"), stats); err != nil {
		t.Fatal(err)
	}
	stats.TotalCommits = 2
	if err := s.Insert(rec(2, "/src/b"), stats); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Activities) != 2 {
		t.Fatalf("activities = %d, want 2", len(doc.Activities))
	}
	if doc.Activities[0].ID != 2 {
		t.Errorf("newest first violated: first id = %d", doc.Activities[0].ID)
	}
	if doc.Statistics.TotalCommits != 2 {
		t.Errorf("stats = %+v", doc.Statistics)
	}
	if doc.LastUpdated.IsZero() {
		t.Error("last_updated not set")
	}
}

func TestInsertTruncatesToCap(t *testing.T) {
	s := testStore(t)
	s.max = 3

	for i := 1; i <= 5; i++ {
		if err := s.Insert(rec(int64(i), "/src/a"), Statistics{TotalCommits: i}); err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.Activities(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("window = %d, want 3", len(records))
	}
	if records[0].ID != 5 || records[2].ID != 3 {
		t.Errorf("window ids = [%d..%d], want [5..3]", records[0].ID, records[2].ID)
	}

	// Statistics still reflect all five, not the window.
	stats, err := s.Statistics()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCommits != 5 {
		t.Errorf("total commits = %d, want 5", stats.TotalCommits)
	}
}

func TestRebuildReplacesDocument(t *testing.T) {
	s := testStore(t)
	if err := s.Insert(rec(99, "/src/stale"), Statistics{TotalCommits: 99}); err != nil {
		t.Fatal(err)
	}

	records := []ledger.ActivityRecord{rec(2, "/src/a"), rec(1, "/src/a")}
	if err := s.Rebuild(records, Statistics{TotalCommits: 2, MostActiveRepo: "/src/a"}); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Activities) != 2 || doc.Activities[0].ID != 2 {
		t.Errorf("rebuild content wrong: %+v", doc.Activities)
	}
	if doc.Statistics.TotalCommits != 2 {
		t.Errorf("stats = %+v", doc.Statistics)
	}
}

func TestRebuildTruncatesToCap(t *testing.T) {
	s := testStore(t)
	s.max = 2

	records := []ledger.ActivityRecord{rec(3, "/src/a"), rec(2, "/src/a"), rec(1, "/src/a")}
	if err := s.Rebuild(records, Statistics{TotalCommits: 3}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Activities(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 3 {
		t.Errorf("rebuilt window = %+v", got)
	}
}

func TestActivitiesLimit(t *testing.T) {
	s := testStore(t)
	for i := 1; i <= 4; i++ {
		if err := s.Insert(rec(int64(i), "/src/a"), Statistics{}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.Activities(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 4 {
		t.Errorf("limited read = %+v", got)
	}
}

func TestComputeStatistics(t *testing.T) {
	records := []ledger.ActivityRecord{
		rec(1, "/src/a"),
		rec(2, "/src/a"),
		rec(3, "/src/b"),
	}
	push := rec(4, "/src/b")
	push.ActivityType = ledger.TypePush
	push.BranchName = "dev"
	records = append(records, push)

	stats := ComputeStatistics(records)
	if stats.TotalCommits != 3 || stats.TotalPushes != 1 {
		t.Errorf("totals = %d/%d, want 3/1", stats.TotalCommits, stats.TotalPushes)
	}
	if stats.MostActiveRepo != "/src/a" {
		t.Errorf("most active repo = %q", stats.MostActiveRepo)
	}
	if stats.MostActiveBranch != "main" {
		t.Errorf("most active branch = %q", stats.MostActiveBranch)
	}
}

func TestComputeStatisticsDeterministicTie(t *testing.T) {
	records := []ledger.ActivityRecord{rec(1, "/src/z"), rec(2, "/src/a")}
	for i := 0; i < 5; i++ {
		stats := ComputeStatistics(records)
		if stats.MostActiveRepo != "/src/a" {
			t.Fatalf("tie broke to %q, want /src/a", stats.MostActiveRepo)
		}
	}
}

func TestComputeStatisticsEmpty(t *testing.T) {
	stats := ComputeStatistics(nil)
	if stats != (Statistics{}) {
		t.Errorf("empty input stats = %+v", stats)
	}
}

func TestStatisticsFromAggregate(t *testing.T) {
	agg := ledger.Aggregated{
		TotalCommits: 7,
		TotalPushes:  2,
		ByRepo:       []ledger.RepoCount{{RepoPath: "/src/a", Count: 5}},
		ByBranch:     []ledger.BranchCount{{Branch: "main", Count: 6}},
	}
	stats := StatisticsFrom(agg)
	want := Statistics{TotalCommits: 7, TotalPushes: 2, MostActiveRepo: "/src/a", MostActiveBranch: "main"}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestWriteIsAtomicNoTempLeftovers(t *testing.T) {
	s := testStore(t)
	for i := 1; i <= 10; i++ {
		if err := s.Insert(rec(int64(i), "/src/a"), Statistics{}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != filepath.Base(s.Path()) && e.Name() != filepath.Base(s.Path())+".lock" {
			t.Errorf("unexpected leftover file: %s", e.Name())
		}
	}
}

func TestConcurrentInsertsAllSurvive(t *testing.T) {
	s := testStore(t)

	const n = 20
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(id int64) {
			done <- s.Insert(rec(id, fmt.Sprintf("/src/r%d", id)), Statistics{})
		}(int64(i + 1))
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.Activities(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != n {
		t.Errorf("records = %d, want %d (lost updates)", len(records), n)
	}
}
