package scanner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/gitsee/internal/ledger"
	"github.com/starford/gitsee/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForRepo(t *testing.T, db *ledger.DB, repoPath string) *ledger.MonitoredRepo {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		repo, err := db.GetRepo(repoPath)
		if err == nil {
			return repo
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("repo %s never registered", repoPath)
	return nil
}

func TestWatchRegistersNewRepository(t *testing.T) {
	root := t.TempDir()
	db := testutil.TestLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, New(5), db, []string{root}, discardLogger()) }()

	// Give the watcher a moment to arm before creating the repo.
	time.Sleep(100 * time.Millisecond)

	repo := filepath.Join(root, "fresh")
	if err := os.Mkdir(repo, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.Mkdir(filepath.Join(repo, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := waitForRepo(t, db, repo)
	if got.RepoName != "fresh" {
		t.Errorf("repo name = %q", got.RepoName)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestWatchIgnoresExcludedDirs(t *testing.T) {
	root := t.TempDir()
	db := testutil.TestLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = Watch(ctx, New(5), db, []string{root}, discardLogger()) }()

	time.Sleep(100 * time.Millisecond)

	// Repos appearing under excluded dirs never register.
	if err := os.MkdirAll(filepath.Join(root, "node_modules", "dep", ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	repos, err := db.ListRepos(false)
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 0 {
		t.Fatalf("repos = %+v", repos)
	}
}

func TestWatchSkipsMissingRoot(t *testing.T) {
	db := testutil.TestLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, New(5), db, []string{"/does/not/exist"}, discardLogger())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("missing root should be skipped: %v", err)
	}
}

func TestDepthOf(t *testing.T) {
	cases := []struct {
		rel  string
		want int
	}{
		{".", 0},
		{"a", 1},
		{filepath.Join("a", "b"), 2},
		{filepath.Join("a", "b", "c"), 3},
	}
	for _, c := range cases {
		if got := depthOf(c.rel); got != c.want {
			t.Errorf("depthOf(%q) = %d, want %d", c.rel, got, c.want)
		}
	}
}
