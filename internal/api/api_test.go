package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/gitsee/internal/activity"
	"github.com/starford/gitsee/internal/cache"
	"github.com/starford/gitsee/internal/hooks"
	"github.com/starford/gitsee/internal/ledger"
	"github.com/starford/gitsee/internal/reconciler"
	"github.com/starford/gitsee/internal/scanner"
	"github.com/starford/gitsee/internal/stats"
	"github.com/starford/gitsee/internal/testutil"
)

type testEnv struct {
	srv   *httptest.Server
	db    *ledger.DB
	cs    *cache.Store
	snaps *cache.Snapshots
}

func newTestEnv(t *testing.T, authEnabled bool, token string) *testEnv {
	t.Helper()

	db := testutil.TestLedger(t)
	cs := testutil.TestCacheStore(t)
	snaps := cache.NewSnapshots(cs.Path(), t.TempDir(), 0)

	svc := activity.NewService(db, cs, nil)
	st := stats.NewService(db)
	recon := reconciler.New(db, cs, snaps, 0, nil)
	in := hooks.NewInstaller("http://localhost:8080", token, nil)

	h := NewHandler(svc, db, st, recon, snaps, nil, nil)
	rh := NewRepoHandler(db, scanner.New(5), in, nil)
	srv := httptest.NewServer(NewRouter(h, rh, authEnabled, token, nil))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, db: db, cs: cs, snaps: snaps}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func recordReq(repo, typ, msg string) RecordActivityRequest {
	return RecordActivityRequest{
		ActivityType:  typ,
		RepoPath:      repo,
		BranchName:    "main",
		CommitHash:    "a1b2c3d",
		CommitMessage: msg,
		AuthorName:    "dev",
		AuthorEmail:   "dev@example.com",
	}
}

func TestRecordAndGetActivity(t *testing.T) {
	env := newTestEnv(t, false, "")

	resp := env.do(t, http.MethodPost, "/activities", recordReq("/src/alpha", "commit", "feat: first"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	created := decode[RecordActivityResponse](t, resp)
	if created.ID <= 0 || !created.CacheSync {
		t.Fatalf("response = %+v", created)
	}

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/activities/%d", created.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	rec := decode[ledger.ActivityRecord](t, resp)
	if rec.CommitMessage != "feat: first" || rec.ActivityType != "commit" {
		t.Fatalf("record = %+v", rec)
	}

	if resp := env.do(t, http.MethodGet, "/activities/99999", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing id status = %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/activities/abc", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d", resp.StatusCode)
	}
}

func TestRecordValidation(t *testing.T) {
	env := newTestEnv(t, false, "")

	cases := []struct {
		name string
		req  RecordActivityRequest
	}{
		{"bad type", recordReq("/src/alpha", "merge", "x")},
		{"missing repo", recordReq("", "commit", "x")},
	}
	for _, c := range cases {
		if resp := env.do(t, http.MethodPost, "/activities", c.req); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d", c.name, resp.StatusCode)
		}
	}

	bad := recordReq("/src/alpha", "commit", "x")
	bad.Timestamp = "yesterday"
	if resp := env.do(t, http.MethodPost, "/activities", bad); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad timestamp: status = %d", resp.StatusCode)
	}
}

func TestRecordWithShortstat(t *testing.T) {
	env := newTestEnv(t, false, "")

	req := recordReq("/src/alpha", "commit", "x")
	req.Shortstat = "3 files changed, 15 insertions(+), 5 deletions(-)"
	resp := env.do(t, http.MethodPost, "/activities", req)
	created := decode[RecordActivityResponse](t, resp)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/activities/%d", created.ID), nil)
	rec := decode[ledger.ActivityRecord](t, resp)
	if rec.FilesChanged != 3 || rec.Insertions != 15 || rec.Deletions != 5 {
		t.Fatalf("shortstat not parsed: %+v", rec)
	}
}

func TestListActivitiesFilterAndPaging(t *testing.T) {
	env := newTestEnv(t, false, "")

	for i := 0; i < 3; i++ {
		env.do(t, http.MethodPost, "/activities", recordReq("/src/alpha", "commit", fmt.Sprintf("c%d", i)))
	}
	env.do(t, http.MethodPost, "/activities", recordReq("/src/beta", "push", "p0"))

	resp := env.do(t, http.MethodGet, "/activities?activity_type=commit&page=1&page_size=2", nil)
	list := decode[ActivityListResponse](t, resp)
	if list.Total != 3 || len(list.Activities) != 2 || list.PageSize != 2 {
		t.Fatalf("list = total %d, page of %d", list.Total, len(list.Activities))
	}

	resp = env.do(t, http.MethodGet, "/activities?repo_path=/src/beta", nil)
	list = decode[ActivityListResponse](t, resp)
	if list.Total != 1 || list.Activities[0].ActivityType != "push" {
		t.Fatalf("repo filter = %+v", list)
	}

	if resp := env.do(t, http.MethodGet, "/activities?start_date=not-a-date", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad date status = %d", resp.StatusCode)
	}
}

func TestRecentAndCachedStatistics(t *testing.T) {
	env := newTestEnv(t, false, "")

	env.do(t, http.MethodPost, "/activities", recordReq("/src/alpha", "commit", "a"))
	env.do(t, http.MethodPost, "/activities", recordReq("/src/alpha", "push", "b"))

	resp := env.do(t, http.MethodGet, "/activities/recent?limit=1", nil)
	recent := decode[ActivityListResponse](t, resp)
	if len(recent.Activities) != 1 {
		t.Fatalf("recent = %+v", recent)
	}

	resp = env.do(t, http.MethodGet, "/statistics/cached", nil)
	st := decode[cache.Statistics](t, resp)
	if st.TotalCommits != 1 || st.TotalPushes != 1 {
		t.Fatalf("cached statistics = %+v", st)
	}
}

func TestStatisticsAndTrends(t *testing.T) {
	env := newTestEnv(t, false, "")

	env.do(t, http.MethodPost, "/activities", recordReq("/src/alpha", "commit", "a"))
	env.do(t, http.MethodPost, "/activities", recordReq("/src/alpha", "commit", "b"))

	resp := env.do(t, http.MethodGet, "/statistics", nil)
	ov := decode[stats.Overview](t, resp)
	if ov.TotalCommits != 2 || ov.TotalActivities != 2 {
		t.Fatalf("overview = %+v", ov)
	}

	resp = env.do(t, http.MethodGet, "/trends?period=day&days=7", nil)
	tr := decode[stats.Trends](t, resp)
	if tr.Period != "day" || len(tr.Data) != 1 || tr.Data[0].Commits != 2 {
		t.Fatalf("trends = %+v", tr)
	}

	resp = env.do(t, http.MethodGet, "/heatmap?days=7", nil)
	cells := decode[[]stats.HeatmapCell](t, resp)
	if len(cells) != 8 {
		t.Fatalf("heatmap cells = %d", len(cells))
	}

	resp = env.do(t, http.MethodGet, "/repos/top", nil)
	top := decode[[]stats.TopRepo](t, resp)
	if len(top) != 1 || top[0].RepoName != "alpha" {
		t.Fatalf("top repos = %+v", top)
	}

	resp = env.do(t, http.MethodGet, "/repos/summary?repo_path=/src/alpha", nil)
	sum := decode[stats.RepoSummary](t, resp)
	if sum.TotalCommits != 2 {
		t.Fatalf("repo summary = %+v", sum)
	}
	if resp := env.do(t, http.MethodGet, "/repos/summary", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("summary without repo_path status = %d", resp.StatusCode)
	}
}

func TestTodaySummary(t *testing.T) {
	env := newTestEnv(t, false, "")

	env.do(t, http.MethodPost, "/activities", recordReq("/src/alpha", "commit", "a"))

	resp := env.do(t, http.MethodGet, "/today-summary", nil)
	sum := decode[TodaySummaryResponse](t, resp)
	if sum.Stats.CommitCount != 1 || sum.Stats.TotalCount != 1 {
		t.Fatalf("today = %+v", sum)
	}
	if sum.AIEnabled {
		t.Error("AIEnabled = true with no evaluator")
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, false, "")

	env.do(t, http.MethodPost, "/activities", recordReq("/src/alpha", "commit", "hello, world"))

	resp := env.do(t, http.MethodGet, "/export?format=csv", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("content disposition = %q", cd)
	}

	rows, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][0] != "id" || rows[1][6] != "hello, world" {
		t.Fatalf("csv = %v", rows)
	}

	resp = env.do(t, http.MethodGet, "/export", nil)
	recs := decode[[]ledger.ActivityRecord](t, resp)
	if len(recs) != 1 {
		t.Fatalf("json export = %d records", len(recs))
	}

	if resp := env.do(t, http.MethodGet, "/export?format=xml", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad format status = %d", resp.StatusCode)
	}
}

func TestSyncSnapshotsAndRestore(t *testing.T) {
	env := newTestEnv(t, false, "")

	env.do(t, http.MethodPost, "/activities", recordReq("/src/alpha", "commit", "a"))

	resp := env.do(t, http.MethodPost, "/sync", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d", resp.StatusCode)
	}
	st := decode[cache.Statistics](t, resp)
	if st.TotalCommits != 1 {
		t.Fatalf("sync statistics = %+v", st)
	}

	resp = env.do(t, http.MethodGet, "/snapshots", nil)
	snaps := decode[SnapshotListResponse](t, resp)
	if len(snaps.Snapshots) != 1 {
		t.Fatalf("snapshots = %v", snaps.Snapshots)
	}

	resp = env.do(t, http.MethodPost, "/snapshots/restore", RestoreRequest{Name: snaps.Snapshots[0]})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/snapshots/restore", RestoreRequest{Name: "records_19990101_000000.json"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing snapshot status = %d", resp.StatusCode)
	}
}

func TestRepoLifecycle(t *testing.T) {
	env := newTestEnv(t, false, "")

	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, ".git", "hooks"), 0o755); err != nil {
		t.Fatal(err)
	}

	resp := env.do(t, http.MethodPost, "/repos", AddRepoRequest{RepoPath: repo, InstallHook: true})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d", resp.StatusCode)
	}
	added := decode[ledger.MonitoredRepo](t, resp)
	if added.RepoPath != repo || !added.IsMonitored {
		t.Fatalf("added = %+v", added)
	}
	if !hooks.Installed(repo) {
		t.Error("hooks not installed")
	}

	resp = env.do(t, http.MethodGet, "/repos?monitored=true", nil)
	list := decode[RepoListResponse](t, resp)
	if list.Total != 1 {
		t.Fatalf("list = %+v", list)
	}

	resp = env.do(t, http.MethodGet, "/repos/info?repo_path="+repo, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("info status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/repos/hooks/status?repo_path="+repo, nil)
	st := decode[hooks.Status](t, resp)
	if !st.PostCommit || !st.PrePush {
		t.Fatalf("hook status = %+v", st)
	}

	resp = env.do(t, http.MethodPost, "/repos/hooks/uninstall", HookRequest{RepoPath: repo})
	st = decode[hooks.Status](t, resp)
	if st.PostCommit || st.PrePush {
		t.Fatalf("status after uninstall = %+v", st)
	}

	resp = env.do(t, http.MethodDelete, "/repos?repo_path="+repo, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/repos/info?repo_path="+repo, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("info after delete status = %d", resp.StatusCode)
	}
}

func TestUpdateRepo(t *testing.T) {
	env := newTestEnv(t, false, "")

	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, ".git", "hooks"), 0o755); err != nil {
		t.Fatal(err)
	}
	env.do(t, http.MethodPost, "/repos", AddRepoRequest{RepoPath: repo})

	branch := "develop"
	monitored := true
	resp := env.do(t, http.MethodPatch, "/repos", UpdateRepoRequest{
		RepoPath:      repo,
		CurrentBranch: &branch,
		IsMonitored:   &monitored,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}
	updated := decode[ledger.MonitoredRepo](t, resp)
	if updated.CurrentBranch != "develop" || !updated.IsMonitored {
		t.Fatalf("updated = %+v", updated)
	}
	// Untouched fields survive.
	if updated.RepoName != filepath.Base(repo) {
		t.Errorf("repo name = %q", updated.RepoName)
	}

	resp = env.do(t, http.MethodPatch, "/repos", UpdateRepoRequest{RepoPath: "/nope", IsMonitored: &monitored})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing repo patch status = %d", resp.StatusCode)
	}
}

func TestAddRepoRejectsNonRepo(t *testing.T) {
	env := newTestEnv(t, false, "")

	resp := env.do(t, http.MethodPost, "/repos", AddRepoRequest{RepoPath: t.TempDir()})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestScanEndpoint(t *testing.T) {
	env := newTestEnv(t, false, "")

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "alpha", ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	resp := env.do(t, http.MethodPost, "/repos/scan", ScanRequest{Directories: []string{root}})
	scan := decode[ScanResponse](t, resp)
	if scan.Count != 1 || scan.Repos[0].Name != "alpha" {
		t.Fatalf("scan = %+v", scan)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, true, "s3cret")

	resp := env.do(t, http.MethodGet, "/activities", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/activities", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer s3cret")
	good, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer good.Body.Close()
	if good.StatusCode != http.StatusOK {
		t.Fatalf("valid token status = %d", good.StatusCode)
	}

	req.Header.Set("Authorization", "Bearer wrong")
	bad, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", bad.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false, "")

	resp := env.do(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	h := decode[HealthResponse](t, resp)
	if h.Status != "healthy" || !h.Database || !h.Cache {
		t.Fatalf("health = %+v", h)
	}
}

func TestParseFilterEndDateInclusive(t *testing.T) {
	env := newTestEnv(t, false, "")

	day := time.Date(2026, 8, 20, 23, 0, 0, 0, time.UTC)
	req := recordReq("/src/alpha", "commit", "late commit")
	req.Timestamp = day.Format(time.RFC3339)
	env.do(t, http.MethodPost, "/activities", req)

	resp := env.do(t, http.MethodGet, "/activities?start_date=2026-08-20&end_date=2026-08-20", nil)
	list := decode[ActivityListResponse](t, resp)
	if list.Total != 1 {
		t.Fatalf("end_date not inclusive: %+v", list)
	}
}
