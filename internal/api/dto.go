package api

import (
	"github.com/starford/gitsee/internal/ledger"
	"github.com/starford/gitsee/internal/scanner"
	"github.com/starford/gitsee/internal/stats"
)

// RecordActivityRequest is the request body posted by Git hooks.
// Shortstat, when present, carries raw `git diff --shortstat` output and
// overrides the individual counters.
type RecordActivityRequest struct {
	ActivityType  string `json:"activity_type" example:"commit" validate:"required"`
	Timestamp     string `json:"timestamp,omitempty" example:"2025-06-01T12:30:00Z"`
	RepoPath      string `json:"repo_path" example:"/home/dev/src/gitsee" validate:"required"`
	BranchName    string `json:"branch_name" example:"main"`
	CommitHash    string `json:"commit_hash" example:"a1b2c3d"`
	CommitMessage string `json:"commit_message" example:"fix: handle empty diff"`
	AuthorName    string `json:"author_name" example:"Dev"`
	AuthorEmail   string `json:"author_email" example:"dev@example.com"`
	FilesChanged  int    `json:"files_changed,omitempty"`
	Insertions    int    `json:"insertions,omitempty"`
	Deletions     int    `json:"deletions,omitempty"`
	Shortstat     string `json:"shortstat,omitempty" example:"3 files changed, 15 insertions(+)"`
}

// RecordActivityResponse is returned after a successful record.
type RecordActivityResponse struct {
	ID        int64 `json:"id" example:"42" validate:"required"`
	CacheSync bool  `json:"cache_sync" example:"true"`
}

// ActivityListResponse wraps paginated activity listings.
type ActivityListResponse struct {
	Activities []ledger.ActivityRecord `json:"activities" validate:"required"`
	Total      int                     `json:"total" example:"137" validate:"required"`
	Page       int                     `json:"page" example:"1"`
	PageSize   int                     `json:"page_size" example:"20"`
}

// AddRepoRequest registers a repository for monitoring.
type AddRepoRequest struct {
	RepoPath    string `json:"repo_path" example:"/home/dev/src/gitsee" validate:"required"`
	InstallHook bool   `json:"install_hook" example:"true"`
}

// ScanRequest selects the directories to scan for repositories.
type ScanRequest struct {
	Directories []string `json:"directories,omitempty"`
}

// ScanResponse wraps scan results.
type ScanResponse struct {
	Count int                `json:"count" example:"3" validate:"required"`
	Repos []scanner.RepoInfo `json:"repos" validate:"required"`
}

// RepoListResponse wraps registered repositories.
type RepoListResponse struct {
	Repos []ledger.MonitoredRepo `json:"repos" validate:"required"`
	Total int                    `json:"total" example:"5"`
}

// UpdateRepoRequest carries a partial update for a registered
// repository; nil fields are left untouched.
type UpdateRepoRequest struct {
	RepoPath      string  `json:"repo_path" example:"/home/dev/src/gitsee" validate:"required"`
	RepoName      *string `json:"repo_name,omitempty"`
	RemoteURL     *string `json:"remote_url,omitempty"`
	CurrentBranch *string `json:"current_branch,omitempty"`
	IsMonitored   *bool   `json:"is_monitored,omitempty"`
}

// HookRequest names the repository a hook operation applies to.
type HookRequest struct {
	RepoPath string `json:"repo_path" example:"/home/dev/src/gitsee" validate:"required"`
}

// SnapshotListResponse wraps backup snapshot filenames, newest first.
type SnapshotListResponse struct {
	Snapshots []string `json:"snapshots" validate:"required"`
}

// RestoreRequest names a snapshot to restore; empty means the latest.
type RestoreRequest struct {
	Name string `json:"name,omitempty" example:"records_20250601_123000.json"`
}

// TodaySummaryResponse combines today's tallies with the generated text.
type TodaySummaryResponse struct {
	Stats      stats.DaySummary `json:"stats" validate:"required"`
	Evaluation string           `json:"evaluation"`
	AIEnabled  bool             `json:"ai_enabled"`
}

// HealthResponse reports component status for the health endpoint.
type HealthResponse struct {
	Status   string `json:"status" example:"healthy" validate:"required"`
	Database bool   `json:"database"`
	Cache    bool   `json:"cache"`
}
