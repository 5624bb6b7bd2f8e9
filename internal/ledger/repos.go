package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/starford/gitsee/internal/apperr"
)

// MonitoredRepo is a registered repository tracked by Git hooks. The
// total counters and last-activity time are derived from the ledger via
// RefreshRepoStats and never edited directly.
type MonitoredRepo struct {
	ID             int64     `json:"id"`
	RepoPath       string    `json:"repo_path"`
	RepoName       string    `json:"repo_name"`
	RemoteURL      string    `json:"remote_url"`
	CurrentBranch  string    `json:"current_branch"`
	IsMonitored    bool      `json:"is_monitored"`
	LastActivityAt time.Time `json:"last_activity_time"`
	TotalCommits   int       `json:"total_commits"`
	TotalPushes    int       `json:"total_pushes"`
	AddedAt        time.Time `json:"added_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RepoUpdate enumerates the mutable MonitoredRepo fields. Nil pointers
// leave the field unchanged.
type RepoUpdate struct {
	RepoName       *string
	RemoteURL      *string
	CurrentBranch  *string
	IsMonitored    *bool
	LastActivityAt *time.Time
	TotalCommits   *int
	TotalPushes    *int
}

const repoColumns = `id, repo_path, repo_name, remote_url, current_branch,
	is_monitored, last_activity_time, total_commits, total_pushes,
	added_at, updated_at`

func scanRepo(r rowScanner) (MonitoredRepo, error) {
	var repo MonitoredRepo
	var lastActivity sql.NullString
	var added, updated string
	err := r.Scan(&repo.ID, &repo.RepoPath, &repo.RepoName, &repo.RemoteURL,
		&repo.CurrentBranch, &repo.IsMonitored, &lastActivity,
		&repo.TotalCommits, &repo.TotalPushes, &added, &updated)
	if err != nil {
		return repo, err
	}
	if lastActivity.Valid && lastActivity.String != "" {
		if repo.LastActivityAt, err = time.Parse(timeLayout, lastActivity.String); err != nil {
			return repo, fmt.Errorf("ledger: parse last_activity_time %q: %w", lastActivity.String, err)
		}
	}
	if repo.AddedAt, err = time.Parse(timeLayout, added); err != nil {
		return repo, fmt.Errorf("ledger: parse added_at %q: %w", added, err)
	}
	if repo.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return repo, fmt.Errorf("ledger: parse updated_at %q: %w", updated, err)
	}
	return repo, nil
}

// AddRepo registers a repository. If the path is already registered the
// existing id is returned unchanged.
func (db *DB) AddRepo(repo MonitoredRepo) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := db.conn.Exec(`
		INSERT INTO monitored_repos
		(repo_path, repo_name, remote_url, current_branch, is_monitored, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, repo.RepoPath, repo.RepoName, repo.RemoteURL, repo.CurrentBranch, repo.IsMonitored, now, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			var id int64
			if qerr := db.conn.QueryRow(
				`SELECT id FROM monitored_repos WHERE repo_path = ?`, repo.RepoPath,
			).Scan(&id); qerr != nil {
				return 0, fmt.Errorf("ledger: lookup existing repo: %w", qerr)
			}
			return id, nil
		}
		return 0, fmt.Errorf("ledger: add repo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger: add repo id: %w", err)
	}
	return id, nil
}

// GetRepo returns the registered repository at repoPath.
func (db *DB) GetRepo(repoPath string) (*MonitoredRepo, error) {
	row := db.conn.QueryRow(`SELECT `+repoColumns+` FROM monitored_repos WHERE repo_path = ?`, repoPath)
	repo, err := scanRepo(row)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get repo: %w", err)
	}
	return &repo, nil
}

// ListRepos returns registered repositories, newest registration first.
func (db *DB) ListRepos(monitoredOnly bool) ([]MonitoredRepo, error) {
	query := `SELECT ` + repoColumns + ` FROM monitored_repos ORDER BY added_at DESC, id DESC`
	if monitoredOnly {
		query = `SELECT ` + repoColumns + ` FROM monitored_repos WHERE is_monitored = 1 ORDER BY added_at DESC, id DESC`
	}
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("ledger: list repos: %w", err)
	}
	defer rows.Close()

	out := []MonitoredRepo{}
	for rows.Next() {
		repo, err := scanRepo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, repo)
	}
	return out, rows.Err()
}

// UpdateRepo applies the non-nil fields of upd to the repository at
// repoPath. Returns apperr.ErrNotFound if no such repository exists.
func (db *DB) UpdateRepo(repoPath string, upd RepoUpdate) error {
	sets := []string{}
	args := []any{}

	if upd.RepoName != nil {
		sets = append(sets, "repo_name = ?")
		args = append(args, *upd.RepoName)
	}
	if upd.RemoteURL != nil {
		sets = append(sets, "remote_url = ?")
		args = append(args, *upd.RemoteURL)
	}
	if upd.CurrentBranch != nil {
		sets = append(sets, "current_branch = ?")
		args = append(args, *upd.CurrentBranch)
	}
	if upd.IsMonitored != nil {
		sets = append(sets, "is_monitored = ?")
		args = append(args, *upd.IsMonitored)
	}
	if upd.LastActivityAt != nil {
		sets = append(sets, "last_activity_time = ?")
		args = append(args, upd.LastActivityAt.UTC().Format(timeLayout))
	}
	if upd.TotalCommits != nil {
		sets = append(sets, "total_commits = ?")
		args = append(args, *upd.TotalCommits)
	}
	if upd.TotalPushes != nil {
		sets = append(sets, "total_pushes = ?")
		args = append(args, *upd.TotalPushes)
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(timeLayout), repoPath)

	query := "UPDATE monitored_repos SET "
	for i, s := range sets {
		if i > 0 {
			query += ", "
		}
		query += s
	}
	query += " WHERE repo_path = ?"

	res, err := db.conn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("ledger: update repo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: update repo rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteRepo unregisters the repository at repoPath.
func (db *DB) DeleteRepo(repoPath string) error {
	res, err := db.conn.Exec(`DELETE FROM monitored_repos WHERE repo_path = ?`, repoPath)
	if err != nil {
		return fmt.Errorf("ledger: delete repo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: delete repo rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// RefreshRepoStats recomputes the derived counters for repoPath from the
// activity ledger. A repository with no activity is left untouched.
func (db *DB) RefreshRepoStats(repoPath string) error {
	var commits, pushes int
	var last sql.NullString
	err := db.conn.QueryRow(`
		SELECT
			COUNT(CASE WHEN activity_type = 'commit' THEN 1 END),
			COUNT(CASE WHEN activity_type = 'push' THEN 1 END),
			MAX(timestamp)
		FROM git_activities
		WHERE repo_path = ?
	`, repoPath).Scan(&commits, &pushes, &last)
	if err != nil {
		return fmt.Errorf("ledger: repo stats: %w", err)
	}
	if commits+pushes == 0 {
		return nil
	}

	upd := RepoUpdate{TotalCommits: &commits, TotalPushes: &pushes}
	if last.Valid && last.String != "" {
		t, err := time.Parse(timeLayout, last.String)
		if err != nil {
			return fmt.Errorf("ledger: parse last activity %q: %w", last.String, err)
		}
		upd.LastActivityAt = &t
	}
	err = db.UpdateRepo(repoPath, upd)
	if errors.Is(err, apperr.ErrNotFound) {
		// Activity from an unregistered repo; nothing to refresh.
		return nil
	}
	return err
}
