package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Activity types recorded by Git hooks.
const (
	TypeCommit = "commit"
	TypePush   = "push"
)

// timeLayout is the canonical on-disk timestamp format. All timestamps are
// normalized to UTC before storage so that SQLite date functions and
// lexicographic range comparisons agree.
const timeLayout = time.RFC3339

// ActivityRecord is one immutable row in the activity ledger. ID and
// CreatedAt are assigned by the store on insert.
type ActivityRecord struct {
	ID            int64     `json:"id"`
	ActivityType  string    `json:"activity_type"`
	Timestamp     time.Time `json:"timestamp"`
	RepoPath      string    `json:"repo_path"`
	BranchName    string    `json:"branch_name"`
	CommitHash    string    `json:"commit_hash"`
	CommitMessage string    `json:"commit_message"`
	AuthorName    string    `json:"author_name"`
	AuthorEmail   string    `json:"author_email"`
	FilesChanged  int       `json:"files_changed"`
	Insertions    int       `json:"insertions"`
	Deletions     int       `json:"deletions"`
	CreatedAt     time.Time `json:"created_at"`
}

// Filter is a conjunction of optional activity predicates. Zero values
// mean "no constraint".
type Filter struct {
	Type     string
	RepoPath string
	Since    time.Time // inclusive lower bound on timestamp
	Until    time.Time // exclusive upper bound on timestamp
}

func (f Filter) where() (string, []any) {
	conds := []string{}
	args := []any{}

	if f.Type != "" {
		conds = append(conds, "activity_type = ?")
		args = append(args, f.Type)
	}
	if f.RepoPath != "" {
		conds = append(conds, "repo_path = ?")
		args = append(args, f.RepoPath)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.UTC().Format(timeLayout))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, f.Until.UTC().Format(timeLayout))
	}

	if len(conds) == 0 {
		return "1=1", args
	}
	return strings.Join(conds, " AND "), args
}

const activityColumns = `id, activity_type, timestamp, repo_path, branch_name,
	commit_hash, commit_message, author_name, author_email,
	files_changed, insertions, deletions, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(r rowScanner) (ActivityRecord, error) {
	var rec ActivityRecord
	var ts, created string
	err := r.Scan(&rec.ID, &rec.ActivityType, &ts, &rec.RepoPath, &rec.BranchName,
		&rec.CommitHash, &rec.CommitMessage, &rec.AuthorName, &rec.AuthorEmail,
		&rec.FilesChanged, &rec.Insertions, &rec.Deletions, &created)
	if err != nil {
		return rec, err
	}
	if rec.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
		return rec, fmt.Errorf("ledger: parse timestamp %q: %w", ts, err)
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return rec, fmt.Errorf("ledger: parse created_at %q: %w", created, err)
	}
	return rec, nil
}

// InsertActivity appends a record to the ledger and returns its assigned id.
// Ids are strictly increasing in insertion order.
func (db *DB) InsertActivity(rec ActivityRecord) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO git_activities
		(activity_type, timestamp, repo_path, branch_name, commit_hash,
		 commit_message, author_name, author_email, files_changed,
		 insertions, deletions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ActivityType,
		rec.Timestamp.UTC().Format(timeLayout),
		rec.RepoPath,
		rec.BranchName,
		rec.CommitHash,
		rec.CommitMessage,
		rec.AuthorName,
		rec.AuthorEmail,
		rec.FilesChanged,
		rec.Insertions,
		rec.Deletions,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: insert activity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger: last insert id: %w", err)
	}
	return id, nil
}

// GetActivity returns the record with the given id, or nil if absent.
func (db *DB) GetActivity(id int64) (*ActivityRecord, error) {
	row := db.conn.QueryRow(`SELECT `+activityColumns+` FROM git_activities WHERE id = ?`, id)
	rec, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get activity %d: %w", id, err)
	}
	return &rec, nil
}

// ListActivities returns one page of records matching filter, newest
// timestamp first, plus the total count of matching records.
func (db *DB) ListActivities(f Filter, page, pageSize int) ([]ActivityRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	where, args := f.where()

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM git_activities WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ledger: count activities: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := db.conn.Query(`
		SELECT `+activityColumns+` FROM git_activities
		WHERE `+where+`
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`, append(args, pageSize, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ledger: list activities: %w", err)
	}
	defer rows.Close()

	out := []ActivityRecord{}
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// AllActivities returns every ledger record, most recently inserted first.
// Used by full reconciliation; a deliberate full-table scan.
func (db *DB) AllActivities() ([]ActivityRecord, error) {
	rows, err := db.conn.Query(`SELECT ` + activityColumns + ` FROM git_activities ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("ledger: all activities: %w", err)
	}
	defer rows.Close()

	out := []ActivityRecord{}
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DateCount is one date × activity-type bucket.
type DateCount struct {
	Date  string `json:"date"`
	Type  string `json:"activity_type"`
	Count int    `json:"count"`
}

// RepoCount is one repository bucket.
type RepoCount struct {
	RepoPath string `json:"repo_path"`
	Count    int    `json:"count"`
}

// BranchCount is one branch bucket.
type BranchCount struct {
	Branch string `json:"branch_name"`
	Count  int    `json:"count"`
}

// Aggregated holds the group-by results for a filter. ByDate is capped at
// 30 buckets and ByBranch at 10 to bound response sizes.
type Aggregated struct {
	TotalCommits int           `json:"total_commits"`
	TotalPushes  int           `json:"total_pushes"`
	ByDate       []DateCount   `json:"commits_by_date"`
	ByRepo       []RepoCount   `json:"commits_by_repo"`
	ByBranch     []BranchCount `json:"commits_by_branch"`
}

// Aggregate runs the counting and group-by queries for the given filter.
func (db *DB) Aggregate(f Filter) (Aggregated, error) {
	var agg Aggregated
	where, args := f.where()

	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM git_activities WHERE activity_type = 'commit' AND `+where, args...,
	).Scan(&agg.TotalCommits)
	if err != nil {
		return agg, fmt.Errorf("ledger: total commits: %w", err)
	}

	err = db.conn.QueryRow(`
		SELECT COUNT(*) FROM git_activities WHERE activity_type = 'push' AND `+where, args...,
	).Scan(&agg.TotalPushes)
	if err != nil {
		return agg, fmt.Errorf("ledger: total pushes: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT DATE(timestamp) AS date, activity_type, COUNT(*) AS count
		FROM git_activities
		WHERE `+where+`
		GROUP BY DATE(timestamp), activity_type
		ORDER BY date DESC
		LIMIT 30
	`, args...)
	if err != nil {
		return agg, fmt.Errorf("ledger: by date: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dc DateCount
		if err := rows.Scan(&dc.Date, &dc.Type, &dc.Count); err != nil {
			return agg, err
		}
		agg.ByDate = append(agg.ByDate, dc)
	}
	if err := rows.Err(); err != nil {
		return agg, err
	}

	rows, err = db.conn.Query(`
		SELECT repo_path, COUNT(*) AS count
		FROM git_activities
		WHERE `+where+`
		GROUP BY repo_path
		ORDER BY count DESC, repo_path ASC
	`, args...)
	if err != nil {
		return agg, fmt.Errorf("ledger: by repo: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rc RepoCount
		if err := rows.Scan(&rc.RepoPath, &rc.Count); err != nil {
			return agg, err
		}
		agg.ByRepo = append(agg.ByRepo, rc)
	}
	if err := rows.Err(); err != nil {
		return agg, err
	}

	rows, err = db.conn.Query(`
		SELECT branch_name, COUNT(*) AS count
		FROM git_activities
		WHERE `+where+`
		GROUP BY branch_name
		ORDER BY count DESC, branch_name ASC
		LIMIT 10
	`, args...)
	if err != nil {
		return agg, fmt.Errorf("ledger: by branch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bc BranchCount
		if err := rows.Scan(&bc.Branch, &bc.Count); err != nil {
			return agg, err
		}
		agg.ByBranch = append(agg.ByBranch, bc)
	}
	return agg, rows.Err()
}

// TrendRow is one period bucket × activity-type count.
type TrendRow struct {
	Bucket string `json:"date"`
	Type   string `json:"activity_type"`
	Count  int    `json:"count"`
}

// trendFormats maps a trend period to an SQLite strftime layout.
var trendFormats = map[string]string{
	"day":   "%Y-%m-%d",
	"week":  "%Y-%W",
	"month": "%Y-%m",
}

// Trend buckets matching records by period and counts per activity type,
// newest bucket first, truncated to limit rows.
func (db *DB) Trend(period string, f Filter, limit int) ([]TrendRow, error) {
	format, ok := trendFormats[period]
	if !ok {
		format = trendFormats["day"]
	}
	if limit < 1 {
		limit = 30
	}

	where, args := f.where()
	rows, err := db.conn.Query(`
		SELECT strftime(?, timestamp) AS bucket, activity_type, COUNT(*) AS count
		FROM git_activities
		WHERE `+where+`
		GROUP BY strftime(?, timestamp), activity_type
		ORDER BY bucket DESC
		LIMIT ?
	`, append([]any{format}, append(args, format, limit)...)...)
	if err != nil {
		return nil, fmt.Errorf("ledger: trend: %w", err)
	}
	defer rows.Close()

	out := []TrendRow{}
	for rows.Next() {
		var tr TrendRow
		if err := rows.Scan(&tr.Bucket, &tr.Type, &tr.Count); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// AuthorStat summarizes commit activity per author.
type AuthorStat struct {
	AuthorName      string `json:"author_name"`
	AuthorEmail     string `json:"author_email"`
	TotalCommits    int    `json:"total_commits"`
	RepoCount       int    `json:"repo_count"`
	TotalInsertions int    `json:"total_insertions"`
	TotalDeletions  int    `json:"total_deletions"`
}

// AuthorStats returns per-author commit totals, optionally scoped to one
// repository, ordered by commit count descending.
func (db *DB) AuthorStats(repoPath string) ([]AuthorStat, error) {
	where, args := Filter{RepoPath: repoPath}.where()
	rows, err := db.conn.Query(`
		SELECT author_name, author_email,
			COUNT(*) AS total_commits,
			COUNT(DISTINCT repo_path) AS repo_count,
			COALESCE(SUM(insertions), 0) AS total_insertions,
			COALESCE(SUM(deletions), 0) AS total_deletions
		FROM git_activities
		WHERE activity_type = 'commit' AND `+where+`
		GROUP BY author_name, author_email
		ORDER BY total_commits DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: author stats: %w", err)
	}
	defer rows.Close()

	out := []AuthorStat{}
	for rows.Next() {
		var as AuthorStat
		if err := rows.Scan(&as.AuthorName, &as.AuthorEmail, &as.TotalCommits,
			&as.RepoCount, &as.TotalInsertions, &as.TotalDeletions); err != nil {
			return nil, err
		}
		out = append(out, as)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes records whose timestamp is older than the given
// number of days before now and returns how many were removed.
func (db *DB) PurgeOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(timeLayout)
	res, err := db.conn.Exec(`DELETE FROM git_activities WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ledger: purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ledger: purge rows affected: %w", err)
	}
	return n, nil
}
