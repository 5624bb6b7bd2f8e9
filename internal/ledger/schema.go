// Package ledger provides the canonical SQLite-backed log of Git activity
// records and the registry of monitored repositories.
package ledger

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS git_activities (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	activity_type  TEXT NOT NULL,
	timestamp      TEXT NOT NULL,
	repo_path      TEXT NOT NULL,
	branch_name    TEXT NOT NULL,
	commit_hash    TEXT NOT NULL,
	commit_message TEXT NOT NULL DEFAULT '',
	author_name    TEXT NOT NULL DEFAULT '',
	author_email   TEXT NOT NULL DEFAULT '',
	files_changed  INTEGER NOT NULL DEFAULT 0,
	insertions     INTEGER NOT NULL DEFAULT 0,
	deletions      INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS monitored_repos (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_path          TEXT NOT NULL UNIQUE,
	repo_name          TEXT NOT NULL,
	remote_url         TEXT NOT NULL DEFAULT '',
	current_branch     TEXT NOT NULL DEFAULT '',
	is_monitored       INTEGER NOT NULL DEFAULT 1,
	last_activity_time TEXT,
	total_commits      INTEGER NOT NULL DEFAULT 0,
	total_pushes       INTEGER NOT NULL DEFAULT 0,
	added_at           TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_timestamp ON git_activities(timestamp);
CREATE INDEX IF NOT EXISTS idx_activities_repo_path ON git_activities(repo_path);
CREATE INDEX IF NOT EXISTS idx_activities_type ON git_activities(activity_type);
CREATE INDEX IF NOT EXISTS idx_activities_branch ON git_activities(branch_name);
CREATE INDEX IF NOT EXISTS idx_monitored_repos_path ON monitored_repos(repo_path);
`

// DB wraps a sql.DB with ledger-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite ledger and applies the schema.
// WAL mode keeps reads safe against concurrent inserts.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
