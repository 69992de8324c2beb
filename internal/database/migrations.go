package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    source_item_id TEXT,
    url TEXT NOT NULL,
    title TEXT NOT NULL,
    author TEXT,
    published_at TEXT NOT NULL,
    fetched_at TEXT NOT NULL,
    body TEXT,
    UNIQUE (source, url)
);

CREATE TABLE IF NOT EXISTS metrics_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id INTEGER NOT NULL REFERENCES items(id),
    captured_at TEXT NOT NULL,
    metrics TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
    date TEXT PRIMARY KEY,
    generated_at TEXT NOT NULL,
    dry_run INTEGER DEFAULT 0,
    item_count INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS issue_items (
    issue_date TEXT NOT NULL REFERENCES issues(date),
    rank INTEGER NOT NULL,
    identity TEXT NOT NULL,
    headline TEXT NOT NULL,
    teaser TEXT NOT NULL,
    takeaway TEXT NOT NULL,
    why_care TEXT,
    bullets TEXT NOT NULL,
    citations TEXT NOT NULL,
    confidence TEXT NOT NULL,
    score REAL NOT NULL,
    echo_count INTEGER DEFAULT 0,
    is_viral INTEGER DEFAULT 0,
    PRIMARY KEY (issue_date, rank)
);

CREATE TABLE IF NOT EXISTS filter_rejections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_date TEXT NOT NULL,
    item_url TEXT NOT NULL,
    item_title TEXT NOT NULL,
    verdict TEXT NOT NULL,
    reason TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS job_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_date TEXT NOT NULL,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    stage TEXT,
    reason TEXT,
    dry_run INTEGER DEFAULT 0,
    started_at TEXT NOT NULL,
    finished_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_items_published ON items(published_at);
CREATE INDEX IF NOT EXISTS idx_items_source ON items(source);
CREATE INDEX IF NOT EXISTS idx_samples_item ON metrics_samples(item_id, captured_at);
CREATE INDEX IF NOT EXISTS idx_issue_items_identity ON issue_items(identity);
CREATE INDEX IF NOT EXISTS idx_rejections_date ON filter_rejections(run_date);
CREATE INDEX IF NOT EXISTS idx_job_runs_date ON job_runs(run_date);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
