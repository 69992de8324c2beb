package database

import (
	"database/sql"
	"time"
)

// StartJobRun records the start of a pipeline execution and returns the
// run's ID for later completion.
func (db *DB) StartJobRun(runDate, kind string, dryRun bool) (int64, error) {
	dr := 0
	if dryRun {
		dr = 1
	}
	res, err := db.conn.Exec(
		`INSERT INTO job_runs (run_date, kind, status, dry_run, started_at)
		VALUES (?, ?, 'running', ?, ?)`,
		runDate, kind, dr, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishJobRun marks a run done or failed, recording the last stage
// reached and the failure reason when there is one.
func (db *DB) FinishJobRun(runID int64, status, stage, reason string) error {
	_, err := db.conn.Exec(
		"UPDATE job_runs SET status = ?, stage = ?, reason = ?, finished_at = ? WHERE id = ?",
		status, stage, reason, time.Now().UTC().Format(timeFormat), runID,
	)
	return err
}

// GetLastJobRun returns the most recent run of a kind, or nil when none.
func (db *DB) GetLastJobRun(kind string) (*JobRun, error) {
	row := db.conn.QueryRow(
		`SELECT id, run_date, kind, status, stage, reason, dry_run, started_at, finished_at
		FROM job_runs WHERE kind = ? ORDER BY id DESC LIMIT 1`, kind,
	)
	var (
		run            JobRun
		stage, reason  sql.NullString
		dryRun         int
		started        string
		finished       sql.NullString
	)
	err := row.Scan(&run.ID, &run.RunDate, &run.Kind, &run.Status,
		&stage, &reason, &dryRun, &started, &finished)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Stage = stage.String
	run.Reason = reason.String
	run.DryRun = dryRun != 0
	run.StartedAt, _ = time.Parse(timeFormat, started)
	if finished.Valid {
		t, _ := time.Parse(timeFormat, finished.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	queries := []struct {
		q    string
		dest *int
	}{
		{"SELECT COUNT(*) FROM items", &s.TotalItems},
		{"SELECT COUNT(*) FROM metrics_samples", &s.TotalSamples},
		{"SELECT COUNT(*) FROM issues", &s.Issues},
		{"SELECT COUNT(*) FROM filter_rejections", &s.Rejections},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.q).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return &s, nil
}
