package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noyau-news/noyau/internal/distill"
)

// ReplaceIssue writes an issue for its date, atomically overwriting any
// previous issue for the same date. Re-running a build for a date is
// therefore idempotent.
func (db *DB) ReplaceIssue(issue *Issue) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM issue_items WHERE issue_date = ?", issue.Date); err != nil {
		return fmt.Errorf("clearing issue items: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM issues WHERE date = ?", issue.Date); err != nil {
		return fmt.Errorf("clearing issue: %w", err)
	}

	dryRun := 0
	if issue.DryRun {
		dryRun = 1
	}
	if _, err := tx.Exec(
		"INSERT INTO issues (date, generated_at, dry_run, item_count) VALUES (?, ?, ?, ?)",
		issue.Date, issue.GeneratedAt.UTC().Format(timeFormat), dryRun, len(issue.Items),
	); err != nil {
		return fmt.Errorf("inserting issue: %w", err)
	}

	for _, item := range issue.Items {
		bullets, err := json.Marshal(item.Bullets)
		if err != nil {
			return fmt.Errorf("marshaling bullets: %w", err)
		}
		citations, err := json.Marshal(item.Citations)
		if err != nil {
			return fmt.Errorf("marshaling citations: %w", err)
		}
		viral := 0
		if item.IsViral {
			viral = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO issue_items
			(issue_date, rank, identity, headline, teaser, takeaway, why_care,
			 bullets, citations, confidence, score, echo_count, is_viral)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			issue.Date, item.Rank, item.Identity, item.Headline, item.Teaser,
			item.Takeaway, item.WhyCare, string(bullets), string(citations),
			item.Confidence, item.Score, item.EchoCount, viral,
		); err != nil {
			return fmt.Errorf("inserting issue item %d: %w", item.Rank, err)
		}
	}

	return tx.Commit()
}

// GetIssue returns the issue for a date, or nil when none exists.
func (db *DB) GetIssue(date string) (*Issue, error) {
	row := db.conn.QueryRow(
		"SELECT date, generated_at, dry_run FROM issues WHERE date = ?", date,
	)
	var (
		issue       Issue
		generatedAt string
		dryRun      int
	)
	err := row.Scan(&issue.Date, &generatedAt, &dryRun)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	issue.GeneratedAt, _ = time.Parse(timeFormat, generatedAt)
	issue.DryRun = dryRun != 0

	rows, err := db.conn.Query(
		`SELECT rank, identity, headline, teaser, takeaway, why_care,
		 bullets, citations, confidence, score, echo_count, is_viral
		FROM issue_items WHERE issue_date = ? ORDER BY rank ASC`, date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item      IssueItem
			whyCare   sql.NullString
			bullets   string
			citations string
			viral     int
		)
		if err := rows.Scan(&item.Rank, &item.Identity, &item.Headline, &item.Teaser,
			&item.Takeaway, &whyCare, &bullets, &citations, &item.Confidence,
			&item.Score, &item.EchoCount, &viral); err != nil {
			return nil, err
		}
		item.WhyCare = whyCare.String
		item.IsViral = viral != 0
		if err := json.Unmarshal([]byte(bullets), &item.Bullets); err != nil {
			return nil, fmt.Errorf("unmarshaling bullets for rank %d: %w", item.Rank, err)
		}
		if err := json.Unmarshal([]byte(citations), &item.Citations); err != nil {
			return nil, fmt.Errorf("unmarshaling citations for rank %d: %w", item.Rank, err)
		}
		if item.Citations == nil {
			item.Citations = []distill.Citation{}
		}
		issue.Items = append(issue.Items, item)
	}
	return &issue, rows.Err()
}

// ListIssueDates returns all issue dates, newest first.
func (db *DB) ListIssueDates() ([]string, error) {
	rows, err := db.conn.Query("SELECT date FROM issues ORDER BY date DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// GetPublishedIdentitiesBefore returns every identity featured in any
// issue dated strictly before the given date. These are hard-excluded
// from new issues.
func (db *DB) GetPublishedIdentitiesBefore(date string) (map[string]struct{}, error) {
	rows, err := db.conn.Query(
		"SELECT DISTINCT identity FROM issue_items WHERE issue_date < ?", date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	identities := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		identities[id] = struct{}{}
	}
	return identities, rows.Err()
}

// GetIdentitiesForDate returns the identities featured in the issue for
// one date. Used to penalize yesterday's picks when rebuilding today.
func (db *DB) GetIdentitiesForDate(date string) (map[string]struct{}, error) {
	rows, err := db.conn.Query(
		"SELECT identity FROM issue_items WHERE issue_date = ?", date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	identities := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		identities[id] = struct{}{}
	}
	return identities, rows.Err()
}
