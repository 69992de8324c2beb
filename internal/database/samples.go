package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/noyau-news/noyau/internal/content"
)

// InsertSample appends one metrics snapshot for an item. The counters map
// is stored as JSON so new sources can add their own keys without schema
// changes.
func (db *DB) InsertSample(itemID int64, s content.MetricsSample) error {
	data, err := json.Marshal(s.Metrics)
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}
	_, err = db.conn.Exec(
		"INSERT INTO metrics_samples (item_id, captured_at, metrics) VALUES (?, ?, ?)",
		itemID, s.CapturedAt.UTC().Format(timeFormat), string(data),
	)
	return err
}

// attachSamples loads an item's snapshots, captured-at ascending.
func (db *DB) attachSamples(it *content.Item) error {
	rows, err := db.conn.Query(
		"SELECT captured_at, metrics FROM metrics_samples WHERE item_id = ? ORDER BY captured_at ASC",
		it.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	it.Samples = nil
	for rows.Next() {
		var (
			capturedAt string
			raw        string
		)
		if err := rows.Scan(&capturedAt, &raw); err != nil {
			return err
		}
		var s content.MetricsSample
		s.CapturedAt, _ = time.Parse(timeFormat, capturedAt)
		if err := json.Unmarshal([]byte(raw), &s.Metrics); err != nil {
			return fmt.Errorf("unmarshaling metrics for item %d: %w", it.ID, err)
		}
		it.Samples = append(it.Samples, s)
	}
	return rows.Err()
}
