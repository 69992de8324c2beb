package database

// InsertRejection records one filtered-out item for audit.
func (db *DB) InsertRejection(r Rejection) error {
	_, err := db.conn.Exec(
		`INSERT INTO filter_rejections (run_date, item_url, item_title, verdict, reason)
		VALUES (?, ?, ?, ?, ?)`,
		r.RunDate, r.ItemURL, r.ItemTitle, r.Verdict, r.Reason,
	)
	return err
}

// GetRejections returns the rejections logged for one run date.
func (db *DB) GetRejections(runDate string) ([]Rejection, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_date, item_url, item_title, verdict, reason, created_at
		FROM filter_rejections WHERE run_date = ? ORDER BY id ASC`, runDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rejections []Rejection
	for rows.Next() {
		var r Rejection
		if err := rows.Scan(&r.ID, &r.RunDate, &r.ItemURL, &r.ItemTitle,
			&r.Verdict, &r.Reason, &r.CreatedAt); err != nil {
			return nil, err
		}
		rejections = append(rejections, r)
	}
	return rejections, rows.Err()
}
