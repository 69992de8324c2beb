package database

import (
	"database/sql"
	"time"

	"github.com/noyau-news/noyau/internal/content"
)

// timeFormat is how timestamps are stored; RFC3339 sorts lexicographically.
const timeFormat = time.RFC3339

// UpsertItem inserts an item or returns the existing row's ID when the
// (source, url) pair was already ingested. Title, author and body are
// refreshed on conflict so later fetches can fill them in.
func (db *DB) UpsertItem(it *content.Item) (int64, error) {
	_, err := db.conn.Exec(
		`INSERT INTO items (source, source_item_id, url, title, author, published_at, fetched_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, url) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			body = CASE WHEN excluded.body != '' THEN excluded.body ELSE items.body END`,
		string(it.Source), it.SourceItemID, it.URL, it.Title, it.Author,
		it.PublishedAt.UTC().Format(timeFormat), it.FetchedAt.UTC().Format(timeFormat), it.Text,
	)
	if err != nil {
		return 0, err
	}

	// LastInsertId is unreliable on the conflict path; re-query instead.
	var id int64
	row := db.conn.QueryRow("SELECT id FROM items WHERE source = ? AND url = ?", string(it.Source), it.URL)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetItemsInWindow returns all items published at or after the cutoff,
// with their metrics samples attached in captured-at order.
func (db *DB) GetItemsInWindow(cutoff time.Time) ([]*content.Item, error) {
	rows, err := db.conn.Query(
		`SELECT id, source, source_item_id, url, title, author, published_at, fetched_at, body
		FROM items WHERE published_at >= ? ORDER BY published_at DESC`,
		cutoff.UTC().Format(timeFormat),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if err := db.attachSamples(it); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// GetItemByURL returns one item by (source, url), or nil when absent.
func (db *DB) GetItemByURL(source content.Source, url string) (*content.Item, error) {
	row := db.conn.QueryRow(
		`SELECT id, source, source_item_id, url, title, author, published_at, fetched_at, body
		FROM items WHERE source = ? AND url = ?`, string(source), url,
	)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := db.attachSamples(it); err != nil {
		return nil, err
	}
	return it, nil
}

// GetItemsNeedingBody returns items with no body text, oldest window first.
// Social posts are excluded; their text is the post itself.
func (db *DB) GetItemsNeedingBody(cutoff time.Time) ([]*content.Item, error) {
	rows, err := db.conn.Query(
		`SELECT id, source, source_item_id, url, title, author, published_at, fetched_at, body
		FROM items
		WHERE (body IS NULL OR body = '') AND published_at >= ? AND source NOT IN (?, ?)
		ORDER BY published_at DESC`,
		cutoff.UTC().Format(timeFormat), string(content.SourceX), string(content.SourceBluesky),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// UpdateItemBody stores fetched body text for an item.
func (db *DB) UpdateItemBody(itemID int64, body string) error {
	_, err := db.conn.Exec("UPDATE items SET body = ? WHERE id = ?", body, itemID)
	return err
}

func scanItems(rows *sql.Rows) ([]*content.Item, error) {
	var items []*content.Item
	for rows.Next() {
		it, err := scanItemFrom(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanItem(row *sql.Row) (*content.Item, error) {
	return scanItemFrom(row.Scan)
}

func scanItemFrom(scan func(...any) error) (*content.Item, error) {
	var (
		it                     content.Item
		source                 string
		sourceItemID, author   sql.NullString
		body                   sql.NullString
		publishedAt, fetchedAt string
	)
	if err := scan(&it.ID, &source, &sourceItemID, &it.URL, &it.Title, &author,
		&publishedAt, &fetchedAt, &body); err != nil {
		return nil, err
	}
	it.Source = content.Source(source)
	it.SourceItemID = sourceItemID.String
	it.Author = author.String
	it.Text = body.String
	it.PublishedAt, _ = time.Parse(timeFormat, publishedAt)
	it.FetchedAt, _ = time.Parse(timeFormat, fetchedAt)
	return &it, nil
}
