package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateBringsNewDBToLatest(t *testing.T) {
	db := openTestDB(t)

	version, err := schemaVersion(db.conn)
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("version = %d, want %d", version, latestVersion())
	}
}

func TestMigrateStampsUnversionedDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "unversioned.db")

	// Tables present but user_version never set.
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := raw.Exec(`CREATE TABLE items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		title TEXT NOT NULL
	)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	raw.Close()

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	version, err := schemaVersion(db.conn)
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("version = %d after stamping, want %d", version, latestVersion())
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	for i := 0; i < 2; i++ {
		db, err := Open(dbPath)
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		version, err := schemaVersion(db.conn)
		db.Close()
		if err != nil {
			t.Fatalf("schemaVersion: %v", err)
		}
		if version != latestVersion() {
			t.Errorf("open #%d: version = %d, want %d", i+1, version, latestVersion())
		}
	}
}

func TestSchemaVersionZeroOnEmptyDB(t *testing.T) {
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := schemaVersion(conn)
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("version = %d on empty db, want 0", version)
	}

	unversioned, err := hasUnversionedSchema(conn)
	if err != nil {
		t.Fatalf("hasUnversionedSchema: %v", err)
	}
	if unversioned {
		t.Error("empty database must not be treated as unversioned schema")
	}
}
