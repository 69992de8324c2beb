package database

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// schemaVersion reads PRAGMA user_version.
func schemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// hasUnversionedSchema reports whether tables exist without a recorded
// user_version, i.e. a database created before versioning was in place.
func hasUnversionedSchema(conn *sql.DB) (bool, error) {
	var count int
	err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='items'",
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking for unversioned tables: %w", err)
	}
	return count > 0, nil
}

// migrate applies every migration newer than the recorded user_version.
func migrate(conn *sql.DB) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}

	if current == 0 {
		unversioned, err := hasUnversionedSchema(conn)
		if err != nil {
			return err
		}
		if unversioned {
			// The schema predates version tracking and matches
			// migration 1; record that instead of re-running it.
			log.Info().Msg("stamping unversioned database as schema version 1")
			if _, err := conn.Exec("PRAGMA user_version = 1"); err != nil {
				return fmt.Errorf("stamping schema version: %w", err)
			}
			current = 1
		}
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(conn, m); err != nil {
			return err
		}
	}
	return nil
}

func apply(conn *sql.DB, m Migration) error {
	log.Info().Int("version", m.Version).Str("description", m.Description).Msg("applying migration")

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}

	// user_version cannot be set inside the transaction with this driver.
	// A crash between commit and here is fine: the DDL is idempotent.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("setting schema version %d: %w", m.Version, err)
	}
	return nil
}
