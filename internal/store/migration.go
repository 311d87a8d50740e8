package store

import (
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 2

// RunMigrations applies any pending database migrations
func (s *Store) RunMigrations() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version < 2 {
		if err := s.migrateToV2(); err != nil {
			return fmt.Errorf("migration to v2 failed: %w", err)
		}
	}

	return nil
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion() (int, error) {
	return s.getSchemaVersion()
}

// getSchemaVersion returns the current schema version, 1 if not set
func (s *Store) getSchemaVersion() (int, error) {
	var tableName string
	err := s.db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='blockcast_schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 1) FROM blockcast_schema_version").Scan(&version)
	if err != nil {
		return 1, nil
	}

	return version, nil
}

// migrateToV2 indexes sessions for expiry sweeps and per-user lookups
func (s *Store) migrateToV2() error {
	migrations := []string{
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(username)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	_, err := s.db.Exec("INSERT OR REPLACE INTO blockcast_schema_version (version) VALUES (?)", currentSchemaVersion)
	return err
}
