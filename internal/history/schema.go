package history

import (
	"database/sql"
)

const currentSchemaVersion = 1

// initSchema creates tables on first open and migrates existing databases.
func (s *Store) initSchema() error {
	return s.withTx(func(tx *sql.Tx) error {
		statements := []string{
			`CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS test_runs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				test_path TEXT NOT NULL,
				executed_at INTEGER NOT NULL,
				duration_ms INTEGER NOT NULL,
				success INTEGER NOT NULL,
				output BLOB
			)`,
			`CREATE INDEX IF NOT EXISTS idx_test_runs_path ON test_runs(test_path)`,
			`CREATE TABLE IF NOT EXISTS test_stats (
				test_path TEXT PRIMARY KEY,
				total_runs INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS selection_cache (
				commit_hash TEXT PRIMARY KEY,
				result BLOB NOT NULL,
				created_at INTEGER NOT NULL
			)`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}

		var version int
		err := tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
		if err == sql.ErrNoRows {
			_, err = tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion)
			return err
		}
		if err != nil {
			return err
		}

		// Migrations go here as the schema evolves; version 1 is current.
		return nil
	})
}
