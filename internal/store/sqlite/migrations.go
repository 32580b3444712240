package sqlite

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations is the list of all schema migrations in order.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "cache_tables",
		SQL: `
			-- Cached (question, answer) rows, partitioned by model scope.
			-- Rows are tombstoned via is_deleted; the vector tier may lag.
			CREATE TABLE IF NOT EXISTS modelcache_llm_answer (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				gmt_create TEXT NOT NULL,
				gmt_modified TEXT NOT NULL,
				question TEXT NOT NULL,
				answer TEXT NOT NULL,
				answer_type INTEGER NOT NULL DEFAULT 0,
				hit_count INTEGER NOT NULL DEFAULT 0,
				model TEXT NOT NULL,
				embedding_data BLOB,
				is_deleted INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX IF NOT EXISTS idx_llm_answer_model ON modelcache_llm_answer(model, is_deleted);

			-- Best-effort audit trail of every request.
			CREATE TABLE IF NOT EXISTS modelcache_query_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				gmt_create TEXT NOT NULL,
				gmt_modified TEXT NOT NULL,
				error_code INTEGER NOT NULL DEFAULT 0,
				error_desc TEXT,
				cache_hit INTEGER NOT NULL DEFAULT 0,
				delta_time REAL NOT NULL DEFAULT 0,
				model TEXT NOT NULL,
				query TEXT,
				hit_query TEXT,
				answer TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_query_log_model ON modelcache_query_log(model);
		`,
	},
}

// runMigrations applies all pending migrations in order.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
