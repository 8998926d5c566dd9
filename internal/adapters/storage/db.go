package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations is the ordered schema history. Never edit a released step;
// append a new one.
var migrations = []migration{
	{
		version: 1,
		name:    "calendar_item",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS calendar_item (
				id TEXT PRIMARY KEY,
				client_id TEXT NOT NULL,
				item_type TEXT NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL DEFAULT '{}',
				position INTEGER NOT NULL DEFAULT 0,
				scheduled_date TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'scheduled',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "calendar_item_day_index",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_calendar_item_client_day
				ON calendar_item (client_id, scheduled_date, position)`,
		},
	},
}

// LatestSchemaVersion returns the version the newest migration produces.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// InitDB configures the connection and applies every pending migration.
// PRE: db is a valid database connection
// POST: WAL mode and foreign keys enabled, schema at LatestSchemaVersion
func InitDB(db *sql.DB, path string) error {
	// WAL is not supported for in-memory databases; ignore the mode it reports.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return MigrateDB(db, path)
}

// SchemaVersion returns the applied schema version, 0 for an untracked database.
func SchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to check schema_version: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}
	var v sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema_version: %w", err)
	}
	return int(v.Int64), nil
}

// MigrateDB applies every migration above the current version, each in its
// own transaction.
// PRE: db is a valid database connection; path names it for logs
// POST: SchemaVersion(db) == LatestSchemaVersion()
// INVARIANT: running it again is a no-op
func MigrateDB(db *sql.DB, path string) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}
	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	if current > LatestSchemaVersion() {
		return fmt.Errorf("database %s is at schema %d, newer than this binary (%d)", path, current, LatestSchemaVersion())
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := apply(db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		slog.Info("schema_migrated", "db_path", path, "version", m.version, "name", m.name)
	}
	return nil
}

func apply(db *sql.DB, m migration) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()
	for _, stmt := range m.stmts {
		if _, err = tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err = tx.Exec(`INSERT INTO schema_version (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}
