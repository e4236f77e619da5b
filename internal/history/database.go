package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// OpenDatabase opens the SQLite history database at dbPath, creating the
// directory and schema as needed.
func OpenDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != MemoryPath {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == MemoryPath {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA user_version = 1",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	slog.Debug("history database ready", "path", dbPath)
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS playback_runs (
    id             INTEGER PRIMARY KEY,
    run_id         TEXT    NOT NULL UNIQUE,
    started_at     INTEGER NOT NULL,
    finished_at    INTEGER NOT NULL,
    command        TEXT    NOT NULL,
    device         TEXT    NOT NULL,
    backend        TEXT    NOT NULL,
    format         TEXT    NOT NULL,
    requested_rate INTEGER NOT NULL,
    effective_rate INTEGER NOT NULL DEFAULT 0,
    channels       INTEGER NOT NULL,
    periods        INTEGER NOT NULL DEFAULT 0,
    buffer_frames  INTEGER NOT NULL DEFAULT 0,
    frequency      REAL    NOT NULL DEFAULT 0,
    duration_ms    INTEGER NOT NULL DEFAULT 0,
    repeat         INTEGER NOT NULL DEFAULT 1,
    frames_written INTEGER NOT NULL DEFAULT 0,
    input_path     TEXT,
    status         TEXT    NOT NULL CHECK (status IN ('ok', 'failed')),
    failed_stage   TEXT,
    error          TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON playback_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_device ON playback_runs(device);
CREATE INDEX IF NOT EXISTS idx_runs_failed ON playback_runs(failed_stage) WHERE status = 'failed';
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
