package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the usage ledger at path and
// ensures the runs and usage tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(pctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	db.SetMaxOpenConns(1)

	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			prompt       TEXT NOT NULL,
			provider     TEXT NOT NULL,
			model        TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'queued',
			response     TEXT,
			error        TEXT,
			started_at   TEXT,
			completed_at TEXT,
			updated_at   TEXT NOT NULL,
			created_at   TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS usage (
			id                          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id                      TEXT NOT NULL REFERENCES runs(id),
			turn                        INTEGER NOT NULL,
			input_tokens                INTEGER NOT NULL,
			output_tokens               INTEGER NOT NULL,
			cache_creation_input_tokens INTEGER NOT NULL DEFAULT 0,
			cache_read_input_tokens     INTEGER NOT NULL DEFAULT 0,
			parallel_count              INTEGER NOT NULL DEFAULT 0,
			created_at                  TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS usage_run_id_idx ON usage(run_id, turn);`,
		`CREATE INDEX IF NOT EXISTS runs_status_idx ON runs(status, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
