package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current catalog schema version.
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    command TEXT NOT NULL,
    config TEXT,            -- JSON
    status TEXT NOT NULL,   -- 'running', 'ok', 'failed'
    summary TEXT,           -- JSON
    started_at TEXT NOT NULL,
    finished_at TEXT
);

CREATE TABLE IF NOT EXISTS sessions (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    session_id TEXT NOT NULL,
    source_path TEXT,
    source_sha256 TEXT,
    table_path TEXT,
    seconds INTEGER DEFAULT 0,
    mentions INTEGER DEFAULT 0,
    skipped INTEGER DEFAULT 0,
    reason TEXT,
    PRIMARY KEY (run_id, session_id)
);

CREATE TABLE IF NOT EXISTS events (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    session_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    event_row INTEGER NOT NULL,
    event_second INTEGER NOT NULL,
    mention_row INTEGER,
    PRIMARY KEY (run_id, session_id, ordinal)
);

CREATE TABLE IF NOT EXISTS windows (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    label TEXT NOT NULL,
    session_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    event_second INTEGER NOT NULL,
    status TEXT NOT NULL,   -- 'kept', 'skipped', 'discarded'
    reason TEXT,
    PRIMARY KEY (run_id, label)
);
CREATE INDEX IF NOT EXISTS idx_windows_status ON windows(run_id, status);

CREATE TABLE IF NOT EXISTS assignments (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    phase TEXT NOT NULL,    -- 'initial', 'final'
    label TEXT NOT NULL,
    cluster INTEGER NOT NULL,
    pc1 REAL,
    pc2 REAL,
    outlier INTEGER DEFAULT 0,
    PRIMARY KEY (run_id, phase, label)
);
`

// InitSchema creates the catalog tables when missing.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version.Valid && version.Int64 > SchemaVersion {
		return fmt.Errorf("catalog schema version %d is newer than supported %d", version.Int64, SchemaVersion)
	}
	if !version.Valid {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`, SchemaVersion, now()); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return nil
}
