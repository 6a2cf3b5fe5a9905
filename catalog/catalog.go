// Package catalog records analysis runs in a SQLite database: which sessions
// were processed, the refined events and windows they produced, and where
// each window was clustered.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	fruition "github.com/lucasjlepore/fruition-analyzer"
	"github.com/lucasjlepore/fruition-analyzer/cluster"
)

// Window statuses.
const (
	StatusKept      = "kept"
	StatusSkipped   = "skipped"
	StatusDiscarded = "discarded"
)

// Catalog is an open run catalog.
type Catalog struct {
	db   *sql.DB
	path string
}

// Open opens or creates the catalog database at path.
func Open(ctx context.Context, path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize catalog: %w", err)
	}
	return &Catalog{db: db, path: path}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Path returns the database file path.
func (c *Catalog) Path() string {
	return c.path
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Run is one catalogued invocation.
type Run struct {
	ID         string
	Command    string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    *fruition.Summary
}

// BeginRun inserts a running run and returns its id. config is stored as JSON.
func (c *Catalog) BeginRun(ctx context.Context, command string, config any) (string, error) {
	cfg, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("encode run config: %w", err)
	}
	id := uuid.New().String()
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, config, status, started_at) VALUES (?, ?, ?, 'running', ?)`,
		id, command, string(cfg), now()); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun marks the run ok, or failed when runErr is set, and stores the summary.
func (c *Catalog) FinishRun(ctx context.Context, runID string, summary *fruition.Summary, runErr error) error {
	status := "ok"
	if runErr != nil {
		status = "failed"
	}
	var encoded sql.NullString
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("encode run summary: %w", err)
		}
		encoded = sql.NullString{String: string(b), Valid: true}
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		status, encoded, now(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: run %s not found", runID)
	}
	return nil
}

// Session is one session row.
type Session struct {
	SessionID    string
	SourcePath   string
	SourceSHA256 string
	TablePath    string
	Seconds      int
	Mentions     int
	Skipped      bool
	Reason       string
}

// RecordSession upserts a session of the run.
func (c *Catalog) RecordSession(ctx context.Context, runID string, s Session) error {
	_, err := c.db.ExecContext(ctx, `
INSERT INTO sessions (run_id, session_id, source_path, source_sha256, table_path, seconds, mentions, skipped, reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, session_id) DO UPDATE SET
    source_path = excluded.source_path,
    source_sha256 = excluded.source_sha256,
    table_path = excluded.table_path,
    seconds = excluded.seconds,
    mentions = excluded.mentions,
    skipped = excluded.skipped,
    reason = excluded.reason`,
		runID, s.SessionID, s.SourcePath, s.SourceSHA256, s.TablePath, s.Seconds, s.Mentions, s.Skipped, s.Reason)
	if err != nil {
		return fmt.Errorf("record session %s: %w", s.SessionID, err)
	}
	return nil
}

// RecordEvents stores a session's refined events with 1-based ordinals.
func (c *Catalog) RecordEvents(ctx context.Context, runID, sessionID string, events []fruition.RefinedEvent) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record events: %w", err)
	}
	defer tx.Rollback()

	for i, ev := range events {
		var mention sql.NullInt64
		if ev.MentionRow >= 0 {
			mention = sql.NullInt64{Int64: int64(ev.MentionRow), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO events (run_id, session_id, ordinal, event_row, event_second, mention_row) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, sessionID, i+1, ev.Row, ev.Second, mention); err != nil {
			return fmt.Errorf("record event %d of %s: %w", i+1, sessionID, err)
		}
	}
	return tx.Commit()
}

// Window is one window row.
type Window struct {
	Label       string
	SessionID   string
	Ordinal     int
	EventSecond int
	Status      string
	Reason      string
}

// RecordWindow stores the outcome of one window extraction.
func (c *Catalog) RecordWindow(ctx context.Context, runID string, w Window) error {
	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO windows (run_id, label, session_id, ordinal, event_second, status, reason) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, w.Label, w.SessionID, w.Ordinal, w.EventSecond, w.Status, w.Reason); err != nil {
		return fmt.Errorf("record window %s: %w", w.Label, err)
	}
	return nil
}

// RecordClustering stores both clustering phases of an engine result.
func (c *Catalog) RecordClustering(ctx context.Context, runID string, res *cluster.Result) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record clustering: %w", err)
	}
	defer tx.Rollback()

	insert := func(phase, label string, id int, coords []float64, outlier bool) error {
		var pc1, pc2 sql.NullFloat64
		if len(coords) > 0 {
			pc1 = sql.NullFloat64{Float64: coords[0], Valid: true}
		}
		if len(coords) > 1 {
			pc2 = sql.NullFloat64{Float64: coords[1], Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO assignments (run_id, phase, label, cluster, pc1, pc2, outlier) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, phase, label, id, pc1, pc2, outlier)
		return err
	}
	for i, label := range res.Labels {
		if err := insert("initial", label, res.Initial[i], res.Projection[i], i == res.OutlierIndex); err != nil {
			return fmt.Errorf("record initial assignment %s: %w", label, err)
		}
	}
	for i, label := range res.Remaining {
		if err := insert("final", label, res.Final[i], res.CleanProjection[i], false); err != nil {
			return fmt.Errorf("record final assignment %s: %w", label, err)
		}
	}
	return tx.Commit()
}

// Runs lists catalogued runs, newest first.
func (c *Catalog) Runs(ctx context.Context) ([]Run, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, command, status, started_at, finished_at, summary FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started string
		var finished, summary sql.NullString
		if err := rows.Scan(&r.ID, &r.Command, &r.Status, &started, &finished, &summary); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
		}
		if summary.Valid {
			r.Summary = &fruition.Summary{}
			if err := json.Unmarshal([]byte(summary.String), r.Summary); err != nil {
				return nil, fmt.Errorf("decode summary of run %s: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Windows lists a run's windows in label order, optionally filtered by status.
func (c *Catalog) Windows(ctx context.Context, runID, status string) ([]Window, error) {
	query := `SELECT label, session_id, ordinal, event_second, status, COALESCE(reason, '') FROM windows WHERE run_id = ?`
	args := []any{runID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	rows, err := c.db.QueryContext(ctx, query+` ORDER BY label`, args...)
	if err != nil {
		return nil, fmt.Errorf("query windows: %w", err)
	}
	defer rows.Close()

	var out []Window
	for rows.Next() {
		var w Window
		if err := rows.Scan(&w.Label, &w.SessionID, &w.Ordinal, &w.EventSecond, &w.Status, &w.Reason); err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Assignments returns label to cluster for one phase of a run.
func (c *Catalog) Assignments(ctx context.Context, runID, phase string) (map[string]int, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT label, cluster FROM assignments WHERE run_id = ? AND phase = ?`, runID, phase)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			label string
			id    int
		)
		if err := rows.Scan(&label, &id); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out[label] = id
	}
	return out, rows.Err()
}

// Sessions lists a run's sessions by id.
func (c *Catalog) Sessions(ctx context.Context, runID string) ([]Session, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT session_id, COALESCE(source_path, ''), COALESCE(source_sha256, ''), COALESCE(table_path, ''),
       seconds, mentions, skipped, COALESCE(reason, '')
FROM sessions WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.SessionID, &s.SourcePath, &s.SourceSHA256, &s.TablePath,
			&s.Seconds, &s.Mentions, &s.Skipped, &s.Reason); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}
