// Package ledger persists terminal task envelopes to SQLite for diagnostics.
// The ledger is write-behind accounting for the status surface and CLI; it
// is not a durable queue and losing it never affects task execution.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"typetrace/internal/config"
	"typetrace/internal/pool"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS task_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	task_id INTEGER NOT NULL,
	task_type TEXT NOT NULL,
	state TEXT NOT NULL,
	success INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	submitted_at TEXT NOT NULL,
	completed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_history_completed ON task_history(completed_at);
`

// Entry is one recorded terminal task.
type Entry struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	TaskID      uint64    `json:"task_id"`
	TaskType    string    `json:"task_type"`
	State       string    `json:"state"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// HealthSummary aggregates ledger counts.
type HealthSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db        *sql.DB
	path      string
	sessionID string
}

// Open initializes or connects to the ledger database. sessionID tags rows
// written by this daemon run.
func Open(cfg *config.Config, sessionID string) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.LedgerPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}

	return &Store{db: db, path: dbPath, sessionID: sessionID}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SessionID returns the id tagging rows written through this store.
func (s *Store) SessionID() string {
	if s == nil {
		return ""
	}
	return s.sessionID
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Record appends one terminal task.
func (s *Store) Record(ctx context.Context, settled pool.Settled) error {
	return s.execWithRetry(ctx,
		`INSERT INTO task_history
			(session_id, task_id, task_type, state, success, error, duration_ms, submitted_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sessionID,
		int64(settled.Result.TaskID),
		settled.Result.TaskType,
		string(settled.State),
		boolToInt(settled.Result.Success),
		settled.Result.Error,
		settled.Result.DurationMS,
		settled.SubmittedAt.UTC().Format(time.RFC3339Nano),
		settled.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
}

// Recent returns the most recently completed entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, task_id, task_type, state, success, error, duration_ms, submitted_at, completed_at
		 FROM task_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query task history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var success int
		var submitted, completed string
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.TaskID, &entry.TaskType,
			&entry.State, &success, &entry.Error, &entry.DurationMS, &submitted, &completed); err != nil {
			return nil, fmt.Errorf("scan task history: %w", err)
		}
		entry.Success = success != 0
		entry.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submitted)
		entry.CompletedAt, _ = time.Parse(time.RFC3339Nano, completed)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Health returns aggregate counts.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	ctx = ensureContext(ctx)
	var summary HealthSummary
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN state = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END), 0)
		 FROM task_history`)
	if err := row.Scan(&summary.Total, &summary.Completed, &summary.Failed); err != nil {
		return HealthSummary{}, fmt.Errorf("ledger health: %w", err)
	}
	return summary, nil
}

// Prune keeps only the newest keep entries.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	ctx = ensureContext(ctx)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_history WHERE id NOT IN
			(SELECT id FROM task_history ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune task history: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		_, lastErr = s.db.ExecContext(ctx, query, args...)
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
