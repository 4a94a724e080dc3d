// Package audit journals executed operations in a SQLite database.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"devprobe/internal/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Status is the outcome of a journaled operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusBlocked Status = "blocked"
)

// Entry is one journaled operation.
type Entry struct {
	ID         string    `json:"id"`
	RunID      string    `json:"runId"`
	Operation  string    `json:"operation"`
	Target     string    `json:"target"`
	Status     Status    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store is the operation journal.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open creates or opens the journal at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Get(logging.CategoryAudit).Debug("journal opened at %s", dbPath)
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		duration_ms INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_operations_created ON operations(created_at);
	CREATE INDEX IF NOT EXISTS idx_operations_run ON operations(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record journals e, filling in the id and timestamp when unset.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RunID == "" {
		e.RunID = e.ID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (id, run_id, operation, target, status, detail, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Operation, e.Target, string(e.Status), e.Detail, e.DurationMs, e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to record %s: %w", e.Operation, err)
	}
	return e, nil
}

// Recent returns the latest n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, operation, target, status, detail, duration_ms, created_at
		FROM operations
		ORDER BY rowid DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Run returns every entry of one run in insertion order.
func (s *Store) Run(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, operation, target, status, detail, duration_ms, created_at
		FROM operations
		WHERE run_id = ?
		ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var status string
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Operation, &e.Target, &status, &detail, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		e.Status = Status(status)
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
