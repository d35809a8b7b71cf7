// Package persistence implements §4.6: durable storage for RunInfo and
// NodeExecution records over an embedded SQLite database, grounded on the
// retrieval pack's dshills-langgraph-go/graph/store/sqlite.go (WAL mode,
// single-writer connection, busy_timeout) rather than the teacher's own
// trace-file persistence, which has no relational/KV store of its own.
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed implementation of ports.RunRepository and
// ports.NodeExecutionRepository, holding the two logical tables of §6:
// runs and executions.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and ensures
// its schema exists. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}
	// SQLite allows exactly one writer; a single pooled connection avoids
	// SQLITE_BUSY churn under the engine's sequential write pattern (§5).
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) createTables(ctx context.Context) error {
	const runsTable = `
		CREATE TABLE IF NOT EXISTS runs (
			workflow_name TEXT NOT NULL,
			run_id        INTEGER NOT NULL,
			start_time    TEXT NOT NULL,
			end_time      TEXT,
			status        TEXT NOT NULL,
			nodes_ok      INTEGER NOT NULL DEFAULT 0,
			nodes_nok     INTEGER NOT NULL DEFAULT 0,
			nodes_skipped INTEGER NOT NULL DEFAULT 0,
			trigger       TEXT NOT NULL,
			PRIMARY KEY (workflow_name, run_id)
		)`
	if _, err := s.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}

	const executionsTable = `
		CREATE TABLE IF NOT EXISTS executions (
			workflow_name     TEXT NOT NULL,
			run_id            INTEGER NOT NULL,
			node_id           TEXT NOT NULL,
			attempt           INTEGER NOT NULL,
			start_time        TEXT NOT NULL,
			end_time          TEXT,
			status            TEXT NOT NULL,
			operator_decision TEXT,
			result_text       TEXT,
			exit_code         INTEGER,
			exception         TEXT,
			stdout            TEXT,
			stderr            TEXT,
			duration_ms       INTEGER,
			trace_id          TEXT,
			PRIMARY KEY (workflow_name, run_id, node_id, attempt)
		)`
	if _, err := s.db.ExecContext(ctx, executionsTable); err != nil {
		return fmt.Errorf("create executions table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_executions_run ON executions(workflow_name, run_id, node_id, attempt)"); err != nil {
		return fmt.Errorf("create executions index: %w", err)
	}
	return nil
}

// newTraceID returns an opaque token recorded alongside a write for
// internal tracing/debugging; it is not part of NodeExecution's persisted
// identity (§3) — google/uuid is used here only, per SPEC_FULL.md.
func newTraceID() string { return uuid.NewString() }
