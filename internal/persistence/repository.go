package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ormasoftchile/playbook/internal/domain"
	"github.com/ormasoftchile/playbook/internal/errs"
)

const timeLayout = time.RFC3339Nano

// CreateRun assigns the next run_id for workflowName — max existing + 1,
// scoped per workflow — inside a transaction, so two concurrent CreateRun
// calls on the same workflow cannot collide (§4.6).
func (s *Store) CreateRun(ctx context.Context, workflowName string, trigger domain.Trigger, startTime time.Time) (*domain.RunInfo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistence, err, "begin create-run transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op if committed

	var maxID sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT MAX(run_id) FROM runs WHERE workflow_name = ?`, workflowName)
	if err := row.Scan(&maxID); err != nil {
		return nil, errs.Wrap(errs.KindPersistence, err, "query max run_id for %q", workflowName)
	}
	nextID := int64(1)
	if maxID.Valid {
		nextID = maxID.Int64 + 1
	}

	run := &domain.RunInfo{
		WorkflowName: workflowName,
		RunID:        nextID,
		StartTime:    startTime,
		Status:       domain.RunRunning,
		Trigger:      trigger,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (workflow_name, run_id, start_time, end_time, status, nodes_ok, nodes_nok, nodes_skipped, trigger)
		VALUES (?, ?, ?, NULL, ?, 0, 0, 0, ?)`,
		run.WorkflowName, run.RunID, run.StartTime.Format(timeLayout), string(run.Status), string(run.Trigger))
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistence, err, "insert run (%s, %d)", workflowName, nextID)
	}
	if err := tx.Commit(); err != nil {
		return nil, errs.Wrap(errs.KindPersistence, err, "commit create-run transaction")
	}
	return run, nil
}

// UpdateRun persists the current in-memory state of run, keyed by its
// identity (§4.6 update is idempotent on the key).
func (s *Store) UpdateRun(ctx context.Context, run *domain.RunInfo) error {
	var endTime any
	if run.EndTime != nil {
		endTime = run.EndTime.Format(timeLayout)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET end_time = ?, status = ?, nodes_ok = ?, nodes_nok = ?, nodes_skipped = ?, trigger = ?
		WHERE workflow_name = ? AND run_id = ?`,
		endTime, string(run.Status), run.NodesOK, run.NodesNOK, run.NodesSkipped, string(run.Trigger),
		run.WorkflowName, run.RunID)
	if err != nil {
		return errs.Wrap(errs.KindPersistence, err, "update run (%s, %d)", run.WorkflowName, run.RunID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.KindPersistence, err, "rows affected for update run")
	}
	if n == 0 {
		return errs.New(errs.KindPersistence, "update run: no such run (%s, %d)", run.WorkflowName, run.RunID)
	}
	return nil
}

// GetRun returns the run identified by (workflowName, runID).
func (s *Store) GetRun(ctx context.Context, workflowName string, runID int64) (*domain.RunInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_name, run_id, start_time, end_time, status, nodes_ok, nodes_nok, nodes_skipped, trigger
		FROM runs WHERE workflow_name = ? AND run_id = ?`, workflowName, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.KindPersistence, "no such run (%s, %d)", workflowName, runID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistence, err, "get run (%s, %d)", workflowName, runID)
	}
	return run, nil
}

// ListRuns returns every run of workflowName, most recent first.
func (s *Store) ListRuns(ctx context.Context, workflowName string) ([]*domain.RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_name, run_id, start_time, end_time, status, nodes_ok, nodes_nok, nodes_skipped, trigger
		FROM runs WHERE workflow_name = ? ORDER BY run_id DESC`, workflowName)
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistence, err, "list runs for %q", workflowName)
	}
	defer rows.Close()

	var out []*domain.RunInfo
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindPersistence, err, "scan run row")
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.RunInfo, error) {
	var run domain.RunInfo
	var startTime string
	var endTime sql.NullString
	var status, trigger string
	if err := row.Scan(&run.WorkflowName, &run.RunID, &startTime, &endTime, &status,
		&run.NodesOK, &run.NodesNOK, &run.NodesSkipped, &trigger); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, startTime)
	if err != nil {
		return nil, fmt.Errorf("parse start_time %q: %w", startTime, err)
	}
	run.StartTime = t
	if endTime.Valid {
		et, err := time.Parse(timeLayout, endTime.String)
		if err != nil {
			return nil, fmt.Errorf("parse end_time %q: %w", endTime.String, err)
		}
		run.EndTime = &et
	}
	run.Status = domain.RunStatus(status)
	run.Trigger = domain.Trigger(trigger)
	return &run, nil
}

// CreateExecution persists a new attempt record. A trace id (§ SPEC_FULL.md
// DOMAIN STACK) is stamped for internal write-path debugging; it is not
// part of NodeExecution's identity and is never read back into the struct.
func (s *Store) CreateExecution(ctx context.Context, e *domain.NodeExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (workflow_name, run_id, node_id, attempt, start_time, end_time, status,
			operator_decision, result_text, exit_code, exception, stdout, stderr, duration_ms, trace_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.WorkflowName, e.RunID, e.NodeID, e.Attempt, e.StartTime.Format(timeLayout),
		nullableTime(e.EndTime), string(e.Status), nullableDecision(e.OperatorDecision),
		e.ResultText, nullableInt(e.ExitCode), e.Exception, e.Stdout, e.Stderr, e.DurationMS, newTraceID())
	if err != nil {
		return errs.Wrap(errs.KindPersistence, err, "insert execution (%s, %d, %s, %d)",
			e.WorkflowName, e.RunID, e.NodeID, e.Attempt)
	}
	return nil
}

// UpdateExecution persists the current in-memory state of an attempt
// record, keyed by its four-part identity.
func (s *Store) UpdateExecution(ctx context.Context, e *domain.NodeExecution) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE executions SET end_time = ?, status = ?, operator_decision = ?, result_text = ?,
			exit_code = ?, exception = ?, stdout = ?, stderr = ?, duration_ms = ?
		WHERE workflow_name = ? AND run_id = ? AND node_id = ? AND attempt = ?`,
		nullableTime(e.EndTime), string(e.Status), nullableDecision(e.OperatorDecision), e.ResultText,
		nullableInt(e.ExitCode), e.Exception, e.Stdout, e.Stderr, e.DurationMS,
		e.WorkflowName, e.RunID, e.NodeID, e.Attempt)
	if err != nil {
		return errs.Wrap(errs.KindPersistence, err, "update execution (%s, %d, %s, %d)",
			e.WorkflowName, e.RunID, e.NodeID, e.Attempt)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.KindPersistence, err, "rows affected for update execution")
	}
	if n == 0 {
		return errs.New(errs.KindPersistence, "update execution: no such attempt (%s, %d, %s, %d)",
			e.WorkflowName, e.RunID, e.NodeID, e.Attempt)
	}
	return nil
}

// ListExecutions returns every attempt of every node in a run, ordered by
// (node_id, attempt) per §4.6.
func (s *Store) ListExecutions(ctx context.Context, workflowName string, runID int64) ([]*domain.NodeExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_name, run_id, node_id, attempt, start_time, end_time, status,
			operator_decision, result_text, exit_code, exception, stdout, stderr, duration_ms
		FROM executions WHERE workflow_name = ? AND run_id = ? ORDER BY node_id, attempt`, workflowName, runID)
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistence, err, "list executions (%s, %d)", workflowName, runID)
	}
	defer rows.Close()

	var out []*domain.NodeExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindPersistence, err, "scan execution row")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestExecution returns the highest-attempt record for a node, or nil if
// the node has no recorded attempt yet in this run.
func (s *Store) LatestExecution(ctx context.Context, workflowName string, runID int64, nodeID string) (*domain.NodeExecution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_name, run_id, node_id, attempt, start_time, end_time, status,
			operator_decision, result_text, exit_code, exception, stdout, stderr, duration_ms
		FROM executions WHERE workflow_name = ? AND run_id = ? AND node_id = ?
		ORDER BY attempt DESC LIMIT 1`, workflowName, runID, nodeID)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistence, err, "latest execution (%s, %d, %s)", workflowName, runID, nodeID)
	}
	return e, nil
}

func scanExecution(row rowScanner) (*domain.NodeExecution, error) {
	var e domain.NodeExecution
	var startTime string
	var endTime, operatorDecision, exception, stdout, stderr sql.NullString
	var exitCode, durationMS sql.NullInt64
	var status string
	if err := row.Scan(&e.WorkflowName, &e.RunID, &e.NodeID, &e.Attempt, &startTime, &endTime, &status,
		&operatorDecision, &e.ResultText, &exitCode, &exception, &stdout, &stderr, &durationMS); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, startTime)
	if err != nil {
		return nil, fmt.Errorf("parse start_time %q: %w", startTime, err)
	}
	e.StartTime = t
	e.Status = domain.NodeStatus(status)
	if endTime.Valid {
		et, err := time.Parse(timeLayout, endTime.String)
		if err != nil {
			return nil, fmt.Errorf("parse end_time %q: %w", endTime.String, err)
		}
		e.EndTime = &et
	}
	if operatorDecision.Valid {
		d := domain.OperatorDecision(operatorDecision.String)
		e.OperatorDecision = &d
	}
	if exception.Valid {
		e.Exception = exception.String
	}
	if stdout.Valid {
		e.Stdout = stdout.String
	}
	if stderr.Valid {
		e.Stderr = stderr.String
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		e.ExitCode = &v
	}
	e.DurationMS = durationMS.Int64
	return &e, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

func nullableDecision(d *domain.OperatorDecision) any {
	if d == nil {
		return nil
	}
	return string(*d)
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
