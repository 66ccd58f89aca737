package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// OpenStageExecution appends a RUNNING record for the given stage, assigning the
// next attempt number for the (workflow, stage) pair. The attempt sequence is
// computed inside a write transaction so concurrent opens cannot collide.
// Opening fails with a conflict error when another stage record for the same
// workflow is still RUNNING.
func (s *LibSQLStore) OpenStageExecution(ctx context.Context, workflowID string, stage schema.StageName) (*StageExecution, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin stage execution: %w", err)
	}
	defer tx.Rollback()

	// Take the write lock up front so the MAX(attempt) read is serialized.
	if _, err := tx.ExecContext(ctx, "UPDATE schema_version SET version = version WHERE 1=0"); err != nil {
		return nil, fmt.Errorf("acquire write lock: %w", err)
	}

	var running int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stage_execution_log WHERE workflow_id = ? AND status = ?`,
		workflowID, string(schema.StageStatusRunning),
	).Scan(&running)
	if err != nil {
		return nil, err
	}
	if running > 0 {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"workflow %s already has a running stage", workflowID).WithStage(stage)
	}

	var attempt int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(attempt), 0) + 1 FROM stage_execution_log
		 WHERE workflow_id = ? AND stage_name = ?`,
		workflowID, string(stage),
	).Scan(&attempt)
	if err != nil {
		return nil, err
	}

	se := &StageExecution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		StageName:  stage,
		Attempt:    attempt,
		Status:     schema.StageStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO stage_execution_log
		 (id, workflow_id, stage_name, attempt, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		se.ID, se.WorkflowID, string(se.StageName), se.Attempt, string(se.Status), se.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert stage execution: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stage execution: %w", err)
	}
	return se, nil
}

// CloseStageExecution finalizes an open stage record exactly once. Records are
// append-only after closing; re-closing a closed record is a conflict.
func (s *LibSQLStore) CloseStageExecution(ctx context.Context, id string, close StageExecutionClose) error {
	if err := schema.ValidateStageTransition(schema.StageStatusRunning, close.Status); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE stage_execution_log
		 SET status = ?, completed_at = ?, duration_ms = ?, resource_units = ?, error_message = ?
		 WHERE id = ? AND status = ?`,
		string(close.Status), close.CompletedAt, close.DurationMs, close.ResourceUnits,
		nullStr(close.ErrorMessage), id, string(schema.StageStatusRunning),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the record does not exist or it was already closed.
		var status string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM stage_execution_log WHERE id = ?`, id).Scan(&status)
		if err == sql.ErrNoRows {
			return storeNotFound("stage execution", id)
		}
		if err != nil {
			return err
		}
		return schema.NewErrorf(schema.ErrCodeConflict,
			"stage execution %s already closed with status %s", id, status)
	}
	return nil
}
