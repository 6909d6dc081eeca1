package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/au2001/graph-node/internal/domain"
	"github.com/au2001/graph-node/internal/repository"
)

// CreateExecution inserts a fresh execution record in its submitted phase.
func (r *Repository) CreateExecution(ctx context.Context, execution *domain.Execution) error {
	const query = `INSERT INTO executions (id, deployment_id, kind, phase, delay_ms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`
	_, err := r.pool.Exec(ctx, query,
		execution.ID,
		execution.DeploymentID,
		execution.Kind,
		execution.Phase,
		execution.Delay.Milliseconds(),
		execution.CreatedAt,
	)
	return err
}

// UpdateExecutionPhase advances an execution to the given phase. A terminal
// phase also stamps completed_at.
func (r *Repository) UpdateExecutionPhase(ctx context.Context, id, phase string) error {
	const query = `UPDATE executions SET phase = $2, updated_at = now(),
		completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE completed_at END
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, phase)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkExecutionFailed records the failing phase and its error message.
func (r *Repository) MarkExecutionFailed(ctx context.Context, id, phase, message string) error {
	const query = `UPDATE executions SET phase = 'failed', error = $3, updated_at = now(), completed_at = now()
		WHERE id = $1 AND phase = $2`
	tag, err := r.pool.Exec(ctx, query, id, phase, message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetExecutionByID fetches one execution.
func (r *Repository) GetExecutionByID(ctx context.Context, id string) (*domain.Execution, error) {
	const query = `SELECT id, deployment_id, kind, phase, delay_ms, COALESCE(error, ''), created_at, updated_at, completed_at
		FROM executions WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanExecution(row)
}

// ListExecutionsByDeployment returns the most recent executions for a
// deployment, newest first.
func (r *Repository) ListExecutionsByDeployment(ctx context.Context, deploymentID int64, limit int) ([]domain.Execution, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, deployment_id, kind, phase, delay_ms, COALESCE(error, ''), created_at, updated_at, completed_at
		FROM executions WHERE deployment_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, deploymentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []domain.Execution
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *execution)
	}
	return executions, rows.Err()
}

func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var (
		e       domain.Execution
		delayMS int64
	)
	if err := row.Scan(&e.ID, &e.DeploymentID, &e.Kind, &e.Phase, &delayMS, &e.Error, &e.CreatedAt, &e.UpdatedAt, &e.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	e.Delay = time.Duration(delayMS) * time.Millisecond
	return &e, nil
}
