package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/au2001/graph-node/internal/domain"
	"github.com/au2001/graph-node/internal/repository"
)

// Repository implements the deployment and execution stores on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.DeploymentRepository = (*Repository)(nil)
	_ repository.ExecutionRepository  = (*Repository)(nil)
)

// ResolveDeployment turns a selector into one canonical deployment. A name may
// match several deployments; two rows are enough to prove ambiguity.
func (r *Repository) ResolveDeployment(ctx context.Context, selector domain.DeploymentSelector) (*domain.Deployment, error) {
	if err := selector.Validate(); err != nil {
		return nil, err
	}

	var (
		query string
		arg   any
	)
	switch {
	case selector.ID != nil:
		query = `SELECT id, hash, name, created_at FROM deployments WHERE id = $1`
		arg = *selector.ID
	case selector.Hash != "":
		query = `SELECT id, hash, name, created_at FROM deployments WHERE hash = $1`
		arg = selector.Hash
	default:
		query = `SELECT id, hash, name, created_at FROM deployments WHERE name = $1 LIMIT 2`
		arg = selector.Name
	}

	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []domain.Deployment
	for rows.Next() {
		var d domain.Deployment
		if err := rows.Scan(&d.ID, &d.Hash, &d.Name, &d.CreatedAt); err != nil {
			return nil, err
		}
		matches = append(matches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, repository.ErrNotFound
	case 1:
		return &matches[0], nil
	default:
		return nil, repository.ErrAmbiguous
	}
}

// GetAssignment fetches the assignment row for a deployment.
func (r *Repository) GetAssignment(ctx context.Context, deploymentID int64) (*domain.Assignment, error) {
	const query = `SELECT deployment_id, node_id, paused, paused_at, assigned_at
		FROM assignments WHERE deployment_id = $1`
	row := r.pool.QueryRow(ctx, query, deploymentID)
	var a domain.Assignment
	if err := row.Scan(&a.DeploymentID, &a.NodeID, &a.Paused, &a.PausedAt, &a.AssignedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// PauseAssignment flips the paused flag to true. The WHERE clause makes the
// transition atomic; a zero row count is disambiguated with a second read.
func (r *Repository) PauseAssignment(ctx context.Context, deploymentID int64) error {
	const query = `UPDATE assignments SET paused = TRUE, paused_at = now()
		WHERE deployment_id = $1 AND paused = FALSE`
	tag, err := r.pool.Exec(ctx, query, deploymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.explainPauseConflict(ctx, deploymentID, true)
}

// ResumeAssignment flips the paused flag back to false.
func (r *Repository) ResumeAssignment(ctx context.Context, deploymentID int64) error {
	const query = `UPDATE assignments SET paused = FALSE, paused_at = NULL
		WHERE deployment_id = $1 AND paused = TRUE`
	tag, err := r.pool.Exec(ctx, query, deploymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.explainPauseConflict(ctx, deploymentID, false)
}

func (r *Repository) explainPauseConflict(ctx context.Context, deploymentID int64, wantPause bool) error {
	assignment, err := r.GetAssignment(ctx, deploymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.ErrNotAssigned
		}
		return err
	}
	if wantPause && assignment.Paused {
		return repository.ErrAlreadyPaused
	}
	if !wantPause && !assignment.Paused {
		return repository.ErrNotPaused
	}
	// The row flipped between the update and this read; the caller's
	// transition was effectively applied by a concurrent request.
	if wantPause {
		return repository.ErrAlreadyPaused
	}
	return repository.ErrNotPaused
}

// RemoveAssignment clears the assignment relation. Removing a deployment that
// is already unassigned is a success.
func (r *Repository) RemoveAssignment(ctx context.Context, deploymentID int64) error {
	const query = `DELETE FROM assignments WHERE deployment_id = $1`
	_, err := r.pool.Exec(ctx, query, deploymentID)
	return err
}

// SetAssignment points a deployment at a node, overwriting any prior binding.
// The paused flag survives a reassign.
func (r *Repository) SetAssignment(ctx context.Context, deploymentID int64, node domain.NodeID) error {
	const query = `INSERT INTO assignments (deployment_id, node_id, assigned_at)
		VALUES ($1, $2, now())
		ON CONFLICT (deployment_id) DO UPDATE SET node_id = EXCLUDED.node_id, assigned_at = now()`
	_, err := r.pool.Exec(ctx, query, deploymentID, node.String())
	return err
}
