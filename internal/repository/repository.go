package repository

import (
	"context"

	"github.com/au2001/graph-node/internal/domain"
)

// DeploymentRepository resolves selectors and performs the atomic assignment
// transitions. The database is the serialization point: concurrent calls for
// the same deployment observe each other through row-level atomicity, not
// through locking in this layer.
type DeploymentRepository interface {
	ResolveDeployment(ctx context.Context, selector domain.DeploymentSelector) (*domain.Deployment, error)
	GetAssignment(ctx context.Context, deploymentID int64) (*domain.Assignment, error)
	PauseAssignment(ctx context.Context, deploymentID int64) error
	ResumeAssignment(ctx context.Context, deploymentID int64) error
	RemoveAssignment(ctx context.Context, deploymentID int64) error
	SetAssignment(ctx context.Context, deploymentID int64, node domain.NodeID) error
}

// ExecutionRepository is the shared status table for background executions,
// keyed by execution id.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *domain.Execution) error
	UpdateExecutionPhase(ctx context.Context, id, phase string) error
	MarkExecutionFailed(ctx context.Context, id, phase, message string) error
	GetExecutionByID(ctx context.Context, id string) (*domain.Execution, error)
	ListExecutionsByDeployment(ctx context.Context, deploymentID int64, limit int) ([]domain.Execution, error)
}

// MirrorRepository is a read-only, possibly stale view of assignment counts
// used for advisory checks only.
type MirrorRepository interface {
	CountNodeAssignments(ctx context.Context, node domain.NodeID) (int, error)
}
