package deployment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/au2001/graph-node/internal/domain"
	"github.com/au2001/graph-node/internal/repository"
)

// Ack is the uniform success response for assignment mutations. Warning is an
// optional advisory that never affects the outcome of the mutation itself.
type Ack struct {
	Warning string `json:"warning,omitempty"`
}

// Service performs the synchronous assignment-state transitions for
// deployments. Transition atomicity is delegated to the store; this layer
// resolves the selector exactly once per call and shapes errors and warnings.
type Service struct {
	deployments repository.DeploymentRepository
	mirror      repository.MirrorRepository
	logger      *slog.Logger
}

// New constructs a deployment service.
func New(deployments repository.DeploymentRepository, mirror repository.MirrorRepository, logger *slog.Logger) Service {
	return Service{
		deployments: deployments,
		mirror:      mirror,
		logger:      logger,
	}
}

// Resolve turns a selector into one canonical deployment.
func (s Service) Resolve(ctx context.Context, selector domain.DeploymentSelector) (*domain.Deployment, error) {
	return s.deployments.ResolveDeployment(ctx, selector)
}

// Pause marks a deployment's assignment as paused. Pausing an already paused
// deployment is an error, not a no-op; callers are expected to check state
// first.
func (s Service) Pause(ctx context.Context, selector domain.DeploymentSelector) (Ack, error) {
	dep, err := s.Resolve(ctx, selector)
	if err != nil {
		return Ack{}, err
	}
	if err := s.PauseDeployment(ctx, *dep); err != nil {
		return Ack{}, err
	}
	return Ack{}, nil
}

// Resume clears the paused flag on a deployment's assignment.
func (s Service) Resume(ctx context.Context, selector domain.DeploymentSelector) (Ack, error) {
	dep, err := s.Resolve(ctx, selector)
	if err != nil {
		return Ack{}, err
	}
	if err := s.ResumeDeployment(ctx, *dep); err != nil {
		return Ack{}, err
	}
	return Ack{}, nil
}

// Unassign removes the node binding for a deployment. Unassigning a
// deployment that has no assignment succeeds; the operation expresses "ensure
// no node owns this".
func (s Service) Unassign(ctx context.Context, selector domain.DeploymentSelector) (Ack, error) {
	dep, err := s.Resolve(ctx, selector)
	if err != nil {
		return Ack{}, err
	}
	if err := s.deployments.RemoveAssignment(ctx, dep.ID); err != nil {
		return Ack{}, err
	}
	s.logger.Info("deployment unassigned", "deployment_id", dep.ID, "hash", dep.Hash)
	return Ack{}, nil
}

// Reassign points a deployment at a node, overwriting any prior binding. The
// mutation commits before the advisory check runs, and a mirror read failure
// never fails the call.
func (s Service) Reassign(ctx context.Context, selector domain.DeploymentSelector, nodeToken string) (Ack, error) {
	node, err := domain.NewNodeID(nodeToken)
	if err != nil {
		return Ack{}, err
	}
	dep, err := s.Resolve(ctx, selector)
	if err != nil {
		return Ack{}, err
	}
	if err := s.deployments.SetAssignment(ctx, dep.ID, node); err != nil {
		return Ack{}, err
	}
	s.logger.Info("deployment reassigned", "deployment_id", dep.ID, "hash", dep.Hash, "node", node.String())
	return Ack{Warning: s.lonelyNodeWarning(ctx, node)}, nil
}

// lonelyNodeWarning flags a node that, post-commit, runs exactly one
// deployment: a likely sign of a mistyped node id.
func (s Service) lonelyNodeWarning(ctx context.Context, node domain.NodeID) string {
	count, err := s.mirror.CountNodeAssignments(ctx, node)
	if err != nil {
		s.logger.Warn("assignment count read failed, skipping warning", "node", node.String(), "error", err)
		return ""
	}
	if count != 1 {
		return ""
	}
	return fmt.Sprintf("warning: this is the only deployment assigned to '%s'. Are you sure it is spelled correctly?", node.String())
}

// PauseDeployment pauses an already resolved deployment. It exists so the
// background restart manager can reuse the same transition without resolving
// the selector a second time.
func (s Service) PauseDeployment(ctx context.Context, dep domain.Deployment) error {
	if err := s.deployments.PauseAssignment(ctx, dep.ID); err != nil {
		return err
	}
	s.logger.Info("deployment paused", "deployment_id", dep.ID, "hash", dep.Hash)
	return nil
}

// ResumeDeployment resumes an already resolved deployment.
func (s Service) ResumeDeployment(ctx context.Context, dep domain.Deployment) error {
	if err := s.deployments.ResumeAssignment(ctx, dep.ID); err != nil {
		return err
	}
	s.logger.Info("deployment resumed", "deployment_id", dep.ID, "hash", dep.Hash)
	return nil
}
