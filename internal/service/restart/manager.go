package restart

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/au2001/graph-node/internal/domain"
	"github.com/au2001/graph-node/internal/events"
	"github.com/au2001/graph-node/internal/repository"
)

// DefaultDelay is how long a restart waits between pausing and resuming when
// the caller does not override it.
const DefaultDelay = 20 * time.Second

// MutationEngine is the slice of the deployment service a restart needs: the
// two transitions, taken on an already resolved deployment.
type MutationEngine interface {
	PauseDeployment(ctx context.Context, dep domain.Deployment) error
	ResumeDeployment(ctx context.Context, dep domain.Deployment) error
}

// Manager runs restarts as detached background executions. Submission
// allocates an execution id and returns; everything after that is recorded
// against the id in the execution store, never surfaced to the submitter.
type Manager struct {
	engine       MutationEngine
	executions   repository.ExecutionRepository
	sink         events.Sink
	logger       *slog.Logger
	defaultDelay time.Duration

	wg  sync.WaitGroup
	now func() time.Time
}

// NewManager constructs a restart manager.
func NewManager(engine MutationEngine, executions repository.ExecutionRepository, sink events.Sink, logger *slog.Logger, defaultDelay time.Duration) *Manager {
	if sink == nil {
		sink = events.NopSink{}
	}
	if defaultDelay <= 0 {
		defaultDelay = DefaultDelay
	}
	initMetrics()
	return &Manager{
		engine:       engine,
		executions:   executions,
		sink:         sink,
		logger:       logger,
		defaultDelay: defaultDelay,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Submit accepts a restart for background execution and returns its execution
// id. Success means "accepted", not "restarted": the pause, the delay and the
// resume all happen after this call has returned. A negative delay selects
// the default.
func (m *Manager) Submit(ctx context.Context, dep domain.Deployment, delay time.Duration) (string, error) {
	if delay < 0 {
		delay = m.defaultDelay
	}
	now := m.now()
	execution := &domain.Execution{
		ID:           uuid.NewString(),
		DeploymentID: dep.ID,
		Kind:         domain.ExecutionKindRestart,
		Phase:        domain.ExecutionSubmitted,
		Delay:        delay,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.executions.CreateExecution(ctx, execution); err != nil {
		return "", err
	}
	submissionsTotal.Inc()
	m.publish(ctx, *execution)
	m.logger.Info("restart submitted", "execution_id", execution.ID, "deployment_id", dep.ID, "delay", delay)

	m.wg.Add(1)
	go m.run(*execution, dep)

	return execution.ID, nil
}

// Get returns the current state of one execution.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Execution, error) {
	return m.executions.GetExecutionByID(ctx, id)
}

// ListByDeployment returns recent executions for a deployment.
func (m *Manager) ListByDeployment(ctx context.Context, deploymentID int64, limit int) ([]domain.Execution, error) {
	return m.executions.ListExecutionsByDeployment(ctx, deploymentID, limit)
}

// Wait blocks until every in-flight execution has reached a terminal phase.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// run drives one execution to completion. It deliberately uses a fresh
// context: the execution outlives the submitting request and must not observe
// its cancellation. The delay holds nothing but this goroutine.
func (m *Manager) run(execution domain.Execution, dep domain.Deployment) {
	defer m.wg.Done()
	ctx := context.Background()

	m.advance(ctx, &execution, domain.ExecutionPausing)
	if err := m.engine.PauseDeployment(ctx, dep); err != nil {
		m.fail(ctx, &execution, err)
		return
	}

	m.advance(ctx, &execution, domain.ExecutionWaiting)
	if execution.Delay > 0 {
		time.Sleep(execution.Delay)
	}

	m.advance(ctx, &execution, domain.ExecutionResuming)
	if err := m.engine.ResumeDeployment(ctx, dep); err != nil {
		m.fail(ctx, &execution, err)
		return
	}

	m.advance(ctx, &execution, domain.ExecutionCompleted)
	m.logger.Info("restart completed", "execution_id", execution.ID, "deployment_id", execution.DeploymentID)
}

// advance records a phase transition. A bookkeeping failure is logged and the
// execution keeps going: the pause/resume work matters more than the status
// row.
func (m *Manager) advance(ctx context.Context, execution *domain.Execution, phase string) {
	if err := m.executions.UpdateExecutionPhase(ctx, execution.ID, phase); err != nil {
		m.logger.Error("execution phase update failed", "execution_id", execution.ID, "phase", phase, "error", err)
	}
	execution.Phase = phase
	execution.UpdatedAt = m.now()
	phasesTotal.WithLabelValues(phase).Inc()
	m.publish(ctx, *execution)
}

func (m *Manager) fail(ctx context.Context, execution *domain.Execution, cause error) {
	message := cause.Error()
	if err := m.executions.MarkExecutionFailed(ctx, execution.ID, execution.Phase, message); err != nil {
		m.logger.Error("execution failure record failed", "execution_id", execution.ID, "error", err)
	}
	execution.Phase = domain.ExecutionFailed
	execution.Error = message
	execution.UpdatedAt = m.now()
	phasesTotal.WithLabelValues(domain.ExecutionFailed).Inc()
	m.publish(ctx, *execution)
	m.logger.Warn("restart failed", "execution_id", execution.ID, "deployment_id", execution.DeploymentID, "error", message)
}

func (m *Manager) publish(ctx context.Context, execution domain.Execution) {
	event := domain.ExecutionEvent{
		ExecutionID:  execution.ID,
		DeploymentID: execution.DeploymentID,
		Kind:         execution.Kind,
		Phase:        execution.Phase,
		Error:        execution.Error,
		Timestamp:    execution.UpdatedAt,
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now()
	}
	if err := m.sink.Publish(ctx, event); err != nil {
		m.logger.Warn("execution event publish failed", "execution_id", execution.ID, "error", err)
	}
}
