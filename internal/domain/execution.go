package domain

import "time"

// Execution phases. An execution enters ExecutionSubmitted atomically with id
// allocation and only ever advances forward; ExecutionCompleted and
// ExecutionFailed are terminal.
const (
	ExecutionSubmitted = "submitted"
	ExecutionPausing   = "pausing"
	ExecutionWaiting   = "waiting"
	ExecutionResuming  = "resuming"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// ExecutionKindRestart is the only execution kind currently produced.
const ExecutionKindRestart = "restart"

// Execution tracks one background unit of work submitted against a
// deployment. The ID is handed back to the submitter before any work starts.
type Execution struct {
	ID           string
	DeploymentID int64
	Kind         string
	Phase        string
	Delay        time.Duration
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// Terminal reports whether the execution can no longer advance.
func (e Execution) Terminal() bool {
	return e.Phase == ExecutionCompleted || e.Phase == ExecutionFailed
}

// ExecutionEvent is the streamed form of a phase transition.
type ExecutionEvent struct {
	ExecutionID  string    `json:"execution_id"`
	DeploymentID int64     `json:"deployment_id"`
	Kind         string    `json:"kind"`
	Phase        string    `json:"phase"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
