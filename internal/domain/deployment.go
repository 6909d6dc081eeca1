package domain

import (
	"errors"
	"time"
)

// Deployment identifies one indexing workload registered in the store.
type Deployment struct {
	ID        int64
	Hash      string
	Name      string
	CreatedAt time.Time
}

// Assignment binds a deployment to the node that runs it. A deployment has at
// most one assignment; pause and resume toggle the flag without touching the
// node binding.
type Assignment struct {
	DeploymentID int64
	NodeID       string
	Paused       bool
	PausedAt     *time.Time
	AssignedAt   time.Time
}

// DeploymentSelector is the caller-facing way to name a deployment. Exactly
// one field must be set; names may match more than one deployment.
type DeploymentSelector struct {
	ID   *int64 `json:"id,omitempty"`
	Hash string `json:"hash,omitempty"`
	Name string `json:"name,omitempty"`
}

// ErrInvalidSelector indicates a selector that does not name exactly one of
// id, hash or name.
var ErrInvalidSelector = errors.New("deployment selector must set exactly one of id, hash or name")

// Validate checks that the selector is usable for resolution.
func (s DeploymentSelector) Validate() error {
	set := 0
	if s.ID != nil {
		set++
	}
	if s.Hash != "" {
		set++
	}
	if s.Name != "" {
		set++
	}
	if set != 1 {
		return ErrInvalidSelector
	}
	return nil
}
