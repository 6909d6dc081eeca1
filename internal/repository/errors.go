package repository

import "errors"

// Resolution errors. These are distinct from transition-rule errors because
// callers render them differently.
var (
	// ErrNotFound indicates a selector or id that resolved to nothing.
	ErrNotFound = errors.New("repository: not found")
	// ErrAmbiguous indicates a selector that matched more than one deployment.
	ErrAmbiguous = errors.New("repository: selector matches multiple deployments")
)

// Transition-rule errors reported by the assignment store when a requested
// state change is illegal for the current state.
var (
	// ErrNotAssigned indicates a pause or resume against a deployment that has
	// no assignment to carry the paused flag.
	ErrNotAssigned = errors.New("repository: deployment is not assigned to any node")
	// ErrAlreadyPaused indicates a pause of an already paused assignment.
	ErrAlreadyPaused = errors.New("repository: deployment is already paused")
	// ErrNotPaused indicates a resume of an assignment that is not paused.
	ErrNotPaused = errors.New("repository: deployment is not paused")
)
