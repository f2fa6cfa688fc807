package progress

import "errors"

// Sentinel errors for the engine's failure taxonomy. The HTTP layer maps
// these onto 404/403/400; anything else surfaces as a server error.
var (
	ErrGoalNotFound    = errors.New("goal not found")
	ErrSubTaskNotFound = errors.New("sub-task not found")
	ErrNotContributor  = errors.New("not authorized to update this goal")
	ErrNotAssigned     = errors.New("not assigned to this sub-task")
	ErrInvalidStatus   = errors.New("invalid sub-task status")
	ErrGoalArchived    = errors.New("goal is archived")
)
