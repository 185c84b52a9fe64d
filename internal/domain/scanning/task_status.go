package scanning

import "fmt"

// TaskStatus represents the lifecycle state of a scan task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is configured but not yet activated.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusActive indicates the task receives ticks and issues queries.
	TaskStatusActive TaskStatus = "ACTIVE"

	// TaskStatusFinished indicates the task reached its terminal state.
	TaskStatusFinished TaskStatus = "FINISHED"
)

// String returns the string representation of the TaskStatus.
func (s TaskStatus) String() string { return string(s) }

// validateTransition checks if a status transition is valid and returns an error if not.
func (s TaskStatus) validateTransition(target TaskStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid scan task status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition enforces Pending -> Active -> Finished, with Pending ->
// Finished for tasks that fail activation.
func (s TaskStatus) isValidTransition(target TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return target == TaskStatusActive || target == TaskStatusFinished
	case TaskStatusActive:
		return target == TaskStatusFinished
	default:
		return false
	}
}

// QueryState tracks whether a targeting query is outstanding.
type QueryState string

const (
	// QueryStateIdle means a new query may be issued.
	QueryStateIdle QueryState = "IDLE"

	// QueryStateAwaitingResponse means a query was issued and its completion
	// has not arrived yet.
	QueryStateAwaitingResponse QueryState = "AWAITING_RESPONSE"
)

// String returns the string representation of the QueryState.
func (s QueryState) String() string { return string(s) }
