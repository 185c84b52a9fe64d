package scanning

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Conditions that end a scan task. None of them escape to the scheduler; the
// task reports a Diagnostic (where noted) and terminates itself.
var (
	// ErrMissingMovementCapability is reported when the owner lacks movement.
	ErrMissingMovementCapability = errors.New("owner has no movement capability")

	// ErrMissingPreset is reported when no targeting preset is configured.
	ErrMissingPreset = errors.New("targeting preset is nil")

	// ErrMissingTaskSet is reported when the preset has no task set.
	ErrMissingTaskSet = errors.New("targeting preset has nil task set")

	// ErrEmptyTaskSet is reported when the preset's task set holds no tasks.
	ErrEmptyTaskSet = errors.New("targeting preset has empty task set")

	// ErrMissingTargetingService is reported when no targeting service can be resolved.
	ErrMissingTargetingService = errors.New("targeting service unavailable")

	// ErrMissingActorContext ends the task when the avatar or source actor is
	// gone. It is not reported.
	ErrMissingActorContext = errors.New("avatar or source actor unavailable")

	// ErrInvalidConfig is reported as a warning when the owner's settings look
	// wrong. It never ends the task.
	ErrInvalidConfig = errors.New("invalid scan configuration")
)

// Diagnostic is a structured warning emitted by a scan task.
type Diagnostic struct {
	Err          error
	AbilityName  string
	InstanceName string
	TaskID       uuid.UUID
}

// Error implements error so a Diagnostic can be matched with errors.Is.
func (d Diagnostic) Error() string {
	return fmt.Sprintf("scan task %s (ability %s): %v", d.InstanceName, d.AbilityName, d.Err)
}

// Unwrap returns the underlying condition.
func (d Diagnostic) Unwrap() error { return d.Err }
