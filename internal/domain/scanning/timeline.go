package scanning

import "time"

// TimeProvider is an interface that provides a Now method to get the current time.
type TimeProvider interface {
	Now() time.Time
}

// Real implementation for production.
type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time { return time.Now() }

// Timeline records the wall-clock moments of a task's lifecycle. Scan logic
// runs on simulation time; the timeline only feeds records and telemetry.
type Timeline struct {
	createdAt    time.Time
	startedAt    time.Time
	completedAt  time.Time
	timeProvider TimeProvider
}

// NewTimeline creates a new Timeline instance.
func NewTimeline(timeProvider TimeProvider) *Timeline {
	return &Timeline{createdAt: timeProvider.Now(), timeProvider: timeProvider}
}

// CreatedAt returns the time the task was created.
func (t *Timeline) CreatedAt() time.Time { return t.createdAt }

// StartedAt returns the time the task was activated, zero if never.
func (t *Timeline) StartedAt() time.Time { return t.startedAt }

// CompletedAt returns the time the task finished, zero if still running.
func (t *Timeline) CompletedAt() time.Time { return t.completedAt }

// MarkStarted records activation time.
func (t *Timeline) MarkStarted() { t.startedAt = t.timeProvider.Now() }

// MarkCompleted records completion time.
func (t *Timeline) MarkCompleted() { t.completedAt = t.timeProvider.Now() }

// IsCompleted checks if the timeline has been marked as completed.
func (t *Timeline) IsCompleted() bool { return !t.completedAt.IsZero() }
