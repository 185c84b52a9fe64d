package scanning

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRecordNotFound is returned when no record exists for a task.
var ErrRecordNotFound = errors.New("scan record not found")

// ScanRecord is the persisted summary of a finished scan task.
type ScanRecord struct {
	TaskID        uuid.UUID
	AbilityName   string
	InstanceName  string
	PresetName    string
	Policy        DurationPolicy
	Async         bool
	QueriesIssued int
	TargetsFound  int
	Elapsed       time.Duration
	FinishReason  string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// NewScanRecord snapshots a task. It is meant to be called once the task is
// finished; for a running task it captures the state so far.
func NewScanRecord(task *ScanTask) *ScanRecord {
	rec := &ScanRecord{
		TaskID:        task.ID(),
		AbilityName:   task.Owner().Name(),
		InstanceName:  task.InstanceName(),
		Policy:        task.Config().DurationPolicy,
		Async:         task.Config().Async,
		QueriesIssued: task.QueriesIssued(),
		TargetsFound:  task.TargetsFound(),
		Elapsed:       task.Elapsed(),
		StartedAt:     task.Timeline().StartedAt(),
		FinishedAt:    task.Timeline().CompletedAt(),
	}
	if p := task.Config().Preset; p != nil {
		rec.PresetName = p.Name()
	}
	if err := task.FinishReason(); err != nil {
		rec.FinishReason = err.Error()
	}
	return rec
}
