package scanning

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/grasp/internal/domain/events"
	"github.com/ahrav/grasp/internal/domain/targeting"
)

const (
	EventTypeTargetsFound events.EventType = "ScanTargetsFound"
	EventTypeScanFinished events.EventType = "ScanFinished"
)

// FoundTarget is the serializable view of a targeting result.
type FoundTarget struct {
	TargetID string
	Location targeting.Vector
	Distance float64
	Score    float64
}

// TargetsFoundEvent is emitted for every non-empty result batch of a scan task.
type TargetsFoundEvent struct {
	id          string
	occurredAt  time.Time
	TaskID      uuid.UUID
	AbilityName string
	Preset      string
	Targets     []FoundTarget
}

// NewTargetsFoundEvent creates a new TargetsFoundEvent.
func NewTargetsFoundEvent(taskID uuid.UUID, ability, preset string, results []targeting.Result) TargetsFoundEvent {
	targets := make([]FoundTarget, 0, len(results))
	for _, r := range results {
		ft := FoundTarget{Location: r.Location, Distance: r.Distance, Score: r.Score}
		if r.Target != nil {
			ft.TargetID = r.Target.ID()
		}
		targets = append(targets, ft)
	}

	return TargetsFoundEvent{
		id:          uuid.New().String(),
		occurredAt:  time.Now(),
		TaskID:      taskID,
		AbilityName: ability,
		Preset:      preset,
		Targets:     targets,
	}
}

func (e TargetsFoundEvent) EventType() events.EventType { return EventTypeTargetsFound }
func (e TargetsFoundEvent) OccurredAt() time.Time       { return e.occurredAt }
func (e TargetsFoundEvent) EventID() string             { return e.id }

// ScanFinishedEvent is emitted once when a scan task reaches its terminal state.
type ScanFinishedEvent struct {
	id            string
	occurredAt    time.Time
	TaskID        uuid.UUID
	AbilityName   string
	Policy        DurationPolicy
	QueriesIssued int
	TargetsFound  int
	Elapsed       time.Duration
	Reason        string
}

// NewScanFinishedEvent snapshots task into a ScanFinishedEvent.
func NewScanFinishedEvent(task *ScanTask) ScanFinishedEvent {
	evt := ScanFinishedEvent{
		id:            uuid.New().String(),
		occurredAt:    time.Now(),
		TaskID:        task.ID(),
		AbilityName:   task.Owner().Name(),
		Policy:        task.Config().DurationPolicy,
		QueriesIssued: task.QueriesIssued(),
		TargetsFound:  task.TargetsFound(),
		Elapsed:       task.Elapsed(),
	}
	if err := task.FinishReason(); err != nil {
		evt.Reason = err.Error()
	}
	return evt
}

func (e ScanFinishedEvent) EventType() events.EventType { return EventTypeScanFinished }
func (e ScanFinishedEvent) OccurredAt() time.Time       { return e.occurredAt }
func (e ScanFinishedEvent) EventID() string             { return e.id }

// ReconstructTargetsFoundEvent rebuilds an event read back from a transport.
func ReconstructTargetsFoundEvent(
	id string,
	occurredAt time.Time,
	taskID uuid.UUID,
	ability, preset string,
	targets []FoundTarget,
) TargetsFoundEvent {
	return TargetsFoundEvent{
		id:          id,
		occurredAt:  occurredAt,
		TaskID:      taskID,
		AbilityName: ability,
		Preset:      preset,
		Targets:     targets,
	}
}

// ReconstructScanFinishedEvent rebuilds an event read back from a transport.
func ReconstructScanFinishedEvent(id string, occurredAt time.Time, evt ScanFinishedEvent) ScanFinishedEvent {
	evt.id = id
	evt.occurredAt = occurredAt
	return evt
}
