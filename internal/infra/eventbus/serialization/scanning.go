package serialization

import (
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ahrav/grasp/internal/domain/events"
	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/internal/domain/targeting"
	serializationerrors "github.com/ahrav/grasp/internal/infra/eventbus/serialization/errors"
)

func registerScanningSerializers() {
	RegisterSerializeFunc(scanning.EventTypeTargetsFound, serializeTargetsFound)
	RegisterDeserializeFunc(scanning.EventTypeTargetsFound, deserializeTargetsFound)

	RegisterSerializeFunc(scanning.EventTypeScanFinished, serializeScanFinished)
	RegisterDeserializeFunc(scanning.EventTypeScanFinished, deserializeScanFinished)
}

func serializeTargetsFound(payload any) (*structpb.Struct, error) {
	var evt scanning.TargetsFoundEvent
	switch p := payload.(type) {
	case scanning.TargetsFoundEvent:
		evt = p
	case *scanning.TargetsFoundEvent:
		if p == nil {
			return nil, serializationerrors.ErrNilEvent{EventType: string(scanning.EventTypeTargetsFound)}
		}
		evt = *p
	default:
		return nil, serializationerrors.ErrUnexpectedPayload{EventType: string(scanning.EventTypeTargetsFound), Payload: payload}
	}

	targets := make([]any, 0, len(evt.Targets))
	for _, t := range evt.Targets {
		targets = append(targets, map[string]any{
			"target_id": t.TargetID,
			"x":         t.Location.X,
			"y":         t.Location.Y,
			"z":         t.Location.Z,
			"distance":  t.Distance,
			"score":     t.Score,
		})
	}

	return structpb.NewStruct(map[string]any{
		"id":          evt.EventID(),
		"occurred_at": evt.OccurredAt().UTC().Format(time.RFC3339Nano),
		"task_id":     evt.TaskID.String(),
		"ability":     evt.AbilityName,
		"preset":      evt.Preset,
		"targets":     targets,
	})
}

func deserializeTargetsFound(s *structpb.Struct) (events.DomainEvent, error) {
	taskID, err := uuidField(s, "task_id")
	if err != nil {
		return nil, err
	}
	occurredAt, err := timeField(s, "occurred_at")
	if err != nil {
		return nil, err
	}

	list := s.GetFields()["targets"].GetListValue().GetValues()
	targets := make([]scanning.FoundTarget, 0, len(list))
	for _, v := range list {
		ts := v.GetStructValue()
		targets = append(targets, scanning.FoundTarget{
			TargetID: stringField(ts, "target_id"),
			Location: targeting.Vector{X: numberField(ts, "x"), Y: numberField(ts, "y"), Z: numberField(ts, "z")},
			Distance: numberField(ts, "distance"),
			Score:    numberField(ts, "score"),
		})
	}

	return scanning.ReconstructTargetsFoundEvent(
		stringField(s, "id"),
		occurredAt,
		taskID,
		stringField(s, "ability"),
		stringField(s, "preset"),
		targets,
	), nil
}

func serializeScanFinished(payload any) (*structpb.Struct, error) {
	var evt scanning.ScanFinishedEvent
	switch p := payload.(type) {
	case scanning.ScanFinishedEvent:
		evt = p
	case *scanning.ScanFinishedEvent:
		if p == nil {
			return nil, serializationerrors.ErrNilEvent{EventType: string(scanning.EventTypeScanFinished)}
		}
		evt = *p
	default:
		return nil, serializationerrors.ErrUnexpectedPayload{EventType: string(scanning.EventTypeScanFinished), Payload: payload}
	}

	return structpb.NewStruct(map[string]any{
		"id":             evt.EventID(),
		"occurred_at":    evt.OccurredAt().UTC().Format(time.RFC3339Nano),
		"task_id":        evt.TaskID.String(),
		"ability":        evt.AbilityName,
		"policy":         string(evt.Policy),
		"queries_issued": evt.QueriesIssued,
		"targets_found":  evt.TargetsFound,
		"elapsed_ms":     evt.Elapsed.Milliseconds(),
		"reason":         evt.Reason,
	})
}

func deserializeScanFinished(s *structpb.Struct) (events.DomainEvent, error) {
	taskID, err := uuidField(s, "task_id")
	if err != nil {
		return nil, err
	}
	occurredAt, err := timeField(s, "occurred_at")
	if err != nil {
		return nil, err
	}

	return scanning.ReconstructScanFinishedEvent(stringField(s, "id"), occurredAt, scanning.ScanFinishedEvent{
		TaskID:        taskID,
		AbilityName:   stringField(s, "ability"),
		Policy:        scanning.DurationPolicy(stringField(s, "policy")),
		QueriesIssued: int(numberField(s, "queries_issued")),
		TargetsFound:  int(numberField(s, "targets_found")),
		Elapsed:       time.Duration(numberField(s, "elapsed_ms")) * time.Millisecond,
		Reason:        stringField(s, "reason"),
	}), nil
}

func uuidField(s *structpb.Struct, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(stringField(s, name))
	if err != nil {
		return uuid.Nil, serializationerrors.ErrInvalidUUID{Field: name, Err: err}
	}
	return id, nil
}
