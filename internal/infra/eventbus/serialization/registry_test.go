package serialization

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ahrav/grasp/internal/domain/events"
	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/internal/domain/targeting"
	serializationerrors "github.com/ahrav/grasp/internal/infra/eventbus/serialization/errors"
)

type point struct {
	id  string
	loc targeting.Vector
}

func (p point) ID() string                 { return p.id }
func (p point) Location() targeting.Vector { return p.loc }

func TestEventEnvelope_TargetsFound(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()
	evt := scanning.NewTargetsFoundEvent(taskID, "GA_Scan", "nearby", []targeting.Result{
		{Target: point{id: "goblin"}, Location: targeting.Vector{X: 1, Y: 2, Z: 3}, Distance: 3.7, Score: 0.5},
	})
	env := events.NewEnvelope(evt, events.WithKey(taskID.String()), events.WithHeaders(map[string]string{"ability": "GA_Scan"}))

	data, err := SerializeEventEnvelope(env)
	require.NoError(t, err)

	got, err := DeserializeEventEnvelope(data)
	require.NoError(t, err)

	assert.Equal(t, scanning.EventTypeTargetsFound, got.Type)
	assert.Equal(t, taskID.String(), got.Key)
	assert.Equal(t, "GA_Scan", got.Headers["ability"])
	assert.True(t, env.Timestamp.Equal(got.Timestamp))

	payload, ok := got.Payload.(scanning.TargetsFoundEvent)
	require.True(t, ok)
	assert.Equal(t, evt.EventID(), payload.EventID())
	assert.Equal(t, taskID, payload.TaskID)
	assert.Equal(t, "nearby", payload.Preset)
	require.Len(t, payload.Targets, 1)
	assert.Equal(t, evt.Targets[0], payload.Targets[0])
}

func TestSerializePayload_ScanFinished(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	evt := scanning.ReconstructScanFinishedEvent("evt-1", at, scanning.ScanFinishedEvent{
		TaskID:        uuid.New(),
		AbilityName:   "GA_Scan",
		Policy:        scanning.StopAfterDuration,
		QueriesIssued: 2,
		TargetsFound:  5,
		Elapsed:       1200 * time.Millisecond,
		Reason:        scanning.ErrMissingActorContext.Error(),
	})

	data, err := SerializePayload(scanning.EventTypeScanFinished, &evt)
	require.NoError(t, err)

	got, err := DeserializePayload(scanning.EventTypeScanFinished, data)
	require.NoError(t, err)
	assert.Equal(t, evt, got)
}

func TestSerializePayload_Errors(t *testing.T) {
	t.Parallel()

	_, err := SerializePayload("Unknown", struct{}{})
	assert.Error(t, err)

	_, err = SerializePayload(scanning.EventTypeScanFinished, "not an event")
	var unexpected serializationerrors.ErrUnexpectedPayload
	assert.ErrorAs(t, err, &unexpected)

	var nilEvt *scanning.TargetsFoundEvent
	_, err = SerializePayload(scanning.EventTypeTargetsFound, nilEvt)
	var nilErr serializationerrors.ErrNilEvent
	assert.ErrorAs(t, err, &nilErr)
}

func TestDeserializePayload_InvalidUUID(t *testing.T) {
	t.Parallel()

	s, err := structpb.NewStruct(map[string]any{"task_id": "nope", "occurred_at": time.Now().Format(time.RFC3339Nano)})
	require.NoError(t, err)
	data, err := proto.Marshal(s)
	require.NoError(t, err)

	_, err = DeserializePayload(scanning.EventTypeScanFinished, data)
	var uuidErr serializationerrors.ErrInvalidUUID
	assert.ErrorAs(t, err, &uuidErr)
	assert.Equal(t, "task_id", uuidErr.Field)
}

func TestDeserializeEventEnvelope_MissingType(t *testing.T) {
	t.Parallel()

	data, err := proto.Marshal(&structpb.Struct{})
	require.NoError(t, err)

	_, err = DeserializeEventEnvelope(data)
	var missing serializationerrors.ErrMissingField
	assert.ErrorAs(t, err, &missing)
}
