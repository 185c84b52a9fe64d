// Package serialization provides a registry-based system for serializing and deserializing
// domain events in the event bus infrastructure. It acts as a translation layer between
// domain objects and their protobuf wire format.
//
// Payloads are encoded as google.protobuf.Struct messages, so the wire format is
// self-describing and needs no generated code. A serializer and a deserializer
// are registered per event type; the envelope carries the type so consumers can
// dispatch without inspecting the payload.
package serialization

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ahrav/grasp/internal/domain/events"
	serializationerrors "github.com/ahrav/grasp/internal/infra/eventbus/serialization/errors"
)

// SerializeFunc converts a domain object into its wire struct.
type SerializeFunc func(payload any) (*structpb.Struct, error)

// DeserializeFunc converts a wire struct back into a domain event.
type DeserializeFunc func(s *structpb.Struct) (events.DomainEvent, error)

// Global registries map event types to their serialization functions.
// This allows for dynamic dispatch based on event type at runtime.
var (
	serializerRegistry   = map[events.EventType]SerializeFunc{}
	deserializerRegistry = map[events.EventType]DeserializeFunc{}
)

// RegisterSerializeFunc registers a serialization function for a given event type.
func RegisterSerializeFunc(eventType events.EventType, fn SerializeFunc) {
	serializerRegistry[eventType] = fn
}

// RegisterDeserializeFunc registers a deserialization function for a given event type.
func RegisterDeserializeFunc(eventType events.EventType, fn DeserializeFunc) {
	deserializerRegistry[eventType] = fn
}

// SerializePayload converts a domain object into bytes using the registered serializer for its event type.
// Returns an error if no serializer is registered for the given event type.
func SerializePayload(eventType events.EventType, payload any) ([]byte, error) {
	s, err := serializeStruct(eventType, payload)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// DeserializePayload converts bytes back into a domain event using the registered deserializer for its event type.
// Returns an error if no deserializer is registered for the given event type.
func DeserializePayload(eventType events.EventType, data []byte) (events.DomainEvent, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", eventType, err)
	}
	return deserializeStruct(eventType, &s)
}

// SerializeEventEnvelope encodes an envelope, payload included, into a single message.
func SerializeEventEnvelope(env events.EventEnvelope) ([]byte, error) {
	payload, err := serializeStruct(env.Type, env.Payload)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]any, len(env.Headers))
	for k, v := range env.Headers {
		headers[k] = v
	}
	hs, err := structpb.NewStruct(headers)
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}

	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		"type":      structpb.NewStringValue(string(env.Type)),
		"key":       structpb.NewStringValue(env.Key),
		"timestamp": structpb.NewStringValue(env.Timestamp.UTC().Format(time.RFC3339Nano)),
		"headers":   structpb.NewStructValue(hs),
		"payload":   structpb.NewStructValue(payload),
	}}
	return proto.Marshal(msg)
}

// DeserializeEventEnvelope decodes a message produced by SerializeEventEnvelope.
func DeserializeEventEnvelope(data []byte) (events.EventEnvelope, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return events.EventEnvelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	eventType := events.EventType(stringField(&msg, "type"))
	if eventType == "" {
		return events.EventEnvelope{}, serializationerrors.ErrMissingField{Field: "type"}
	}
	ts, err := timeField(&msg, "timestamp")
	if err != nil {
		return events.EventEnvelope{}, err
	}

	payload := msg.GetFields()["payload"].GetStructValue()
	if payload == nil {
		return events.EventEnvelope{}, serializationerrors.ErrMissingField{Field: "payload"}
	}
	evt, err := deserializeStruct(eventType, payload)
	if err != nil {
		return events.EventEnvelope{}, err
	}

	var headers map[string]string
	if hs := msg.GetFields()["headers"].GetStructValue(); len(hs.GetFields()) > 0 {
		headers = make(map[string]string, len(hs.GetFields()))
		for k, v := range hs.GetFields() {
			headers[k] = v.GetStringValue()
		}
	}

	return events.EventEnvelope{
		Type:      eventType,
		Key:       stringField(&msg, "key"),
		Headers:   headers,
		Timestamp: ts,
		Payload:   evt,
	}, nil
}

func serializeStruct(eventType events.EventType, payload any) (*structpb.Struct, error) {
	fn, ok := serializerRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("no serializer registered for eventType=%s", eventType)
	}
	return fn(payload)
}

func deserializeStruct(eventType events.EventType, s *structpb.Struct) (events.DomainEvent, error) {
	fn, ok := deserializerRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("no deserializer registered for eventType=%s", eventType)
	}
	return fn(s)
}

func init() {
	RegisterEventSerializers()
}

// RegisterEventSerializers registers handlers for all supported event types.
func RegisterEventSerializers() {
	registerScanningSerializers()
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func numberField(s *structpb.Struct, name string) float64 {
	return s.GetFields()[name].GetNumberValue()
}

func timeField(s *structpb.Struct, name string) (time.Time, error) {
	raw := stringField(s, name)
	if raw == "" {
		return time.Time{}, serializationerrors.ErrMissingField{Field: name}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return t, nil
}
