package events

import "time"

// DomainEvent is something that happened in the domain that other parts of the
// system may react to.
type DomainEvent interface {
	EventType() EventType
	OccurredAt() time.Time
	EventID() string
}

// EventEnvelope wraps a domain event with the routing metadata it was
// published with.
type EventEnvelope struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically the ID of the scan task
	// the event belongs to.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when the event occurred.
	Timestamp time.Time

	// Payload is the domain event itself.
	Payload DomainEvent
}

// NewEnvelope wraps evt using the given publish options.
func NewEnvelope(evt DomainEvent, opts ...PublishOption) EventEnvelope {
	p := ApplyOptions(opts...)
	return EventEnvelope{
		Type:      evt.EventType(),
		Key:       p.Key,
		Headers:   p.Headers,
		Timestamp: evt.OccurredAt(),
		Payload:   evt,
	}
}
