// Package memory provides an in-memory implementation of the event bus.
// It offers a lightweight, non-persistent broker suitable for tests, local
// runs and in-process consumers where durability is not required.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ahrav/grasp/internal/domain/events"
)

type subscription struct {
	id      uint64
	handler events.HandlerFunc
}

// Broker delivers published domain events to every subscriber of the event's
// type, synchronously and in subscription order.
type Broker struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[events.EventType][]subscription
}

var _ events.DomainEventPublisher = (*Broker)(nil)

// NewBroker creates a broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{handlers: make(map[events.EventType][]subscription)}
}

// Subscribe registers handler for eventTypes. The subscription is removed
// when ctx is canceled.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], subscription{id: id, handler: handler})
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(id, eventTypes)
	}()

	return nil
}

// SubscribeHandler registers an EventHandler for the events it supports.
func (b *Broker) SubscribeHandler(ctx context.Context, h events.EventHandler) error {
	return b.Subscribe(ctx, h.SupportedEvents(), h.HandleEvent)
}

func (b *Broker) unsubscribe(id uint64, eventTypes []events.EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, et := range eventTypes {
		subs := b.handlers[et]
		for i, s := range subs {
			if s.id == id {
				b.handlers[et] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// PublishDomainEvent wraps event in an envelope and hands it to each subscriber,
// stopping at the first error. The handlers are copied before iteration so a
// handler may subscribe or publish without deadlocking.
func (b *Broker) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	return b.Publish(ctx, events.NewEnvelope(event, opts...))
}

// Publish delivers an already wrapped event.
func (b *Broker) Publish(ctx context.Context, env events.EventEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[env.Type]))
	copy(subs, b.handlers[env.Type])
	b.mu.RUnlock()

	for _, s := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.handler(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// SubscriberCount returns how many handlers receive eventType.
func (b *Broker) SubscriberCount(eventType events.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}
