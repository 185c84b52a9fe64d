package scanning

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/grasp/internal/domain/events"
	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/internal/domain/targeting"
	"github.com/ahrav/grasp/pkg/common/logger"
)

// outboundEvent is a domain event waiting to be published.
type outboundEvent struct {
	event events.DomainEvent
	key   string
}

// EventForwarder publishes a task's observer notifications as domain events,
// keyed by task ID so a task's events stay ordered on partitioned transports.
// Publishing happens on a background worker; Close flushes it.
type EventForwarder struct {
	publisher events.DomainEventPublisher
	queue     *workQueue[outboundEvent]

	logger *logger.Logger
	tracer trace.Tracer
}

// NewEventForwarder creates a forwarder. Call Start before any task runs.
func NewEventForwarder(
	publisher events.DomainEventPublisher,
	logger *logger.Logger,
	tracer trace.Tracer,
	queueSize int,
) *EventForwarder {
	f := &EventForwarder{
		publisher: publisher,
		logger:    logger.With("component", "event_forwarder"),
		tracer:    tracer,
	}
	f.queue = newWorkQueue(queueSize, f.logger, f.publish)
	return f
}

// Start launches the publishing worker.
func (f *EventForwarder) Start(ctx context.Context) { f.queue.start(ctx) }

// Close publishes what is queued and stops the worker.
func (f *EventForwarder) Close() { f.queue.close() }

// Observe registers the forwarder's observers on task.
func (f *EventForwarder) Observe(_ context.Context, task *scanning.ScanTask) {
	key := task.ID().String()
	preset := ""
	if p := task.Config().Preset; p != nil {
		preset = p.Name()
	}

	task.OnTargetsFound(func(ctx context.Context, results []targeting.Result) {
		evt := scanning.NewTargetsFoundEvent(task.ID(), task.Owner().Name(), preset, results)
		f.enqueue(ctx, outboundEvent{event: evt, key: key})
	})
	task.OnFinished(func(ctx context.Context) {
		f.enqueue(ctx, outboundEvent{event: scanning.NewScanFinishedEvent(task), key: key})
	})
}

func (f *EventForwarder) enqueue(ctx context.Context, out outboundEvent) {
	if err := f.queue.submit(out); err != nil {
		f.logger.Warn(ctx, "Dropping scan event",
			"event_type", out.event.EventType(),
			"key", out.key,
			"err", err,
		)
	}
}

func (f *EventForwarder) publish(ctx context.Context, out outboundEvent) {
	ctx, span := f.tracer.Start(ctx, "event_forwarder.publish",
		trace.WithAttributes(
			attribute.String("event_type", string(out.event.EventType())),
			attribute.String("key", out.key),
		))
	defer span.End()

	if err := f.publisher.PublishDomainEvent(ctx, out.event, events.WithKey(out.key)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish scan event")
		f.logger.Error(ctx, "Failed to publish scan event",
			"event_type", out.event.EventType(),
			"key", out.key,
			"err", err,
		)
		return
	}
	span.SetStatus(codes.Ok, "scan event published")
}
