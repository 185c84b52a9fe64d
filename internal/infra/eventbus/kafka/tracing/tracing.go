// Package tracing carries OpenTelemetry context on Kafka record headers for
// published scan events.
package tracing

import (
	"context"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/grasp/internal/domain/events"
)

// headerCarrier adapts a producer message's headers to propagation.TextMapCarrier.
type headerCarrier struct{ msg *sarama.ProducerMessage }

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set replaces an existing header so re-injection never duplicates trace keys.
func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if string(h.Key) == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, string(h.Key))
	}
	return keys
}

// InjectTraceContext writes the span context in ctx onto msg's headers.
func InjectTraceContext(ctx context.Context, msg *sarama.ProducerMessage) {
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: msg})
}

// ExtractTraceContext returns ctx carrying the span context found on msg.
func ExtractTraceContext(ctx context.Context, msg *sarama.ProducerMessage) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier{msg: msg})
}

// StartPublishSpan starts the producer span for one scan event.
func StartPublishSpan(
	ctx context.Context,
	tracer trace.Tracer,
	topic string,
	eventType events.EventType,
) (context.Context, trace.Span) {
	return tracer.Start(ctx, "kafka.publish_scan_event",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", topic),
			attribute.String("messaging.operation", "publish"),
			attribute.String("event.type", string(eventType)),
		),
	)
}
