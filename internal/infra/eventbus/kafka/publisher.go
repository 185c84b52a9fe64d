// Package kafka publishes scan domain events to Kafka.
package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/grasp/internal/domain/events"
	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/internal/infra/eventbus/kafka/tracing"
	"github.com/ahrav/grasp/internal/infra/eventbus/serialization"
	"github.com/ahrav/grasp/pkg/common/logger"
)

// PublisherMetrics tracks successful and failed publishes per topic.
type PublisherMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
}

// Config contains settings for connecting to Kafka and routing scan events.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// TargetsTopic receives TargetsFound events.
	TargetsTopic string
	// FinishedTopic receives ScanFinished events.
	FinishedTopic string

	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string
}

// NewProducerConfig returns the sarama settings the publisher relies on:
// synchronous acks from all replicas and key-hash partitioning.
func NewProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V3_6_0_0
	return config
}

var _ events.DomainEventPublisher = (*Publisher)(nil)

// Publisher implements events.DomainEventPublisher on a sarama SyncProducer.
// Events are keyed by scan task so a task's events stay ordered on one partition.
type Publisher struct {
	producer sarama.SyncProducer
	topicMap map[events.EventType]string

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics PublisherMetrics
}

// NewPublisherFromConfig dials the brokers and creates a Publisher.
func NewPublisherFromConfig(
	cfg *Config,
	logger *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewPublisher(producer, cfg, logger, metrics, tracer), nil
}

// NewPublisher wraps an existing producer.
func NewPublisher(
	producer sarama.SyncProducer,
	cfg *Config,
	logger *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) *Publisher {
	return &Publisher{
		producer: producer,
		topicMap: map[events.EventType]string{
			scanning.EventTypeTargetsFound: cfg.TargetsTopic,
			scanning.EventTypeScanFinished: cfg.FinishedTopic,
		},
		logger:  logger.With("component", "kafka_publisher", "client_id", cfg.ClientID),
		tracer:  tracer,
		metrics: metrics,
	}
}

// PublishDomainEvent serializes event and sends it to the topic mapped to its type.
func (p *Publisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	env := events.NewEnvelope(event, opts...)

	topic, ok := p.topicMap[env.Type]
	if !ok || topic == "" {
		return fmt.Errorf("unknown event type '%s', no topic mapped", env.Type)
	}

	ctx, span := tracing.StartPublishSpan(ctx, p.tracer, topic, env.Type)
	defer span.End()

	if env.Key != "" {
		span.SetAttributes(attribute.String("event.key", env.Key))
	}

	msgBytes, err := serialization.SerializeEventEnvelope(env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "serialization failed")
		p.incError(ctx, topic)
		return fmt.Errorf("failed to serialize payload for event %s: %w", env.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(env.Key),
		Value: sarama.ByteEncoder(msgBytes),
	}
	for k, v := range env.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		p.incError(ctx, topic)
		return fmt.Errorf("failed to send message to kafka topic %s: %w", topic, err)
	}

	if p.metrics != nil {
		p.metrics.IncMessagePublished(ctx, topic)
	}
	p.logger.Debug(ctx, "Published message to Kafka",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"key", env.Key,
	)
	return nil
}

func (p *Publisher) incError(ctx context.Context, topic string) {
	if p.metrics != nil {
		p.metrics.IncPublishError(ctx, topic)
	}
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error { return p.producer.Close() }
