package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/grasp/internal/domain/events"
	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/internal/infra/eventbus/serialization"
	"github.com/ahrav/grasp/pkg/common/logger"
)

type countingMetrics struct {
	published map[string]int
	errors    map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{published: map[string]int{}, errors: map[string]int{}}
}

func (m *countingMetrics) IncMessagePublished(_ context.Context, topic string) { m.published[topic]++ }
func (m *countingMetrics) IncPublishError(_ context.Context, topic string)     { m.errors[topic]++ }

type unknownEvent struct{}

func (unknownEvent) EventType() events.EventType { return "Unknown" }
func (unknownEvent) OccurredAt() time.Time       { return time.Now() }
func (unknownEvent) EventID() string             { return "x" }

var testConfig = &Config{TargetsTopic: "scan-targets", FinishedTopic: "scan-finished", ClientID: "test"}

func setupPublisher(t *testing.T) (*Publisher, *mocks.SyncProducer, *countingMetrics) {
	t.Helper()

	producer := mocks.NewSyncProducer(t, NewProducerConfig("test"))
	metrics := newCountingMetrics()
	pub := NewPublisher(producer, testConfig, logger.Noop(), metrics, noop.NewTracerProvider().Tracer("test"))
	return pub, producer, metrics
}

func TestPublisher_PublishDomainEvent(t *testing.T) {
	t.Parallel()

	pub, producer, metrics := setupPublisher(t)
	taskID := uuid.New()
	evt := scanning.NewTargetsFoundEvent(taskID, "GA_Scan", "nearby", nil)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "scan-targets" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != taskID.String() {
			return errors.New("wrong key " + string(key))
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		env, err := serialization.DeserializeEventEnvelope(value)
		if err != nil {
			return err
		}
		if env.Payload.EventID() != evt.EventID() {
			return errors.New("payload mismatch")
		}
		return nil
	})

	err := pub.PublishDomainEvent(context.Background(), evt, events.WithKey(taskID.String()))
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.published["scan-targets"])
	require.NoError(t, pub.Close())
}

func TestPublisher_SendFailure(t *testing.T) {
	t.Parallel()

	pub, producer, metrics := setupPublisher(t)
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	evt := scanning.ReconstructScanFinishedEvent("evt-1", time.Now(), scanning.ScanFinishedEvent{TaskID: uuid.New()})
	err := pub.PublishDomainEvent(context.Background(), evt)

	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
	assert.Equal(t, 1, metrics.errors["scan-finished"])
	assert.Zero(t, metrics.published["scan-finished"])
	require.NoError(t, pub.Close())
}

func TestPublisher_UnknownEventType(t *testing.T) {
	t.Parallel()

	pub, _, metrics := setupPublisher(t)

	err := pub.PublishDomainEvent(context.Background(), unknownEvent{})
	require.Error(t, err)
	assert.Empty(t, metrics.errors)
	require.NoError(t, pub.Close())
}

func TestNewProducerConfig(t *testing.T) {
	t.Parallel()

	cfg := NewProducerConfig("scanner-1")
	assert.Equal(t, "scanner-1", cfg.ClientID)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.True(t, cfg.Producer.Return.Successes)
	assert.NoError(t, cfg.Validate())
}
