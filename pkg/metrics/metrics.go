package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SchedulerMetrics defines metrics operations needed by the tick scheduler.
type SchedulerMetrics interface {
	// TrackFrame times one frame of the scheduler loop.
	TrackFrame(f func())
	SetActiveTasks(count int)
	AddAsyncCompletions(count int)
}

// PublisherMetrics defines metrics operations needed by event publishers.
type PublisherMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
}

// Metrics implements both SchedulerMetrics and PublisherMetrics.
type Metrics struct {
	// Scheduler metrics.
	Frames           prometheus.Counter
	FrameTime        prometheus.Histogram
	ActiveTasks      prometheus.Gauge
	AsyncCompletions prometheus.Counter

	// Publisher metrics.
	MessagesPublished *prometheus.CounterVec
	PublishErrors     *prometheus.CounterVec
}

// Ensure Metrics implements both interfaces.
var _ SchedulerMetrics = (*Metrics)(nil)
var _ PublisherMetrics = (*Metrics)(nil)

// TrackFrame tracks the duration of a frame and counts it.
func (m *Metrics) TrackFrame(f func()) {
	start := time.Now()
	f()
	m.FrameTime.Observe(time.Since(start).Seconds())
	m.Frames.Inc()
}

func (m *Metrics) SetActiveTasks(count int)      { m.ActiveTasks.Set(float64(count)) }
func (m *Metrics) AddAsyncCompletions(count int) { m.AsyncCompletions.Add(float64(count)) }

func (m *Metrics) IncMessagePublished(_ context.Context, topic string) {
	m.MessagesPublished.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncPublishError(_ context.Context, topic string) {
	m.PublishErrors.WithLabelValues(topic).Inc()
}

// New creates a Metrics instance registered with reg. A nil reg uses the
// default registerer, which is what /metrics serves.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Scheduler metrics.
		Frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of scheduler frames run",
		}),
		FrameTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Wall time spent ticking tasks and draining async requests per frame",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		ActiveTasks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_scan_tasks",
			Help:      "Number of scan tasks receiving ticks",
		}),
		AsyncCompletions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_completions_total",
			Help:      "Total number of asynchronous targeting requests completed",
		}),

		// Publisher metrics.
		MessagesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Total number of events published",
		}, []string{"topic"}),
		PublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total number of events that failed to publish",
		}, []string{"topic"}),
	}
}
