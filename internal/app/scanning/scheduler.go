package scanning

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/pkg/common/logger"
	"github.com/ahrav/grasp/pkg/metrics"
)

type timeProvider interface {
	Now() time.Time
}

// realTimeProvider is a real implementation of the timeProvider interface.
type realTimeProvider struct{}

// Now returns the current time.
func (realTimeProvider) Now() time.Time { return time.Now() }

// Pumper drains deferred work once per frame, after every task was ticked.
// now is the scheduler's clock at the start of the frame.
type Pumper interface {
	Pump(ctx context.Context, now time.Time) int
}

// FrameStats summarizes one frame.
type FrameStats struct {
	Ticked           int
	AsyncCompletions int
	Finished         int
}

// DefaultTickRate is the frame interval used when none is configured.
const DefaultTickRate = 16 * time.Millisecond

// TickScheduler is the single thread of control scan tasks run on. Every
// operation that touches a task (activation, ticks, async completions and
// teardown) happens under its mutex, so tasks never see concurrent calls.
type TickScheduler struct {
	mu     sync.Mutex
	tasks  []*scanning.ScanTask
	pumps  []Pumper
	frames uint64

	tickRate     time.Duration
	timeProvider timeProvider
	metrics      metrics.SchedulerMetrics

	cancel context.CancelFunc
	done   chan struct{}

	tracer trace.Tracer
	logger *logger.Logger
}

// SchedulerOption configures a TickScheduler.
type SchedulerOption func(*TickScheduler)

// WithTickRate sets the interval between frames of the Start loop.
func WithTickRate(d time.Duration) SchedulerOption {
	return func(s *TickScheduler) {
		if d > 0 {
			s.tickRate = d
		}
	}
}

// WithPump drains p after every frame's ticks.
func WithPump(p Pumper) SchedulerOption {
	return func(s *TickScheduler) { s.pumps = append(s.pumps, p) }
}

// WithSchedulerMetrics records frame metrics.
func WithSchedulerMetrics(m metrics.SchedulerMetrics) SchedulerOption {
	return func(s *TickScheduler) { s.metrics = m }
}

// NewTickScheduler creates a scheduler with no tasks.
func NewTickScheduler(tracer trace.Tracer, logger *logger.Logger, opts ...SchedulerOption) *TickScheduler {
	s := &TickScheduler{
		tickRate:     DefaultTickRate,
		timeProvider: realTimeProvider{},
		tracer:       tracer,
		logger:       logger.With("component", "tick_scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admission is a task's state as captured by the scheduler when it admitted
// the task. Once a task is scheduled its own accessors may only be read on the
// scheduler's thread of control; an Admission can be read anywhere.
type Admission struct {
	Task   *scanning.ScanTask
	Status scanning.TaskStatus
	// Reason is why the task did not activate, nil when it did.
	Reason error
}

// Active reports whether the task was scheduled.
func (a Admission) Active() bool { return a.Status == scanning.TaskStatusActive }

// Add activates task and, if activation succeeded, schedules it. It must not
// be called from inside a task callback.
func (s *TickScheduler) Add(ctx context.Context, task *scanning.ScanTask) Admission {
	return s.admit(ctx, task, task.Activate)
}

// AttachSimulated activates a task received through replication.
func (s *TickScheduler) AttachSimulated(ctx context.Context, task *scanning.ScanTask) Admission {
	return s.admit(ctx, task, task.InitSimulated)
}

func (s *TickScheduler) admit(ctx context.Context, task *scanning.ScanTask, activate func(context.Context)) Admission {
	s.mu.Lock()
	defer s.mu.Unlock()

	activate(ctx)
	adm := Admission{Task: task, Status: task.Status()}
	if !adm.Active() {
		adm.Reason = task.FinishReason()
		s.logger.Debug(ctx, "Scan task did not activate",
			"task_id", task.ID(),
			"reason", adm.Reason,
		)
		return adm
	}
	s.tasks = append(s.tasks, task)
	return adm
}

// Do runs fn on the scheduler's thread of control.
func (s *TickScheduler) Do(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Len returns the number of scheduled tasks.
func (s *TickScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunFrame ticks every active task in insertion order, drains the pumps, and
// drops tasks that are no longer active.
func (s *TickScheduler) RunFrame(ctx context.Context, delta time.Duration) FrameStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats FrameStats
	run := func() { stats = s.runFrameLocked(ctx, delta) }
	if s.metrics != nil {
		s.metrics.TrackFrame(run)
		s.metrics.SetActiveTasks(len(s.tasks))
		s.metrics.AddAsyncCompletions(stats.AsyncCompletions)
	} else {
		run()
	}
	return stats
}

func (s *TickScheduler) runFrameLocked(ctx context.Context, delta time.Duration) FrameStats {
	s.frames++
	now := s.timeProvider.Now()
	ctx, span := s.tracer.Start(ctx, "tick_scheduler.run_frame",
		trace.WithAttributes(
			attribute.Int64("frame", int64(s.frames)),
			attribute.String("delta", delta.String()),
			attribute.Int("tasks", len(s.tasks)),
		))
	defer span.End()

	var stats FrameStats
	for _, task := range s.tasks {
		if !task.IsActive() {
			continue
		}
		task.Tick(ctx, delta)
		stats.Ticked++
	}

	for _, p := range s.pumps {
		stats.AsyncCompletions += p.Pump(ctx, now)
	}

	live := s.tasks[:0]
	for _, task := range s.tasks {
		if task.IsActive() {
			live = append(live, task)
			continue
		}
		stats.Finished++
	}
	for i := len(live); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = live

	span.SetAttributes(
		attribute.Int("ticked", stats.Ticked),
		attribute.Int("async_completions", stats.AsyncCompletions),
		attribute.Int("finished", stats.Finished),
	)
	return stats
}

// Start runs frames every tick rate until ctx is canceled or Stop is called.
// Each frame's delta is the wall time since the previous frame.
func (s *TickScheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info(ctx, "Tick scheduler started", "tick_rate", s.tickRate.String())

	ticker := time.NewTicker(s.tickRate)
	go func() {
		defer close(s.done)
		defer ticker.Stop()

		last := s.timeProvider.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := s.timeProvider.Now()
				s.RunFrame(ctx, now.Sub(last))
				last = now
			}
		}
	}()
}

// Stop halts the frame loop and ends every remaining task as its owner would.
func (s *TickScheduler) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		task.EndTask(ctx)
	}
	ended := len(s.tasks)
	s.tasks = nil
	s.logger.Info(ctx, "Tick scheduler stopped", "ended_tasks", ended, "frames", s.frames)
}
