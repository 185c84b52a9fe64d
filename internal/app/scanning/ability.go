package scanning

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/internal/domain/targeting"
	"github.com/ahrav/grasp/pkg/common/logger"
)

// ServiceLocator resolves the targeting service of the current world.
type ServiceLocator interface {
	TargetingService() (targeting.Service, bool)
}

// TaskObserver registers observers on every task an ability starts, before
// the task activates.
type TaskObserver interface {
	Observe(ctx context.Context, task *scanning.ScanTask)
}

// TaskObserverFunc adapts a function to TaskObserver.
type TaskObserverFunc func(ctx context.Context, task *scanning.ScanTask)

// Observe calls f(ctx, task).
func (f TaskObserverFunc) Observe(ctx context.Context, task *scanning.ScanTask) { f(ctx, task) }

// TaskEndHook is notified once a task released its resources.
type TaskEndHook interface {
	TaskEnded(ctx context.Context, task *scanning.ScanTask)
}

// TaskEndHookFunc adapts a function to TaskEndHook.
type TaskEndHookFunc func(ctx context.Context, task *scanning.ScanTask)

// TaskEnded calls f(ctx, task).
func (f TaskEndHookFunc) TaskEnded(ctx context.Context, task *scanning.ScanTask) { f(ctx, task) }

// movementCapable is implemented by actors that report whether they can move.
type movementCapable interface {
	HasMovement() bool
}

// Ability owns the scan tasks it starts and ends them when it ends.
type Ability struct {
	name       string
	avatar     scanning.ActorRef
	services   ServiceLocator
	simulating bool
	replaying  atomic.Bool

	scheduler   *TickScheduler
	diagnostics scanning.DiagnosticsSink
	checkConfig bool
	observers   []TaskObserver
	endHooks    []TaskEndHook
	metrics     ScanMetrics

	mu    sync.Mutex
	tasks map[uuid.UUID]*scanning.ScanTask
	seq   int

	logger *logger.Logger
	tracer trace.Tracer
}

var _ scanning.Owner = (*Ability)(nil)

// AbilityOption configures an Ability.
type AbilityOption func(*Ability)

// WithSimulating marks the ability as a simulated proxy whose tasks are torn
// down by replication.
func WithSimulating() AbilityOption { return func(a *Ability) { a.simulating = true } }

// WithDiagnosticsSink routes task warnings to sink.
func WithDiagnosticsSink(sink scanning.DiagnosticsSink) AbilityOption {
	return func(a *Ability) { a.diagnostics = sink }
}

// WithoutErrorChecking disables the configuration warnings at activation.
func WithoutErrorChecking() AbilityOption { return func(a *Ability) { a.checkConfig = false } }

// WithTaskObserver adds an observer wired into every started task.
func WithTaskObserver(o TaskObserver) AbilityOption {
	return func(a *Ability) { a.observers = append(a.observers, o) }
}

// WithTaskEndHook adds a hook run when a task is released.
func WithTaskEndHook(h TaskEndHook) AbilityOption {
	return func(a *Ability) { a.endHooks = append(a.endHooks, h) }
}

// WithScanMetrics records task lifecycle metrics.
func WithScanMetrics(m ScanMetrics) AbilityOption { return func(a *Ability) { a.metrics = m } }

// NewAbility creates an ability acting through avatar.
func NewAbility(
	name string,
	avatar scanning.ActorRef,
	services ServiceLocator,
	scheduler *TickScheduler,
	logger *logger.Logger,
	tracer trace.Tracer,
	opts ...AbilityOption,
) *Ability {
	a := &Ability{
		name:        name,
		avatar:      avatar,
		services:    services,
		scheduler:   scheduler,
		checkConfig: true,
		metrics:     noopScanMetrics{},
		tasks:       make(map[uuid.UUID]*scanning.ScanTask),
		logger:      logger.With("component", "ability", "ability", name),
		tracer:      tracer,
	}
	a.diagnostics = NewLogDiagnostics(a.logger)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Ability) Name() string { return a.name }

func (a *Ability) AvatarActor() (scanning.Actor, bool) {
	if a.avatar == nil {
		return nil, false
	}
	return a.avatar.Resolve()
}

// HasMovementCapability reports whether the avatar is alive and can move.
func (a *Ability) HasMovementCapability() bool {
	avatar, ok := a.AvatarActor()
	if !ok {
		return false
	}
	m, ok := avatar.(movementCapable)
	return ok && m.HasMovement()
}

func (a *Ability) TargetingService() (targeting.Service, bool) {
	if a.services == nil {
		return nil, false
	}
	return a.services.TargetingService()
}

// ShouldBroadcast is false while the ability replays.
func (a *Ability) ShouldBroadcast() bool { return !a.replaying.Load() }

func (a *Ability) IsSimulating() bool { return a.simulating }

// SetReplaying toggles replay mode, which suppresses task notifications.
func (a *Ability) SetReplaying(replaying bool) { a.replaying.Store(replaying) }

// OnTaskEnded forgets task and runs the end hooks.
func (a *Ability) OnTaskEnded(ctx context.Context, task *scanning.ScanTask) {
	a.mu.Lock()
	delete(a.tasks, task.ID())
	a.mu.Unlock()

	a.metrics.ObserveScanFinished(ctx, task)
	a.logger.Debug(ctx, "Scan task ended",
		"task_id", task.ID(),
		"instance", task.InstanceName(),
		"queries_issued", task.QueriesIssued(),
		"targets_found", task.TargetsFound(),
		"reason", task.FinishReason(),
	)
	for _, h := range a.endHooks {
		h.TaskEnded(ctx, task)
	}
}

// StartScan creates a task for cfg, wires the ability's observers into it and
// activates it on the scheduler. A task that fails to activate is returned
// together with the reason. StartScan must not be called from a task observer.
//
// Once StartScan returns the task may already be running on the scheduler;
// read its state through TickScheduler.Do, or use Admit for a snapshot.
func (a *Ability) StartScan(ctx context.Context, cfg scanning.Config) (*scanning.ScanTask, error) {
	adm, err := a.Admit(ctx, cfg)
	return adm.Task, err
}

// Admit is StartScan returning the task's state as the scheduler saw it at
// activation.
func (a *Ability) Admit(ctx context.Context, cfg scanning.Config) (Admission, error) {
	ctx, span := a.tracer.Start(ctx, "ability.start_scan",
		trace.WithAttributes(
			attribute.String("ability", a.name),
			attribute.String("policy", cfg.DurationPolicy.String()),
			attribute.Bool("async", cfg.Async),
			attribute.Bool("simulating", a.simulating),
		))
	defer span.End()

	a.mu.Lock()
	a.seq++
	opts := []scanning.TaskOption{
		scanning.WithInstanceName(fmt.Sprintf("%s_ScanForTargets_%d", a.name, a.seq)),
		scanning.WithDiagnostics(a.diagnostics),
	}
	a.mu.Unlock()
	if !a.checkConfig {
		opts = append(opts, scanning.WithoutConfigChecks())
	}

	task := scanning.NewScanTask(a, cfg, opts...)
	span.SetAttributes(attribute.String("task_id", task.ID().String()))

	task.OnTargetsFound(func(ctx context.Context, results []targeting.Result) {
		a.metrics.ObserveTargetsFound(ctx, a.name, len(results))
	})
	for _, o := range a.observers {
		o.Observe(ctx, task)
	}

	// Registered before activation, which may end the task immediately.
	a.mu.Lock()
	a.tasks[task.ID()] = task
	a.mu.Unlock()

	var adm Admission
	if a.simulating {
		adm = a.scheduler.AttachSimulated(ctx, task)
	} else {
		adm = a.scheduler.Add(ctx, task)
	}

	if !adm.Active() {
		err := fmt.Errorf("scan task %s did not activate: %w", task.InstanceName(), adm.Reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan task did not activate")
		return adm, err
	}

	a.metrics.IncScansStarted(ctx, a.name)
	span.SetStatus(codes.Ok, "scan task active")
	return adm, nil
}

// Tasks returns the ability's live tasks.
func (a *Ability) Tasks() []*scanning.ScanTask {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*scanning.ScanTask, 0, len(a.tasks))
	for _, t := range a.tasks {
		out = append(out, t)
	}
	return out
}

// End ends every live task as the owning ability ending.
func (a *Ability) End(ctx context.Context) {
	tasks := a.Tasks()
	a.logger.Info(ctx, "Ending ability", "tasks", len(tasks))
	a.scheduler.Do(func() {
		for _, t := range tasks {
			t.EndTask(ctx)
		}
	})
}

// TeardownReplicated tears every live task down as replication removing it.
func (a *Ability) TeardownReplicated(ctx context.Context) {
	tasks := a.Tasks()
	a.logger.Debug(ctx, "Tearing down replicated tasks", "tasks", len(tasks))
	a.scheduler.Do(func() {
		for _, t := range tasks {
			t.PreDestroyFromReplication(ctx)
		}
	})
}
