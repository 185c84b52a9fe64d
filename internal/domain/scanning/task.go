package scanning

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/grasp/internal/domain/targeting"
)

// TargetsFoundFunc observes a non-empty result batch.
type TargetsFoundFunc func(ctx context.Context, results []targeting.Result)

// FinishedFunc observes the task's terminal transition.
type FinishedFunc func(ctx context.Context)

// ScanTask repeatedly issues a targeting query on behalf of its owner, at most
// one at a time and no more often than Config.MaxRate, until its duration
// policy or an external teardown stops it.
//
// A ScanTask is not safe for concurrent use. Activate, Tick, the completion
// callbacks and teardown must all run on the scheduler's thread of control.
type ScanTask struct {
	id           uuid.UUID
	instanceName string
	owner        Owner
	cfg          Config
	diagnostics  DiagnosticsSink
	checkConfig  bool

	status         TaskStatus
	queryState     QueryState
	elapsed        time.Duration
	sinceLastQuery time.Duration
	finishReason   error
	announced      bool
	released       bool

	queriesIssued int
	targetsFound  int

	onTargetsFound []TargetsFoundFunc
	onFinished     []FinishedFunc

	timeline *Timeline
}

// TaskOption defines functional options for configuring a new ScanTask.
type TaskOption func(*ScanTask)

// WithTaskID overrides the generated task ID.
func WithTaskID(id uuid.UUID) TaskOption { return func(t *ScanTask) { t.id = id } }

// WithInstanceName names the task in diagnostics.
func WithInstanceName(name string) TaskOption {
	return func(t *ScanTask) { t.instanceName = name }
}

// WithDiagnostics routes the task's warnings to sink.
func WithDiagnostics(sink DiagnosticsSink) TaskOption {
	return func(t *ScanTask) { t.diagnostics = sink }
}

// WithTimeProvider sets a custom time provider for the task's timeline.
func WithTimeProvider(tp TimeProvider) TaskOption {
	return func(t *ScanTask) { t.timeline = NewTimeline(tp) }
}

// WithoutConfigChecks skips the owner-settings warnings at activation.
func WithoutConfigChecks() TaskOption { return func(t *ScanTask) { t.checkConfig = false } }

// NewScanTask configures a task without starting it. Register observers and
// then call Activate (or InitSimulated), otherwise the task never runs.
func NewScanTask(owner Owner, cfg Config, opts ...TaskOption) *ScanTask {
	t := &ScanTask{
		id:          uuid.New(),
		owner:       owner,
		cfg:         cfg,
		diagnostics: discardDiagnostics{},
		checkConfig: true,
		status:      TaskStatusPending,
		queryState:  QueryStateIdle,
		timeline:    NewTimeline(realTimeProvider{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.instanceName == "" {
		t.instanceName = "ScanForTargets_" + t.id.String()[:8]
	}
	return t
}

// ID returns the task's unique identifier.
func (t *ScanTask) ID() uuid.UUID { return t.id }

// InstanceName returns the name used in diagnostics.
func (t *ScanTask) InstanceName() string { return t.instanceName }

// Owner returns the task's owner.
func (t *ScanTask) Owner() Owner { return t.owner }

// Config returns the task's configuration.
func (t *ScanTask) Config() Config { return t.cfg }

// Status returns the lifecycle state.
func (t *ScanTask) Status() TaskStatus { return t.status }

// IsActive reports whether the task is receiving ticks.
func (t *ScanTask) IsActive() bool { return t.status == TaskStatusActive }

// IsFinished reports whether the task reached its terminal state.
func (t *ScanTask) IsFinished() bool { return t.status == TaskStatusFinished }

// IsAwaitingResponse reports whether a query is outstanding.
func (t *ScanTask) IsAwaitingResponse() bool { return t.queryState == QueryStateAwaitingResponse }

// Elapsed returns the simulation time accumulated since activation.
func (t *ScanTask) Elapsed() time.Duration { return t.elapsed }

// SinceLastQuery returns the throttle clock.
func (t *ScanTask) SinceLastQuery() time.Duration { return t.sinceLastQuery }

// FinishReason returns the condition that ended the task, nil when it ended
// through its policy or its owner.
func (t *ScanTask) FinishReason() error { return t.finishReason }

// QueriesIssued returns how many queries the task has issued.
func (t *ScanTask) QueriesIssued() int { return t.queriesIssued }

// TargetsFound returns the total number of results delivered to observers.
func (t *ScanTask) TargetsFound() int { return t.targetsFound }

// Timeline returns the task's wall-clock timeline.
func (t *ScanTask) Timeline() *Timeline { return t.timeline }

// OnTargetsFound registers an observer for non-empty result batches.
// Observers run synchronously in registration order.
func (t *ScanTask) OnTargetsFound(fn TargetsFoundFunc) {
	if t.released {
		return
	}
	t.onTargetsFound = append(t.onTargetsFound, fn)
}

// OnFinished registers an observer for the terminal transition.
// Observers run synchronously in registration order.
func (t *ScanTask) OnFinished(fn FinishedFunc) {
	if t.released {
		return
	}
	t.onFinished = append(t.onFinished, fn)
}

// Activate validates the owner and configuration and, if everything is in
// place, starts the task. On the first failing precondition the task reports a
// diagnostic and ends. Activating a task that is not pending does nothing.
func (t *ScanTask) Activate(ctx context.Context) {
	if t.status != TaskStatusPending {
		return
	}

	if t.checkConfig {
		if err := t.cfg.Validate(); err != nil {
			t.report(ctx, err)
		}
	}

	if !t.owner.HasMovementCapability() {
		t.fail(ctx, ErrMissingMovementCapability)
		return
	}
	if _, err := t.resolveTargeting(); err != nil {
		t.fail(ctx, err)
		return
	}

	t.elapsed = 0
	t.sinceLastQuery = 0
	t.status = TaskStatusActive
	t.timeline.MarkStarted()
}

// InitSimulated activates a task that arrived through replication on a
// simulated proxy. It shares Activate's checks; the owner's IsSimulating
// decides how the task later ends.
func (t *ScanTask) InitSimulated(ctx context.Context) { t.Activate(ctx) }

// Tick advances the task's clocks by delta and issues a query when one is due.
func (t *ScanTask) Tick(ctx context.Context, delta time.Duration) {
	if t.status != TaskStatusActive {
		return
	}

	if _, ok := t.owner.AvatarActor(); !ok {
		t.reachEnd(ctx, ErrMissingActorContext)
		return
	}
	source, ok := t.resolveSource()
	if !ok {
		t.reachEnd(ctx, ErrMissingActorContext)
		return
	}

	t.elapsed += delta

	if t.queryState == QueryStateAwaitingResponse {
		return
	}

	if t.cfg.MaxRate > 0 {
		t.sinceLastQuery += delta
		if t.sinceLastQuery < t.cfg.MaxRate {
			return
		}
	}

	// Duration is only checked once throttling let the tick through.
	if t.cfg.DurationPolicy == StopAfterDuration && t.elapsed >= t.cfg.MaxDuration {
		t.reachEnd(ctx, nil)
		return
	}

	svc, err := t.resolveTargeting()
	if err != nil {
		t.report(ctx, err)
		t.reachEnd(ctx, err)
		return
	}

	t.issue(ctx, svc, source)
}

func (t *ScanTask) issue(ctx context.Context, svc targeting.Service, source Actor) {
	h := svc.MakeRequestHandle(t.cfg.Preset, targeting.SourceContext{Source: source, Origin: t.cfg.Origin})

	t.queryState = QueryStateAwaitingResponse
	t.sinceLastQuery = 0
	t.queriesIssued++

	onComplete := func(ctx context.Context, h targeting.RequestHandle) { t.onQueryComplete(ctx, svc, h) }
	if t.cfg.Async {
		svc.ExecuteAsynchronously(ctx, h, onComplete)
	} else {
		svc.ExecuteSynchronously(ctx, h, onComplete)
	}
}

// onQueryComplete handles a finished query. It may run inside Tick (sync) or
// on a later pump of the targeting service (async). After the task finished
// the callback only returns the handle's results to the service.
func (t *ScanTask) onQueryComplete(ctx context.Context, svc targeting.Service, h targeting.RequestHandle) {
	if t.status == TaskStatusFinished {
		if h.IsValid() {
			svc.Release(h)
		}
		return
	}

	t.queryState = QueryStateIdle
	if !h.IsValid() {
		return
	}

	results, _ := svc.Results(h)
	svc.Release(h)

	if len(results) > 0 {
		t.targetsFound += len(results)
		if t.owner.ShouldBroadcast() {
			for _, fn := range t.onTargetsFound {
				fn(ctx, results)
			}
		}
		// An observer may have ended the task.
		if t.status == TaskStatusFinished {
			return
		}
	}

	if t.cfg.DurationPolicy.ShouldTerminate(len(results)) {
		t.reachEnd(ctx, nil)
	}
}

// EndTask is the owner ending the task. It is idempotent and safe while a
// query is outstanding; the late completion becomes inert.
func (t *ScanTask) EndTask(ctx context.Context) {
	t.teardown(ctx)
}

// PreDestroyFromReplication tears the task down as part of replication
// teardown. A task that has not announced its finish yet does so here,
// including a simulated proxy that reached its end on its own.
func (t *ScanTask) PreDestroyFromReplication(ctx context.Context) {
	t.teardown(ctx)
}

func (t *ScanTask) teardown(ctx context.Context) {
	if t.status != TaskStatusFinished {
		t.markFinished(nil)
	}
	t.broadcastFinished(ctx)
	t.release(ctx)
}

// reachEnd is the task finishing on its own. A simulated proxy only records
// the transition; its notification and release arrive with replication
// teardown.
func (t *ScanTask) reachEnd(ctx context.Context, reason error) {
	if t.status == TaskStatusFinished {
		return
	}
	t.markFinished(reason)

	if t.owner.IsSimulating() {
		return
	}
	if avatar, ok := t.owner.AvatarActor(); ok {
		avatar.ForceNetUpdate()
	}
	t.broadcastFinished(ctx)
	t.release(ctx)
}

// fail ends a task that could not start.
func (t *ScanTask) fail(ctx context.Context, err error) {
	t.report(ctx, err)
	t.markFinished(err)
	t.broadcastFinished(ctx)
	t.release(ctx)
}

func (t *ScanTask) markFinished(reason error) {
	if err := t.status.validateTransition(TaskStatusFinished); err != nil {
		return
	}
	t.status = TaskStatusFinished
	t.finishReason = reason
	t.timeline.MarkCompleted()
}

// broadcastFinished notifies finish observers at most once per task.
func (t *ScanTask) broadcastFinished(ctx context.Context) {
	if t.announced {
		return
	}
	t.announced = true
	if !t.owner.ShouldBroadcast() {
		return
	}
	for _, fn := range t.onFinished {
		fn(ctx)
	}
}

// release drops observers and tells the owner the task is gone. The task
// keeps enough state for a late completion callback to recognise it finished.
func (t *ScanTask) release(ctx context.Context) {
	if t.released {
		return
	}
	t.released = true
	t.onTargetsFound = nil
	t.onFinished = nil
	t.owner.OnTaskEnded(ctx, t)
}

func (t *ScanTask) resolveSource() (Actor, bool) {
	if t.cfg.SourceActor == nil {
		return nil, false
	}
	return t.cfg.SourceActor.Resolve()
}

// resolveTargeting checks the preset and the targeting service in the order
// they are reported.
func (t *ScanTask) resolveTargeting() (targeting.Service, error) {
	if t.cfg.Preset == nil {
		return nil, ErrMissingPreset
	}
	set := t.cfg.Preset.TaskSet()
	if set == nil {
		return nil, ErrMissingTaskSet
	}
	if set.IsEmpty() {
		return nil, ErrEmptyTaskSet
	}
	svc, ok := t.owner.TargetingService()
	if !ok || svc == nil {
		return nil, ErrMissingTargetingService
	}
	return svc, nil
}

func (t *ScanTask) report(ctx context.Context, err error) {
	t.diagnostics.Report(ctx, Diagnostic{
		Err:          err,
		AbilityName:  t.owner.Name(),
		InstanceName: t.instanceName,
		TaskID:       t.id,
	})
}
