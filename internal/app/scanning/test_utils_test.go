package scanning

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/internal/domain/targeting"
	targetingmemory "github.com/ahrav/grasp/internal/infra/targeting/memory"
	"github.com/ahrav/grasp/internal/infra/targeting/tasks"
	"github.com/ahrav/grasp/pkg/common/logger"
)

type mockTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// testEnv is a small world: a movable "hero" at the origin, a "goblin" three
// units away and an "orc" out of the default scan radius.
type testEnv struct {
	world     *World
	service   *targetingmemory.Service
	scheduler *TickScheduler
	hero      *WorldActor
	tracer    trace.Tracer
	schedOpts []SchedulerOption
}

func newTestEnv(t *testing.T, opts ...SchedulerOption) *testEnv {
	t.Helper()

	tracer := noop.NewTracerProvider().Tracer("test")
	world := NewWorld(logger.Noop())
	svc := targetingmemory.NewService(targetingmemory.TargetProviderFunc(world.Targets), logger.Noop(), tracer)

	hero, err := world.Spawn("hero", targeting.Vector{}, true)
	require.NoError(t, err)
	_, err = world.Spawn("goblin", targeting.Vector{X: 3}, true)
	require.NoError(t, err)
	_, err = world.Spawn("orc", targeting.Vector{X: 20}, true)
	require.NoError(t, err)

	env := &testEnv{world: world, hero: hero, tracer: tracer, schedOpts: opts}
	env.install(svc)
	return env
}

func (e *testEnv) install(svc *targetingmemory.Service) {
	e.service = svc
	e.world.SetTargetingService(svc)
	opts := append([]SchedulerOption{WithPump(svc)}, e.schedOpts...)
	e.scheduler = NewTickScheduler(e.tracer, logger.Noop(), opts...)
}

// limitDrain replaces the targeting service and scheduler with ones whose
// async completions are rate limited. Call it before starting any scan.
func (e *testEnv) limitDrain(rps float64, burst int) {
	e.install(targetingmemory.NewService(
		targetingmemory.TargetProviderFunc(e.world.Targets),
		logger.Noop(),
		e.tracer,
		targetingmemory.WithDrainRate(rps, burst),
	))
}

func (e *testEnv) preset(t *testing.T, radius float64) *targeting.Preset {
	t.Helper()
	set, err := tasks.NewTaskSet([]tasks.Spec{
		{Type: tasks.TypeSelectRadius, Radius: radius},
		{Type: tasks.TypeExcludeSource},
		{Type: tasks.TypeSortByDistance},
	})
	require.NoError(t, err)
	return targeting.NewPreset("nearby", set)
}

func (e *testEnv) ability(name, avatar string, opts ...AbilityOption) *Ability {
	return NewAbility(name, e.world.Ref(avatar), e.world, e.scheduler, logger.Noop(), e.tracer, opts...)
}

func (e *testEnv) config(t *testing.T, policy scanning.DurationPolicy) scanning.Config {
	t.Helper()
	cfg := scanning.DefaultConfig(e.preset(t, 5), e.world.Ref("hero"))
	cfg.DurationPolicy = policy
	cfg.MaxRate = 0
	return cfg
}

// frames runs n frames of delta each.
func (e *testEnv) frames(n int, delta time.Duration) {
	for range n {
		e.scheduler.RunFrame(context.Background(), delta)
	}
}

// taskRecorder captures a task's notifications.
type taskRecorder struct {
	mu       sync.Mutex
	batches  [][]targeting.Result
	finished int
}

func (r *taskRecorder) Observe(_ context.Context, task *scanning.ScanTask) {
	task.OnTargetsFound(func(_ context.Context, results []targeting.Result) {
		r.mu.Lock()
		r.batches = append(r.batches, results)
		r.mu.Unlock()
	})
	task.OnFinished(func(context.Context) {
		r.mu.Lock()
		r.finished++
		r.mu.Unlock()
	})
}

func (r *taskRecorder) snapshot() ([][]targeting.Result, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]targeting.Result(nil), r.batches...), r.finished
}
