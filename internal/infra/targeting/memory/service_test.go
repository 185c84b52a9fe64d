package memory

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/grasp/internal/domain/targeting"
	"github.com/ahrav/grasp/internal/infra/targeting/tasks"
	"github.com/ahrav/grasp/pkg/common/logger"
)

type point struct {
	id  string
	loc targeting.Vector
}

func (p point) ID() string                 { return p.id }
func (p point) Location() targeting.Vector { return p.loc }

func setupService(t *testing.T, opts ...Option) *Service {
	t.Helper()

	world := []targeting.Target{
		point{id: "hero"},
		point{id: "goblin", loc: targeting.Vector{X: 3}},
		point{id: "dragon", loc: targeting.Vector{X: 300}},
	}
	return NewService(
		TargetProviderFunc(func() []targeting.Target { return world }),
		logger.Noop(),
		noop.NewTracerProvider().Tracer("test"),
		opts...,
	)
}

func nearbyPreset(t *testing.T) *targeting.Preset {
	t.Helper()

	set, err := tasks.NewTaskSet([]tasks.Spec{
		{Type: tasks.TypeSelectRadius, Radius: 10},
		{Type: tasks.TypeExcludeSource},
	})
	require.NoError(t, err)
	return targeting.NewPreset("nearby", set)
}

func heroContext() targeting.SourceContext {
	return targeting.SourceContext{Source: point{id: "hero"}}
}

func TestService_ExecuteSynchronously(t *testing.T) {
	t.Parallel()

	svc := setupService(t)
	ctx := context.Background()

	h := svc.MakeRequestHandle(nearbyPreset(t), heroContext())
	require.True(t, h.IsValid())

	var completed targeting.RequestHandle
	svc.ExecuteSynchronously(ctx, h, func(_ context.Context, got targeting.RequestHandle) {
		completed = got
		results, ok := svc.Results(got)
		require.True(t, ok)
		require.Len(t, results, 1)
		assert.Equal(t, "goblin", results[0].Target.ID())
	})
	assert.Equal(t, h, completed)

	assert.Equal(t, 1, svc.Outstanding())
	svc.Release(h)
	svc.Release(h)
	assert.Zero(t, svc.Outstanding())

	_, ok := svc.Results(h)
	assert.False(t, ok)
}

func TestService_ExecuteAsynchronously(t *testing.T) {
	t.Parallel()

	svc := setupService(t)
	ctx := context.Background()

	h := svc.MakeRequestHandle(nearbyPreset(t), heroContext())
	called := 0
	svc.ExecuteAsynchronously(ctx, h, func(context.Context, targeting.RequestHandle) { called++ })

	assert.Zero(t, called, "async completion must not run inside Execute")
	assert.Equal(t, 1, svc.Pending())
	_, ok := svc.Results(h)
	assert.False(t, ok)

	assert.Equal(t, 1, svc.Pump(ctx, time.Now()))
	assert.Equal(t, 1, called)
	assert.Zero(t, svc.Pending())

	results, ok := svc.Results(h)
	require.True(t, ok)
	assert.Len(t, results, 1)
}

func TestService_PumpDefersRequeuedWork(t *testing.T) {
	t.Parallel()

	svc := setupService(t)
	ctx := context.Background()
	preset := nearbyPreset(t)

	var issue func(ctx context.Context)
	rounds := 0
	issue = func(ctx context.Context) {
		h := svc.MakeRequestHandle(preset, heroContext())
		svc.ExecuteAsynchronously(ctx, h, func(ctx context.Context, h targeting.RequestHandle) {
			svc.Release(h)
			rounds++
			issue(ctx)
		})
	}
	issue(ctx)

	assert.Equal(t, 1, svc.Pump(ctx, time.Now()))
	assert.Equal(t, 1, rounds)
	assert.Equal(t, 1, svc.Pending())
	assert.Equal(t, 1, svc.Pump(ctx, time.Now()))
	assert.Equal(t, 2, rounds)
}

func TestService_DrainRate(t *testing.T) {
	t.Parallel()

	svc := setupService(t, WithDrainRate(1, 2))
	ctx := context.Background()
	preset := nearbyPreset(t)

	for range 5 {
		h := svc.MakeRequestHandle(preset, heroContext())
		svc.ExecuteAsynchronously(ctx, h, func(context.Context, targeting.RequestHandle) {})
	}

	// The drain follows the caller's clock, not the wall clock.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 2, svc.Pump(ctx, start))
	assert.Equal(t, 3, svc.Pending())
	assert.Zero(t, svc.Pump(ctx, start.Add(500*time.Millisecond)))
	assert.Equal(t, 1, svc.Pump(ctx, start.Add(time.Second)))
	assert.Equal(t, 2, svc.Pump(ctx, start.Add(time.Hour)))
	assert.Zero(t, svc.Pending())
}

func TestService_PumpStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	svc := setupService(t)
	h := svc.MakeRequestHandle(nearbyPreset(t), heroContext())
	svc.ExecuteAsynchronously(context.Background(), h, func(context.Context, targeting.RequestHandle) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, svc.Pump(ctx, time.Now()))
	assert.Equal(t, 1, svc.Pending())
}

func TestService_InvalidRequests(t *testing.T) {
	t.Parallel()

	var warnings []logger.Record
	log := logger.NewWithEvents(io.Discard, logger.LevelWarn, "test", nil, logger.Events{
		Warn: func(_ context.Context, r logger.Record) { warnings = append(warnings, r) },
	})
	svc := NewService(nil, log, noop.NewTracerProvider().Tracer("test"))
	ctx := context.Background()

	assert.False(t, svc.MakeRequestHandle(nil, heroContext()).IsValid())

	var got []targeting.RequestHandle
	record := func(_ context.Context, h targeting.RequestHandle) { got = append(got, h) }
	svc.ExecuteSynchronously(ctx, 42, record)
	svc.ExecuteAsynchronously(ctx, 43, record)

	assert.Equal(t, []targeting.RequestHandle{0, 0}, got)
	assert.Zero(t, svc.Pending())

	require.Len(t, warnings, 2)
	for _, w := range warnings {
		err, ok := w.Attributes["error"].(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, targeting.ErrUnknownHandle)
	}
}

func TestService_HandlesAreUnique(t *testing.T) {
	t.Parallel()

	svc := setupService(t)
	preset := nearbyPreset(t)

	seen := make(map[targeting.RequestHandle]struct{})
	for range 100 {
		h := svc.MakeRequestHandle(preset, heroContext())
		_, dup := seen[h]
		require.False(t, dup)
		seen[h] = struct{}{}
		svc.Release(h)
	}
}
