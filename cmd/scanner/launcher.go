package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/grasp/internal/api"
	"github.com/ahrav/grasp/internal/app/scanning"
	"github.com/ahrav/grasp/internal/config"
	"github.com/ahrav/grasp/internal/domain/targeting"
	"github.com/ahrav/grasp/pkg/common/logger"
)

type runningAbility struct {
	ability *scanning.Ability
	avatar  string
}

// launcher owns the abilities built from config and starts scans on them,
// both at startup and on API request.
type launcher struct {
	world   *scanning.World
	presets map[string]*targeting.Preset

	mu        sync.RWMutex
	abilities map[string]runningAbility
	order     []string

	log *logger.Logger
}

var _ api.ScanLauncher = (*launcher)(nil)

// newLauncher spawns the configured actors and creates the abilities. Scans
// are not started yet.
func newLauncher(
	cfg *config.Config,
	world *scanning.World,
	scheduler *scanning.TickScheduler,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...scanning.AbilityOption,
) (*launcher, error) {
	for _, a := range cfg.Actors {
		if _, err := world.Spawn(a.ID, a.Position.ToVector(), a.Movement); err != nil {
			return nil, err
		}
	}

	presets, err := cfg.BuildPresets()
	if err != nil {
		return nil, err
	}

	opts = append(opts, scanning.WithDiagnosticsSink(scanning.NewLogDiagnostics(log)))
	if cfg.Developer.DisableErrorChecking {
		opts = append(opts, scanning.WithoutErrorChecking())
	}

	l := &launcher{
		world:     world,
		presets:   presets,
		abilities: make(map[string]runningAbility, len(cfg.Abilities)),
		log:       log,
	}
	for _, spec := range cfg.Abilities {
		abilityOpts := opts[:len(opts):len(opts)]
		if spec.Simulating {
			abilityOpts = append(abilityOpts, scanning.WithSimulating())
		}
		ability := scanning.NewAbility(spec.Name, world.Ref(spec.Avatar), world, scheduler, log, tracer, abilityOpts...)
		l.abilities[spec.Name] = runningAbility{ability: ability, avatar: spec.Avatar}
		l.order = append(l.order, spec.Name)
	}
	return l, nil
}

// startConfigured starts every scan listed in cfg. A scan that cannot
// activate has already been reported by the task, so startup continues.
func (l *launcher) startConfigured(ctx context.Context, cfg *config.Config) error {
	for _, spec := range cfg.Abilities {
		for i, scan := range spec.Scans {
			_, err := l.Launch(ctx, spec.Name, scan)
			switch {
			case errors.Is(err, api.ErrUnknownAbility), errors.Is(err, api.ErrInvalidScan):
				return fmt.Errorf("ability %q scan %d: %w", spec.Name, i, err)
			case err != nil:
				l.log.Warn(ctx, "Scan did not start", "ability", spec.Name, "scan", i, "error", err)
			}
		}
	}
	return nil
}

// Launch starts spec on the named ability. When the task was created but did
// not activate, it is returned together with the reason.
func (l *launcher) Launch(ctx context.Context, ability string, spec config.ScanSpec) (*api.LaunchedScan, error) {
	l.mu.RLock()
	ra, ok := l.abilities[ability]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", api.ErrUnknownAbility, ability)
	}

	preset, ok := l.preset(spec.Preset)
	if !ok {
		return nil, fmt.Errorf("%w: unknown preset %q", api.ErrInvalidScan, spec.Preset)
	}
	source := ra.avatar
	if spec.Source != "" {
		source = spec.Source
	}

	scanCfg, err := spec.ScanConfig(preset, l.world.Ref(source))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrInvalidScan, err)
	}
	adm, err := ra.ability.Admit(ctx, scanCfg)
	return &api.LaunchedScan{
		TaskID:   adm.Task.ID(),
		Instance: adm.Task.InstanceName(),
		Status:   adm.Status,
	}, err
}

func (l *launcher) preset(name string) (*targeting.Preset, bool) {
	p, ok := l.presets[name]
	return p, ok
}

// endAll ends every ability in config order.
func (l *launcher) endAll(ctx context.Context) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, name := range l.order {
		l.abilities[name].ability.End(ctx)
	}
}

func (l *launcher) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.abilities)
}
