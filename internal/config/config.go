package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/internal/domain/targeting"
	"github.com/ahrav/grasp/internal/infra/targeting/tasks"
)

// Config represents the top-level configuration.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Developer DeveloperConfig `yaml:"developer"`
	Presets   []PresetSpec    `yaml:"presets" validate:"dive"`
	Actors    []ActorSpec     `yaml:"actors" validate:"dive"`
	Abilities []AbilitySpec   `yaml:"abilities" validate:"dive"`
}

// SchedulerConfig controls the frame loop and the async drain of the
// reference targeting service.
type SchedulerConfig struct {
	TickRate time.Duration `yaml:"tick_rate" validate:"gte=0"`
	// AsyncDrainPerSecond bounds async completions per second. Zero means unbounded.
	AsyncDrainPerSecond float64 `yaml:"async_drain_per_second" validate:"gte=0"`
	AsyncBurst          int     `yaml:"async_burst" validate:"gte=0"`
}

// DeveloperConfig holds developer settings.
type DeveloperConfig struct {
	// DisableErrorChecking suppresses the configuration warnings scans emit
	// when they activate.
	DisableErrorChecking bool `yaml:"disable_error_checking"`
}

// PresetSpec is a named targeting query built from ordered tasks.
type PresetSpec struct {
	Name  string     `yaml:"name" validate:"required"`
	Tasks []TaskSpec `yaml:"tasks" validate:"dive"`
}

// TaskSpec is one step of a preset.
type TaskSpec struct {
	Type   string  `yaml:"type" validate:"required,oneof=select_radius exclude_source sort_by_distance limit"`
	Radius float64 `yaml:"radius,omitempty" validate:"gte=0"`
	Count  int     `yaml:"count,omitempty" validate:"gte=0"`
}

// ToSpec converts the config entry to a task spec.
func (t TaskSpec) ToSpec() tasks.Spec {
	return tasks.Spec{Type: t.Type, Radius: t.Radius, Count: t.Count}
}

// Vector is a position in config files.
type Vector struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// ActorSpec places an actor in the world at startup.
type ActorSpec struct {
	ID       string `yaml:"id" validate:"required"`
	Position Vector `yaml:"position"`
	Movement bool   `yaml:"movement"`
}

// AbilitySpec declares an ability and the scans it starts.
type AbilitySpec struct {
	Name       string     `yaml:"name" validate:"required"`
	Avatar     string     `yaml:"avatar" validate:"required"`
	Simulating bool       `yaml:"simulating"`
	Scans      []ScanSpec `yaml:"scans" validate:"dive"`
}

// ScanSpec is the configuration of one scan task.
type ScanSpec struct {
	Preset string `yaml:"preset" validate:"required"`
	// Source defaults to the ability's avatar.
	Source      string        `yaml:"source,omitempty"`
	Origin      Vector        `yaml:"origin"`
	MaxRate     time.Duration `yaml:"max_rate"`
	Policy      string        `yaml:"policy" validate:"required"`
	MaxDuration time.Duration `yaml:"max_duration"`
	Async       bool          `yaml:"async"`
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks field constraints and cross references between sections.
// Suspicious scan settings (such as a DURATION policy without a duration) are
// left to the scan itself, which warns about them when it activates.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var errs []error
	presets := make(map[string]struct{}, len(c.Presets))
	for _, p := range c.Presets {
		if _, dup := presets[p.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate preset %q", p.Name))
		}
		presets[p.Name] = struct{}{}
	}

	actors := make(map[string]struct{}, len(c.Actors))
	for _, a := range c.Actors {
		if _, dup := actors[a.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate actor %q", a.ID))
		}
		actors[a.ID] = struct{}{}
	}

	for _, ab := range c.Abilities {
		if _, ok := actors[ab.Avatar]; !ok {
			errs = append(errs, fmt.Errorf("ability %q: unknown avatar %q", ab.Name, ab.Avatar))
		}
		for i, s := range ab.Scans {
			if _, ok := presets[s.Preset]; !ok {
				errs = append(errs, fmt.Errorf("ability %q scan %d: unknown preset %q", ab.Name, i, s.Preset))
			}
			if s.Source != "" {
				if _, ok := actors[s.Source]; !ok {
					errs = append(errs, fmt.Errorf("ability %q scan %d: unknown source %q", ab.Name, i, s.Source))
				}
			}
			if _, err := scanning.ParseDurationPolicy(s.Policy); err != nil {
				errs = append(errs, fmt.Errorf("ability %q scan %d: %w", ab.Name, i, err))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// BuildPresets turns the preset section into targeting presets keyed by name.
func (c *Config) BuildPresets() (map[string]*targeting.Preset, error) {
	out := make(map[string]*targeting.Preset, len(c.Presets))
	for _, p := range c.Presets {
		specs := make([]tasks.Spec, 0, len(p.Tasks))
		for _, t := range p.Tasks {
			specs = append(specs, t.ToSpec())
		}
		set, err := tasks.NewTaskSet(specs)
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
		out[p.Name] = targeting.NewPreset(p.Name, set)
	}
	return out, nil
}

// ToVector converts v to a world position.
func (v Vector) ToVector() targeting.Vector { return targeting.Vector{X: v.X, Y: v.Y, Z: v.Z} }

// ScanConfig builds the scan task configuration for s. A zero MaxRate falls
// back to the default throttle window; use a negative value to disable it.
func (s ScanSpec) ScanConfig(preset *targeting.Preset, source scanning.ActorRef) (scanning.Config, error) {
	policy, err := scanning.ParseDurationPolicy(s.Policy)
	if err != nil {
		return scanning.Config{}, err
	}

	cfg := scanning.DefaultConfig(preset, source)
	cfg.Origin = s.Origin.ToVector()
	cfg.DurationPolicy = policy
	cfg.MaxDuration = s.MaxDuration
	cfg.Async = s.Async
	if s.MaxRate != 0 {
		cfg.MaxRate = s.MaxRate
	}
	return cfg, nil
}
