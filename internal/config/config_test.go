package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/internal/domain/targeting"
	"github.com/ahrav/grasp/internal/infra/targeting/tasks"
)

func validConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{TickRate: 16 * time.Millisecond},
		Presets: []PresetSpec{{
			Name:  "nearby",
			Tasks: []TaskSpec{{Type: tasks.TypeSelectRadius, Radius: 10}, {Type: tasks.TypeSortByDistance}},
		}},
		Actors: []ActorSpec{{ID: "hero", Movement: true}, {ID: "goblin"}},
		Abilities: []AbilitySpec{{
			Name:   "GA_Sense",
			Avatar: "hero",
			Scans:  []ScanSpec{{Preset: "nearby", Policy: "ability"}},
		}},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "unknown task type",
			mutate:  func(c *Config) { c.Presets[0].Tasks[0].Type = "teleport" },
			wantErr: "oneof",
		},
		{
			name:    "missing preset name",
			mutate:  func(c *Config) { c.Presets[0].Name = "" },
			wantErr: "required",
		},
		{
			name:    "negative tick rate",
			mutate:  func(c *Config) { c.Scheduler.TickRate = -time.Second },
			wantErr: "TickRate",
		},
		{
			name:    "duplicate actor",
			mutate:  func(c *Config) { c.Actors = append(c.Actors, ActorSpec{ID: "hero"}) },
			wantErr: `duplicate actor "hero"`,
		},
		{
			name:    "unknown avatar",
			mutate:  func(c *Config) { c.Abilities[0].Avatar = "ghost" },
			wantErr: `unknown avatar "ghost"`,
		},
		{
			name:    "unknown preset",
			mutate:  func(c *Config) { c.Abilities[0].Scans[0].Preset = "far" },
			wantErr: `unknown preset "far"`,
		},
		{
			name:    "unknown source",
			mutate:  func(c *Config) { c.Abilities[0].Scans[0].Source = "ghost" },
			wantErr: `unknown source "ghost"`,
		},
		{
			name:    "unknown policy",
			mutate:  func(c *Config) { c.Abilities[0].Scans[0].Policy = "forever" },
			wantErr: "unknown duration policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_DurationWithoutMaxIsLeftToTheScan(t *testing.T) {
	cfg := validConfig()
	cfg.Abilities[0].Scans[0].Policy = "duration"

	assert.NoError(t, cfg.Validate())
}

func TestConfig_BuildPresets(t *testing.T) {
	cfg := validConfig()

	presets, err := cfg.BuildPresets()
	require.NoError(t, err)
	require.Contains(t, presets, "nearby")
	assert.Equal(t, "nearby", presets["nearby"].Name())
	assert.Len(t, presets["nearby"].TaskSet().Tasks, 2)

	cfg.Presets[0].Tasks[0].Radius = 0
	_, err = cfg.BuildPresets()
	assert.ErrorContains(t, err, `preset "nearby"`)
}

func TestScanSpec_ScanConfig(t *testing.T) {
	preset := targeting.NewPreset("nearby", &targeting.TaskSet{})

	tests := []struct {
		name string
		spec ScanSpec
		want func(t *testing.T, cfg scanning.Config)
	}{
		{
			name: "defaults",
			spec: ScanSpec{Preset: "nearby", Policy: "ability"},
			want: func(t *testing.T, cfg scanning.Config) {
				assert.Equal(t, scanning.DefaultMaxRate, cfg.MaxRate)
				assert.Equal(t, scanning.StopOnOwnerEnd, cfg.DurationPolicy)
				assert.False(t, cfg.Async)
			},
		},
		{
			name: "explicit",
			spec: ScanSpec{
				Preset:      "nearby",
				Policy:      "DURATION",
				MaxRate:     time.Second,
				MaxDuration: 5 * time.Second,
				Origin:      Vector{X: 1, Y: 2, Z: 3},
				Async:       true,
			},
			want: func(t *testing.T, cfg scanning.Config) {
				assert.Equal(t, time.Second, cfg.MaxRate)
				assert.Equal(t, scanning.StopAfterDuration, cfg.DurationPolicy)
				assert.Equal(t, 5*time.Second, cfg.MaxDuration)
				assert.Equal(t, targeting.Vector{X: 1, Y: 2, Z: 3}, cfg.Origin)
				assert.True(t, cfg.Async)
			},
		},
		{
			name: "throttle disabled",
			spec: ScanSpec{Preset: "nearby", Policy: "once", MaxRate: -1},
			want: func(t *testing.T, cfg scanning.Config) {
				assert.Equal(t, time.Duration(-1), cfg.MaxRate)
				assert.Equal(t, scanning.RunOnce, cfg.DurationPolicy)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.spec.ScanConfig(preset, nil)
			require.NoError(t, err)
			assert.Same(t, preset, cfg.Preset)
			tt.want(t, cfg)
		})
	}

	_, err := ScanSpec{Preset: "nearby", Policy: "sometimes"}.ScanConfig(preset, nil)
	assert.Error(t, err)
}
