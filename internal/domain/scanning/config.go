package scanning

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/grasp/internal/domain/targeting"
)

// DefaultMaxRate is the throttle window used when none is configured.
const DefaultMaxRate = 50 * time.Millisecond

// Config is fixed when a scan task is created and never changes afterwards.
type Config struct {
	// Preset is the targeting query to run. It must reference a non-empty task set.
	Preset *targeting.Preset

	// SourceActor is the actor queries are evaluated relative to.
	SourceActor ActorRef

	// Origin is an advisory world position passed along with each query.
	Origin targeting.Vector

	// MaxRate is the minimum time between two query issuances. Zero or
	// negative disables throttling.
	MaxRate time.Duration

	// DurationPolicy decides when the task stops on its own.
	DurationPolicy DurationPolicy

	// MaxDuration only applies to StopAfterDuration.
	MaxDuration time.Duration

	// Async issues queries through the deferred path of the targeting service.
	Async bool
}

// DefaultConfig returns a Config with the default throttle window and the
// StopOnOwnerEnd policy.
func DefaultConfig(preset *targeting.Preset, source ActorRef) Config {
	return Config{
		Preset:         preset,
		SourceActor:    source,
		MaxRate:        DefaultMaxRate,
		DurationPolicy: StopOnOwnerEnd,
	}
}

// Validate checks the settings an owner is expected to get right. The preset
// is deliberately left to activation, which reports it precisely.
func (c Config) Validate() error {
	var errs []error
	if !c.DurationPolicy.IsValid() {
		errs = append(errs, fmt.Errorf("%w: unknown duration policy %q", ErrInvalidConfig, c.DurationPolicy))
	}
	if c.DurationPolicy == StopAfterDuration && c.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("%w: %s policy requires a positive max duration", ErrInvalidConfig, c.DurationPolicy))
	}
	if c.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("%w: negative max duration %s", ErrInvalidConfig, c.MaxDuration))
	}
	return errors.Join(errs...)
}
