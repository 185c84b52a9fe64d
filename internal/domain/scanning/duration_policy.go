package scanning

import "fmt"

// DurationPolicy selects when a scan task stops on its own.
type DurationPolicy string

const (
	// StopOnOwnerEnd keeps scanning until the owning ability ends the task.
	StopOnOwnerEnd DurationPolicy = "ABILITY"

	// StopAfterDuration stops once the task has been active for MaxDuration.
	StopAfterDuration DurationPolicy = "DURATION"

	// StopOnFirstTargetFound stops after the first query that returns any target.
	StopOnFirstTargetFound DurationPolicy = "TARGET_FOUND"

	// StopOnNoTargetFound stops after the first query that returns no targets.
	StopOnNoTargetFound DurationPolicy = "NO_TARGET_FOUND"

	// RunOnce stops after a single query completes.
	RunOnce DurationPolicy = "ONCE"
)

// String returns the string representation of the DurationPolicy.
func (p DurationPolicy) String() string { return string(p) }

// IsValid reports whether p is one of the known policies.
func (p DurationPolicy) IsValid() bool {
	switch p {
	case StopOnOwnerEnd, StopAfterDuration, StopOnFirstTargetFound, StopOnNoTargetFound, RunOnce:
		return true
	default:
		return false
	}
}

// ParseDurationPolicy converts a string to a DurationPolicy. Both the wire
// values and the lower-case config spellings are accepted.
func ParseDurationPolicy(s string) (DurationPolicy, error) {
	switch s {
	case "ABILITY", "ability", "owner_end":
		return StopOnOwnerEnd, nil
	case "DURATION", "duration":
		return StopAfterDuration, nil
	case "TARGET_FOUND", "target_found":
		return StopOnFirstTargetFound, nil
	case "NO_TARGET_FOUND", "no_target_found":
		return StopOnNoTargetFound, nil
	case "ONCE", "once":
		return RunOnce, nil
	default:
		return "", fmt.Errorf("unknown duration policy %q", s)
	}
}

// ShouldTerminate decides, from the result count of a completed query, whether
// the task stops. StopAfterDuration never stops here; its clock is checked on
// tick.
func (p DurationPolicy) ShouldTerminate(resultCount int) bool {
	switch p {
	case StopOnFirstTargetFound:
		return resultCount > 0
	case StopOnNoTargetFound:
		return resultCount == 0
	case RunOnce:
		return true
	default:
		return false
	}
}
