// Package scanning provides the scan task: a recurring, rate-limited targeting
// query attached to an owner's lifecycle. It defines the task's state machine,
// its termination policies, and the ports it needs from the surrounding runtime.
package scanning

import (
	"context"

	"github.com/google/uuid"

	"github.com/ahrav/grasp/internal/domain/targeting"
)

// Actor is a live actor the task may interact with.
type Actor interface {
	targeting.Target
	// ForceNetUpdate asks the replication layer to send this actor's state now.
	ForceNetUpdate()
}

// ActorRef is a weak reference to an actor. Resolve must be called before
// every use; the reference never keeps the actor alive.
type ActorRef interface {
	Resolve() (Actor, bool)
}

// Owner is everything a scan task needs from whatever owns it (an ability).
type Owner interface {
	// Name identifies the owner in diagnostics.
	Name() string

	// AvatarActor resolves the actor the owner acts through.
	AvatarActor() (Actor, bool)

	// HasMovementCapability reports whether the avatar can move.
	HasMovementCapability() bool

	// TargetingService resolves the targeting service from the current world.
	TargetingService() (targeting.Service, bool)

	// ShouldBroadcast gates observer notifications (false during replay).
	ShouldBroadcast() bool

	// IsSimulating reports whether this owner is a simulated proxy whose task
	// teardown is driven by replication.
	IsSimulating() bool

	// OnTaskEnded is called once when the task releases its resources.
	OnTaskEnded(ctx context.Context, task *ScanTask)
}

// DiagnosticsSink receives structured warnings from scan tasks.
type DiagnosticsSink interface {
	Report(ctx context.Context, d Diagnostic)
}

// DiagnosticsFunc adapts a function to DiagnosticsSink.
type DiagnosticsFunc func(ctx context.Context, d Diagnostic)

// Report calls f(ctx, d).
func (f DiagnosticsFunc) Report(ctx context.Context, d Diagnostic) { f(ctx, d) }

type discardDiagnostics struct{}

func (discardDiagnostics) Report(context.Context, Diagnostic) {}

// RecordRepository persists the summaries of finished scan tasks.
type RecordRepository interface {
	// SaveRecord persists a record. Saving an existing ID overwrites it.
	SaveRecord(ctx context.Context, rec *ScanRecord) error

	// GetRecord returns the record for taskID or ErrRecordNotFound.
	GetRecord(ctx context.Context, taskID uuid.UUID) (*ScanRecord, error)

	// ListRecordsByAbility returns the newest records for an ability first.
	ListRecordsByAbility(ctx context.Context, ability string, limit int) ([]*ScanRecord, error)
}
