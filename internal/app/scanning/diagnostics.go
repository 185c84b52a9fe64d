package scanning

import (
	"context"

	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/pkg/common/logger"
)

// NewLogDiagnostics returns a sink that writes scan task warnings to log.
func NewLogDiagnostics(log *logger.Logger) scanning.DiagnosticsSink {
	log = log.With("component", "scan_diagnostics")
	return scanning.DiagnosticsFunc(func(ctx context.Context, d scanning.Diagnostic) {
		log.Warn(ctx, "Scan task warning",
			"ability", d.AbilityName,
			"instance", d.InstanceName,
			"task_id", d.TaskID,
			"err", d.Err,
		)
	})
}
