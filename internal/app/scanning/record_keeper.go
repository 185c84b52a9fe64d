package scanning

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/pkg/common/logger"
)

// RecordKeeper persists a ScanRecord for every task its abilities release.
// It hooks task release rather than the finish notification, which replay and
// replication teardown suppress.
type RecordKeeper struct {
	repo  scanning.RecordRepository
	queue *workQueue[*scanning.ScanRecord]

	logger *logger.Logger
	tracer trace.Tracer
}

// NewRecordKeeper creates a keeper writing to repo. Call Start before any task
// ends.
func NewRecordKeeper(
	repo scanning.RecordRepository,
	logger *logger.Logger,
	tracer trace.Tracer,
	queueSize int,
) *RecordKeeper {
	k := &RecordKeeper{
		repo:   repo,
		logger: logger.With("component", "record_keeper"),
		tracer: tracer,
	}
	k.queue = newWorkQueue(queueSize, k.logger, k.save)
	return k
}

// Start launches the persistence worker.
func (k *RecordKeeper) Start(ctx context.Context) { k.queue.start(ctx) }

// Close saves what is queued and stops the worker.
func (k *RecordKeeper) Close() { k.queue.close() }

// TaskEnded snapshots task and queues the record.
func (k *RecordKeeper) TaskEnded(ctx context.Context, task *scanning.ScanTask) {
	rec := scanning.NewScanRecord(task)
	if err := k.queue.submit(rec); err != nil {
		k.logger.Warn(ctx, "Dropping scan record", "task_id", rec.TaskID, "err", err)
	}
}

func (k *RecordKeeper) save(ctx context.Context, rec *scanning.ScanRecord) {
	ctx, span := k.tracer.Start(ctx, "record_keeper.save",
		trace.WithAttributes(
			attribute.String("task_id", rec.TaskID.String()),
			attribute.String("ability", rec.AbilityName),
			attribute.Int("queries_issued", rec.QueriesIssued),
			attribute.Int("targets_found", rec.TargetsFound),
		))
	defer span.End()

	if err := k.repo.SaveRecord(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save scan record")
		k.logger.Error(ctx, "Failed to save scan record", "task_id", rec.TaskID, "err", err)
		return
	}
	span.SetStatus(codes.Ok, "scan record saved")
}
