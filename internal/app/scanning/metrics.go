package scanning

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/grasp/internal/domain/scanning"
)

// ScanMetrics records the lifecycle of scan tasks.
type ScanMetrics interface {
	IncScansStarted(ctx context.Context, ability string)
	ObserveScanFinished(ctx context.Context, task *scanning.ScanTask)
	ObserveTargetsFound(ctx context.Context, ability string, count int)
}

// scanMetrics implements ScanMetrics.
type scanMetrics struct {
	scansStarted  metric.Int64Counter
	scansFinished metric.Int64Counter
	targetsFound  metric.Int64Counter

	queriesPerScan metric.Int64Histogram
	scanElapsed    metric.Float64Histogram
}

const namespace = "scanner"

// NewScanMetrics creates the scan instruments on mp's meter.
func NewScanMetrics(mp metric.MeterProvider) (*scanMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	s := new(scanMetrics)
	var err error

	if s.scansStarted, err = meter.Int64Counter(
		"scans_started_total",
		metric.WithDescription("Total number of scan tasks that activated"),
	); err != nil {
		return nil, err
	}

	if s.scansFinished, err = meter.Int64Counter(
		"scans_finished_total",
		metric.WithDescription("Total number of scan tasks that finished, by outcome"),
	); err != nil {
		return nil, err
	}

	if s.targetsFound, err = meter.Int64Counter(
		"targets_found_total",
		metric.WithDescription("Total number of targets delivered to scan observers"),
	); err != nil {
		return nil, err
	}

	if s.queriesPerScan, err = meter.Int64Histogram(
		"queries_per_scan",
		metric.WithDescription("Number of targeting queries issued by a scan task"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 1000),
	); err != nil {
		return nil, err
	}

	if s.scanElapsed, err = meter.Float64Histogram(
		"scan_elapsed_seconds",
		metric.WithDescription("Simulation time a scan task ran for"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return s, nil
}

func (m *scanMetrics) IncScansStarted(ctx context.Context, ability string) {
	m.scansStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("ability", ability)))
}

func (m *scanMetrics) ObserveScanFinished(ctx context.Context, task *scanning.ScanTask) {
	outcome := "completed"
	if task.FinishReason() != nil {
		outcome = "aborted"
	}
	attrs := metric.WithAttributes(
		attribute.String("ability", task.Owner().Name()),
		attribute.String("policy", task.Config().DurationPolicy.String()),
		attribute.String("outcome", outcome),
	)
	m.scansFinished.Add(ctx, 1, attrs)
	m.queriesPerScan.Record(ctx, int64(task.QueriesIssued()), attrs)
	m.scanElapsed.Record(ctx, task.Elapsed().Seconds(), attrs)
}

func (m *scanMetrics) ObserveTargetsFound(ctx context.Context, ability string, count int) {
	m.targetsFound.Add(ctx, int64(count), metric.WithAttributes(attribute.String("ability", ability)))
}

type noopScanMetrics struct{}

func (noopScanMetrics) IncScansStarted(context.Context, string)                 {}
func (noopScanMetrics) ObserveScanFinished(context.Context, *scanning.ScanTask) {}
func (noopScanMetrics) ObserveTargetsFound(context.Context, string, int)        {}
