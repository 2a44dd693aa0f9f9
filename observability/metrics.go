package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/storeforge/provision/hook"
	"github.com/storeforge/provision/job"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/storeforge/provision/observability"

// Compile-time interface checks.
var (
	_ hook.Hook           = (*MetricsHook)(nil)
	_ hook.JobQueued      = (*MetricsHook)(nil)
	_ hook.JobCompleted   = (*MetricsHook)(nil)
	_ hook.JobFailed      = (*MetricsHook)(nil)
	_ hook.StageCompleted = (*MetricsHook)(nil)
	_ hook.StageFailed    = (*MetricsHook)(nil)
)

// MetricsHook records system-wide lifecycle metrics. Register it on the
// hook registry to automatically track store request rates, completion
// counts, failure rates, and per-stage outcomes.
type MetricsHook struct {
	storesRequested metric.Int64Counter
	storesCompleted metric.Int64Counter
	storesFailed    metric.Int64Counter
	stageOutcomes   metric.Int64Counter
	storeDuration   metric.Float64Histogram
}

// NewMetricsHook creates a MetricsHook using the global MeterProvider.
// Without a configured provider the instruments are noops.
func NewMetricsHook() *MetricsHook {
	return NewMetricsHookWithMeter(otel.Meter(meterName))
}

// NewMetricsHookWithMeter creates a MetricsHook with the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func NewMetricsHookWithMeter(meter metric.Meter) *MetricsHook {
	requested, rErr := meter.Int64Counter(
		"provision.store.requested",
		metric.WithDescription("Total store provisioning requests accepted"),
		metric.WithUnit("{request}"),
	)
	_ = rErr // noop fallback guaranteed by OTel API contract

	completed, cErr := meter.Int64Counter(
		"provision.store.completed",
		metric.WithDescription("Total stores provisioned successfully"),
		metric.WithUnit("{store}"),
	)
	_ = cErr // noop fallback guaranteed by OTel API contract

	failed, fErr := meter.Int64Counter(
		"provision.store.failed",
		metric.WithDescription("Total store provisioning runs that failed terminally"),
		metric.WithUnit("{store}"),
	)
	_ = fErr // noop fallback guaranteed by OTel API contract

	outcomes, oErr := meter.Int64Counter(
		"provision.stage.outcomes",
		metric.WithDescription("Stage completions by stage and status"),
		metric.WithUnit("{stage}"),
	)
	_ = oErr // noop fallback guaranteed by OTel API contract

	duration, dErr := meter.Float64Histogram(
		"provision.store.duration",
		metric.WithDescription("End to end provisioning time in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	return &MetricsHook{
		storesRequested: requested,
		storesCompleted: completed,
		storesFailed:    failed,
		stageOutcomes:   outcomes,
		storeDuration:   duration,
	}
}

// Name implements hook.Hook.
func (m *MetricsHook) Name() string { return "observability-metrics" }

// OnJobQueued implements hook.JobQueued.
func (m *MetricsHook) OnJobQueued(ctx context.Context, _ *job.Job) error {
	m.storesRequested.Add(ctx, 1)
	return nil
}

// OnJobCompleted implements hook.JobCompleted.
func (m *MetricsHook) OnJobCompleted(ctx context.Context, _ *job.Job, elapsed time.Duration) error {
	m.storesCompleted.Add(ctx, 1)
	m.storeDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("status", "ok")))
	return nil
}

// OnJobFailed implements hook.JobFailed.
func (m *MetricsHook) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.storesFailed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", failedStage(j))))
	return nil
}

// OnStageCompleted implements hook.StageCompleted.
func (m *MetricsHook) OnStageCompleted(ctx context.Context, _ *job.Job, stage job.Stage, _ time.Duration) error {
	m.stageOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("status", "ok"),
	))
	return nil
}

// OnStageFailed implements hook.StageFailed.
func (m *MetricsHook) OnStageFailed(ctx context.Context, _ *job.Job, stage job.Stage, _ error) error {
	m.stageOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("status", "error"),
	))
	return nil
}

// failedStage extracts the stage a failed record stopped in.
func failedStage(j *job.Job) string {
	if j.Error != nil {
		return string(j.Error.Stage)
	}
	return string(j.Stage)
}
