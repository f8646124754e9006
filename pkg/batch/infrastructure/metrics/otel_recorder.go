package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/communes/pkg/batch/core/metrics"
)

const instrumentationName = "github.com/tigerroll/communes/pkg/batch"

// OtelMetricRecorder records the batch metrics as OpenTelemetry instruments.
type OtelMetricRecorder struct {
	jobDuration       otelmetric.Float64Histogram
	stepDuration      otelmetric.Float64Histogram
	itemsRead         otelmetric.Int64Counter
	itemsFiltered     otelmetric.Int64Counter
	itemsWritten      otelmetric.Int64Counter
	itemsSkipped      otelmetric.Int64Counter
	itemsRetried      otelmetric.Int64Counter
	chunks            otelmetric.Int64Counter
	operationDuration otelmetric.Float64Histogram
}

// NewOtelMetricRecorder creates the instruments on a meter of provider.
func NewOtelMetricRecorder(provider otelmetric.MeterProvider) (*OtelMetricRecorder, error) {
	meter := provider.Meter(instrumentationName)
	var errs *multierror.Error
	float64Histogram := func(name, desc string) otelmetric.Float64Histogram {
		h, err := meter.Float64Histogram(name, otelmetric.WithDescription(desc), otelmetric.WithUnit("s"))
		errs = multierror.Append(errs, err)
		return h
	}
	int64Counter := func(name, desc string) otelmetric.Int64Counter {
		c, err := meter.Int64Counter(name, otelmetric.WithDescription(desc))
		errs = multierror.Append(errs, err)
		return c
	}

	r := &OtelMetricRecorder{
		jobDuration:       float64Histogram("batch.job.duration", "Duration of batch job executions."),
		stepDuration:      float64Histogram("batch.step.duration", "Duration of batch step executions."),
		itemsRead:         int64Counter("batch.item.read", "Items read."),
		itemsFiltered:     int64Counter("batch.item.filtered", "Items filtered by the processor."),
		itemsWritten:      int64Counter("batch.item.written", "Items written by committed chunks."),
		itemsSkipped:      int64Counter("batch.item.skipped", "Items skipped."),
		itemsRetried:      int64Counter("batch.item.retried", "Failed attempts that were retried."),
		chunks:            int64Counter("batch.chunk", "Chunks by outcome."),
		operationDuration: float64Histogram("batch.operation.duration", "Duration of individual operations."),
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

func stepAttributes(execution *model.StepExecution, extra ...attribute.KeyValue) otelmetric.MeasurementOption {
	kvs := append([]attribute.KeyValue{
		attribute.String("job_name", jobNameOf(execution)),
		attribute.String("step_name", execution.StepName),
	}, extra...)
	return otelmetric.WithAttributes(kvs...)
}

func (r *OtelMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {}

func (r *OtelMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	if execution.EndTime == nil {
		return
	}
	r.jobDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), otelmetric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
		attribute.String("exit_status", execution.ExitStatus.String()),
	))
}

func (r *OtelMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}

func (r *OtelMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), stepAttributes(execution,
		attribute.String("status", execution.Status.String()),
		attribute.String("exit_status", execution.ExitStatus.String()),
	))
}

func (r *OtelMetricRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution) {
	r.itemsRead.Add(ctx, 1, stepAttributes(execution))
}

func (r *OtelMetricRecorder) RecordItemFilter(ctx context.Context, execution *model.StepExecution) {
	r.itemsFiltered.Add(ctx, 1, stepAttributes(execution))
}

func (r *OtelMetricRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
	r.itemsWritten.Add(ctx, int64(count), stepAttributes(execution))
}

func (r *OtelMetricRecorder) RecordItemSkip(ctx context.Context, execution *model.StepExecution, phase string, reason string) {
	r.itemsSkipped.Add(ctx, 1, stepAttributes(execution, attribute.String("type", phase), attribute.String("reason", reason)))
}

func (r *OtelMetricRecorder) RecordItemRetry(ctx context.Context, execution *model.StepExecution, phase string, reason string) {
	r.itemsRetried.Add(ctx, 1, stepAttributes(execution, attribute.String("type", phase), attribute.String("reason", reason)))
}

func (r *OtelMetricRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution, count int, committed bool) {
	outcome := "committed"
	if !committed {
		outcome = "rolled_back"
	}
	r.chunks.Add(ctx, 1, stepAttributes(execution, attribute.String("outcome", outcome)))
}

// RecordDuration records duration with every tag as an attribute.
func (r *OtelMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kvs := []attribute.KeyValue{attribute.String("operation", name)}
	for _, k := range keys {
		kvs = append(kvs, attribute.String(k, tags[k]))
	}
	r.operationDuration.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(kvs...))
}

var _ metrics.MetricRecorder = (*OtelMetricRecorder)(nil)

// CompositeRecorder forwards every measurement to each of its recorders.
type CompositeRecorder []metrics.MetricRecorder

func (c CompositeRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	for _, r := range c {
		r.RecordJobStart(ctx, execution)
	}
}

func (c CompositeRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	for _, r := range c {
		r.RecordJobEnd(ctx, execution)
	}
}

func (c CompositeRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c {
		r.RecordStepStart(ctx, execution)
	}
}

func (c CompositeRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c {
		r.RecordStepEnd(ctx, execution)
	}
}

func (c CompositeRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c {
		r.RecordItemRead(ctx, execution)
	}
}

func (c CompositeRecorder) RecordItemFilter(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c {
		r.RecordItemFilter(ctx, execution)
	}
}

func (c CompositeRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
	for _, r := range c {
		r.RecordItemWrite(ctx, execution, count)
	}
}

func (c CompositeRecorder) RecordItemSkip(ctx context.Context, execution *model.StepExecution, phase string, reason string) {
	for _, r := range c {
		r.RecordItemSkip(ctx, execution, phase, reason)
	}
}

func (c CompositeRecorder) RecordItemRetry(ctx context.Context, execution *model.StepExecution, phase string, reason string) {
	for _, r := range c {
		r.RecordItemRetry(ctx, execution, phase, reason)
	}
}

func (c CompositeRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution, count int, committed bool) {
	for _, r := range c {
		r.RecordChunkCommit(ctx, execution, count, committed)
	}
}

func (c CompositeRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	for _, r := range c {
		r.RecordDuration(ctx, name, duration, tags)
	}
}

var _ metrics.MetricRecorder = CompositeRecorder(nil)
