package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder discards every metric. It is used when metrics are disabled.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordJobStart(context.Context, *model.JobExecution) {}
func (r *NoOpMetricRecorder) RecordJobEnd(context.Context, *model.JobExecution) {}
func (r *NoOpMetricRecorder) RecordStepStart(context.Context, *model.StepExecution) {}
func (r *NoOpMetricRecorder) RecordStepEnd(context.Context, *model.StepExecution) {}
func (r *NoOpMetricRecorder) RecordItemRead(context.Context, *model.StepExecution) {}
func (r *NoOpMetricRecorder) RecordItemFilter(context.Context, *model.StepExecution) {}
func (r *NoOpMetricRecorder) RecordItemWrite(context.Context, *model.StepExecution, int) {}
func (r *NoOpMetricRecorder) RecordItemSkip(context.Context, *model.StepExecution, string, string) {}
func (r *NoOpMetricRecorder) RecordItemRetry(context.Context, *model.StepExecution, string, string) {
}
func (r *NoOpMetricRecorder) RecordChunkCommit(context.Context, *model.StepExecution, int, bool) {}
func (r *NoOpMetricRecorder) RecordDuration(context.Context, string, time.Duration, map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer creates no spans.
type NoOpTracer struct{}

// NewNoOpTracer creates a NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartJobSpan(ctx context.Context, _ *model.JobExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartStepSpan(ctx context.Context, _ *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(context.Context, string, error) {}

func (t *NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

var _ Tracer = (*NoOpTracer)(nil)
