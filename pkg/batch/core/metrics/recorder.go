// Package metrics defines the recorder and tracer abstractions the observers report to.
// Backends live in pkg/batch/infrastructure/metrics.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
)

// MetricRecorder records job, step, item and chunk level metrics.
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	// RecordJobEnd records the end of a JobExecution, including its duration and exit status.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	// RecordStepStart records the start of a StepExecution.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	// RecordStepEnd records the end of a StepExecution, including its duration and exit status.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordItemRead records one successfully read item.
	RecordItemRead(ctx context.Context, execution *model.StepExecution)
	// RecordItemFilter records one item dropped by the processor.
	RecordItemFilter(ctx context.Context, execution *model.StepExecution)
	// RecordItemWrite records count items written by a committed chunk.
	RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int)
	// RecordItemSkip records one skipped item. phase is "read", "process" or "write";
	// reason is usually the error kind.
	RecordItemSkip(ctx context.Context, execution *model.StepExecution, phase string, reason string)
	// RecordItemRetry records one retried attempt.
	RecordItemRetry(ctx context.Context, execution *model.StepExecution, phase string, reason string)
	// RecordChunkCommit records the outcome of one chunk. committed is false on rollback.
	RecordChunkCommit(ctx context.Context, execution *model.StepExecution, count int, committed bool)

	// RecordDuration records the execution time of an arbitrary operation, for example a
	// geocoding request. tags become metric labels.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
