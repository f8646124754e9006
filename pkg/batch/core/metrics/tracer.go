package metrics

import (
	"context"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
)

// Tracer integrates job and step executions with a distributed tracing backend.
type Tracer interface {
	// StartJobSpan starts a span for a JobExecution and returns the context carrying it together
	// with the function that ends it.
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())
	// StartStepSpan starts a child span for a StepExecution.
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	// RecordError attaches err to the span in ctx.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds a named event to the span in ctx.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
