// Package tracing provides the observer that opens a span per job run and per step run.
package tracing

import (
	"context"
	"sync"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/communes/pkg/batch/core/metrics"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
)

type openSpan struct {
	ctx context.Context
	end func()
}

// TracingObserver starts a job span in BeforeJob and a child step span in BeforeStep, and ends
// them in AfterStep and AfterJob. Skips, retries and rollbacks become events of the step span.
type TracingObserver struct {
	tracer metrics.Tracer

	mu    sync.Mutex
	jobs  map[string]openSpan // JobExecution.ID
	steps map[string]openSpan // StepExecution.ID
}

// NewTracingObserver creates a TracingObserver using tracer.
func NewTracingObserver(tracer metrics.Tracer) *TracingObserver {
	return &TracingObserver{
		tracer: tracer,
		jobs:   make(map[string]openSpan),
		steps:  make(map[string]openSpan),
	}
}

func (o *TracingObserver) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	spanCtx, end := o.tracer.StartJobSpan(ctx, jobExecution)
	o.mu.Lock()
	o.jobs[jobExecution.ID] = openSpan{ctx: spanCtx, end: end}
	o.mu.Unlock()
}

func (o *TracingObserver) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	o.mu.Lock()
	span, ok := o.jobs[jobExecution.ID]
	delete(o.jobs, jobExecution.ID)
	o.mu.Unlock()
	if ok {
		span.end()
	}
}

// BeforeStep parents the step span on the span of its job when one is open.
func (o *TracingObserver) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	parent := ctx
	o.mu.Lock()
	if stepExecution.JobExecution != nil {
		if job, ok := o.jobs[stepExecution.JobExecution.ID]; ok {
			parent = job.ctx
		}
	}
	o.mu.Unlock()

	spanCtx, end := o.tracer.StartStepSpan(parent, stepExecution)
	o.mu.Lock()
	o.steps[stepExecution.ID] = openSpan{ctx: spanCtx, end: end}
	o.mu.Unlock()
}

func (o *TracingObserver) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	o.mu.Lock()
	span, ok := o.steps[stepExecution.ID]
	delete(o.steps, stepExecution.ID)
	o.mu.Unlock()
	if !ok {
		return
	}
	for _, failure := range stepExecution.Failures {
		o.tracer.RecordEvent(span.ctx, "failure", map[string]interface{}{"message": failure})
	}
	span.end()
}

func (o *TracingObserver) BeforeChunkCommit(context.Context, *model.StepExecution, port.ChunkEvent) {}

func (o *TracingObserver) AfterChunkCommit(ctx context.Context, stepExecution *model.StepExecution, chunk port.ChunkEvent) {
	if chunk.Err == nil {
		return
	}
	if spanCtx, ok := o.stepContext(stepExecution); ok {
		o.tracer.RecordError(spanCtx, "writer", chunk.Err)
		o.tracer.RecordEvent(spanCtx, "chunk.rolled_back", map[string]interface{}{"index": chunk.Index, "size": chunk.Size})
	}
}

func (o *TracingObserver) BeforeRecord(context.Context, *model.StepExecution, interface{}) {}

func (o *TracingObserver) AfterRecord(context.Context, *model.StepExecution, interface{}, interface{}, error) {
}

func (o *TracingObserver) OnSkip(ctx context.Context, stepExecution *model.StepExecution, record model.SkipRecord) {
	if spanCtx, ok := o.stepContext(stepExecution); ok {
		o.tracer.RecordEvent(spanCtx, "item.skipped", map[string]interface{}{
			"phase":  string(record.Phase),
			"reason": exception.KindOf(record.Reason),
		})
	}
}

func (o *TracingObserver) OnRetry(ctx context.Context, stepExecution *model.StepExecution, event port.RetryEvent) {
	if spanCtx, ok := o.stepContext(stepExecution); ok {
		o.tracer.RecordEvent(spanCtx, "item.retried", map[string]interface{}{
			"phase":   string(event.Phase),
			"attempt": event.Attempt,
			"reason":  exception.KindOf(event.Err),
		})
	}
}

func (o *TracingObserver) stepContext(stepExecution *model.StepExecution) (context.Context, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	span, ok := o.steps[stepExecution.ID]
	return span.ctx, ok
}

var _ port.Observer = (*TracingObserver)(nil)
