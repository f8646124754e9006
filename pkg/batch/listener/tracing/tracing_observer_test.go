package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	inframetrics "github.com/tigerroll/communes/pkg/batch/infrastructure/metrics"
)

func TestTracingObserver_StepSpansAreChildrenOfJobSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	observer := NewTracingObserver(inframetrics.NewOpenTelemetryTracer(tp))
	ctx := context.Background()

	je := model.NewJobExecution("importCommunes", 1, nil)
	observer.BeforeJob(ctx, je)
	for _, name := range []string{"helloWorld", "importFile"} {
		se := je.NewStepExecution(name)
		observer.BeforeStep(ctx, se)
		if name == "importFile" {
			observer.OnSkip(ctx, se, model.SkipRecord{Phase: model.SkipPhaseRead, Reason: errors.New("bad line")})
			observer.AfterChunkCommit(ctx, se, port.ChunkEvent{Index: 1, Size: 10, State: model.ChunkRolledBack, Err: errors.New("locked")})
		}
		se.MarkAsCompleted("")
		observer.AfterStep(ctx, se)
	}
	je.MarkAsCompleted("")
	observer.AfterJob(ctx, je)

	spans := sr.Ended()
	require.Len(t, spans, 3)
	job := spans[2]
	assert.Equal(t, "job importCommunes", job.Name())
	for _, step := range spans[:2] {
		assert.Equal(t, job.SpanContext().TraceID(), step.SpanContext().TraceID())
		assert.Equal(t, job.SpanContext().SpanID(), step.Parent().SpanID())
	}

	var events []string
	for _, e := range spans[1].Events() {
		events = append(events, e.Name)
	}
	assert.Equal(t, []string{"item.skipped", "exception", "chunk.rolled_back"}, events)
}

func TestTracingObserver_IgnoresUnknownExecutions(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	observer := NewTracingObserver(inframetrics.NewOpenTelemetryTracer(tp))

	se := model.NewStepExecution("orphan")
	observer.AfterStep(context.Background(), se)
	observer.AfterJob(context.Background(), se.JobExecution)

	assert.Empty(t, sr.Ended())
}
