package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	config "github.com/tigerroll/communes/pkg/batch/core/config"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	coremetrics "github.com/tigerroll/communes/pkg/batch/core/metrics"
)

func newStep(jobName, stepName string) *model.StepExecution {
	return model.NewJobExecution(jobName, 1, nil).NewStepExecution(stepName)
}

func TestPrometheusRecorder_Counters(t *testing.T) {
	r := NewPrometheusRecorder()
	se := newStep("importCommunes", "importFile")
	ctx := context.Background()

	r.RecordItemRead(ctx, se)
	r.RecordItemRead(ctx, se)
	r.RecordItemFilter(ctx, se)
	r.RecordItemWrite(ctx, se, 5)
	r.RecordItemSkip(ctx, se, "process", "ValidationError")
	r.RecordChunkCommit(ctx, se, 5, true)
	r.RecordChunkCommit(ctx, se, 5, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.stepReadCount.WithLabelValues("importCommunes", "importFile")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepFilterCount.WithLabelValues("importCommunes", "importFile")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.stepWriteCount.WithLabelValues("importCommunes", "importFile")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemSkipCounter.WithLabelValues("importCommunes", "importFile", "ValidationError", "process")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepCommitCount.WithLabelValues("importCommunes", "importFile")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepRollbackCount.WithLabelValues("importCommunes", "importFile")))
}

func TestPrometheusRecorder_JobEnd(t *testing.T) {
	r := NewPrometheusRecorder()
	je := model.NewJobExecution("exportCommunes", 3, nil)
	je.MarkAsCompleted("")

	r.RecordJobEnd(context.Background(), je)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobStatusCounter.WithLabelValues("exportCommunes", "COMPLETED")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.jobDurationSeconds, "batch_job_duration_seconds"))
}

func TestPush(t *testing.T) {
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		method, path = req.Method, req.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := NewPrometheusRecorder()
	r.RecordItemRead(context.Background(), newStep("importCommunes", "importFile"))

	require.NoError(t, Push(context.Background(), server.URL, "importCommunes", r.GetRegistry()))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/communes_batch/batch_job/importCommunes", path)
}

func TestPush_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := Push(context.Background(), server.URL, "importCommunes", NewPrometheusRecorder().GetRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "importCommunes")
}

func TestOpenTelemetryTracer_ParentsStepSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewOpenTelemetryTracer(tp)

	je := model.NewJobExecution("importCommunes", 7, nil)
	se := je.NewStepExecution("importFile")

	jobCtx, endJob := tracer.StartJobSpan(context.Background(), je)
	stepCtx, endStep := tracer.StartStepSpan(jobCtx, se)
	tracer.RecordError(stepCtx, "writer", errors.New("disk full"))
	se.MarkAsFailed(errors.New("disk full"))
	endStep()
	je.MarkAsFailed("importFile", errors.New("disk full"))
	endJob()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	step, job := spans[0], spans[1]
	assert.Equal(t, "step importFile", step.Name())
	assert.Equal(t, "job importCommunes", job.Name())
	assert.Equal(t, job.SpanContext().SpanID(), step.Parent().SpanID())
	assert.Equal(t, codes.Error, step.Status().Code)
	assert.Equal(t, codes.Error, job.Status().Code)
	require.Len(t, step.Events(), 1)
	assert.Equal(t, "exception", step.Events()[0].Name)
}

func TestOtelMetricRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewOtelMetricRecorder(mp)
	require.NoError(t, err)

	se := newStep("importCommunes", "importFile")
	ctx := context.Background()
	r.RecordItemRead(ctx, se)
	r.RecordItemRead(ctx, se)
	r.RecordItemWrite(ctx, se, 4)
	r.RecordDuration(ctx, "geocode", 20*time.Millisecond, map[string]string{"outcome": "success"})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	var histograms []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				histograms = append(histograms, m.Name)
			}
		}
	}
	assert.Equal(t, int64(2), sums["batch.item.read"])
	assert.Equal(t, int64(4), sums["batch.item.written"])
	assert.Contains(t, histograms, "batch.operation.duration")
}

func TestCompositeRecorder_FansOut(t *testing.T) {
	a, b := NewPrometheusRecorder(), NewPrometheusRecorder()
	composite := CompositeRecorder{a, b}

	composite.RecordItemRead(context.Background(), newStep("j", "s"))

	assert.Equal(t, 1.0, testutil.ToFloat64(a.stepReadCount.WithLabelValues("j", "s")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.stepReadCount.WithLabelValues("j", "s")))
}

func TestSetupTelemetry(t *testing.T) {
	disabled, err := SetupTelemetry(context.Background(), config.TelemetryConfig{ServiceName: "communes-batch"})
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)
	assert.NoError(t, disabled.Shutdown(context.Background()))
	assert.IsType(t, &coremetrics.NoOpTracer{}, NewTracer(disabled))

	_, err = SetupTelemetry(context.Background(), config.TelemetryConfig{Endpoint: "localhost:4317", Protocol: "udp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported telemetry protocol")
}
