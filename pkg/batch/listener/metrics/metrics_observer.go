// Package metrics provides the observer that turns engine notifications into measurements of a
// metrics.MetricRecorder, and the asynchronous recorder that decouples them from the chunk loop.
package metrics

import (
	"context"
	"reflect"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/communes/pkg/batch/core/metrics"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
)

// MetricsObserver records job, step, item and chunk measurements.
type MetricsObserver struct {
	recorder metrics.MetricRecorder
}

// NewMetricsObserver creates a MetricsObserver reporting to recorder.
func NewMetricsObserver(recorder metrics.MetricRecorder) *MetricsObserver {
	return &MetricsObserver{recorder: recorder}
}

func (o *MetricsObserver) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	o.recorder.RecordJobStart(ctx, jobExecution)
}

func (o *MetricsObserver) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	o.recorder.RecordJobEnd(ctx, jobExecution)
}

func (o *MetricsObserver) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	o.recorder.RecordStepStart(ctx, stepExecution)
}

func (o *MetricsObserver) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	o.recorder.RecordStepEnd(ctx, stepExecution)
}

func (o *MetricsObserver) BeforeChunkCommit(context.Context, *model.StepExecution, port.ChunkEvent) {}

// AfterChunkCommit counts the chunk by outcome, and its items as written when it committed.
func (o *MetricsObserver) AfterChunkCommit(ctx context.Context, stepExecution *model.StepExecution, chunk port.ChunkEvent) {
	committed := chunk.State == model.ChunkCommitted
	o.recorder.RecordChunkCommit(ctx, stepExecution, chunk.Size, committed)
	if committed {
		o.recorder.RecordItemWrite(ctx, stepExecution, chunk.Size)
	}
}

// BeforeRecord is called once per item read.
func (o *MetricsObserver) BeforeRecord(ctx context.Context, stepExecution *model.StepExecution, item interface{}) {
	o.recorder.RecordItemRead(ctx, stepExecution)
}

func (o *MetricsObserver) AfterRecord(ctx context.Context, stepExecution *model.StepExecution, item interface{}, result interface{}, err error) {
	if err == nil && isNil(result) {
		o.recorder.RecordItemFilter(ctx, stepExecution)
	}
}

func (o *MetricsObserver) OnSkip(ctx context.Context, stepExecution *model.StepExecution, record model.SkipRecord) {
	o.recorder.RecordItemSkip(ctx, stepExecution, string(record.Phase), exception.KindOf(record.Reason))
}

func (o *MetricsObserver) OnRetry(ctx context.Context, stepExecution *model.StepExecution, event port.RetryEvent) {
	o.recorder.RecordItemRetry(ctx, stepExecution, string(event.Phase), exception.KindOf(event.Err))
}

var _ port.Observer = (*MetricsObserver)(nil)

// isNil reports whether a processor output is absent. Typed nil pointers count as absent.
func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
