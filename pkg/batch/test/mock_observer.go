package test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/communes/pkg/batch/core/metrics"
)

// MockObserver is a testify mock of port.Observer.
type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) BeforeJob(ctx context.Context, je *model.JobExecution) { m.Called(ctx, je) }
func (m *MockObserver) AfterJob(ctx context.Context, je *model.JobExecution) { m.Called(ctx, je) }
func (m *MockObserver) BeforeStep(ctx context.Context, se *model.StepExecution) {
	m.Called(ctx, se)
}
func (m *MockObserver) AfterStep(ctx context.Context, se *model.StepExecution) { m.Called(ctx, se) }
func (m *MockObserver) BeforeChunkCommit(ctx context.Context, se *model.StepExecution, chunk port.ChunkEvent) {
	m.Called(ctx, se, chunk)
}
func (m *MockObserver) AfterChunkCommit(ctx context.Context, se *model.StepExecution, chunk port.ChunkEvent) {
	m.Called(ctx, se, chunk)
}
func (m *MockObserver) BeforeRecord(ctx context.Context, se *model.StepExecution, item interface{}) {
	m.Called(ctx, se, item)
}
func (m *MockObserver) AfterRecord(ctx context.Context, se *model.StepExecution, item interface{}, result interface{}, err error) {
	m.Called(ctx, se, item, result, err)
}
func (m *MockObserver) OnSkip(ctx context.Context, se *model.StepExecution, record model.SkipRecord) {
	m.Called(ctx, se, record)
}
func (m *MockObserver) OnRetry(ctx context.Context, se *model.StepExecution, event port.RetryEvent) {
	m.Called(ctx, se, event)
}

var _ port.Observer = (*MockObserver)(nil)

// MockMetricRecorder is a testify mock of metrics.MetricRecorder.
type MockMetricRecorder struct {
	mock.Mock
}

func (m *MockMetricRecorder) RecordJobStart(ctx context.Context, je *model.JobExecution) {
	m.Called(ctx, je)
}
func (m *MockMetricRecorder) RecordJobEnd(ctx context.Context, je *model.JobExecution) {
	m.Called(ctx, je)
}
func (m *MockMetricRecorder) RecordStepStart(ctx context.Context, se *model.StepExecution) {
	m.Called(ctx, se)
}
func (m *MockMetricRecorder) RecordStepEnd(ctx context.Context, se *model.StepExecution) {
	m.Called(ctx, se)
}
func (m *MockMetricRecorder) RecordItemRead(ctx context.Context, se *model.StepExecution) {
	m.Called(ctx, se)
}
func (m *MockMetricRecorder) RecordItemFilter(ctx context.Context, se *model.StepExecution) {
	m.Called(ctx, se)
}
func (m *MockMetricRecorder) RecordItemWrite(ctx context.Context, se *model.StepExecution, count int) {
	m.Called(ctx, se, count)
}
func (m *MockMetricRecorder) RecordItemSkip(ctx context.Context, se *model.StepExecution, phase string, reason string) {
	m.Called(ctx, se, phase, reason)
}
func (m *MockMetricRecorder) RecordItemRetry(ctx context.Context, se *model.StepExecution, phase string, reason string) {
	m.Called(ctx, se, phase, reason)
}
func (m *MockMetricRecorder) RecordChunkCommit(ctx context.Context, se *model.StepExecution, count int, committed bool) {
	m.Called(ctx, se, count, committed)
}
func (m *MockMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	m.Called(ctx, name, duration, tags)
}

var _ metrics.MetricRecorder = (*MockMetricRecorder)(nil)
