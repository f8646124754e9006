package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	"github.com/tigerroll/communes/pkg/batch/test"
)

type validationError struct{}

func (validationError) Error() string { return "invalid postal code" }

type commune struct{ code string }

func TestMetricsObserver_RecordsItemsAndChunks(t *testing.T) {
	recorder := new(test.MockMetricRecorder)
	observer := NewMetricsObserver(recorder)
	se := model.NewJobExecution("importCommunes", 1, nil).NewStepExecution("importFile")
	ctx := context.Background()

	recorder.On("RecordItemRead", ctx, se).Times(3)
	recorder.On("RecordItemFilter", ctx, se).Twice()
	recorder.On("RecordChunkCommit", ctx, se, 2, true).Once()
	recorder.On("RecordItemWrite", ctx, se, 2).Once()
	recorder.On("RecordChunkCommit", ctx, se, 2, false).Once()
	recorder.On("RecordItemSkip", ctx, se, "process", "validationError").Once()
	recorder.On("RecordItemRetry", ctx, se, "write", "error").Once()

	for i := 0; i < 3; i++ {
		observer.BeforeRecord(ctx, se, "line")
	}
	observer.AfterRecord(ctx, se, "line", nil, nil)
	var filtered *commune
	observer.AfterRecord(ctx, se, "line", filtered, nil)
	observer.AfterRecord(ctx, se, "line", &commune{code: "01001"}, nil)
	observer.AfterRecord(ctx, se, "line", nil, validationError{})

	observer.AfterChunkCommit(ctx, se, port.ChunkEvent{Index: 1, Size: 2, State: model.ChunkCommitted})
	observer.AfterChunkCommit(ctx, se, port.ChunkEvent{Index: 2, Size: 2, State: model.ChunkRolledBack, Err: errors.New("locked")})

	observer.OnSkip(ctx, se, model.SkipRecord{Phase: model.SkipPhaseProcess, Reason: validationError{}})
	observer.OnRetry(ctx, se, port.RetryEvent{Phase: model.SkipPhaseWrite, Attempt: 1, Err: errors.New("locked")})

	recorder.AssertExpectations(t)
}

func TestMetricsObserver_JobAndStepBoundaries(t *testing.T) {
	recorder := new(test.MockMetricRecorder)
	observer := NewMetricsObserver(recorder)
	je := model.NewJobExecution("exportCommunes", 2, nil)
	se := je.NewStepExecution("exportFile")
	ctx := context.Background()

	recorder.On("RecordJobStart", ctx, je).Once()
	recorder.On("RecordStepStart", ctx, se).Once()
	recorder.On("RecordStepEnd", ctx, se).Once()
	recorder.On("RecordJobEnd", ctx, je).Once()

	observer.BeforeJob(ctx, je)
	observer.BeforeStep(ctx, se)
	observer.AfterStep(ctx, se)
	observer.AfterJob(ctx, je)

	recorder.AssertExpectations(t)
}

func TestAsyncMetricRecorder_FlushesOnClose(t *testing.T) {
	delegate := new(test.MockMetricRecorder)
	var mu sync.Mutex
	var seen []string
	record := func(name string) func(mock.Arguments) {
		return func(mock.Arguments) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name)
		}
	}
	delegate.On("RecordItemRead", mock.Anything, mock.Anything).Run(record("read")).Times(5)
	delegate.On("RecordChunkCommit", mock.Anything, mock.Anything, 5, true).Run(record("commit")).Once()

	async := NewAsyncMetricRecorder(16, delegate)
	se := model.NewJobExecution("importCommunes", 1, nil).NewStepExecution("importFile")
	for i := 0; i < 5; i++ {
		async.RecordItemRead(context.Background(), se)
	}
	async.RecordChunkCommit(context.Background(), se, 5, true)
	async.Close()
	async.Close()

	delegate.AssertExpectations(t)
	assert.Equal(t, []string{"read", "read", "read", "read", "read", "commit"}, seen)
}

func TestAsyncMetricRecorder_SnapshotsExecutions(t *testing.T) {
	delegate := new(test.MockMetricRecorder)
	var got *model.StepExecution
	delegate.On("RecordStepEnd", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(1).(*model.StepExecution)
	}).Once()

	async := NewAsyncMetricRecorder(1, delegate)
	se := model.NewJobExecution("importCommunes", 1, nil).NewStepExecution("importFile")
	se.ReadCount = 7
	se.MarkAsCompleted("")
	async.RecordStepEnd(context.Background(), se)
	se.ReadCount = 99
	async.Close()

	delegate.AssertExpectations(t)
	assert.NotSame(t, se, got)
	assert.Equal(t, 7, got.ReadCount)
	assert.Equal(t, "importCommunes", got.JobExecution.JobName)
	assert.Equal(t, model.BatchStatusCompleted, got.Status)
}

func TestAsyncMetricRecorder_RecordsSynchronouslyAfterClose(t *testing.T) {
	delegate := new(test.MockMetricRecorder)
	delegate.On("RecordDuration", mock.Anything, "geocode", mock.Anything, map[string]string{"outcome": "success"}).Once()

	async := NewAsyncMetricRecorder(0, delegate)
	async.Close()
	async.RecordDuration(context.Background(), "geocode", 0, map[string]string{"outcome": "success"})

	delegate.AssertExpectations(t)
}
