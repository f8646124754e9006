package item

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
	"github.com/tigerroll/communes/pkg/batch/engine/step/retry"
	"github.com/tigerroll/communes/pkg/batch/engine/step/skip"
	"github.com/tigerroll/communes/pkg/batch/support/util/exception"
	batchtest "github.com/tigerroll/communes/pkg/batch/test"
)

type rec struct {
	ID  int
	Bad bool
}

func records(n int) []*rec {
	out := make([]*rec, n)
	for i := range out {
		out[i] = &rec{ID: i + 1}
	}
	return out
}

func identity() batchtest.ProcessorFunc[*rec, *rec] {
	return func(_ context.Context, r *rec) (*rec, error) { return r, nil }
}

func skippable(msg string) error {
	return exception.NewBatchError("test", msg, nil, true, false)
}

func transient(msg string) error {
	return exception.NewBatchError("test", msg, nil, false, true)
}

func unlimitedSkips(t *testing.T) skip.SkipPolicy {
	p, err := skip.NewDefaultSkipPolicyFactory().Create(skip.UnlimitedSkips, nil)
	require.NoError(t, err)
	return p
}

func run(t *testing.T, step port.Step) (*model.StepExecution, error) {
	t.Helper()
	je := model.NewJobExecution("job", 1, nil)
	se := je.NewStepExecution(step.StepName())
	err := step.Execute(context.Background(), je, se)
	return se, err
}

type exitStatusListener struct {
	status model.ExitStatus
	before int
}

func (l *exitStatusListener) BeforeStep(context.Context, *model.StepExecution) { l.before++ }
func (l *exitStatusListener) AfterStep(context.Context, *model.StepExecution) model.ExitStatus {
	return l.status
}

func TestChunkStep_CommitsOneTransactionPerChunk(t *testing.T) {
	reader := &batchtest.SliceReader[*rec]{Items: records(25)}
	writer := &batchtest.RecordingWriter[*rec]{}
	txm := &batchtest.FakeTxManager{}
	obs := &batchtest.RecordingObserver{}

	step := NewChunkStep[*rec, *rec]("copy", reader, identity(), writer, txm, WithChunkSize(10), WithObserver(obs))
	se, err := run(t, step)

	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, model.ExitStatusCompleted, se.ExitStatus)
	assert.Equal(t, 25, se.ReadCount)
	assert.Equal(t, 25, se.WriteCount)
	assert.Equal(t, 3, se.CommitCount)
	assert.Equal(t, 0, se.RollbackCount)
	require.Len(t, writer.Chunks, 3)
	assert.Len(t, writer.Chunks[0], 10)
	assert.Len(t, writer.Chunks[2], 5)
	assert.Equal(t, 3, txm.Committed)
	assert.True(t, reader.Opened && reader.Closed)
	assert.True(t, writer.Opened && writer.Closed)

	assert.Equal(t, "beforeStep:copy", obs.Events[0])
	assert.Equal(t, "afterStep:copy:COMPLETED", obs.Events[len(obs.Events)-1])
	require.Len(t, obs.Chunks, 3)
	assert.Equal(t, port.ChunkEvent{Index: 3, Size: 5, State: model.ChunkCommitted}, obs.Chunks[2])
}

func TestChunkStep_NilOutputIsFiltered(t *testing.T) {
	reader := &batchtest.SliceReader[*rec]{Items: records(6)}
	writer := &batchtest.RecordingWriter[*rec]{}
	odd := batchtest.ProcessorFunc[*rec, *rec](func(_ context.Context, r *rec) (*rec, error) {
		if r.ID%2 == 0 {
			return nil, nil
		}
		return r, nil
	})

	se, err := run(t, NewChunkStep[*rec, *rec]("filter", reader, odd, writer, &batchtest.FakeTxManager{}))

	require.NoError(t, err)
	assert.Equal(t, 6, se.ReadCount)
	assert.Equal(t, 3, se.FilterCount)
	assert.Equal(t, 3, se.WriteCount)
	assert.Equal(t, []int{1, 3, 5}, ids(writer.Written()))
}

func TestChunkStep_EveryRecordSkippedStillCompletes(t *testing.T) {
	reader := &batchtest.SliceReader[*rec]{Items: records(12)}
	writer := &batchtest.RecordingWriter[*rec]{}
	txm := &batchtest.FakeTxManager{}
	obs := &batchtest.RecordingObserver{}
	invalid := batchtest.ProcessorFunc[*rec, *rec](func(_ context.Context, r *rec) (*rec, error) {
		return nil, skippable("invalid record")
	})
	listener := &exitStatusListener{status: model.ExitStatusCompletedWithMissingCoordinates}

	step := NewChunkStep[*rec, *rec]("importFile", reader, invalid, writer, txm,
		WithChunkSize(5), WithSkipPolicy(unlimitedSkips(t)), WithObserver(obs), WithListener(listener))
	se, err := run(t, step)

	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, model.ExitStatusCompletedWithMissingCoordinates, se.ExitStatus)
	assert.Equal(t, 1, listener.before)
	assert.Equal(t, 12, se.SkipProcessCount)
	assert.Equal(t, 0, se.WriteCount)
	assert.Equal(t, 0, txm.Begun, "nothing to write, no transaction")
	require.Len(t, obs.Skips, 12)
	assert.Equal(t, model.SkipPhaseProcess, obs.Skips[0].Phase)
	assert.Equal(t, 1, obs.Skips[0].Item.(*rec).ID, "observers receive the original item")
	assert.Equal(t, "importFile", obs.Skips[0].StepName)
	assert.Len(t, se.SkipRecords(), 12)
}

func TestChunkStep_SkipLimitExceededFailsStep(t *testing.T) {
	items := records(10)
	items[1].Bad, items[4].Bad, items[7].Bad = true, true, true
	reader := &batchtest.SliceReader[*rec]{Items: items}
	writer := &batchtest.RecordingWriter[*rec]{}
	proc := batchtest.ProcessorFunc[*rec, *rec](func(_ context.Context, r *rec) (*rec, error) {
		if r.Bad {
			return nil, skippable("bad")
		}
		return r, nil
	})
	limit2, err := skip.NewDefaultSkipPolicyFactory().Create(2, nil)
	require.NoError(t, err)

	se, err := run(t, NewChunkStep[*rec, *rec]("export", reader, proc, writer, &batchtest.FakeTxManager{},
		WithChunkSize(3), WithSkipPolicy(limit2)))

	require.Error(t, err)
	assert.True(t, exception.IsErrorOfType(err, "SkipLimitExceeded"))
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, model.ExitStatusFailed, se.ExitStatus)
	assert.Equal(t, 2, se.SkipProcessCount)
	assert.Equal(t, []int{1, 3, 4}, ids(writer.Written()), "chunks before the failure stay committed")
	assert.NotEmpty(t, se.Failures)
}

func TestChunkStep_RetriesTransientProcessFailure(t *testing.T) {
	reader := &batchtest.SliceReader[*rec]{Items: records(3)}
	writer := &batchtest.RecordingWriter[*rec]{}
	obs := &batchtest.RecordingObserver{}
	calls := map[int]int{}
	flaky := batchtest.ProcessorFunc[*rec, *rec](func(_ context.Context, r *rec) (*rec, error) {
		calls[r.ID]++
		if r.ID == 2 && calls[r.ID] < 3 {
			return nil, transient("503")
		}
		return r, nil
	})
	policy := retry.NewDefaultRetryPolicyFactory().Create(5, 1, nil)

	se, err := run(t, NewChunkStep[*rec, *rec]("getMissingCoordinates", reader, flaky, writer, &batchtest.FakeTxManager{},
		WithRetryPolicy(policy), WithObserver(obs)))

	require.NoError(t, err)
	assert.Equal(t, 3, calls[2])
	assert.Equal(t, 2, se.RetryCount)
	assert.Equal(t, 3, se.WriteCount)
	require.Len(t, obs.Retries, 2)
	assert.Equal(t, 1, obs.Retries[0].Attempt)
	assert.Equal(t, 2, obs.Retries[1].Attempt)
	assert.Equal(t, model.SkipPhaseProcess, obs.Retries[0].Phase)
}

func TestChunkStep_ExhaustedRetriesEscalateToSkip(t *testing.T) {
	reader := &batchtest.SliceReader[*rec]{Items: records(2)}
	writer := &batchtest.RecordingWriter[*rec]{}
	attempts := 0
	down := batchtest.ProcessorFunc[*rec, *rec](func(_ context.Context, r *rec) (*rec, error) {
		if r.ID == 1 {
			attempts++
			return nil, exception.NewBatchError("geo", "timeout", nil, true, true)
		}
		return r, nil
	})

	se, err := run(t, NewChunkStep[*rec, *rec]("getMissingCoordinates", reader, down, writer, &batchtest.FakeTxManager{},
		WithRetryPolicy(retry.NewDefaultRetryPolicyFactory().Create(5, 0, nil)),
		WithSkipPolicy(unlimitedSkips(t))))

	require.NoError(t, err)
	assert.Equal(t, 5, attempts, "five attempts in total")
	assert.Equal(t, 4, se.RetryCount)
	assert.Equal(t, 1, se.SkipProcessCount)
	assert.Equal(t, []int{2}, ids(writer.Written()))
}

func TestChunkStep_NonSkippableProcessErrorFailsStep(t *testing.T) {
	reader := &batchtest.SliceReader[*rec]{Items: records(2)}
	boom := batchtest.ProcessorFunc[*rec, *rec](func(_ context.Context, r *rec) (*rec, error) {
		return nil, errors.New("boom")
	})

	se, err := run(t, NewChunkStep[*rec, *rec]("s", reader, boom, &batchtest.RecordingWriter[*rec]{}, &batchtest.FakeTxManager{},
		WithSkipPolicy(unlimitedSkips(t))))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, model.ExitStatusFailed, se.ExitStatus)
	assert.True(t, reader.Closed)
}

func TestChunkStep_RetryableWriteFailureRewritesWholeChunk(t *testing.T) {
	reader := &batchtest.SliceReader[*rec]{Items: records(4)}
	failures := 1
	writer := &batchtest.RecordingWriter[*rec]{WriteFunc: func(items []*rec) error {
		if failures > 0 {
			failures--
			return transient("deadlock")
		}
		return nil
	}}
	txm := &batchtest.FakeTxManager{}
	obs := &batchtest.RecordingObserver{}

	se, err := run(t, NewChunkStep[*rec, *rec]("export", reader, identity(), writer, txm,
		WithRetryPolicy(retry.NewDefaultRetryPolicyFactory().Create(3, 0, nil)), WithObserver(obs)))

	require.NoError(t, err)
	assert.Equal(t, 1, se.RollbackCount)
	assert.Equal(t, 1, se.CommitCount)
	assert.Equal(t, 4, se.WriteCount)
	assert.Equal(t, 1, txm.RolledBack)
	assert.Equal(t, 1, txm.Committed)
	require.Len(t, obs.Chunks, 2)
	assert.Equal(t, model.ChunkRolledBack, obs.Chunks[0].State)
	assert.Equal(t, model.ChunkCommitted, obs.Chunks[1].State)
	assert.Equal(t, model.SkipPhaseWrite, obs.Retries[0].Phase)
}

func TestChunkStep_SkippableWriteFailureScansChunk(t *testing.T) {
	items := records(4)
	items[2].Bad = true
	reader := &batchtest.SliceReader[*rec]{Items: items}
	writer := &batchtest.RecordingWriter[*rec]{WriteFunc: func(chunk []*rec) error {
		for _, r := range chunk {
			if r.Bad {
				return skippable("constraint")
			}
		}
		return nil
	}}
	txm := &batchtest.FakeTxManager{}

	se, err := run(t, NewChunkStep[*rec, *rec]("import", reader, identity(), writer, txm,
		WithSkipPolicy(unlimitedSkips(t))))

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4}, ids(writer.Written()))
	assert.Equal(t, 1, se.SkipWriteCount)
	assert.Equal(t, 3, se.WriteCount)
	assert.Equal(t, 3, se.CommitCount, "one transaction per scanned item")
	assert.Equal(t, 2, se.RollbackCount, "the chunk and the failing item")
	assert.Equal(t, 3, txm.Committed)
}

func TestChunkStep_FatalWriteFailureIsCommitError(t *testing.T) {
	reader := &batchtest.SliceReader[*rec]{Items: records(3)}
	writer := &batchtest.RecordingWriter[*rec]{WriteFunc: func([]*rec) error { return errors.New("disk full") }}

	se, err := run(t, NewChunkStep[*rec, *rec]("export", reader, identity(), writer, &batchtest.FakeTxManager{}))

	require.Error(t, err)
	assert.True(t, exception.IsErrorOfType(err, "CommitError"))
	assert.Equal(t, model.ExitStatusFailed, se.ExitStatus)
	assert.Equal(t, 0, se.WriteCount)
	assert.Equal(t, 1, se.RollbackCount)
}

func TestChunkStep_CommitFailureRollsBackWithMockManager(t *testing.T) {
	reader := &batchtest.SliceReader[*rec]{Items: records(2)}
	mockTx := new(batchtest.MockTx)
	txm := new(batchtest.MockTxManager)
	txm.On("Begin", mock.Anything, mock.Anything).Return(mockTx, nil).Once()
	txm.On("Commit", mockTx).Return(errors.New("connection reset")).Once()

	se, err := run(t, NewChunkStep[*rec, *rec]("export", reader, identity(), &batchtest.RecordingWriter[*rec]{}, txm))

	require.Error(t, err)
	assert.True(t, exception.IsErrorOfType(err, "CommitError"))
	assert.Equal(t, 0, se.CommitCount)
	txm.AssertExpectations(t)
}

func TestChunkStep_SkippableReadError(t *testing.T) {
	reader := &batchtest.SliceReader[*rec]{Items: records(4), Errs: map[int]error{1: skippable("line 2 malformed")}}
	writer := &batchtest.RecordingWriter[*rec]{}

	se, err := run(t, NewChunkStep[*rec, *rec]("importFile", reader, identity(), writer, &batchtest.FakeTxManager{},
		WithSkipPolicy(unlimitedSkips(t))))

	require.NoError(t, err)
	assert.Equal(t, 1, se.SkipReadCount)
	assert.Equal(t, 3, se.ReadCount)
	assert.Equal(t, []int{1, 3, 4}, ids(writer.Written()))
}

func TestChunkStep_CancelledDuringBackoffFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &batchtest.SliceReader[*rec]{Items: records(1)}
	proc := batchtest.ProcessorFunc[*rec, *rec](func(context.Context, *rec) (*rec, error) {
		cancel()
		return nil, transient("503")
	})
	step := NewChunkStep[*rec, *rec]("getMissingCoordinates", reader, proc, &batchtest.RecordingWriter[*rec]{}, &batchtest.FakeTxManager{},
		WithRetryPolicy(retry.NewDefaultRetryPolicyFactory().Create(5, int(time.Hour/time.Millisecond), nil)),
		WithSkipPolicy(unlimitedSkips(t)))

	je := model.NewJobExecution("job", 1, nil)
	se := je.NewStepExecution(step.StepName())
	start := time.Now()
	err := step.Execute(ctx, je, se)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.ExitStatusFailed, se.ExitStatus)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestNewChunkStep_Defaults(t *testing.T) {
	step := NewChunkStep[*rec, *rec]("s", &batchtest.SliceReader[*rec]{}, identity(), &batchtest.RecordingWriter[*rec]{}, &batchtest.FakeTxManager{}, WithChunkSize(0))
	assert.Equal(t, DefaultChunkSize, step.ChunkSize())
	assert.Equal(t, "s", step.StepName())
}

func ids(rs []*rec) []int {
	out := make([]int, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

type stagingWriter struct {
	batchtest.RecordingWriter[*rec]
	staged   []*rec
	durable  []*rec
	dropped  int
	flushErr error
	aborted  bool
}

func (w *stagingWriter) Write(ctx context.Context, t tx.Tx, items []*rec) error {
	if err := w.RecordingWriter.Write(ctx, t, items); err != nil {
		return err
	}
	w.staged = append(w.staged, items...)
	return nil
}

func (w *stagingWriter) Flush(context.Context) error {
	if w.flushErr != nil {
		return w.flushErr
	}
	w.durable = append(w.durable, w.staged...)
	w.staged = nil
	return nil
}

func (w *stagingWriter) Discard(context.Context) {
	w.dropped += len(w.staged)
	w.staged = nil
}

func (w *stagingWriter) Abort(context.Context) error {
	w.aborted = true
	return nil
}

func TestChunkStep_StagingWriterFlushesOnlyCommittedChunks(t *testing.T) {
	reader := &batchtest.SliceReader[*rec]{Items: records(4)}
	txm := &batchtest.FakeTxManager{}
	commits := 0
	txm.CommitFunc = func() error {
		commits++
		if commits == 1 {
			return transient("serialization failure")
		}
		return nil
	}
	writer := &stagingWriter{}

	se, err := run(t, NewChunkStep[*rec, *rec]("export", reader, identity(), writer, txm,
		WithChunkSize(4), WithRetryPolicy(retry.NewDefaultRetryPolicyFactory().Create(2, 0, nil))))

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, ids(writer.durable))
	assert.Equal(t, 4, writer.dropped)
	assert.Equal(t, 1, se.RollbackCount)
	assert.Equal(t, 1, se.CommitCount)
}

func TestChunkStep_StagingWriterClosedWhenStepCompletes(t *testing.T) {
	writer := &stagingWriter{}

	_, err := run(t, NewChunkStep[*rec, *rec]("export", &batchtest.SliceReader[*rec]{Items: records(3)}, identity(), writer, &batchtest.FakeTxManager{}))

	require.NoError(t, err)
	assert.True(t, writer.Closed)
	assert.False(t, writer.aborted)
}

func TestChunkStep_FailedStepAbortsStagingWriter(t *testing.T) {
	writer := &stagingWriter{}
	writer.WriteFunc = func([]*rec) error { return errors.New("disk full") }

	se, err := run(t, NewChunkStep[*rec, *rec]("export", &batchtest.SliceReader[*rec]{Items: records(3)}, identity(), writer, &batchtest.FakeTxManager{}))

	require.Error(t, err)
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.True(t, writer.aborted)
	assert.False(t, writer.Closed)
}

func TestChunkStep_FlushFailureAfterCommitIsNotARollback(t *testing.T) {
	writer := &stagingWriter{flushErr: errors.New("no space left on device")}
	obs := &batchtest.RecordingObserver{}

	se, err := run(t, NewChunkStep[*rec, *rec]("export", &batchtest.SliceReader[*rec]{Items: records(3)}, identity(), writer, &batchtest.FakeTxManager{},
		WithRetryPolicy(retry.NewDefaultRetryPolicyFactory().Create(3, 0, nil)), WithObserver(obs)))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no space left on device")
	assert.Equal(t, 1, se.CommitCount)
	assert.Zero(t, se.RollbackCount)
	assert.Zero(t, se.RetryCount)
	assert.Zero(t, se.WriteCount)
	assert.Equal(t, 1, writer.Calls)
	assert.True(t, writer.aborted)
	assert.Empty(t, obs.Chunks, "no chunk is reported as rolled back")
}
