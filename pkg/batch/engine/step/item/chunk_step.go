// Package item implements the chunk-oriented step: items are read and processed one at a time,
// collected into chunks and written in one transaction per chunk.
package item

import (
	"context"
	"errors"
	"io"
	"reflect"
	"time"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
	"github.com/tigerroll/communes/pkg/batch/engine/step/retry"
	"github.com/tigerroll/communes/pkg/batch/engine/step/skip"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// DefaultChunkSize is used when no chunk size is configured.
const DefaultChunkSize = 10

// Option configures a ChunkStep.
type Option func(*options)

type options struct {
	chunkSize   int
	retryPolicy retry.RetryPolicy
	skipPolicy  skip.SkipPolicy
	observers   port.CompositeObserver
	listeners   []port.StepExecutionListener
}

// WithChunkSize sets the number of items per chunk. Values below 1 fall back to DefaultChunkSize.
func WithChunkSize(size int) Option {
	return func(o *options) { o.chunkSize = size }
}

// WithRetryPolicy sets the item retry policy. It also bounds chunk write retries.
func WithRetryPolicy(p retry.RetryPolicy) Option {
	return func(o *options) { o.retryPolicy = p }
}

// WithSkipPolicy sets the item skip policy.
func WithSkipPolicy(p skip.SkipPolicy) Option {
	return func(o *options) { o.skipPolicy = p }
}

// WithObserver adds an observer. Observers are notified in the order they were added.
func WithObserver(o port.Observer) Option {
	return func(opts *options) { opts.observers = append(opts.observers, o) }
}

// WithListener adds a StepExecutionListener in addition to the reader, processor and writer,
// which are registered automatically when they implement the interface.
func WithListener(l port.StepExecutionListener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

// ChunkStep is a port.Step for chunk-oriented processing.
type ChunkStep[I, O any] struct {
	name      string
	reader    port.ItemReader[I]
	processor port.ItemProcessor[I, O]
	writer    port.ItemWriter[O]
	txManager tx.TransactionManager

	chunkSize   int
	retryPolicy retry.RetryPolicy
	skipPolicy  skip.SkipPolicy
	observer    port.Observer
	listeners   []port.StepExecutionListener
}

// NewChunkStep creates a ChunkStep. Without options it uses DefaultChunkSize, never retries and
// never skips.
func NewChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	txManager tx.TransactionManager,
	opts ...Option,
) *ChunkStep[I, O] {
	o := &options{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(o)
	}
	if o.chunkSize < 1 {
		o.chunkSize = DefaultChunkSize
	}
	if o.retryPolicy == nil {
		o.retryPolicy = retry.NeverRetry()
	}
	if o.skipPolicy == nil {
		o.skipPolicy = skip.NeverSkip()
	}

	var listeners []port.StepExecutionListener
	for _, component := range []interface{}{reader, processor, writer} {
		if l, ok := component.(port.StepExecutionListener); ok {
			listeners = append(listeners, l)
		}
	}
	listeners = append(listeners, o.listeners...)

	return &ChunkStep[I, O]{
		name:        name,
		reader:      reader,
		processor:   processor,
		writer:      writer,
		txManager:   txManager,
		chunkSize:   o.chunkSize,
		retryPolicy: o.retryPolicy,
		skipPolicy:  o.skipPolicy,
		observer:    o.observers,
		listeners:   listeners,
	}
}

// StepName returns the step name.
func (s *ChunkStep[I, O]) StepName() string {
	return s.name
}

// ChunkSize returns the configured chunk size.
func (s *ChunkStep[I, O]) ChunkSize() int {
	return s.chunkSize
}

// Execute runs the step to completion. The outcome is recorded on stepExecution: COMPLETED (or
// the exit status returned by a listener's AfterStep) on success, FAILED with the returned error
// otherwise.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	logger.Infof("ChunkStep '%s' executing.", s.name)

	stepExecution.MarkAsStarted()
	ctx = port.WithStepExecution(ctx, stepExecution)
	s.observer.BeforeStep(ctx, stepExecution)
	for _, l := range s.listeners {
		l.BeforeStep(ctx, stepExecution)
	}

	runErr := s.run(ctx, stepExecution)

	exitStatus := model.ExitStatusCompleted
	for _, l := range s.listeners {
		if status := l.AfterStep(ctx, stepExecution); status != "" {
			exitStatus = status
		}
	}
	if runErr != nil {
		stepExecution.MarkAsFailed(runErr)
	} else {
		stepExecution.MarkAsCompleted(exitStatus)
	}
	s.observer.AfterStep(ctx, stepExecution)

	logger.Infof("ChunkStep '%s' finished. ExitStatus: %s", s.name, stepExecution.ExitStatus)
	logger.Infof("%s", stepExecution.Summary())
	return runErr
}

func (s *ChunkStep[I, O]) run(ctx context.Context, se *model.StepExecution) (err error) {
	if err := s.reader.Open(ctx); err != nil {
		return exception.NewBatchError(s.name, "failed to open ItemReader", err, false, false)
	}
	if err := s.writer.Open(ctx); err != nil {
		if closeErr := s.reader.Close(ctx); closeErr != nil {
			logger.Warnf("ChunkStep '%s': failed to close ItemReader: %v", s.name, closeErr)
		}
		return exception.NewBatchError(s.name, "failed to open ItemWriter", err, false, false)
	}
	defer func() {
		var closeErrs *multierror.Error
		if closeErr := s.reader.Close(ctx); closeErr != nil {
			closeErrs = multierror.Append(closeErrs, closeErr)
		}
		if closeErr := s.closeWriter(ctx, err); closeErr != nil {
			closeErrs = multierror.Append(closeErrs, closeErr)
		}
		if closeErrs != nil {
			logger.Warnf("ChunkStep '%s': failed to close components: %v", s.name, closeErrs)
			if err == nil {
				err = exception.NewBatchError(s.name, "failed to close step components", closeErrs.ErrorOrNil(), false, false)
			}
		}
	}()

	chunkIndex := 0
	for {
		if err := ctx.Err(); err != nil {
			return exception.NewBatchError(s.name, "step interrupted", err, false, false)
		}

		items, eof, err := s.fillChunk(ctx, se)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			chunkIndex++
			if err := s.writeChunk(ctx, se, chunkIndex, items); err != nil {
				return err
			}
		}
		if eof {
			logger.Debugf("ChunkStep '%s': reached end of input after %d chunk(s).", s.name, chunkIndex)
			return nil
		}
	}
}

// fillChunk reads and processes items until the chunk is full or the input is exhausted.
// Items that are filtered or skipped do not count towards the chunk size.
func (s *ChunkStep[I, O]) fillChunk(ctx context.Context, se *model.StepExecution) ([]O, bool, error) {
	items := make([]O, 0, s.chunkSize)
	state := model.ChunkFilling
	for len(items) < s.chunkSize {
		item, err := s.read(ctx, se)
		if errors.Is(err, port.ErrNoMoreItems) || errors.Is(err, io.EOF) {
			return items, true, nil
		}
		if err != nil {
			if skipErr := s.skipOrFail(ctx, se, model.SkipPhaseRead, nil, err, "item read failed"); skipErr != nil {
				return nil, false, skipErr
			}
			continue
		}
		se.ReadCount++

		if state == model.ChunkFilling {
			state = model.ChunkProcessing
			logger.Debugf("ChunkStep '%s': chunk state %s.", s.name, state)
		}
		out, keep, err := s.process(ctx, se, item)
		if err != nil {
			return nil, false, err
		}
		if keep {
			items = append(items, out)
		}
	}
	return items, false, nil
}

// read reads one item, retrying transient read failures.
func (s *ChunkStep[I, O]) read(ctx context.Context, se *model.StepExecution) (I, error) {
	for attempt := 1; ; attempt++ {
		item, err := s.reader.Read(ctx)
		if err == nil || errors.Is(err, port.ErrNoMoreItems) || errors.Is(err, io.EOF) {
			return item, err
		}
		if attempt >= s.retryPolicy.GetMaxAttempts() || !s.retryPolicy.ShouldRetry(err) {
			return item, err
		}
		if waitErr := s.retry(ctx, se, model.SkipPhaseRead, nil, attempt, err); waitErr != nil {
			var zero I
			return zero, waitErr
		}
	}
}

// process runs the processor on item. keep is false when the item was filtered or skipped.
// Retryable failures re-process the same item; once retries are exhausted the failure goes to the
// skip policy.
func (s *ChunkStep[I, O]) process(ctx context.Context, se *model.StepExecution, item I) (out O, keep bool, err error) {
	s.observer.BeforeRecord(ctx, se, item)
	for attempt := 1; ; attempt++ {
		out, err = s.processor.Process(ctx, item)
		if err == nil {
			break
		}
		if attempt >= s.retryPolicy.GetMaxAttempts() || !s.retryPolicy.ShouldRetry(err) {
			break
		}
		if waitErr := s.retry(ctx, se, model.SkipPhaseProcess, item, attempt, err); waitErr != nil {
			s.observer.AfterRecord(ctx, se, item, nil, waitErr)
			return out, false, exception.NewBatchError(s.name, "step interrupted during retry backoff", waitErr, false, false)
		}
	}

	if err != nil {
		s.observer.AfterRecord(ctx, se, item, nil, err)
		if skipErr := s.skipOrFail(ctx, se, model.SkipPhaseProcess, item, err, "item process failed"); skipErr != nil {
			return out, false, skipErr
		}
		return out, false, nil
	}

	s.observer.AfterRecord(ctx, se, item, out, nil)
	if isNilItem(out) {
		se.FilterCount++
		logger.Debugf("ChunkStep '%s': item filtered: %+v", s.name, item)
		return out, false, nil
	}
	return out, true, nil
}

// writeChunk writes items in one transaction. A retryable failure rewrites the whole chunk in a
// new transaction; a skippable failure rewrites the chunk item by item so only the failing items
// are skipped; any other failure is a CommitError.
func (s *ChunkStep[I, O]) writeChunk(ctx context.Context, se *model.StepExecution, index int, items []O) error {
	for attempt := 1; ; attempt++ {
		event := port.ChunkEvent{Index: index, Size: len(items), State: model.ChunkCommitting}
		s.observer.BeforeChunkCommit(ctx, se, event)

		err := s.writeInTx(ctx, items)
		if err == nil {
			se.CommitCount++
			se.WriteCount += len(items)
			event.State = model.ChunkCommitted
			s.observer.AfterChunkCommit(ctx, se, event)
			logger.Debugf("ChunkStep '%s': chunk %d %s (%d items).", s.name, index, event.State, len(items))
			return nil
		}
		var fe *flushError
		if errors.As(err, &fe) {
			se.CommitCount++
			logger.Errorf("ChunkStep '%s': chunk %d committed but its output could not be flushed: %v", s.name, index, fe.err)
			return exception.NewBatchError(s.name, "failed to flush committed chunk", fe.err, false, false)
		}

		se.RollbackCount++
		event.State = model.ChunkRolledBack
		event.Err = err
		s.observer.AfterChunkCommit(ctx, se, event)
		logger.Warnf("ChunkStep '%s': chunk %d %s: %v", s.name, index, event.State, err)

		commitErr := exception.NewCommitError(s.name, err)
		if attempt < s.retryPolicy.GetMaxAttempts() && s.shouldRetryWrite(commitErr) {
			if waitErr := s.retry(ctx, se, model.SkipPhaseWrite, items, attempt, err); waitErr != nil {
				return exception.NewCommitError(s.name, waitErr)
			}
			continue
		}
		if s.skipPolicy.ShouldSkip(err) {
			return s.scanChunk(ctx, se, items)
		}
		return commitErr
	}
}

func (s *ChunkStep[I, O]) shouldRetryWrite(commitErr *exception.CommitError) bool {
	if s.retryPolicy.ShouldRetry(commitErr.Cause) {
		return true
	}
	return commitErr.IsRetryable() && s.retryPolicy.ShouldRetry(commitErr)
}

// scanChunk writes each item in its own transaction.
func (s *ChunkStep[I, O]) scanChunk(ctx context.Context, se *model.StepExecution, items []O) error {
	logger.Infof("ChunkStep '%s': scanning %d items one by one after a skippable write failure.", s.name, len(items))
	for _, item := range items {
		err := s.writeInTx(ctx, []O{item})
		if err == nil {
			se.CommitCount++
			se.WriteCount++
			continue
		}
		var fe *flushError
		if errors.As(err, &fe) {
			se.CommitCount++
			return exception.NewBatchError(s.name, "failed to flush committed item", fe.err, false, false)
		}
		se.RollbackCount++
		if !s.skipPolicy.ShouldSkip(err) {
			return exception.NewCommitError(s.name, err)
		}
		if skipErr := s.skipOrFail(ctx, se, model.SkipPhaseWrite, item, err, "item write failed"); skipErr != nil {
			return skipErr
		}
	}
	return nil
}

func (s *ChunkStep[I, O]) writeInTx(ctx context.Context, items []O) error {
	t, err := s.txManager.Begin(ctx)
	if err != nil {
		return exception.NewBatchError(s.name, "failed to begin transaction for chunk", err, false, false)
	}
	writeErr := s.writer.Write(ctx, t, items)
	if writeErr == nil {
		writeErr = ctx.Err()
	}
	staging, _ := s.writer.(port.StagingItemWriter)
	if writeErr != nil {
		if rbErr := s.txManager.Rollback(t); rbErr != nil {
			logger.Errorf("ChunkStep '%s': rollback failed: %v", s.name, rbErr)
		}
		if staging != nil {
			staging.Discard(ctx)
		}
		return writeErr
	}
	if err := s.txManager.Commit(t); err != nil {
		if staging != nil {
			staging.Discard(ctx)
		}
		return err
	}
	if staging != nil {
		if err := staging.Flush(ctx); err != nil {
			return &flushError{err: err}
		}
	}
	return nil
}

// flushError is a staging writer failure after the chunk transaction committed.
type flushError struct {
	err error
}

func (e *flushError) Error() string { return "flush after commit: " + e.err.Error() }

func (e *flushError) Unwrap() error { return e.err }

// closeWriter ends the writer. A staging writer is aborted when the step failed with runErr.
func (s *ChunkStep[I, O]) closeWriter(ctx context.Context, runErr error) error {
	if staging, ok := s.writer.(port.StagingItemWriter); ok && runErr != nil {
		logger.Warnf("ChunkStep '%s': step failed, aborting ItemWriter without publishing its output.", s.name)
		return staging.Abort(ctx)
	}
	return s.writer.Close(ctx)
}

// skipOrFail records a skip when cause is skippable and the skip limit allows it. Otherwise it
// returns the error that fails the step.
func (s *ChunkStep[I, O]) skipOrFail(ctx context.Context, se *model.StepExecution, phase model.SkipPhase, item interface{}, cause error, failMsg string) error {
	if !s.skipPolicy.ShouldSkip(cause) {
		return exception.NewBatchError(s.name, failMsg, cause, false, false)
	}
	if !s.skipPolicy.CanSkip(se.SkipCount()) {
		logger.Errorf("ChunkStep '%s': skip limit of %d exceeded.", s.name, s.skipPolicy.GetSkipLimit())
		return exception.NewSkipLimitExceededError(s.name, s.skipPolicy.GetSkipLimit(), cause)
	}
	rec := model.SkipRecord{StepName: s.name, Phase: phase, Item: item, Reason: cause, OccurredAt: time.Now()}
	se.AddSkipRecord(rec)
	logger.Warnf("ChunkStep '%s': %s skipped (skip count: %d): %v", s.name, phase, se.SkipCount(), cause)
	s.observer.OnSkip(ctx, se, rec)
	return nil
}

// retry notifies a failed attempt and waits for the backoff interval.
func (s *ChunkStep[I, O]) retry(ctx context.Context, se *model.StepExecution, phase model.SkipPhase, item interface{}, attempt int, cause error) error {
	se.RetryCount++
	logger.Warnf("ChunkStep '%s': %s failed (attempt %d/%d), retrying: %v", s.name, phase, attempt, s.retryPolicy.GetMaxAttempts(), cause)
	s.observer.OnRetry(ctx, se, port.RetryEvent{Phase: phase, Item: item, Attempt: attempt, Err: cause})
	return retry.Sleep(ctx, s.retryPolicy.GetBackoffInterval(attempt))
}

func isNilItem(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

var _ port.Step = (*ChunkStep[any, any])(nil)
