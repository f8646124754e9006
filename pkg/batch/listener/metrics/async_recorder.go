package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/communes/pkg/batch/core/metrics"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// DefaultAsyncBufferSize is the queue size used when none is configured.
const DefaultAsyncBufferSize = 100

type metricEventType int

const (
	eventJobStart metricEventType = iota
	eventJobEnd
	eventStepStart
	eventStepEnd
	eventItemRead
	eventItemFilter
	eventItemWrite
	eventItemSkip
	eventItemRetry
	eventChunkCommit
	eventDuration
)

// metricEvent is one measurement waiting for the worker. Executions are snapshots taken on the
// caller's goroutine.
type metricEvent struct {
	ctx           context.Context
	kind          metricEventType
	jobExecution  *model.JobExecution
	stepExecution *model.StepExecution
	name          string
	phase         string
	reason        string
	count         int
	committed     bool
	duration      time.Duration
	tags          map[string]string
}

// AsyncMetricRecorder queues measurements and forwards them to a synchronous recorder on a
// worker goroutine. When the queue is full the measurement is dropped with a warning.
type AsyncMetricRecorder struct {
	eventQueue chan metricEvent
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closed     atomic.Bool
	dropped    atomic.Int64
	delegate   metrics.MetricRecorder
}

// NewAsyncMetricRecorder starts the worker. A bufferSize of 0 or less uses DefaultAsyncBufferSize.
func NewAsyncMetricRecorder(bufferSize int, delegate metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = DefaultAsyncBufferSize
	}
	r := &AsyncMetricRecorder{
		eventQueue: make(chan metricEvent, bufferSize),
		stopCh:     make(chan struct{}),
		delegate:   delegate,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: worker started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.process(event)
		case <-r.stopCh:
			drained := 0
			for {
				select {
				case event := <-r.eventQueue:
					r.process(event)
					drained++
				default:
					logger.Debugf("AsyncMetricRecorder: worker stopped after draining %d event(s).", drained)
					return
				}
			}
		}
	}
}

func (r *AsyncMetricRecorder) process(e metricEvent) {
	switch e.kind {
	case eventJobStart:
		r.delegate.RecordJobStart(e.ctx, e.jobExecution)
	case eventJobEnd:
		r.delegate.RecordJobEnd(e.ctx, e.jobExecution)
	case eventStepStart:
		r.delegate.RecordStepStart(e.ctx, e.stepExecution)
	case eventStepEnd:
		r.delegate.RecordStepEnd(e.ctx, e.stepExecution)
	case eventItemRead:
		r.delegate.RecordItemRead(e.ctx, e.stepExecution)
	case eventItemFilter:
		r.delegate.RecordItemFilter(e.ctx, e.stepExecution)
	case eventItemWrite:
		r.delegate.RecordItemWrite(e.ctx, e.stepExecution, e.count)
	case eventItemSkip:
		r.delegate.RecordItemSkip(e.ctx, e.stepExecution, e.phase, e.reason)
	case eventItemRetry:
		r.delegate.RecordItemRetry(e.ctx, e.stepExecution, e.phase, e.reason)
	case eventChunkCommit:
		r.delegate.RecordChunkCommit(e.ctx, e.stepExecution, e.count, e.committed)
	case eventDuration:
		r.delegate.RecordDuration(e.ctx, e.name, e.duration, e.tags)
	}
}

// Close stops the worker after the queued measurements have been recorded. Measurements sent
// after Close are recorded synchronously.
func (r *AsyncMetricRecorder) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	close(r.stopCh)
	r.wg.Wait()
	if n := r.dropped.Load(); n > 0 {
		logger.Warnf("AsyncMetricRecorder: %d measurement(s) were dropped because the queue was full.", n)
	}
}

func (r *AsyncMetricRecorder) send(ctx context.Context, e metricEvent) {
	e.ctx = context.WithoutCancel(ctx)
	if r.closed.Load() {
		r.process(e)
		return
	}
	select {
	case r.eventQueue <- e:
	default:
		if r.dropped.Add(1) == 1 {
			logger.Warnf("AsyncMetricRecorder: event queue is full, dropping measurements.")
		}
	}
}

func (r *AsyncMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.send(ctx, metricEvent{kind: eventJobStart, jobExecution: snapshotJob(execution)})
}

func (r *AsyncMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.send(ctx, metricEvent{kind: eventJobEnd, jobExecution: snapshotJob(execution)})
}

func (r *AsyncMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.send(ctx, metricEvent{kind: eventStepStart, stepExecution: snapshotStep(execution)})
}

func (r *AsyncMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	r.send(ctx, metricEvent{kind: eventStepEnd, stepExecution: snapshotStep(execution)})
}

func (r *AsyncMetricRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution) {
	r.send(ctx, metricEvent{kind: eventItemRead, stepExecution: stepRef(execution)})
}

func (r *AsyncMetricRecorder) RecordItemFilter(ctx context.Context, execution *model.StepExecution) {
	r.send(ctx, metricEvent{kind: eventItemFilter, stepExecution: stepRef(execution)})
}

func (r *AsyncMetricRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
	r.send(ctx, metricEvent{kind: eventItemWrite, stepExecution: stepRef(execution), count: count})
}

func (r *AsyncMetricRecorder) RecordItemSkip(ctx context.Context, execution *model.StepExecution, phase string, reason string) {
	r.send(ctx, metricEvent{kind: eventItemSkip, stepExecution: stepRef(execution), phase: phase, reason: reason})
}

func (r *AsyncMetricRecorder) RecordItemRetry(ctx context.Context, execution *model.StepExecution, phase string, reason string) {
	r.send(ctx, metricEvent{kind: eventItemRetry, stepExecution: stepRef(execution), phase: phase, reason: reason})
}

func (r *AsyncMetricRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution, count int, committed bool) {
	r.send(ctx, metricEvent{kind: eventChunkCommit, stepExecution: stepRef(execution), count: count, committed: committed})
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	copied := make(map[string]string, len(tags))
	for k, v := range tags {
		copied[k] = v
	}
	r.send(ctx, metricEvent{kind: eventDuration, name: name, duration: duration, tags: copied})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)

func snapshotJob(je *model.JobExecution) *model.JobExecution {
	if je == nil {
		return nil
	}
	cp := *je
	cp.Failures = append([]string(nil), je.Failures...)
	cp.StepExecutions = nil
	if je.EndTime != nil {
		end := *je.EndTime
		cp.EndTime = &end
	}
	return &cp
}

// snapshotStep copies the identity, status and counters of se. The skip records and the
// accumulator are left out.
func snapshotStep(se *model.StepExecution) *model.StepExecution {
	cp := &model.StepExecution{
		ID:               se.ID,
		StepName:         se.StepName,
		JobExecution:     snapshotJob(se.JobExecution),
		Status:           se.Status,
		ExitStatus:       se.ExitStatus,
		StartTime:        se.StartTime,
		ReadCount:        se.ReadCount,
		WriteCount:       se.WriteCount,
		FilterCount:      se.FilterCount,
		CommitCount:      se.CommitCount,
		RollbackCount:    se.RollbackCount,
		RetryCount:       se.RetryCount,
		SkipReadCount:    se.SkipReadCount,
		SkipProcessCount: se.SkipProcessCount,
		SkipWriteCount:   se.SkipWriteCount,
	}
	if se.EndTime != nil {
		end := *se.EndTime
		cp.EndTime = &end
	}
	return cp
}

// stepRef carries only the names item-level measurements are labelled with.
func stepRef(se *model.StepExecution) *model.StepExecution {
	ref := &model.StepExecution{ID: se.ID, StepName: se.StepName}
	if se.JobExecution != nil {
		ref.JobExecution = &model.JobExecution{ID: se.JobExecution.ID, RunID: se.JobExecution.RunID, JobName: se.JobExecution.JobName}
	}
	return ref
}
