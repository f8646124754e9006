package port

import (
	"context"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
)

// ChunkEvent describes one chunk around its commit.
type ChunkEvent struct {
	Index int              // 1-based position of the chunk within the step execution
	Size  int              // number of items handed to the writer
	State model.ChunkState // COMMITTING before the commit, COMMITTED or ROLLED_BACK after
	Err   error            // set when State is ROLLED_BACK
}

// RetryEvent describes one failed attempt that is about to be retried.
type RetryEvent struct {
	Phase   model.SkipPhase
	Item    interface{}
	Attempt int // attempt that failed, starting at 1
	Err     error
}

// Observer receives lifecycle notifications from jobs and steps. Notifications are delivered
// synchronously and their outcome never changes the control flow of the engine.
type Observer interface {
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
	BeforeChunkCommit(ctx context.Context, stepExecution *model.StepExecution, chunk ChunkEvent)
	AfterChunkCommit(ctx context.Context, stepExecution *model.StepExecution, chunk ChunkEvent)
	BeforeRecord(ctx context.Context, stepExecution *model.StepExecution, item interface{})
	AfterRecord(ctx context.Context, stepExecution *model.StepExecution, item interface{}, result interface{}, err error)
	OnSkip(ctx context.Context, stepExecution *model.StepExecution, record model.SkipRecord)
	OnRetry(ctx context.Context, stepExecution *model.StepExecution, event RetryEvent)
}

// NoOpObserver implements Observer with empty methods. Embed it to observe a subset.
type NoOpObserver struct{}

func (NoOpObserver) BeforeJob(context.Context, *model.JobExecution) {}
func (NoOpObserver) AfterJob(context.Context, *model.JobExecution) {}
func (NoOpObserver) BeforeStep(context.Context, *model.StepExecution) {}
func (NoOpObserver) AfterStep(context.Context, *model.StepExecution) {}
func (NoOpObserver) BeforeChunkCommit(context.Context, *model.StepExecution, ChunkEvent) {}
func (NoOpObserver) AfterChunkCommit(context.Context, *model.StepExecution, ChunkEvent) {}
func (NoOpObserver) BeforeRecord(context.Context, *model.StepExecution, interface{}) {}
func (NoOpObserver) OnSkip(context.Context, *model.StepExecution, model.SkipRecord) {}
func (NoOpObserver) OnRetry(context.Context, *model.StepExecution, RetryEvent) {}
func (NoOpObserver) AfterRecord(context.Context, *model.StepExecution, interface{}, interface{}, error) {
}

var _ Observer = NoOpObserver{}

// CompositeObserver fans every notification out to its members in order.
type CompositeObserver []Observer

func (c CompositeObserver) BeforeJob(ctx context.Context, je *model.JobExecution) {
	for _, o := range c {
		o.BeforeJob(ctx, je)
	}
}

func (c CompositeObserver) AfterJob(ctx context.Context, je *model.JobExecution) {
	for _, o := range c {
		o.AfterJob(ctx, je)
	}
}

func (c CompositeObserver) BeforeStep(ctx context.Context, se *model.StepExecution) {
	for _, o := range c {
		o.BeforeStep(ctx, se)
	}
}

func (c CompositeObserver) AfterStep(ctx context.Context, se *model.StepExecution) {
	for _, o := range c {
		o.AfterStep(ctx, se)
	}
}

func (c CompositeObserver) BeforeChunkCommit(ctx context.Context, se *model.StepExecution, chunk ChunkEvent) {
	for _, o := range c {
		o.BeforeChunkCommit(ctx, se, chunk)
	}
}

func (c CompositeObserver) AfterChunkCommit(ctx context.Context, se *model.StepExecution, chunk ChunkEvent) {
	for _, o := range c {
		o.AfterChunkCommit(ctx, se, chunk)
	}
}

func (c CompositeObserver) BeforeRecord(ctx context.Context, se *model.StepExecution, item interface{}) {
	for _, o := range c {
		o.BeforeRecord(ctx, se, item)
	}
}

func (c CompositeObserver) AfterRecord(ctx context.Context, se *model.StepExecution, item interface{}, result interface{}, err error) {
	for _, o := range c {
		o.AfterRecord(ctx, se, item, result, err)
	}
}

func (c CompositeObserver) OnSkip(ctx context.Context, se *model.StepExecution, record model.SkipRecord) {
	for _, o := range c {
		o.OnSkip(ctx, se, record)
	}
}

func (c CompositeObserver) OnRetry(ctx context.Context, se *model.StepExecution, event RetryEvent) {
	for _, o := range c {
		o.OnRetry(ctx, se, event)
	}
}

var _ Observer = CompositeObserver(nil)
