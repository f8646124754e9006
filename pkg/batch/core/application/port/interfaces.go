// Package port defines the interfaces between the batch engine and the components it runs:
// item readers, processors and writers, tasklets, steps, jobs and observers.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
)

// ErrNoMoreItems is returned by ItemReader.Read when the source is exhausted.
// Readers may also return io.EOF; both end the step's read loop.
var ErrNoMoreItems = errors.New("no more items to read")

// ItemReader reads items one at a time from a source.
type ItemReader[O any] interface {
	// Open prepares the source. It is called once before the first Read.
	Open(ctx context.Context) error
	// Read returns the next item, ErrNoMoreItems at the end of the data, or an error describing
	// why the current item could not be read. After a read error the reader must be positioned on
	// the following item.
	Read(ctx context.Context) (O, error)
	// Close releases the source.
	Close(ctx context.Context) error
}

// ItemProcessor transforms one item. Returning a nil pointer (or nil map, slice or interface)
// filters the item out of the chunk without an error.
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter writes a whole chunk inside the chunk transaction.
type ItemWriter[I any] interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, tx tx.Tx, items []I) error
	Close(ctx context.Context) error
}

// StagingItemWriter is implemented by writers whose output is not covered by the chunk
// transaction, such as files. Write only stages the items; Flush makes them durable once the
// transaction has committed and Discard drops them after a rollback. A failed step ends the writer
// with Abort instead of Close, which releases it without publishing its output.
type StagingItemWriter interface {
	Flush(ctx context.Context) error
	Discard(ctx context.Context)
	Abort(ctx context.Context) error
}

// StepExecutionListener is implemented by readers, processors, writers and tasklets that keep
// state for one step execution. BeforeStep hands them the StepExecution (and its Accumulator);
// AfterStep may return a non-empty ExitStatus to override the step's completion code.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	AfterStep(ctx context.Context, stepExecution *model.StepExecution) model.ExitStatus
}

// Tasklet is a single-shot unit of work.
type Tasklet interface {
	Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error)
}

// Step executes one step of a job. Implementations set Status and ExitStatus on the
// StepExecution before returning; a returned error always means the step FAILED.
type Step interface {
	StepName() string
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
}

// Job runs a whole flow for one JobExecution.
type Job interface {
	JobName() string
	Run(ctx context.Context, jobExecution *model.JobExecution) error
}

// JobLauncher starts named jobs and reports their result.
type JobLauncher interface {
	Launch(ctx context.Context, jobName string, params model.JobParameters) (model.JobResult, error)
}

type stepExecutionKey struct{}

// WithStepExecution returns a copy of ctx carrying se.
func WithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, stepExecutionKey{}, se)
}

// StepExecutionFromContext returns the StepExecution stored by WithStepExecution, or nil.
func StepExecutionFromContext(ctx context.Context) *model.StepExecution {
	se, _ := ctx.Value(stepExecutionKey{}).(*model.StepExecution)
	return se
}
