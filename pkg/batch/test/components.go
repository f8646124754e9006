package test

import (
	"context"
	"sync"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
)

// SliceReader reads a fixed list of items. An entry of Errs at the same index is returned
// instead of the item.
type SliceReader[T any] struct {
	Items  []T
	Errs   map[int]error
	pos    int
	Opened bool
	Closed bool
}

func (r *SliceReader[T]) Open(context.Context) error {
	r.Opened = true
	r.pos = 0
	return nil
}

func (r *SliceReader[T]) Read(context.Context) (T, error) {
	var zero T
	if r.pos >= len(r.Items) {
		return zero, port.ErrNoMoreItems
	}
	i := r.pos
	r.pos++
	if err, ok := r.Errs[i]; ok {
		return zero, err
	}
	return r.Items[i], nil
}

func (r *SliceReader[T]) Close(context.Context) error {
	r.Closed = true
	return nil
}

// ProcessorFunc adapts a function to port.ItemProcessor.
type ProcessorFunc[I, O any] func(ctx context.Context, item I) (O, error)

func (f ProcessorFunc[I, O]) Process(ctx context.Context, item I) (O, error) {
	return f(ctx, item)
}

// RecordingWriter keeps the chunks it was asked to write. WriteFunc, when set, decides the
// result of each call; only successful chunks are kept in Chunks.
type RecordingWriter[T any] struct {
	WriteFunc func(items []T) error
	Chunks    [][]T
	Calls     int
	Opened    bool
	Closed    bool
}

func (w *RecordingWriter[T]) Open(context.Context) error {
	w.Opened = true
	return nil
}

func (w *RecordingWriter[T]) Write(_ context.Context, _ tx.Tx, items []T) error {
	w.Calls++
	if w.WriteFunc != nil {
		if err := w.WriteFunc(items); err != nil {
			return err
		}
	}
	chunk := make([]T, len(items))
	copy(chunk, items)
	w.Chunks = append(w.Chunks, chunk)
	return nil
}

func (w *RecordingWriter[T]) Close(context.Context) error {
	w.Closed = true
	return nil
}

// Written flattens the successful chunks.
func (w *RecordingWriter[T]) Written() []T {
	var out []T
	for _, c := range w.Chunks {
		out = append(out, c...)
	}
	return out
}

// RecordingObserver records every notification as a short event string, for example
// "beforeStep:importFile" or "skip:process".
type RecordingObserver struct {
	mu      sync.Mutex
	Events  []string
	Skips   []model.SkipRecord
	Retries []port.RetryEvent
	Chunks  []port.ChunkEvent
}

func (o *RecordingObserver) add(e string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Events = append(o.Events, e)
}

func (o *RecordingObserver) BeforeJob(_ context.Context, je *model.JobExecution) {
	o.add("beforeJob:" + je.JobName)
}

func (o *RecordingObserver) AfterJob(_ context.Context, je *model.JobExecution) {
	o.add("afterJob:" + je.JobName + ":" + je.ExitStatus.String())
}

func (o *RecordingObserver) BeforeStep(_ context.Context, se *model.StepExecution) {
	o.add("beforeStep:" + se.StepName)
}

func (o *RecordingObserver) AfterStep(_ context.Context, se *model.StepExecution) {
	o.add("afterStep:" + se.StepName + ":" + se.ExitStatus.String())
}

func (o *RecordingObserver) BeforeChunkCommit(_ context.Context, _ *model.StepExecution, chunk port.ChunkEvent) {
	o.add("beforeChunk")
}

func (o *RecordingObserver) AfterChunkCommit(_ context.Context, _ *model.StepExecution, chunk port.ChunkEvent) {
	o.mu.Lock()
	o.Chunks = append(o.Chunks, chunk)
	o.mu.Unlock()
	o.add("afterChunk:" + chunk.State.String())
}

func (o *RecordingObserver) BeforeRecord(context.Context, *model.StepExecution, interface{}) {}

func (o *RecordingObserver) AfterRecord(context.Context, *model.StepExecution, interface{}, interface{}, error) {
}

func (o *RecordingObserver) OnSkip(_ context.Context, _ *model.StepExecution, record model.SkipRecord) {
	o.mu.Lock()
	o.Skips = append(o.Skips, record)
	o.mu.Unlock()
	o.add("skip:" + string(record.Phase))
}

func (o *RecordingObserver) OnRetry(_ context.Context, _ *model.StepExecution, event port.RetryEvent) {
	o.mu.Lock()
	o.Retries = append(o.Retries, event)
	o.mu.Unlock()
	o.add("retry:" + string(event.Phase))
}

var _ port.Observer = (*RecordingObserver)(nil)

// StubStep is a port.Step that ends with a fixed exit status or error and records how often it
// ran.
type StubStep struct {
	Name       string
	ExitStatus model.ExitStatus
	Err        error
	Runs       int
}

func (s *StubStep) StepName() string { return s.Name }

func (s *StubStep) Execute(_ context.Context, _ *model.JobExecution, se *model.StepExecution) error {
	s.Runs++
	se.MarkAsStarted()
	if s.Err != nil {
		se.MarkAsFailed(s.Err)
		return s.Err
	}
	se.MarkAsCompleted(s.ExitStatus)
	return nil
}

var _ port.Step = (*StubStep)(nil)
