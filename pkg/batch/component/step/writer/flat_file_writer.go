package writer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"

	storage "github.com/tigerroll/communes/pkg/batch/adapter/storage"
	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// LineAggregator renders one item as a line, without the line separator.
type LineAggregator[T any] interface {
	Aggregate(item T) (string, error)
}

// LineAggregatorFunc adapts a function to LineAggregator.
type LineAggregatorFunc[T any] func(item T) (string, error)

func (f LineAggregatorFunc[T]) Aggregate(item T) (string, error) { return f(item) }

// Callback writes a header or a footer. The header is followed by a line separator; the footer
// ends the file as written.
type Callback func(ctx context.Context, w io.Writer) error

// FlatFileConfig names the object a FlatFileItemWriter produces.
type FlatFileConfig struct {
	Bucket      string
	ObjectName  string
	ContentType string
	// LineSeparator defaults to "\n".
	LineSeparator string
}

// FlatFileItemWriter writes one line per item to a temporary file and uploads the file to a
// storage connection when the step closes it.
//
// Lines of a chunk are staged by Write and appended to the file only once the chunk transaction
// has committed, so a rolled back chunk leaves no trace in the output.
type FlatFileItemWriter[T any] struct {
	name       string
	conn       storage.StorageExecutor
	cfg        FlatFileConfig
	aggregator LineAggregator[T]
	header     Callback
	footer     Callback

	file    *os.File
	out     *bufio.Writer
	pending []string
	lines   int
}

var (
	_ port.ItemWriter[any]   = (*FlatFileItemWriter[any])(nil)
	_ port.StagingItemWriter = (*FlatFileItemWriter[any])(nil)
)

// NewFlatFileItemWriter creates a FlatFileItemWriter.
func NewFlatFileItemWriter[T any](name string, conn storage.StorageExecutor, cfg FlatFileConfig, aggregator LineAggregator[T]) *FlatFileItemWriter[T] {
	if cfg.LineSeparator == "" {
		cfg.LineSeparator = "\n"
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/plain; charset=utf-8"
	}
	return &FlatFileItemWriter[T]{
		name:       name,
		conn:       conn,
		cfg:        cfg,
		aggregator: aggregator,
	}
}

// SetHeaderCallback sets the callback run by Open.
func (w *FlatFileItemWriter[T]) SetHeaderCallback(cb Callback) { w.header = cb }

// SetFooterCallback sets the callback run by Close.
func (w *FlatFileItemWriter[T]) SetFooterCallback(cb Callback) { w.footer = cb }

// Open creates the temporary file and writes the header.
func (w *FlatFileItemWriter[T]) Open(ctx context.Context) error {
	if w.cfg.ObjectName == "" {
		return exception.NewBatchError("writer", fmt.Sprintf("FlatFileItemWriter '%s' requires an object name", w.name), nil, false, false)
	}
	f, err := os.CreateTemp("", "flatfile-*.tmp")
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("FlatFileItemWriter '%s': failed to create temporary file", w.name), err, false, false)
	}
	w.file = f
	w.out = bufio.NewWriter(f)
	w.pending = nil
	w.lines = 0

	if w.header != nil {
		if err := w.header(ctx, w.out); err != nil {
			w.cleanup()
			return exception.NewBatchError("writer", fmt.Sprintf("FlatFileItemWriter '%s': header callback failed", w.name), err, false, false)
		}
		if _, err := w.out.WriteString(w.cfg.LineSeparator); err != nil {
			w.cleanup()
			return exception.NewBatchError("writer", fmt.Sprintf("FlatFileItemWriter '%s': failed to write header", w.name), err, false, false)
		}
	}
	logger.Infof("FlatFileItemWriter '%s' opened. Target: %s/%s", w.name, w.cfg.Bucket, w.cfg.ObjectName)
	return nil
}

// Write renders items and stages the lines until Flush.
func (w *FlatFileItemWriter[T]) Write(ctx context.Context, _ tx.Tx, items []T) error {
	if w.out == nil {
		return exception.NewBatchError("writer", fmt.Sprintf("FlatFileItemWriter '%s' is not open", w.name), nil, false, false)
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		line, err := w.aggregator.Aggregate(item)
		if err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("FlatFileItemWriter '%s': failed to render item %+v", w.name, item), err, false, false)
		}
		lines = append(lines, line)
	}
	w.pending = append(w.pending, lines...)
	return nil
}

// Flush appends the staged lines to the file.
func (w *FlatFileItemWriter[T]) Flush(ctx context.Context) error {
	for _, line := range w.pending {
		if _, err := w.out.WriteString(line + w.cfg.LineSeparator); err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("FlatFileItemWriter '%s': failed to write line", w.name), err, false, false)
		}
	}
	w.lines += len(w.pending)
	w.pending = nil
	return nil
}

// Discard drops the staged lines.
func (w *FlatFileItemWriter[T]) Discard(ctx context.Context) {
	if len(w.pending) > 0 {
		logger.Debugf("FlatFileItemWriter '%s': discarding %d staged line(s).", w.name, len(w.pending))
	}
	w.pending = nil
}

// Lines is the number of item lines written to the file.
func (w *FlatFileItemWriter[T]) Lines() int { return w.lines }

// Close writes the footer, uploads the file and removes it.
func (w *FlatFileItemWriter[T]) Close(ctx context.Context) error {
	if w.file == nil {
		return nil
	}
	defer w.cleanup()

	if len(w.pending) > 0 {
		logger.Warnf("FlatFileItemWriter '%s': %d staged line(s) were never committed and are dropped.", w.name, len(w.pending))
		w.pending = nil
	}

	var result *multierror.Error
	if w.footer != nil {
		if err := w.footer(ctx, w.out); err != nil {
			result = multierror.Append(result, fmt.Errorf("footer callback: %w", err))
		}
	}
	if err := w.out.Flush(); err != nil {
		result = multierror.Append(result, fmt.Errorf("flush: %w", err))
	}
	if result.ErrorOrNil() != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("FlatFileItemWriter '%s': failed to finish file", w.name), result.ErrorOrNil(), false, false)
	}

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("FlatFileItemWriter '%s': failed to rewind file", w.name), err, false, false)
	}
	if err := w.conn.Upload(ctx, w.cfg.Bucket, w.cfg.ObjectName, w.file, w.cfg.ContentType); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("FlatFileItemWriter '%s': failed to upload '%s'", w.name, w.cfg.ObjectName), err, false, exception.IsTransient(err))
	}
	logger.Infof("FlatFileItemWriter '%s': uploaded %d line(s) to %s/%s", w.name, w.lines, w.cfg.Bucket, w.cfg.ObjectName)
	return nil
}

// Abort removes the temporary file without uploading it.
func (w *FlatFileItemWriter[T]) Abort(ctx context.Context) error {
	if w.file == nil {
		return nil
	}
	logger.Warnf("FlatFileItemWriter '%s': aborted, %s/%s is left unchanged.", w.name, w.cfg.Bucket, w.cfg.ObjectName)
	w.pending = nil
	w.cleanup()
	return nil
}

func (w *FlatFileItemWriter[T]) cleanup() {
	if w.file == nil {
		return
	}
	name := w.file.Name()
	if err := w.file.Close(); err != nil {
		logger.Warnf("FlatFileItemWriter '%s': failed to close temporary file: %v", w.name, err)
	}
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		logger.Warnf("FlatFileItemWriter '%s': failed to remove temporary file: %v", w.name, err)
	}
	w.file = nil
	w.out = nil
}
