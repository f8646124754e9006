// Package writer provides generic item writers: an upsert writer that writes through the chunk
// transaction, and flat file and Parquet writers that stage their output until the chunk
// transaction has committed.
package writer

import (
	"context"
	"fmt"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// UpsertFunc writes one batch of items inside t.
type UpsertFunc[T any] func(ctx context.Context, t tx.Tx, items []T) error

// UpsertItemWriter writes chunks with insert-or-update statements inside the chunk transaction.
// Chunks larger than the bulk size are split into several statements.
type UpsertItemWriter[T any] struct {
	name     string
	bulkSize int
	target   string
	upsert   UpsertFunc[T]
}

var _ port.ItemWriter[any] = (*UpsertItemWriter[any])(nil)

// NewUpsertItemWriter creates a writer that upserts into tableName. Rows colliding on
// conflictColumns get updateColumns overwritten; empty updateColumns keep the existing row.
func NewUpsertItemWriter[T any](name string, bulkSize int, tableName string, conflictColumns []string, updateColumns []string) *UpsertItemWriter[T] {
	return NewUpsertItemWriterFunc(name, bulkSize, tableName, func(ctx context.Context, t tx.Tx, items []T) error {
		_, err := t.ExecuteUpsert(ctx, items, tableName, conflictColumns, updateColumns)
		return err
	})
}

// NewUpsertItemWriterFunc creates a writer that hands each batch to fn, typically a repository
// method. target only names the destination in logs and errors.
func NewUpsertItemWriterFunc[T any](name string, bulkSize int, target string, fn UpsertFunc[T]) *UpsertItemWriter[T] {
	return &UpsertItemWriter[T]{
		name:     name,
		bulkSize: bulkSize,
		target:   target,
		upsert:   fn,
	}
}

func (w *UpsertItemWriter[T]) Open(ctx context.Context) error {
	logger.Debugf("UpsertItemWriter '%s': Opened (target '%s').", w.name, w.target)
	return nil
}

// Write upserts items in batches of at most bulkSize.
func (w *UpsertItemWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if t == nil {
		return exception.NewBatchError("writer", fmt.Sprintf("UpsertItemWriter '%s' needs a transaction", w.name), nil, false, false)
	}

	size := w.bulkSize
	if size < 1 {
		size = len(items)
	}
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		if err := w.upsert(ctx, t, items[i:end]); err != nil {
			return exception.NewBatchError("writer",
				fmt.Sprintf("UpsertItemWriter '%s': failed to upsert into '%s' (batch start index %d)", w.name, w.target, i),
				err, false, exception.IsTransient(err))
		}
		logger.Debugf("UpsertItemWriter '%s': Wrote %d items (start index %d).", w.name, end-i, i)
	}
	return nil
}

func (w *UpsertItemWriter[T]) Close(ctx context.Context) error {
	logger.Debugf("UpsertItemWriter '%s': Closed.", w.name)
	return nil
}
