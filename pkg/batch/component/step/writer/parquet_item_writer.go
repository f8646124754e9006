package writer

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go/parquet"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	storage "github.com/tigerroll/communes/pkg/batch/adapter/storage"
	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// ParquetConfig names the Parquet object a ParquetItemWriter produces.
type ParquetConfig struct {
	Bucket     string `yaml:"bucket"`
	ObjectName string `yaml:"object_name"`
	// CompressionType is SNAPPY (default), GZIP or NONE.
	CompressionType string `yaml:"compression_type"`
	// Parallelism is the number of goroutines the Parquet encoder uses. Defaults to 1.
	Parallelism int64 `yaml:"parallelism"`
}

// ParquetItemWriter encodes items into one Parquet file and uploads it when the step closes
// the writer. T must be a struct carrying `parquet:"..."` tags.
//
// Items of a chunk are staged by Write and encoded only after the chunk transaction committed.
type ParquetItemWriter[T any] struct {
	name      string
	conn      storage.StorageExecutor
	cfg       ParquetConfig
	prototype *T

	buf     *bytes.Buffer
	pw      *pqwriter.ParquetWriter
	pending []T
	rows    int64
}

var (
	_ port.ItemWriter[any]   = (*ParquetItemWriter[any])(nil)
	_ port.StagingItemWriter = (*ParquetItemWriter[any])(nil)
)

// NewParquetItemWriter creates a ParquetItemWriter. prototype is used for schema reflection.
func NewParquetItemWriter[T any](name string, conn storage.StorageExecutor, cfg ParquetConfig, prototype *T) (*ParquetItemWriter[T], error) {
	if cfg.ObjectName == "" {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("ParquetItemWriter '%s' requires an object name", name), nil, false, false)
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	if _, err := compressionCodec(cfg.CompressionType); err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("ParquetItemWriter '%s'", name), err, false, false)
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if prototype == nil {
		prototype = new(T)
	}
	return &ParquetItemWriter[T]{name: name, conn: conn, cfg: cfg, prototype: prototype}, nil
}

// Open creates the Parquet encoder over an in-memory buffer.
func (w *ParquetItemWriter[T]) Open(ctx context.Context) error {
	codec, _ := compressionCodec(w.cfg.CompressionType)
	w.buf = new(bytes.Buffer)
	pw, err := pqwriter.NewParquetWriterFromWriter(w.buf, w.prototype, w.cfg.Parallelism)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetItemWriter '%s': failed to create Parquet writer", w.name), err, false, false)
	}
	pw.CompressionType = codec
	w.pw = pw
	w.pending = nil
	w.rows = 0
	logger.Infof("ParquetItemWriter '%s' opened. Target: %s/%s (%s)", w.name, w.cfg.Bucket, w.cfg.ObjectName, w.cfg.CompressionType)
	return nil
}

// Write stages items until Flush.
func (w *ParquetItemWriter[T]) Write(ctx context.Context, _ tx.Tx, items []T) error {
	if w.pw == nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetItemWriter '%s' is not open", w.name), nil, false, false)
	}
	w.pending = append(w.pending, items...)
	return nil
}

// Flush encodes the staged items.
func (w *ParquetItemWriter[T]) Flush(ctx context.Context) error {
	for _, item := range w.pending {
		if err := w.pw.Write(item); err != nil {
			w.pending = nil
			return exception.NewBatchError("writer", fmt.Sprintf("ParquetItemWriter '%s': failed to encode item", w.name), err, false, false)
		}
		w.rows++
	}
	w.pending = nil
	return nil
}

// Discard drops the staged items.
func (w *ParquetItemWriter[T]) Discard(ctx context.Context) {
	w.pending = nil
}

// Rows is the number of rows encoded so far.
func (w *ParquetItemWriter[T]) Rows() int64 { return w.rows }

// Close finalizes the file and uploads it. Nothing is uploaded when no row was written.
func (w *ParquetItemWriter[T]) Close(ctx context.Context) error {
	if w.pw == nil {
		return nil
	}
	pw := w.pw
	w.pw = nil
	w.pending = nil

	if err := stopWriter(pw); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetItemWriter '%s': failed to finalize Parquet file", w.name), err, false, false)
	}
	if w.rows == 0 {
		logger.Infof("ParquetItemWriter '%s': no rows written, skipping upload.", w.name)
		return nil
	}

	size := w.buf.Len()
	if err := w.conn.Upload(ctx, w.cfg.Bucket, w.cfg.ObjectName, w.buf, "application/octet-stream"); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetItemWriter '%s': failed to upload '%s'", w.name, w.cfg.ObjectName), err, false, exception.IsTransient(err))
	}
	logger.Infof("ParquetItemWriter '%s': uploaded %d row(s), %d bytes to %s/%s", w.name, w.rows, size, w.cfg.Bucket, w.cfg.ObjectName)
	return nil
}

// Abort drops the encoded rows without uploading them.
func (w *ParquetItemWriter[T]) Abort(ctx context.Context) error {
	if w.pw == nil {
		return nil
	}
	w.pw = nil
	w.buf = nil
	w.pending = nil
	logger.Warnf("ParquetItemWriter '%s': aborted, %s/%s is left unchanged.", w.name, w.cfg.Bucket, w.cfg.ObjectName)
	return nil
}

// stopWriter calls WriteStop, turning a panic of the encoder into an error.
func stopWriter(pw *pqwriter.ParquetWriter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	return pw.WriteStop()
}

func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
