// Package reader provides generic item readers: a delimited flat file reader and a paging reader
// over any page fetching function.
package reader

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	storage "github.com/tigerroll/communes/pkg/batch/adapter/storage"
	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// ParseError reports a line of a delimited file that could not be tokenized or mapped.
type ParseError struct {
	// Line is the 1-based line number in the file, header lines included.
	Line int
	// Input is the content of the offending line.
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing error at line: %d, input=[%s]: %v", e.Line, e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func init() {
	exception.RegisterErrorType("ParseError", &ParseError{})
}

// Source opens the stream a reader consumes.
type Source func(ctx context.Context) (io.ReadCloser, error)

// FileSource reads a file of the local file system.
func FileSource(path string) Source {
	return func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// StorageSource downloads objectName from a storage connection.
func StorageSource(conn storage.StorageExecutor, bucket, objectName string) Source {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return conn.Download(ctx, bucket, objectName)
	}
}

// DelimitedConfig describes the layout of a delimited file.
type DelimitedConfig struct {
	// Delimiter separates the tokens of a line. Defaults to ','.
	Delimiter rune
	// LinesToSkip is the number of leading lines (headers) ignored.
	LinesToSkip int
	// Names are the column names, in file order.
	Names []string
	// AllowMissingColumns accepts lines with fewer tokens than Names; the missing trailing
	// columns are absent from the FieldSet. Lines with more tokens are always rejected.
	AllowMissingColumns bool
}

// FieldSet is one tokenized line, addressed by column name.
type FieldSet struct {
	names  []string
	values []string
}

// Value returns the token of column name. ok is false when the column is unknown or missing
// from the line.
func (fs FieldSet) Value(name string) (value string, ok bool) {
	for i, n := range fs.names {
		if n == name {
			if i < len(fs.values) {
				return fs.values[i], true
			}
			return "", false
		}
	}
	return "", false
}

// Ptr is like Value but returns nil for a missing column.
func (fs FieldSet) Ptr(name string) *string {
	v, ok := fs.Value(name)
	if !ok {
		return nil
	}
	return &v
}

// Len is the number of tokens on the line.
func (fs FieldSet) Len() int { return len(fs.values) }

// FieldSetMapper turns a FieldSet into an item.
type FieldSetMapper[T any] func(fs FieldSet) (T, error)

// DelimitedFileReader reads items from a delimited text file, one item per line.
// Malformed lines are returned as *ParseError and the reader moves on to the next line.
type DelimitedFileReader[T any] struct {
	name   string
	source Source
	cfg    DelimitedConfig
	mapper FieldSetMapper[T]

	stream io.ReadCloser
	csv    *csv.Reader
}

var _ port.ItemReader[any] = (*DelimitedFileReader[any])(nil)

// NewDelimitedFileReader creates a DelimitedFileReader.
func NewDelimitedFileReader[T any](name string, source Source, cfg DelimitedConfig, mapper FieldSetMapper[T]) *DelimitedFileReader[T] {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	return &DelimitedFileReader[T]{
		name:   name,
		source: source,
		cfg:    cfg,
		mapper: mapper,
	}
}

// Open opens the source and skips the configured header lines.
func (r *DelimitedFileReader[T]) Open(ctx context.Context) error {
	stream, err := r.source(ctx)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("DelimitedFileReader '%s': failed to open source", r.name), err, false, false)
	}

	buffered := bufio.NewReader(stream)
	for i := 0; i < r.cfg.LinesToSkip; i++ {
		if _, err := buffered.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			stream.Close()
			return exception.NewBatchError("reader", fmt.Sprintf("DelimitedFileReader '%s': failed to skip header lines", r.name), err, false, false)
		}
	}

	cr := csv.NewReader(buffered)
	cr.Comma = r.cfg.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	r.stream = stream
	r.csv = cr
	logger.Infof("DelimitedFileReader '%s' opened (delimiter %q, %d header line(s) skipped).", r.name, r.cfg.Delimiter, r.cfg.LinesToSkip)
	return nil
}

// Read returns the next item, port.ErrNoMoreItems at the end of the file, or a *ParseError.
func (r *DelimitedFileReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.csv == nil {
		return zero, exception.NewBatchError("reader", fmt.Sprintf("DelimitedFileReader '%s' is not open", r.name), nil, false, false)
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	record, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return zero, port.ErrNoMoreItems
	}
	if err != nil {
		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			return zero, &ParseError{Line: r.cfg.LinesToSkip + csvErr.StartLine, Input: strings.Join(record, string(r.cfg.Delimiter)), Err: csvErr.Err}
		}
		return zero, exception.NewBatchError("reader", fmt.Sprintf("DelimitedFileReader '%s': read failed", r.name), err, false, false)
	}

	line, _ := r.csv.FieldPos(0)
	line += r.cfg.LinesToSkip
	input := strings.Join(record, string(r.cfg.Delimiter))

	if err := r.checkTokenCount(len(record)); err != nil {
		return zero, &ParseError{Line: line, Input: input, Err: err}
	}

	item, err := r.mapper(FieldSet{names: r.cfg.Names, values: record})
	if err != nil {
		return zero, &ParseError{Line: line, Input: input, Err: err}
	}
	return item, nil
}

func (r *DelimitedFileReader[T]) checkTokenCount(count int) error {
	expected := len(r.cfg.Names)
	if count == expected || (r.cfg.AllowMissingColumns && count < expected) {
		return nil
	}
	return fmt.Errorf("incorrect number of tokens found in record: expected %d actual %d", expected, count)
}

// Close closes the source.
func (r *DelimitedFileReader[T]) Close(ctx context.Context) error {
	if r.stream == nil {
		return nil
	}
	err := r.stream.Close()
	r.stream = nil
	r.csv = nil
	return err
}
