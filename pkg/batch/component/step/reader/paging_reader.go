package reader

import (
	"context"
	"fmt"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 10

// Page is the request passed to a PageFunc.
type Page[T any] struct {
	// Number is the 0-based page index.
	Number int
	// Offset is the number of items returned by previous pages.
	Offset int
	// Size is the maximum number of items to return.
	Size int
	// Last is the last item of the previous page. HasLast is false for the first page.
	Last    T
	HasLast bool
}

// PageFunc fetches one page. A page shorter than p.Size ends the read.
//
// Offset based queries use p.Offset; keyset queries, which stay stable while earlier items are
// updated by the same step, use p.Last.
type PageFunc[T any] func(ctx context.Context, p Page[T]) ([]T, error)

// PagingItemReader reads items page by page through a PageFunc.
type PagingItemReader[T any] struct {
	name     string
	pageSize int
	fetch    PageFunc[T]

	page      []T
	pos       int
	next      Page[T]
	exhausted bool
	readCount int
}

var _ port.ItemReader[any] = (*PagingItemReader[any])(nil)

// NewPagingItemReader creates a PagingItemReader.
func NewPagingItemReader[T any](name string, pageSize int, fetch PageFunc[T]) *PagingItemReader[T] {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &PagingItemReader[T]{name: name, pageSize: pageSize, fetch: fetch}
}

// Open resets the reader to the first page.
func (r *PagingItemReader[T]) Open(ctx context.Context) error {
	r.page = nil
	r.pos = 0
	r.next = Page[T]{Size: r.pageSize}
	r.exhausted = false
	r.readCount = 0
	logger.Debugf("PagingItemReader '%s' opened with page size %d.", r.name, r.pageSize)
	return nil
}

// Read returns the next item, fetching a new page when the current one is consumed.
func (r *PagingItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.pos >= len(r.page) {
		if r.exhausted {
			return zero, port.ErrNoMoreItems
		}
		if err := r.fetchPage(ctx); err != nil {
			return zero, err
		}
		if len(r.page) == 0 {
			return zero, port.ErrNoMoreItems
		}
	}
	item := r.page[r.pos]
	r.pos++
	r.readCount++
	return item, nil
}

func (r *PagingItemReader[T]) fetchPage(ctx context.Context) error {
	items, err := r.fetch(ctx, r.next)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("PagingItemReader '%s': failed to fetch page %d", r.name, r.next.Number), err, false, exception.IsTransient(err))
	}
	logger.Debugf("PagingItemReader '%s': page %d returned %d item(s).", r.name, r.next.Number, len(items))

	r.page = items
	r.pos = 0
	if len(items) < r.pageSize {
		r.exhausted = true
	}
	if len(items) > 0 {
		r.next = Page[T]{
			Number:  r.next.Number + 1,
			Offset:  r.next.Offset + len(items),
			Size:    r.pageSize,
			Last:    items[len(items)-1],
			HasLast: true,
		}
	}
	return nil
}

// ReadCount is the number of items returned so far.
func (r *PagingItemReader[T]) ReadCount() int { return r.readCount }

// Close releases the current page.
func (r *PagingItemReader[T]) Close(ctx context.Context) error {
	logger.Debugf("PagingItemReader '%s' closed after %d item(s).", r.name, r.readCount)
	r.page = nil
	return nil
}
