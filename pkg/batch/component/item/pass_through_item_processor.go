// Package item provides small ItemProcessor building blocks.
package item

import (
	"context"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// PassThroughItemProcessor returns each item unchanged.
type PassThroughItemProcessor[T any] struct{}

// NewPassThroughItemProcessor creates a PassThroughItemProcessor.
func NewPassThroughItemProcessor[T any]() *PassThroughItemProcessor[T] {
	return &PassThroughItemProcessor[T]{}
}

// Process returns item as is.
func (p *PassThroughItemProcessor[T]) Process(ctx context.Context, item T) (T, error) {
	if logger.IsDebugEnabled() {
		logger.Debugf("PassThroughItemProcessor: Processing item: %+v", item)
	}
	return item, nil
}

// MappingItemProcessor converts items with a function that cannot fail.
type MappingItemProcessor[I, O any] struct {
	mapFn func(I) O
}

// NewMappingItemProcessor creates a MappingItemProcessor.
func NewMappingItemProcessor[I, O any](mapFn func(I) O) *MappingItemProcessor[I, O] {
	return &MappingItemProcessor[I, O]{mapFn: mapFn}
}

// Process returns mapFn(item).
func (p *MappingItemProcessor[I, O]) Process(ctx context.Context, item I) (O, error) {
	return p.mapFn(item), nil
}

var (
	_ port.ItemProcessor[any, any] = (*PassThroughItemProcessor[any])(nil)
	_ port.ItemProcessor[any, any] = (*MappingItemProcessor[any, any])(nil)
)
