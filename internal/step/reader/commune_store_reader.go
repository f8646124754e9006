package reader

import (
	"context"

	entity "github.com/tigerroll/communes/internal/domain/entity"
	"github.com/tigerroll/communes/internal/repository"
	batchreader "github.com/tigerroll/communes/pkg/batch/component/step/reader"
)

// NewMissingCoordinatesReader reads the communes without coordinates in id order.
//
// Pages are keyed on the id of the last commune read, so communes updated by the step do not
// shift the following pages and communes the geocoder does not know are read only once.
func NewMissingCoordinatesReader(repo repository.CommuneRepository, pageSize int) *batchreader.PagingItemReader[*entity.Commune] {
	return batchreader.NewPagingItemReader("missingCoordinatesReader", pageSize,
		func(ctx context.Context, p batchreader.Page[*entity.Commune]) ([]*entity.Commune, error) {
			var afterID uint
			if p.HasLast && p.Last != nil {
				afterID = p.Last.ID
			}
			return repo.FindMissingCoordinates(ctx, afterID, p.Size)
		})
}

// NewSortedCommuneReader reads every commune ordered by postal code, INSEE code and id.
func NewSortedCommuneReader(repo repository.CommuneRepository, pageSize int) *batchreader.PagingItemReader[*entity.Commune] {
	return batchreader.NewPagingItemReader("sortedCommuneReader", pageSize,
		func(ctx context.Context, p batchreader.Page[*entity.Commune]) ([]*entity.Commune, error) {
			return repo.FindAllSorted(ctx, p.Offset, p.Size)
		})
}
