// Package writer builds the item writers of the communes jobs.
package writer

import (
	entity "github.com/tigerroll/communes/internal/domain/entity"
	"github.com/tigerroll/communes/internal/repository"
	batchwriter "github.com/tigerroll/communes/pkg/batch/component/step/writer"
)

// NewCommuneWriter upserts imported communes on their INSEE code, in statements of at most
// bulkSize rows.
func NewCommuneWriter(repo repository.CommuneRepository, bulkSize int) *batchwriter.UpsertItemWriter[*entity.Commune] {
	return batchwriter.NewUpsertItemWriterFunc[*entity.Commune]("communeWriter", bulkSize, entity.Commune{}.TableName(), repo.Upsert)
}

// NewCoordinatesWriter stores the coordinates found by the enrichment step.
func NewCoordinatesWriter(repo repository.CommuneRepository, bulkSize int) *batchwriter.UpsertItemWriter[*entity.Commune] {
	return batchwriter.NewUpsertItemWriterFunc[*entity.Commune]("coordinatesWriter", bulkSize, entity.Commune{}.TableName(), repo.UpdateCoordinates)
}
