package processor

import (
	"context"
	"fmt"

	entity "github.com/tigerroll/communes/internal/domain/entity"
	"github.com/tigerroll/communes/internal/geocoding"
	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// CommuneEnrichmentProcessor fills in the coordinates of a stored commune with a geocoder.
// Communes the geocoder does not know are filtered out of the chunk.
type CommuneEnrichmentProcessor struct {
	geocoder geocoding.Geocoder
}

var (
	_ port.ItemProcessor[*entity.Commune, *entity.Commune] = (*CommuneEnrichmentProcessor)(nil)
	_ port.StepExecutionListener                           = (*CommuneEnrichmentProcessor)(nil)
)

// NewCommuneEnrichmentProcessor creates a CommuneEnrichmentProcessor.
func NewCommuneEnrichmentProcessor(geocoder geocoding.Geocoder) *CommuneEnrichmentProcessor {
	return &CommuneEnrichmentProcessor{geocoder: geocoder}
}

// Query is the geocoder query of c: its name and postal code.
func Query(c *entity.Commune) string {
	return fmt.Sprintf("%s %s", c.Nom, c.CodePostal)
}

// Process looks up the coordinates of item. A lookup error is returned as is so the retry
// policy can recognize a *geocoding.TransientNetworkError.
func (p *CommuneEnrichmentProcessor) Process(ctx context.Context, item *entity.Commune) (*entity.Commune, error) {
	if item == nil {
		return nil, exception.NewBatchError("commune_enrichment", "nil input item", nil, false, false)
	}

	lat, lon, found, err := p.geocoder.Lookup(ctx, Query(item))
	if err != nil {
		logger.Warnf("Geocoding of commune %s failed: %v", item.CodeInsee, err)
		return nil, err
	}
	if !found {
		logger.Infof("No coordinates found for commune %s (%s).", item.CodeInsee, Query(item))
		return nil, nil
	}

	enriched := *item
	enriched.Latitude = &lat
	enriched.Longitude = &lon
	logger.Debugf("Commune enriched => %s", &enriched)
	return &enriched, nil
}

// BeforeStep is a no-op.
func (p *CommuneEnrichmentProcessor) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {}

// AfterStep reports COMPLETED_WITH_MISSING_COORDINATES when a commune is still without
// coordinates, either because the geocoder did not know it or because it was skipped.
func (p *CommuneEnrichmentProcessor) AfterStep(ctx context.Context, stepExecution *model.StepExecution) model.ExitStatus {
	logger.Infof("After Step missing coordinates")
	logger.Infof("%s", stepExecution.Summary())
	if stepExecution.FilterCount+stepExecution.SkipCount() > 0 {
		return model.ExitStatusCompletedWithMissingCoordinates
	}
	return model.ExitStatusCompleted
}
