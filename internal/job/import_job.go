package job

import (
	entity "github.com/tigerroll/communes/internal/domain/entity"
	"github.com/tigerroll/communes/internal/step/processor"
	"github.com/tigerroll/communes/internal/step/reader"
	"github.com/tigerroll/communes/internal/step/tasklet"
	"github.com/tigerroll/communes/internal/step/writer"
	storage "github.com/tigerroll/communes/pkg/batch/adapter/storage"
	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	runner "github.com/tigerroll/communes/pkg/batch/core/job/runner"
	item "github.com/tigerroll/communes/pkg/batch/engine/step/item"
)

// ImportFlow is the transition table of the import job: the hello world step, the file import,
// and the enrichment step when the import left communes without coordinates.
func ImportFlow() *model.FlowDefinition {
	return model.NewFlowDefinition(ImportJobName, StepHelloWorld).
		AddStep(StepHelloWorld).
		AddStep(StepImportFile).
		AddStep(StepGetMissingCoordinates).
		Next(StepHelloWorld, StepImportFile).
		On(StepImportFile, model.ExitStatusCompletedWithMissingCoordinates, StepGetMissingCoordinates)
}

// NewImportJob builds the importCsvJob.
func NewImportJob(p Params) (*runner.FlowJob, error) {
	observer := p.observer()

	importFile, err := newImportFileStep(p, observer)
	if err != nil {
		return nil, err
	}
	getMissingCoordinates, err := newGetMissingCoordinatesStep(p, observer)
	if err != nil {
		return nil, err
	}

	steps := []port.Step{
		taskletStep(StepHelloWorld, tasklet.NewHelloWorldTasklet(p.Database), observer),
		importFile,
		getMissingCoordinates,
	}
	return runner.NewFlowJob(ImportJobName, ImportFlow(), steps, observer)
}

func newImportFileStep(p Params, observer port.Observer) (port.Step, error) {
	cfg := p.App.Import

	var conn storage.StorageExecutor
	if cfg.Storage != "" {
		c, err := p.connection(cfg.Storage, StepImportFile)
		if err != nil {
			return nil, err
		}
		conn = c
	}

	opts, err := stepOptions(cfg.Step, observer)
	if err != nil {
		return nil, err
	}
	return item.NewChunkStep[*entity.CommuneCSV, *entity.Commune](
		StepImportFile,
		reader.NewCommuneCSVReader(reader.CommuneFileSource(cfg, conn), cfg),
		processor.NewCommuneTransformer(),
		writer.NewCommuneWriter(p.Communes, cfg.Step.ChunkSize),
		p.TxManager,
		opts...,
	), nil
}

func newGetMissingCoordinatesStep(p Params, observer port.Observer) (port.Step, error) {
	cfg := p.App.Enrichment

	opts, err := stepOptions(cfg.Step, observer)
	if err != nil {
		return nil, err
	}
	return item.NewChunkStep[*entity.Commune, *entity.Commune](
		StepGetMissingCoordinates,
		reader.NewMissingCoordinatesReader(p.Communes, cfg.Step.PageSize),
		processor.NewCommuneEnrichmentProcessor(p.Geocoder),
		writer.NewCoordinatesWriter(p.Communes, cfg.Step.ChunkSize),
		p.TxManager,
		opts...,
	), nil
}
