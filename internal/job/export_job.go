package job

import (
	entity "github.com/tigerroll/communes/internal/domain/entity"
	"github.com/tigerroll/communes/internal/report"
	"github.com/tigerroll/communes/internal/step/reader"
	"github.com/tigerroll/communes/internal/step/tasklet"
	"github.com/tigerroll/communes/internal/step/writer"
	storage "github.com/tigerroll/communes/pkg/batch/adapter/storage"
	batchitem "github.com/tigerroll/communes/pkg/batch/component/item"
	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	runner "github.com/tigerroll/communes/pkg/batch/core/job/runner"
	item "github.com/tigerroll/communes/pkg/batch/engine/step/item"
)

// ExportFlow is the transition table of the export job. The snapshot step follows the report
// when withSnapshot is set.
func ExportFlow(withSnapshot bool) *model.FlowDefinition {
	flow := model.NewFlowDefinition(ExportJobName, StepExportTasklet).
		AddStep(StepExportTasklet).
		AddStep(StepExportFile).
		Next(StepExportTasklet, StepExportFile)
	if withSnapshot {
		flow.AddStep(StepExportSnapshot).Next(StepExportFile, StepExportSnapshot)
	}
	return flow
}

// NewExportJob builds the exportCommunes job. The Parquet snapshot step is part of the job only
// when communes.export.snapshot.object_name is set.
func NewExportJob(p Params) (*runner.FlowJob, error) {
	observer := p.observer()
	cfg := p.App.Export

	conn, err := p.connection(cfg.Storage, StepExportFile)
	if err != nil {
		return nil, err
	}

	exportFile, err := newExportFileStep(p, conn, observer)
	if err != nil {
		return nil, err
	}
	steps := []port.Step{
		taskletStep(StepExportTasklet, tasklet.NewExportTasklet(), observer),
		exportFile,
	}

	withSnapshot := cfg.Snapshot.ObjectName != ""
	if withSnapshot {
		exportSnapshot, err := newExportSnapshotStep(p, conn, observer)
		if err != nil {
			return nil, err
		}
		steps = append(steps, exportSnapshot)
	}
	return runner.NewFlowJob(ExportJobName, ExportFlow(withSnapshot), steps, observer)
}

func newExportFileStep(p Params, conn storage.StorageExecutor, observer port.Observer) (port.Step, error) {
	cfg := p.App.Export

	opts, err := stepOptions(cfg.Step, observer)
	if err != nil {
		return nil, err
	}
	return item.NewChunkStep[*entity.Commune, *entity.Commune](
		StepExportFile,
		reader.NewSortedCommuneReader(p.Communes, cfg.Step.PageSize),
		batchitem.NewPassThroughItemProcessor[*entity.Commune](),
		writer.NewReportWriter(conn, cfg, report.NewAssembler(p.Communes)),
		p.TxManager,
		opts...,
	), nil
}

func newExportSnapshotStep(p Params, conn storage.StorageExecutor, observer port.Observer) (port.Step, error) {
	cfg := p.App.Export

	snapshotWriter, err := writer.NewSnapshotWriter(conn, cfg)
	if err != nil {
		return nil, err
	}
	opts, err := stepOptions(cfg.Step, observer)
	if err != nil {
		return nil, err
	}
	return item.NewChunkStep[*entity.Commune, entity.CommuneSnapshot](
		StepExportSnapshot,
		reader.NewSortedCommuneReader(p.Communes, cfg.Step.PageSize),
		batchitem.NewMappingItemProcessor(entity.SnapshotOf),
		snapshotWriter,
		p.TxManager,
		opts...,
	), nil
}
