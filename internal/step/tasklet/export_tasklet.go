package tasklet

import (
	"context"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// ExportTasklet announces the export of the commune table.
type ExportTasklet struct{}

var (
	_ port.Tasklet               = (*ExportTasklet)(nil)
	_ port.StepExecutionListener = (*ExportTasklet)(nil)
)

// NewExportTasklet creates an ExportTasklet.
func NewExportTasklet() *ExportTasklet {
	return &ExportTasklet{}
}

func (t *ExportTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	logger.Infof("Export de la table COMMUNE")
	return model.ExitStatusCompleted, nil
}

func (t *ExportTasklet) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("Lancement de l'export de la table COMMUNE en fichier txt")
}

func (t *ExportTasklet) AfterStep(ctx context.Context, stepExecution *model.StepExecution) model.ExitStatus {
	logger.Infof("Export de la table COMMUNE terminé")
	logger.Infof("%s", stepExecution.Summary())
	return model.ExitStatusCompleted
}
