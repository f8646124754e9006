package job

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
)

func asJob(f interface{}) interface{} {
	return fx.Annotate(f, fx.As(new(port.Job)), fx.ResultTags(`group:"jobs"`))
}

// Module contributes the import and export jobs to the "jobs" value group of the launcher.
var Module = fx.Options(
	fx.Provide(
		asJob(NewImportJob),
		asJob(NewExportJob),
	),
)
