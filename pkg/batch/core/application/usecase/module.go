package usecase

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	config "github.com/tigerroll/communes/pkg/batch/core/config"
	repository "github.com/tigerroll/communes/pkg/batch/core/domain/repository"
)

// LauncherParams collects the jobs contributed to the "jobs" value group.
type LauncherParams struct {
	fx.In

	Jobs          []port.Job `group:"jobs"`
	JobRepository repository.JobRunRepository
	Config        *config.Config
}

// NewJobLauncherFromParams builds the SimpleJobLauncher from the Fx graph, masking parameters
// with the configured secret keys.
func NewJobLauncherFromParams(p LauncherParams) *SimpleJobLauncher {
	return NewSimpleJobLauncher(p.JobRepository, p.Config.MaskParameters, p.Jobs...)
}

// Module is the Fx module providing the JobLauncher.
var Module = fx.Options(
	fx.Provide(NewJobLauncherFromParams),
	fx.Provide(func(launcher *SimpleJobLauncher) port.JobLauncher { return launcher }),
)
