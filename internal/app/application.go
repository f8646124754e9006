package app

import (
	"context"
	"io/fs"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/communes/internal/job"
	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	usecase "github.com/tigerroll/communes/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/communes/pkg/batch/core/config"
	"github.com/tigerroll/communes/pkg/batch/core/config/bootstrap"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	inframetrics "github.com/tigerroll/communes/pkg/batch/infrastructure/metrics"
	batchlistener "github.com/tigerroll/communes/pkg/batch/listener"
	listenermetrics "github.com/tigerroll/communes/pkg/batch/listener/metrics"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// Exit codes of the process.
const (
	ExitOK     = 0
	ExitFailed = 1
)

// stopTimeout bounds the OnStop hooks, including the wait for a running job to finish.
const stopTimeout = 30 * time.Second

// JobRun carries the outcome of the launched job out of the Fx application.
type JobRun struct {
	done     chan struct{}
	exitCode int
}

func newJobRun() *JobRun {
	return &JobRun{done: make(chan struct{}), exitCode: ExitFailed}
}

// RunApplication builds the application from embeddedConfig (overridden by envFilePath and the
// environment), launches surfin.batch.job_name and returns the process exit code: 0 for
// COMPLETED and COMPLETED_WITH_MISSING_COORDINATES, 1 for FAILED or when the application cannot
// start. migrationsFS holds the application migrations under resources/migrations.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig, migrationsFS fs.FS, opts ...fx.Option) int {
	var run *JobRun
	app := fx.New(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
			fx.Annotate(migrationsFS, fx.As(new(fs.FS)), fx.ResultTags(`name:"rawApplicationMigrationsFS"`)),
			fx.Annotate(appCtx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`)),
		),
		fx.Provide(config.NewConfigProvider),
		fx.Provide(newJobRun),

		logger.Module,
		inframetrics.Module,
		batchlistener.Module,
		Module,
		bootstrap.Module,
		job.Module,
		usecase.Module,
		fx.Options(opts...),

		fx.Invoke(fx.Annotate(startJobExecution, fx.ParamTags(
			"",              // lc fx.Lifecycle
			"",              // shutdowner fx.Shutdowner
			"",              // launcher port.JobLauncher
			"",              // cfg *config.Config
			"",              // prom *inframetrics.PrometheusRecorder
			"",              // async *listenermetrics.AsyncMetricRecorder
			"",              // run *JobRun
			`name:"appCtx"`, // appCtx context.Context
		))),
		fx.Populate(&run),
	)
	if err := app.Err(); err != nil {
		logger.Errorf("Failed to build the application: %v", err)
		return ExitFailed
	}

	startCtx, cancelStart := context.WithTimeout(appCtx, app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		logger.Errorf("Failed to start the application: %v", err)
		return ExitFailed
	}

	<-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Errorf("Failed to stop the application cleanly: %v", err)
	}
	return run.exitCode
}

// startJobExecution registers the hook that launches the configured job once every OnStart hook
// before it (migrations included) has run.
func startJobExecution(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	launcher port.JobLauncher,
	cfg *config.Config,
	prom *inframetrics.PrometheusRecorder,
	async *listenermetrics.AsyncMetricRecorder,
	run *JobRun,
	appCtx context.Context,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(run.done)
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Job execution panicked: %v", r)
						run.exitCode = ExitFailed
					}
					if err := shutdowner.Shutdown(fx.ExitCode(run.exitCode)); err != nil {
						logger.Errorf("Failed to request shutdown: %v", err)
					}
				}()
				run.exitCode = launchJob(appCtx, launcher, cfg, prom, async)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-run.done:
			case <-ctx.Done():
				logger.Warnf("Job '%s' did not finish before the stop timeout.", cfg.Surfin.Batch.JobName)
			}
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}

// launchJob runs the configured job and pushes the run metrics when a Pushgateway is configured.
func launchJob(
	ctx context.Context,
	launcher port.JobLauncher,
	cfg *config.Config,
	prom *inframetrics.PrometheusRecorder,
	async *listenermetrics.AsyncMetricRecorder,
) int {
	jobName := cfg.Surfin.Batch.JobName
	result, err := launcher.Launch(ctx, jobName, model.NewJobParameters())
	if err != nil {
		logger.Errorf("Failed to launch job '%s': %v", jobName, err)
		return ExitFailed
	}

	if url := cfg.Surfin.Telemetry.PushgatewayURL; url != "" {
		async.Close()
		if err := inframetrics.Push(context.WithoutCancel(ctx), url, jobName, prom.GetRegistry()); err != nil {
			logger.Warnf("%v", err)
		}
	}

	if result.IsFailed() {
		return ExitFailed
	}
	return ExitOK
}
