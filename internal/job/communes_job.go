// Package job assembles the import and export jobs of the communes batch from their steps.
package job

import (
	"fmt"

	"go.uber.org/fx"

	appconfig "github.com/tigerroll/communes/internal/config"
	"github.com/tigerroll/communes/internal/geocoding"
	"github.com/tigerroll/communes/internal/repository"
	"github.com/tigerroll/communes/internal/step/tasklet"
	storage "github.com/tigerroll/communes/pkg/batch/adapter/storage"
	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
	item "github.com/tigerroll/communes/pkg/batch/engine/step/item"
	retry "github.com/tigerroll/communes/pkg/batch/engine/step/retry"
	skip "github.com/tigerroll/communes/pkg/batch/engine/step/skip"
	taskletstep "github.com/tigerroll/communes/pkg/batch/engine/step/tasklet"
)

// Job names, as launched by surfin.batch.job_name.
const (
	ImportJobName = "importCsvJob"
	ExportJobName = "exportCommunes"
)

// Step names.
const (
	StepHelloWorld            = "stepHelloWorld"
	StepImportFile            = "importFile"
	StepGetMissingCoordinates = "getMissingCoordinates"
	StepExportTasklet         = "stepExportTasklet"
	StepExportFile            = "exportFile"
	StepExportSnapshot        = "exportSnapshot"
)

// Params holds what the communes jobs are built from.
type Params struct {
	fx.In

	App       appconfig.AppConfig
	Communes  repository.CommuneRepository
	TxManager tx.TransactionManager
	Geocoder  geocoding.Geocoder
	// Database is pinged by the hello world step. The check is skipped when nil.
	Database tasklet.Pinger `optional:"true"`
	// Storage serves the named connections of the import source and the export destination.
	Storage  storage.StorageProvider `optional:"true"`
	Observer port.CompositeObserver  `optional:"true"`
}

// observer returns the observer shared by a job and its steps.
func (p Params) observer() port.Observer {
	if len(p.Observer) == 0 {
		return port.NoOpObserver{}
	}
	return p.Observer
}

// connection resolves the storage connection name for the step where.
func (p Params) connection(name, where string) (storage.StorageConnection, error) {
	if p.Storage == nil {
		return nil, fmt.Errorf("%s: storage connection '%s' requested but no storage is configured", where, name)
	}
	conn, err := p.Storage.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", where, err)
	}
	return conn, nil
}

// stepOptions turns the chunk size and fault tolerance of cfg into ChunkStep options.
func stepOptions(cfg appconfig.StepConfig, observer port.Observer) ([]item.Option, error) {
	skipPolicy, err := skip.NewDefaultSkipPolicyFactory().Create(cfg.Skip.SkipLimit, cfg.Skip.SkippableExceptions)
	if err != nil {
		return nil, err
	}
	retryPolicy := retry.NewDefaultRetryPolicyFactory().Create(cfg.Retry.MaxAttempts, cfg.Retry.InitialInterval, cfg.Retry.RetryableExceptions)
	return []item.Option{
		item.WithChunkSize(cfg.ChunkSize),
		item.WithRetryPolicy(retryPolicy),
		item.WithSkipPolicy(skipPolicy),
		item.WithObserver(observer),
	}, nil
}

func taskletStep(name string, t port.Tasklet, observer port.Observer) port.Step {
	return taskletstep.NewTaskletStep(name, t, taskletstep.WithObserver(observer))
}
