// Package app wires the communes batch together: database and storage connections, migrations,
// telemetry, observers and jobs, and launches the configured job.
package app

import (
	"context"
	"fmt"
	"io/fs"

	"go.uber.org/fx"

	appconfig "github.com/tigerroll/communes/internal/config"
	"github.com/tigerroll/communes/internal/geocoding"
	"github.com/tigerroll/communes/internal/repository"
	"github.com/tigerroll/communes/internal/step/tasklet"
	storage "github.com/tigerroll/communes/pkg/batch/adapter/storage"
	"github.com/tigerroll/communes/pkg/batch/adaptor/database"
	gormadaptor "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm"
	"github.com/tigerroll/communes/pkg/batch/adaptor/database/migration"
	config "github.com/tigerroll/communes/pkg/batch/core/config"
	"github.com/tigerroll/communes/pkg/batch/core/config/bootstrap"
	jobrepository "github.com/tigerroll/communes/pkg/batch/core/domain/repository"
	"github.com/tigerroll/communes/pkg/batch/core/metrics"
	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
	"github.com/tigerroll/communes/pkg/batch/infrastructure/repository/sql"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// migrationsRoot is where the application migrations sit inside the embedded file system.
const migrationsRoot = "resources/migrations"

// NewDBProvider opens the connections of surfin.database on demand and closes them all when the
// application stops.
func NewDBProvider(lc fx.Lifecycle, cfg *config.Config) *gormadaptor.GormDBProvider {
	provider := gormadaptor.NewGormDBProvider(cfg)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Infof("Closing all database connections...")
			return provider.CloseAll()
		},
	})
	return provider
}

// NewWorkloadConnection returns the connection holding the commune table.
func NewWorkloadConnection(provider *gormadaptor.GormDBProvider, app appconfig.AppConfig) (*gormadaptor.GormDBAdapter, error) {
	conn, err := provider.GetGormConnection(app.Database)
	if err != nil {
		return nil, fmt.Errorf("communes.database: %w", err)
	}
	return conn, nil
}

// NewJobRunRepository stores job runs on the connection named by
// surfin.infrastructure.job_repository_db_ref.
func NewJobRunRepository(provider *gormadaptor.GormDBProvider, cfg *config.Config) (jobrepository.JobRunRepository, error) {
	ref := cfg.Surfin.Infrastructure.JobRepositoryDBRef
	conn, err := provider.GetGormConnection(ref)
	if err != nil {
		return nil, fmt.Errorf("surfin.infrastructure.job_repository_db_ref: %w", err)
	}
	return sql.NewGormJobRunRepository(conn), nil
}

// StorageParams defines the dependencies of NewStorageProvider.
type StorageParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	AppCtx    context.Context `name:"appCtx"`
}

// NewStorageProvider serves the connections of surfin.storage.
func NewStorageProvider(p StorageParams) storage.StorageProvider {
	provider := storage.NewConfiguredProvider(p.AppCtx, p.Config.Surfin.StorageConfigs)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return provider.CloseAll()
		},
	})
	return provider
}

// NewGeocoder returns the Nominatim client, timed through the metric recorder.
func NewGeocoder(app appconfig.AppConfig, recorder metrics.MetricRecorder) geocoding.Geocoder {
	return geocoding.NewTimedGeocoder(geocoding.NewNominatimClient(app.Enrichment.Geocoder), recorder)
}

// ApplicationMigrationsParams defines the dependencies of NewApplicationMigrations.
type ApplicationMigrationsParams struct {
	fx.In

	RawFS fs.FS `name:"rawApplicationMigrationsFS"`
	App   appconfig.AppConfig
}

// NewApplicationMigrations contributes the commune table migrations, applied on the workload
// connection.
func NewApplicationMigrations(p ApplicationMigrationsParams) (bootstrap.MigrationTarget, error) {
	sub, err := fs.Sub(p.RawFS, migrationsRoot)
	if err != nil {
		return bootstrap.MigrationTarget{}, fmt.Errorf("application migrations: %w", err)
	}
	return bootstrap.MigrationTarget{
		Connection: p.App.Database,
		FS:         sub,
		Table:      migration.AppMigrationsTable,
	}, nil
}

// Module provides the connections and adapters the communes jobs are built from.
var Module = fx.Options(
	fx.Provide(
		appconfig.Load,
		NewDBProvider,
		func(provider *gormadaptor.GormDBProvider) database.DBProvider { return provider },
		NewWorkloadConnection,
		func(conn *gormadaptor.GormDBAdapter) repository.CommuneRepository {
			return repository.NewGormCommuneRepository(conn)
		},
		func(conn *gormadaptor.GormDBAdapter) tx.TransactionManager {
			return gormadaptor.NewGormTransactionManager(conn)
		},
		func(conn *gormadaptor.GormDBAdapter) tasklet.Pinger { return conn },
		NewJobRunRepository,
		NewStorageProvider,
		NewGeocoder,
		fx.Annotate(NewApplicationMigrations, fx.ResultTags(`group:"`+bootstrap.MigrationGroup+`"`)),
	),
)
