// Package bootstrap prepares the databases before the first job runs: it applies the engine's
// migrations on the job repository connection and every contributed application migration.
package bootstrap

import (
	"context"
	"fmt"
	"io/fs"

	"go.uber.org/fx"

	"github.com/tigerroll/communes/pkg/batch/adaptor/database"
	"github.com/tigerroll/communes/pkg/batch/adaptor/database/migration"
	config "github.com/tigerroll/communes/pkg/batch/core/config"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// MigrationGroup is the value group application migrations are contributed to.
const MigrationGroup = "migrations"

// MigrationTarget is a set of migrations applied to one named connection. FS holds one directory
// per database type ("sqlite", "mysql", "postgres").
type MigrationTarget struct {
	Connection string
	FS         fs.FS
	// Table records the applied versions of this set.
	Table string
}

// MigrationParams defines the dependencies of RunMigrationsHook.
type MigrationParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Provider  database.DBProvider
	Targets   []MigrationTarget `group:"migrations"`
}

// FrameworkTarget is the engine's own migration set, applied on the job repository connection.
func FrameworkTarget(cfg *config.Config) MigrationTarget {
	return MigrationTarget{
		Connection: cfg.Surfin.Infrastructure.JobRepositoryDBRef,
		FS:         migration.FrameworkMigrationsFS(),
		Table:      migration.FrameworkMigrationsTable,
	}
}

// RunMigrations applies targets in order. It stops at the first failure.
func RunMigrations(ctx context.Context, provider database.DBProvider, targets ...MigrationTarget) error {
	for _, target := range targets {
		if target.Connection == "" {
			logger.Warnf("Migrations for table '%s' have no connection and are skipped.", target.Table)
			continue
		}
		conn, err := provider.GetConnection(target.Connection)
		if err != nil {
			return fmt.Errorf("failed to get DB connection '%s' for migrations: %w", target.Connection, err)
		}
		if err := migration.NewMigrator(conn).Up(ctx, target.FS, "", target.Table); err != nil {
			return fmt.Errorf("failed to execute migrations '%s' on '%s': %w", target.Table, target.Connection, err)
		}
	}
	return nil
}

// RunMigrationsHook registers an OnStart hook applying the framework migrations, then the
// application ones. Register it before any hook that launches a job.
func RunMigrationsHook(p MigrationParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			targets := append([]MigrationTarget{FrameworkTarget(p.Config)}, p.Targets...)
			logger.Infof("Running %d migration set(s).", len(targets))
			return RunMigrations(ctx, p.Provider, targets...)
		},
	})
}

// Module runs the migrations at application startup.
var Module = fx.Options(
	fx.Invoke(RunMigrationsHook),
)
