// Package migration applies versioned SQL migrations with golang-migrate over an open
// database connection.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/communes/pkg/batch/adaptor/database"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// Migration history tables. Engine and application migrations are versioned independently.
const (
	FrameworkMigrationsTable = "batch_framework_migrations"
	AppMigrationsTable       = "batch_app_migrations"
)

// Migrator runs migrations against one DBConnection.
type Migrator struct {
	conn database.DBConnection
}

// NewMigrator creates a Migrator for conn.
func NewMigrator(conn database.DBConnection) *Migrator {
	return &Migrator{conn: conn}
}

// Up applies every pending migration found in dir of migrationFS. An empty dir selects the
// directory named after the connection's database type.
func (m *Migrator) Up(ctx context.Context, migrationFS fs.FS, dir, tableName string) error {
	return m.run(ctx, migrationFS, dir, tableName, "up", func(mi *migrate.Migrate) error { return mi.Up() })
}

// Down reverts every applied migration.
func (m *Migrator) Down(ctx context.Context, migrationFS fs.FS, dir, tableName string) error {
	return m.run(ctx, migrationFS, dir, tableName, "down", func(mi *migrate.Migrate) error { return mi.Down() })
}

// Version returns the current schema version recorded in tableName.
func (m *Migrator) Version(ctx context.Context, migrationFS fs.FS, dir, tableName string) (uint, bool, error) {
	var version uint
	var dirty bool
	err := m.run(ctx, migrationFS, dir, tableName, "version", func(mi *migrate.Migrate) error {
		var err error
		version, dirty, err = mi.Version()
		return err
	})
	return version, dirty, err
}

func (m *Migrator) run(ctx context.Context, migrationFS fs.FS, dir, tableName, command string, fn func(*migrate.Migrate) error) error {
	dbType := m.conn.Type()
	if dir == "" {
		dir = dbType
	}
	logger.Infof("Executing migration '%s' on '%s' (path: %s, table: %s)", command, m.conn.Name(), dir, tableName)

	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	source, err := iofs.New(migrationFS, dir)
	if err != nil {
		return fmt.Errorf("failed to create iofs source for path %s: %w", dir, err)
	}
	defer source.Close()

	driver, release, err := databaseDriver(ctx, dbType, sqlDB, tableName)
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	defer release()

	// The migrate instance is not closed: closing it would close the shared *sql.DB.
	instance, err := migrate.NewWithInstance("iofs", source, dbType, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = fn(instance)
	if errors.Is(err, migrate.ErrNoChange) || errors.Is(err, migrate.ErrNilVersion) {
		logger.Infof("Migration '%s' on '%s': no change.", command, m.conn.Name())
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration '%s' failed (db: %s, path: %s): %w", command, dbType, dir, err)
	}
	logger.Infof("Migration '%s' on '%s' completed successfully.", command, m.conn.Name())
	return nil
}

// databaseDriver builds the golang-migrate driver for dbType. The returned release function
// frees the dedicated connection taken by the mysql and postgres drivers.
func databaseDriver(ctx context.Context, dbType string, sqlDB *sql.DB, tableName string) (migratedb.Driver, func(), error) {
	noop := func() {}
	switch dbType {
	case "sqlite":
		driver, err := sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
		return driver, noop, err
	case "mysql", "postgres":
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			return nil, noop, err
		}
		release := func() {
			if err := conn.Close(); err != nil {
				logger.Warnf("Failed to release migration connection: %v", err)
			}
		}
		var driver migratedb.Driver
		if dbType == "mysql" {
			driver, err = mysql.WithConnection(ctx, conn, &mysql.Config{MigrationsTable: tableName})
		} else {
			driver, err = postgres.WithConnection(ctx, conn, &postgres.Config{MigrationsTable: tableName})
		}
		if err != nil {
			release()
			return nil, noop, err
		}
		return driver, release, nil
	default:
		return nil, noop, fmt.Errorf("unsupported database type for migration: %s", dbType)
	}
}
