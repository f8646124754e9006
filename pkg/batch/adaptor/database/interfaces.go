package database

import (
	"context"
	"database/sql"

	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
)

// DBConnection is an open, named database connection.
type DBConnection interface {
	tx.TxExecutor

	// Type returns the database type ("sqlite", "mysql", "postgres").
	Type() string
	// Name returns the connection name (e.g., "metadata").
	Name() string
	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error
	// GetSQLDB returns the underlying *sql.DB.
	GetSQLDB() (*sql.DB, error)
	// IsTableNotExistError reports whether err means a table does not exist.
	IsTableNotExistError(err error) bool
	Close() error
}

// DBProvider opens named connections from configuration and keeps them for reuse.
type DBProvider interface {
	// GetConnection returns the connection name, opening it on first use.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes every connection opened by the provider.
	CloseAll() error
}
