// Package sqlite registers the SQLite dialector with the gorm adaptor.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/communes/pkg/batch/adaptor/database"
	gormadaptor "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm"
)

func init() {
	gormadaptor.RegisterDialector("sqlite", func(cfg database.DatabaseConfig) (gorm.Dialector, error) {
		dsn := ConnectionString(cfg)
		if dsn == "" {
			return nil, errors.New("sqlite database path cannot be empty")
		}
		return sqlite.Open(dsn), nil
	})
}

// ConnectionString returns the database file path, or ":memory:".
func ConnectionString(c database.DatabaseConfig) string {
	return c.Database
}
