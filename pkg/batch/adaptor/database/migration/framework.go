package migration

import (
	"embed"
	"io/fs"

	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

//go:embed resource
var rawFrameworkMigrationFS embed.FS

// FrameworkMigrationsFS returns the engine's own migrations (the batch_job_run table), one
// directory per database type.
func FrameworkMigrationsFS() fs.FS {
	subFS, err := fs.Sub(rawFrameworkMigrationFS, "resource")
	if err != nil {
		logger.Fatalf("Failed to open framework migration FS: %v", err)
	}
	return subFS
}
