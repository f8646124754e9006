package main

import (
	"context"
	"embed"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/communes/internal/app"
	_ "github.com/tigerroll/communes/pkg/batch/adapter/storage/gcs"
	_ "github.com/tigerroll/communes/pkg/batch/adapter/storage/local"
	_ "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm/mysql"
	_ "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm/postgres"
	_ "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm/sqlite"
	"github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// embeddedConfig is the application.yaml the configuration is loaded from.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// applicationMigrationsFS bundles the commune table migrations, one directory per database type.
//
//go:embed all:resources/migrations
var applicationMigrationsFS embed.FS

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGINT/SIGTERM cancel the run: the current chunk rolls back and the job fails.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the job...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	code := app.RunApplication(ctx, envFilePath, embeddedConfig, applicationMigrationsFS)
	cancel()
	os.Exit(code)
}
