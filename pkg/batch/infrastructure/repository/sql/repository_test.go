package sql_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"

	"github.com/tigerroll/communes/pkg/batch/adaptor/database"
	gormadaptor "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm"
	_ "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm/sqlite"
	"github.com/tigerroll/communes/pkg/batch/adaptor/database/migration"
	config "github.com/tigerroll/communes/pkg/batch/core/config"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/communes/pkg/batch/core/domain/repository"
	sqlrepo "github.com/tigerroll/communes/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/communes/pkg/batch/support/util/exception"
)

func migratedSQLite(t *testing.T) *gormadaptor.GormDBAdapter {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Surfin.AdaptorConfigs["metadata"] = map[string]interface{}{
		"type":     "sqlite",
		"database": ":memory:",
		"pool":     map[string]interface{}{"max_open_conns": 1},
	}
	provider := gormadaptor.NewGormDBProvider(cfg)
	t.Cleanup(func() { _ = provider.CloseAll() })
	conn, err := provider.GetGormConnection("metadata")
	require.NoError(t, err)
	require.NoError(t, migration.NewMigrator(conn).Up(context.Background(), migration.FrameworkMigrationsFS(), "", migration.FrameworkMigrationsTable))
	return conn
}

func TestGormJobRunRepository_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := sqlrepo.NewGormJobRunRepository(migratedSQLite(t))

	last, err := repo.LastRunID(ctx, "importCommunes")
	require.NoError(t, err)
	assert.Zero(t, last)

	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	run := model.JobRun{
		RunID:      1,
		JobName:    "importCommunes",
		Status:     model.BatchStatusStarting,
		ExitStatus: model.ExitStatusUnknown,
		StartTime:  start,
		Parameters: "{password=********, run.id=1}",
	}
	require.NoError(t, repo.SaveJobRun(ctx, run))
	require.NoError(t, repo.SaveJobRun(ctx, model.JobRun{RunID: 4, JobName: "exportCommunes", Status: model.BatchStatusCompleted, ExitStatus: model.ExitStatusCompleted, StartTime: start}))

	end := start.Add(90 * time.Second)
	run.Status = model.BatchStatusFailed
	run.ExitStatus = model.ExitStatusFailed
	run.EndTime = &end
	run.FailedStep = "importFile"
	run.Reason = "disk full"
	require.NoError(t, repo.SaveJobRun(ctx, run))

	got, err := repo.FindJobRun(ctx, "importCommunes", 1)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, got.Status)
	assert.Equal(t, model.ExitStatusFailed, got.ExitStatus)
	assert.Equal(t, "importFile", got.FailedStep)
	assert.Equal(t, "disk full", got.Reason)
	assert.Equal(t, "{password=********, run.id=1}", got.Parameters)
	assert.WithinDuration(t, start, got.StartTime, time.Second)
	require.NotNil(t, got.EndTime)
	assert.WithinDuration(t, end, *got.EndTime, time.Second)

	last, err = repo.LastRunID(ctx, "importCommunes")
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)
	last, err = repo.LastRunID(ctx, "exportCommunes")
	require.NoError(t, err)
	assert.Equal(t, int64(4), last)

	_, err = repo.FindJobRun(ctx, "importCommunes", 2)
	assert.ErrorIs(t, err, repository.ErrJobRunNotFound)
}

func newMockRepository(t *testing.T) (*sqlrepo.GormJobRunRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gormadaptor.OpenDialector(postgres.New(postgres.Config{Conn: sqlDB}), database.PoolConfig{}, "silent")
	require.NoError(t, err)
	conn, err := gormadaptor.NewGormDBAdapter(gormDB, "postgres", "metadata")
	require.NoError(t, err)
	return sqlrepo.NewGormJobRunRepository(conn), mock
}

func TestGormJobRunRepository_LastRunIDQuery(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(run_id), 0) FROM "batch_job_run" WHERE job_name = $1`)).
		WithArgs("importCommunes").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(41))

	last, err := repo.LastRunID(context.Background(), "importCommunes")
	require.NoError(t, err)
	assert.Equal(t, int64(41), last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormJobRunRepository_MissingTable(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(run_id), 0) FROM "batch_job_run"`)).
		WillReturnError(errors.New(`ERROR: relation "batch_job_run" does not exist (SQLSTATE 42P01)`))

	_, err := repo.LastRunID(context.Background(), "importCommunes")
	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err))
	assert.Contains(t, err.Error(), "run the framework migrations first")
	assert.False(t, exception.IsTransient(err))
}

func TestGormJobRunRepository_FindJobRunNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "batch_job_run" WHERE job_name = $1 AND run_id = $2`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_name", "run_id"}))

	_, err := repo.FindJobRun(context.Background(), "exportCommunes", 9)
	assert.ErrorIs(t, err, repository.ErrJobRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
