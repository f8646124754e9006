package gorm_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"

	"github.com/tigerroll/communes/pkg/batch/adaptor/database"
	gormadaptor "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm"
	_ "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm/sqlite"
	config "github.com/tigerroll/communes/pkg/batch/core/config"
)

type place struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"uniqueIndex"`
	Name string
}

func (place) TableName() string { return "place" }

func openSQLite(t *testing.T) *gormadaptor.GormDBAdapter {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Surfin.AdaptorConfigs["metadata"] = map[string]interface{}{
		"type":     "sqlite",
		"database": ":memory:",
		"pool":     map[string]interface{}{"max_open_conns": "1"},
	}
	provider := gormadaptor.NewGormDBProvider(cfg)
	t.Cleanup(func() { _ = provider.CloseAll() })

	conn, err := provider.GetGormConnection("metadata")
	require.NoError(t, err)
	require.NoError(t, conn.GormDB().AutoMigrate(&place{}))
	return conn
}

func TestGormTransactionManager_UpsertCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	tm := gormadaptor.NewGormTransactionManager(conn)

	txA, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = txA.ExecuteUpsert(ctx, &[]place{{Code: "01001", Name: "a"}, {Code: "01002", Name: "b"}}, "place", []string{"code"}, []string{"name"})
	require.NoError(t, err)
	require.NoError(t, tm.Commit(txA))

	txB, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = txB.ExecuteUpsert(ctx, &[]place{{Code: "01001", Name: "renamed"}}, "place", []string{"code"}, []string{"name"})
	require.NoError(t, err)
	require.NoError(t, tm.Rollback(txB))

	txC, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = txC.ExecuteUpsert(ctx, &[]place{{Code: "01002", Name: "updated"}}, "place", []string{"code"}, []string{"name"})
	require.NoError(t, err)
	require.NoError(t, tm.Commit(txC))

	var rows []place
	require.NoError(t, conn.GormDB().Order("code").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].Name)
	assert.Equal(t, "updated", rows[1].Name)
}

func TestGormDBAdapter_UpsertDoNothing(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	_, err := conn.ExecuteUpsert(ctx, &place{Code: "2A004", Name: "Ajaccio"}, "", []string{"code"}, nil)
	require.NoError(t, err)
	_, err = conn.ExecuteUpsert(ctx, &place{Code: "2A004", Name: "ignored"}, "", []string{"code"}, nil)
	require.NoError(t, err)

	var got place
	require.NoError(t, conn.GormDB().Where("code = ?", "2A004").First(&got).Error)
	assert.Equal(t, "Ajaccio", got.Name)
	assert.NoError(t, conn.Ping(ctx))
}

func TestGormDBAdapter_IsTableNotExistError(t *testing.T) {
	conn := openSQLite(t)
	err := conn.GormDB().Table("missing").Find(&[]place{}).Error
	require.Error(t, err)
	assert.True(t, conn.IsTableNotExistError(err))
	assert.False(t, conn.IsTableNotExistError(errors.New("UNIQUE constraint failed")))
	assert.False(t, conn.IsTableNotExistError(nil))
}

func TestGormDBAdapter_PostgresUpsertStatement(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gormadaptor.OpenDialector(postgres.New(postgres.Config{Conn: sqlDB}), database.PoolConfig{}, "silent")
	require.NoError(t, err)
	conn, err := gormadaptor.NewGormDBAdapter(db, "postgres", "workload")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "place" ("code","name") VALUES ($1,$2) ON CONFLICT ("code") DO UPDATE SET "name"="excluded"."name" RETURNING "id"`)).
		WithArgs("75056", "Paris").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	tm := gormadaptor.NewGormTransactionManager(conn)
	ctx := context.Background()
	tx, err := tm.Begin(ctx)
	require.NoError(t, err)
	n, err := tx.ExecuteUpsert(ctx, &place{Code: "75056", Name: "Paris"}, "place", []string{"code"}, []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, tm.Commit(tx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDBProvider_UnknownConnectionAndType(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Surfin.AdaptorConfigs["odd"] = map[string]interface{}{"type": "oracle"}
	provider := gormadaptor.NewGormDBProvider(cfg)

	_, err := provider.GetConnection("missing")
	assert.ErrorContains(t, err, "not found")
	_, err = provider.GetConnection("odd")
	assert.ErrorContains(t, err, "no dialector registered for database type: oracle")
	assert.NoError(t, provider.CloseAll())
}
