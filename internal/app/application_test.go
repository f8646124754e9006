package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	_ "github.com/tigerroll/communes/pkg/batch/adapter/storage/local"
	_ "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm/sqlite"
	config "github.com/tigerroll/communes/pkg/batch/core/config"
)

const applicationYAML = `
surfin:
  batch:
    job_name: ${COMMUNES_TEST_JOB}
  system:
    logging:
      level: WARN
  database:
    metadata:
      type: sqlite
      database: ${COMMUNES_TEST_DIR}/metadata.db
    workload:
      type: sqlite
      database: ${COMMUNES_TEST_DIR}/workload.db
      pool:
        max_open_conns: 1
  storage:
    inbox:
      type: local
      base_dir: ${COMMUNES_TEST_DIR}/inbox
    reports:
      type: local
      base_dir: ${COMMUNES_TEST_DIR}/reports
communes:
  import:
    storage: inbox
    input_file: communes.csv
`

const communesFile = `Code_commune_INSEE;Nom_commune;Code_postal;Ligne_5;Libellé_d_acheminement;coordonnees_gps
01001;L ABERGEMENT CLEMENCIAT;01400;;L ABERGEMENT CLEMENCIAT;46.1534255214,4.92611354223
01004;AMBERIEU EN BUGEY;01500;;AMBERIEU EN BUGEY;45.9608475114,5.3729257777
`

// migrationsFS is rooted like the embedded file system of cmd/communes.
var migrationsFS = os.DirFS(filepath.Join("..", "..", "cmd", "communes"))

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("COMMUNES_TEST_DIR", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inbox"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inbox", "communes.csv"), []byte(communesFile), 0o644))
	return dir
}

func runJob(t *testing.T, dir, jobName string) int {
	t.Helper()
	t.Setenv("COMMUNES_TEST_JOB", jobName)
	return RunApplication(context.Background(), filepath.Join(dir, "missing.env"), config.EmbeddedConfig(applicationYAML), migrationsFS)
}

func openDB(t *testing.T, path string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestRunApplication_ImportThenExport(t *testing.T) {
	dir := setup(t)

	require.Equal(t, ExitOK, runJob(t, dir, "importCsvJob"))
	require.Equal(t, ExitOK, runJob(t, dir, "exportCommunes"))

	var communes int64
	require.NoError(t, openDB(t, filepath.Join(dir, "workload.db")).Table("commune").Count(&communes).Error)
	assert.Equal(t, int64(2), communes)

	var runs []struct {
		JobName    string
		RunID      int64
		ExitStatus string
	}
	require.NoError(t, openDB(t, filepath.Join(dir, "metadata.db")).
		Table("batch_job_run").Select("job_name, run_id, exit_status").Order("job_name").Scan(&runs).Error)
	require.Len(t, runs, 2)
	assert.Equal(t, "exportCommunes", runs[0].JobName)
	assert.Equal(t, "importCsvJob", runs[1].JobName)
	assert.Equal(t, "COMPLETED", runs[1].ExitStatus)

	report, err := os.ReadFile(filepath.Join(dir, "reports", "communes.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "01400 - 01001 - L'Abergement Clemenciat : 46.15343 4.92611")
}

func TestRunApplication_RerunGetsNextRunID(t *testing.T) {
	dir := setup(t)

	require.Equal(t, ExitOK, runJob(t, dir, "importCsvJob"))
	require.Equal(t, ExitOK, runJob(t, dir, "importCsvJob"))

	var ids []int64
	require.NoError(t, openDB(t, filepath.Join(dir, "metadata.db")).
		Table("batch_job_run").Where("job_name = ?", "importCsvJob").Order("run_id").Pluck("run_id", &ids).Error)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestRunApplication_UnknownJobFails(t *testing.T) {
	dir := setup(t)

	assert.Equal(t, ExitFailed, runJob(t, dir, "noSuchJob"))
}

func TestRunApplication_InvalidConfigurationFails(t *testing.T) {
	code := RunApplication(context.Background(), "", config.EmbeddedConfig("surfin: [unclosed"), migrationsFS)

	assert.Equal(t, ExitFailed, code)
}
