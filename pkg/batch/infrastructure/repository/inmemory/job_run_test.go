package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/communes/pkg/batch/core/domain/repository"
)

func TestInMemoryJobRunRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRunRepository()
	defer repo.Close()

	last, err := repo.LastRunID(ctx, "importCommunes")
	require.NoError(t, err)
	assert.Zero(t, last)

	run := model.JobRun{RunID: 1, JobName: "importCommunes", Status: model.BatchStatusStarted, StartTime: time.Now()}
	require.NoError(t, repo.SaveJobRun(ctx, run))
	require.NoError(t, repo.SaveJobRun(ctx, model.JobRun{RunID: 7, JobName: "exportCommunes"}))

	end := time.Now()
	run.Status = model.BatchStatusFailed
	run.ExitStatus = model.ExitStatusFailed
	run.FailedStep = "importFile"
	run.EndTime = &end
	require.NoError(t, repo.SaveJobRun(ctx, run))

	got, err := repo.FindJobRun(ctx, "importCommunes", 1)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, got.Status)
	assert.Equal(t, "importFile", got.FailedStep)
	require.NotNil(t, got.EndTime)

	last, err = repo.LastRunID(ctx, "importCommunes")
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)

	assert.Len(t, repo.FindJobRuns(ctx, "importCommunes"), 1)
}

func TestInMemoryJobRunRepository_NotFound(t *testing.T) {
	_, err := NewInMemoryJobRunRepository().FindJobRun(context.Background(), "importCommunes", 3)
	assert.ErrorIs(t, err, repository.ErrJobRunNotFound)
}
