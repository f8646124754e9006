package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	config "github.com/tigerroll/communes/pkg/batch/core/config"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	"github.com/tigerroll/communes/pkg/batch/core/job/runner"
	"github.com/tigerroll/communes/pkg/batch/infrastructure/repository/inmemory"
	batchtest "github.com/tigerroll/communes/pkg/batch/test"
)

func newJob(t *testing.T, name string, step *batchtest.StubStep) port.Job {
	t.Helper()
	flow := model.NewFlowDefinition(name, step.Name).AddStep(step.Name)
	job, err := runner.NewFlowJob(name, flow, []port.Step{step})
	require.NoError(t, err)
	return job
}

func TestSimpleJobLauncher_AssignsIncreasingRunIDs(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRunRepository()
	cfg := config.NewConfig()
	launcher := NewSimpleJobLauncher(repo, cfg.MaskParameters, newJob(t, "exportCommunes", &batchtest.StubStep{Name: "exportFile"}))

	first, err := launcher.Launch(ctx, "exportCommunes", model.JobParameters{"password": "s3cret"})
	require.NoError(t, err)
	second, err := launcher.Launch(ctx, "exportCommunes", nil)
	require.NoError(t, err)

	assert.Equal(t, model.Completed("exportCommunes", 1), first)
	assert.Equal(t, model.Completed("exportCommunes", 2), second)

	run, err := repo.FindJobRun(ctx, "exportCommunes", 1)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, run.Status)
	assert.NotNil(t, run.EndTime)
	assert.Contains(t, run.Parameters, "password=********")
	assert.Contains(t, run.Parameters, "run.id=1")
}

func TestSimpleJobLauncher_FailedJobIsAResultNotAnError(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRunRepository()
	launcher := NewSimpleJobLauncher(repo, nil, newJob(t, "importCommunes", &batchtest.StubStep{Name: "importFile", Err: errors.New("boom")}))

	result, err := launcher.Launch(ctx, "importCommunes", nil)
	require.NoError(t, err)
	assert.Equal(t, model.Failed("importCommunes", 1, "importFile", "boom"), result)

	run, err := repo.FindJobRun(ctx, "importCommunes", 1)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusFailed, run.ExitStatus)
	assert.Equal(t, "importFile", run.FailedStep)
}

func TestSimpleJobLauncher_UnknownJob(t *testing.T) {
	launcher := NewSimpleJobLauncher(inmemory.NewInMemoryJobRunRepository(), nil)
	_, err := launcher.Launch(context.Background(), "nope", nil)
	assert.ErrorContains(t, err, "unknown job 'nope'")
}

func TestSimpleJobLauncher_RepositoryFailures(t *testing.T) {
	ctx := context.Background()
	step := &batchtest.StubStep{Name: "a"}

	repo := &batchtest.MockJobRunRepository{}
	repo.On("LastRunID", mock.Anything, "j").Return(int64(0), errors.New("db down")).Once()
	launcher := NewSimpleJobLauncher(repo, nil, newJob(t, "j", step))
	_, err := launcher.Launch(ctx, "j", nil)
	assert.Error(t, err)
	assert.Zero(t, step.Runs)

	repo = &batchtest.MockJobRunRepository{}
	repo.On("LastRunID", mock.Anything, "j").Return(int64(41), nil)
	repo.On("SaveJobRun", mock.Anything, mock.MatchedBy(func(r model.JobRun) bool { return r.Status == model.BatchStatusStarting })).Return(nil).Once()
	repo.On("SaveJobRun", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	launcher = NewSimpleJobLauncher(repo, nil, newJob(t, "j", step))

	result, err := launcher.Launch(ctx, "j", nil)
	require.NoError(t, err)
	assert.Equal(t, model.Completed("j", 42), result)
	assert.Equal(t, 1, step.Runs)
	repo.AssertExpectations(t)
}
