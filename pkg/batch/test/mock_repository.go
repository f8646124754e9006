package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/communes/pkg/batch/core/domain/repository"
)

// MockJobRunRepository is a testify mock of repository.JobRunRepository.
type MockJobRunRepository struct {
	mock.Mock
}

func (m *MockJobRunRepository) LastRunID(ctx context.Context, jobName string) (int64, error) {
	args := m.Called(ctx, jobName)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJobRunRepository) SaveJobRun(ctx context.Context, run model.JobRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockJobRunRepository) FindJobRun(ctx context.Context, jobName string, runID int64) (model.JobRun, error) {
	args := m.Called(ctx, jobName, runID)
	return args.Get(0).(model.JobRun), args.Error(1)
}

var _ repository.JobRunRepository = (*MockJobRunRepository)(nil)
