package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	entity "github.com/tigerroll/communes/internal/domain/entity"
	"github.com/tigerroll/communes/internal/repository"
	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
)

// MockCommuneRepository is a testify mock of repository.CommuneRepository.
type MockCommuneRepository struct {
	mock.Mock
}

func (m *MockCommuneRepository) Upsert(ctx context.Context, t tx.Tx, communes []*entity.Commune) error {
	return m.Called(ctx, t, communes).Error(0)
}

func (m *MockCommuneRepository) UpdateCoordinates(ctx context.Context, t tx.Tx, communes []*entity.Commune) error {
	return m.Called(ctx, t, communes).Error(0)
}

func (m *MockCommuneRepository) FindMissingCoordinates(ctx context.Context, afterID uint, limit int) ([]*entity.Commune, error) {
	args := m.Called(ctx, afterID, limit)
	communes, _ := args.Get(0).([]*entity.Commune)
	return communes, args.Error(1)
}

func (m *MockCommuneRepository) FindAllSorted(ctx context.Context, offset, limit int) ([]*entity.Commune, error) {
	args := m.Called(ctx, offset, limit)
	communes, _ := args.Get(0).([]*entity.Commune)
	return communes, args.Error(1)
}

func (m *MockCommuneRepository) CountDistinctPostalCodes(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCommuneRepository) CountDistinctNames(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCommuneRepository) CountMissingCoordinates(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

var _ repository.CommuneRepository = (*MockCommuneRepository)(nil)
