package test

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	storage "github.com/tigerroll/communes/pkg/batch/adapter/storage"
)

// MockStorage is a testify mock of storage.StorageConnection.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	return m.Called(ctx, bucket, objectName, data, contentType).Error(0)
}

func (m *MockStorage) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, objectName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockStorage) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	return m.Called(ctx, bucket, prefix, fn).Error(0)
}

func (m *MockStorage) DeleteObject(ctx context.Context, bucket, objectName string) error {
	return m.Called(ctx, bucket, objectName).Error(0)
}

func (m *MockStorage) Type() string { return "mock" }

func (m *MockStorage) Name() string { return "mock" }

func (m *MockStorage) Close() error { return nil }

var _ storage.StorageConnection = (*MockStorage)(nil)
