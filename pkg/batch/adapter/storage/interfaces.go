// Package storage defines the object storage abstraction the report and snapshot writers write
// through. Backends (a local directory or a GCS bucket) register a ConnectionFactory under their
// type; import them for their side effect.
package storage

import (
	"context"
	"io"
)

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload writes data to objectName in bucket. An empty bucket selects the configured one.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens objectName. The caller closes the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object whose name starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is one named storage connection.
type StorageConnection interface {
	StorageExecutor

	Type() string
	Name() string
	Close() error
}

// StorageProvider hands out named connections and owns their lifecycle.
type StorageProvider interface {
	GetConnection(name string) (StorageConnection, error)
	CloseAll() error
}
