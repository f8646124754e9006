// Package inmemory provides an in-memory implementation of the JobRunRepository interface.
// It keeps job runs in a map, suitable for tests and for runs where job metadata does not need
// to survive the process.
package inmemory

import (
	"sync"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
)

type runKey struct {
	jobName string
	runID   int64
}

// InMemoryJobRunRepository is an in-memory implementation of the JobRunRepository interface.
type InMemoryJobRunRepository struct {
	runs map[runKey]model.JobRun
	mu   sync.RWMutex // protects runs
}

// NewInMemoryJobRunRepository creates an empty InMemoryJobRunRepository.
func NewInMemoryJobRunRepository() *InMemoryJobRunRepository {
	return &InMemoryJobRunRepository{
		runs: make(map[runKey]model.JobRun),
	}
}

// Close releases resources used by the repository. It holds none, so it always returns nil.
func (r *InMemoryJobRunRepository) Close() error {
	return nil
}
