// Package repository defines the persistence port for job run metadata.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
)

// ErrJobRunNotFound is returned when no run matches the lookup.
var ErrJobRunNotFound = errors.New("job run not found")

// JobRunRepository stores one row per job run, keyed by job name and run id.
type JobRunRepository interface {
	// LastRunID returns the highest run id recorded for jobName, or 0 when the job never ran.
	LastRunID(ctx context.Context, jobName string) (int64, error)
	// SaveJobRun inserts the run or updates it when (JobName, RunID) already exists.
	SaveJobRun(ctx context.Context, run model.JobRun) error
	// FindJobRun returns the run, or ErrJobRunNotFound.
	FindJobRun(ctx context.Context, jobName string, runID int64) (model.JobRun, error)
}
