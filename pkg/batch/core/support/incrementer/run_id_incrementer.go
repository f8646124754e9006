// Package incrementer assigns run ids to job launches.
package incrementer

import (
	"context"
	"fmt"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/communes/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// DefaultRunIDParameter is the job parameter the run id is stored under.
const DefaultRunIDParameter = "run.id"

// RunIDIncrementer gives every launch of a job the run id following the last persisted one.
type RunIDIncrementer struct {
	name string
	repo repository.JobRunRepository
}

// NewRunIDIncrementer creates a RunIDIncrementer storing the run id under the parameter name.
func NewRunIDIncrementer(name string, repo repository.JobRunRepository) *RunIDIncrementer {
	if name == "" {
		name = DefaultRunIDParameter
	}
	return &RunIDIncrementer{name: name, repo: repo}
}

// GetNext returns a copy of params with the next run id of jobName added, and the run id.
func (i *RunIDIncrementer) GetNext(ctx context.Context, jobName string, params model.JobParameters) (model.JobParameters, int64, error) {
	last, err := i.repo.LastRunID(ctx, jobName)
	if err != nil {
		return nil, 0, exception.NewBatchErrorf("incrementer", "failed to read the last run id of job '%s'", jobName, err)
	}
	next := last + 1

	nextParams := model.NewJobParameters()
	for k, v := range params {
		nextParams.Put(k, v)
	}
	nextParams.Put(i.name, next)
	logger.Debugf("RunIDIncrementer: job '%s' run id %d -> %d.", jobName, last, next)
	return nextParams, next, nil
}

func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[name=%s]", i.name)
}
