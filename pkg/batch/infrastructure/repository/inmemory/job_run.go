package inmemory

import (
	"context"
	"sort"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/communes/pkg/batch/core/domain/repository"
)

// LastRunID returns the highest run id stored for jobName, or 0.
func (r *InMemoryJobRunRepository) LastRunID(ctx context.Context, jobName string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last int64
	for key := range r.runs {
		if key.jobName == jobName && key.runID > last {
			last = key.runID
		}
	}
	return last, nil
}

// SaveJobRun inserts run or replaces the run with the same job name and run id.
func (r *InMemoryJobRunRepository) SaveJobRun(ctx context.Context, run model.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run.EndTime != nil {
		end := *run.EndTime
		run.EndTime = &end
	}
	r.runs[runKey{jobName: run.JobName, runID: run.RunID}] = run
	return nil
}

// FindJobRun returns a copy of the stored run, or repository.ErrJobRunNotFound.
func (r *InMemoryJobRunRepository) FindJobRun(ctx context.Context, jobName string, runID int64) (model.JobRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runKey{jobName: jobName, runID: runID}]
	if !ok {
		return model.JobRun{}, repository.ErrJobRunNotFound
	}
	return run, nil
}

// FindJobRuns returns every run of jobName ordered by run id.
func (r *InMemoryJobRunRepository) FindJobRuns(ctx context.Context, jobName string) []model.JobRun {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.JobRun
	for key, run := range r.runs {
		if key.jobName == jobName {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

var _ repository.JobRunRepository = (*InMemoryJobRunRepository)(nil)
