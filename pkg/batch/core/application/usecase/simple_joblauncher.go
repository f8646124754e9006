// Package usecase holds the application services of the batch engine: launching a job run and
// recording its outcome in the job-run repository.
package usecase

import (
	"context"
	"fmt"
	"sort"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/communes/pkg/batch/core/domain/repository"
	"github.com/tigerroll/communes/pkg/batch/core/support/incrementer"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// ParameterMasker returns a copy of the parameters that is safe to log and persist.
type ParameterMasker func(params map[string]interface{}) map[string]interface{}

// SimpleJobLauncher implements port.JobLauncher for local, synchronous execution.
type SimpleJobLauncher struct {
	jobs          map[string]port.Job
	jobRepository repository.JobRunRepository
	incrementer   *incrementer.RunIDIncrementer
	mask          ParameterMasker
}

// Verify that SimpleJobLauncher implements the port.JobLauncher interface.
var _ port.JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a SimpleJobLauncher for jobs. mask may be nil.
func NewSimpleJobLauncher(repo repository.JobRunRepository, mask ParameterMasker, jobs ...port.Job) *SimpleJobLauncher {
	if mask == nil {
		mask = func(params map[string]interface{}) map[string]interface{} { return params }
	}
	byName := make(map[string]port.Job, len(jobs))
	for _, j := range jobs {
		byName[j.JobName()] = j
	}
	return &SimpleJobLauncher{
		jobs:          byName,
		jobRepository: repo,
		incrementer:   incrementer.NewRunIDIncrementer(incrementer.DefaultRunIDParameter, repo),
		mask:          mask,
	}
}

// JobNames returns the names of the launchable jobs, sorted.
func (l *SimpleJobLauncher) JobNames() []string {
	names := make([]string, 0, len(l.jobs))
	for name := range l.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Launch runs jobName to completion with a fresh run id and returns its result.
// The error return reports launch problems only (unknown job, repository unavailable); a job
// that ran and failed is reported through the FAILED JobResult.
func (l *SimpleJobLauncher) Launch(ctx context.Context, jobName string, jobParameters model.JobParameters) (model.JobResult, error) {
	const op = "SimpleJobLauncher.Launch"

	job, ok := l.jobs[jobName]
	if !ok {
		return model.JobResult{}, exception.NewBatchErrorf(op, "unknown job '%s' (available: %v)", jobName, l.JobNames())
	}

	params, runID, err := l.incrementer.GetNext(ctx, jobName, jobParameters)
	if err != nil {
		return model.JobResult{}, exception.NewBatchError(op, fmt.Sprintf("failed to assign a run id to job '%s'", jobName), err, false, false)
	}
	masked := model.JobParameters(l.mask(params))
	logger.Infof("Launching Job '%s' (Run ID: %d). Parameters: %s", jobName, runID, masked.String())

	jobExecution := model.NewJobExecution(jobName, runID, params)
	if err := l.jobRepository.SaveJobRun(ctx, model.JobRunOf(jobExecution, masked)); err != nil {
		return model.JobResult{}, exception.NewBatchError(op, fmt.Sprintf("failed to record run %d of job '%s'", runID, jobName), err, false, false)
	}

	runErr := job.Run(ctx, jobExecution)
	if !jobExecution.Status.IsFinished() {
		if runErr != nil {
			jobExecution.MarkAsFailed("", runErr)
		} else {
			jobExecution.MarkAsCompleted("")
		}
	}

	// Recorded even when ctx was cancelled during the run.
	if err := l.jobRepository.SaveJobRun(context.WithoutCancel(ctx), model.JobRunOf(jobExecution, masked)); err != nil {
		logger.Errorf("Failed to record the end of run %d of job '%s': %v", runID, jobName, err)
	}

	result := model.ResultOf(jobExecution)
	logger.Infof("Job '%s' (Run ID: %d) result: %s", jobName, runID, result)
	return result, nil
}
