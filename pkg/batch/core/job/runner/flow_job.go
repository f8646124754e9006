// Package runner executes jobs: FlowJob walks the transition table of a model.FlowDefinition,
// running one step at a time.
package runner

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// FlowJob is a port.Job whose steps are chained by a FlowDefinition.
type FlowJob struct {
	name      string
	flow      *model.FlowDefinition
	steps     map[string]port.Step
	observers port.CompositeObserver
}

// Verify that FlowJob implements the port.Job interface.
var _ port.Job = (*FlowJob)(nil)

// NewFlowJob validates flow and creates the job. Every step declared in flow must be provided,
// and every provided step must be declared; all problems are reported in one error.
func NewFlowJob(name string, flow *model.FlowDefinition, steps []port.Step, observers ...port.Observer) (*FlowJob, error) {
	var result *multierror.Error
	if flow == nil {
		return nil, exception.NewBatchErrorf(name, "job has no flow definition")
	}
	if err := flow.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	byName := make(map[string]port.Step, len(steps))
	for _, s := range steps {
		if _, dup := byName[s.StepName()]; dup {
			result = multierror.Append(result, fmt.Errorf("job '%s': step '%s' provided twice", name, s.StepName()))
			continue
		}
		if !flow.HasStep(s.StepName()) {
			result = multierror.Append(result, fmt.Errorf("job '%s': step '%s' is not part of flow '%s'", name, s.StepName(), flow.Name))
		}
		byName[s.StepName()] = s
	}
	for _, declared := range flow.Steps() {
		if _, ok := byName[declared]; !ok {
			result = multierror.Append(result, fmt.Errorf("job '%s': no implementation for step '%s'", name, declared))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, exception.NewBatchError(name, "invalid job definition", err, false, false)
	}

	return &FlowJob{
		name:      name,
		flow:      flow,
		steps:     byName,
		observers: observers,
	}, nil
}

// JobName returns the job name.
func (j *FlowJob) JobName() string {
	return j.name
}

// StepNames returns the names of the job's steps, sorted.
func (j *FlowJob) StepNames() []string {
	names := make([]string, 0, len(j.steps))
	for name := range j.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the flow from its start step. A step that fails (returned error or FAILED exit
// status) ends the job as FAILED and its error is returned; otherwise the job completes with the
// exit status of the last step that ran.
func (j *FlowJob) Run(ctx context.Context, jobExecution *model.JobExecution) error {
	logger.Infof("Starting Job '%s' (Execution ID: %s, Run ID: %d).", j.name, jobExecution.ID, jobExecution.RunID)

	jobExecution.MarkAsStarted()
	j.observers.BeforeJob(ctx, jobExecution)

	err := j.runFlow(ctx, jobExecution)

	j.observers.AfterJob(ctx, jobExecution)
	logger.Infof("Job '%s' (Execution ID: %s) finished. Final Status: %s, Exit Status: %s",
		j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
	for _, se := range jobExecution.StepExecutions {
		logger.Debugf("  %s", se.Summary())
	}
	return err
}

func (j *FlowJob) runFlow(ctx context.Context, jobExecution *model.JobExecution) error {
	current := j.flow.StartStep
	for {
		step := j.steps[current]

		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warnf("Context cancelled, interrupting Job '%s' before step '%s': %v", j.name, current, ctxErr)
			jobExecution.MarkAsFailed(current, ctxErr)
			return ctxErr
		}

		stepExecution := jobExecution.NewStepExecution(current)
		logger.Debugf("Job '%s': executing step '%s'.", j.name, current)
		err := step.Execute(ctx, jobExecution, stepExecution)

		if err != nil || stepExecution.ExitStatus.IsFailed() {
			if err == nil {
				err = exception.NewBatchErrorf(j.name, "step '%s' ended with exit status %s", current, stepExecution.ExitStatus)
			}
			logger.Errorf("Job '%s': step '%s' failed: %v", j.name, current, err)
			if stepExecution.Status != model.BatchStatusFailed {
				stepExecution.MarkAsFailed(err)
			}
			jobExecution.MarkAsFailed(current, err)
			return err
		}

		next, ok := j.flow.NextStep(current, stepExecution.ExitStatus)
		if !ok {
			jobExecution.MarkAsCompleted(stepExecution.ExitStatus)
			return nil
		}
		logger.Debugf("Job '%s': '%s' ended with %s, transition to '%s'.", j.name, current, stepExecution.ExitStatus, next)
		current = next
	}
}
