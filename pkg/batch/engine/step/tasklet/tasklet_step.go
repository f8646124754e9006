// Package tasklet implements the step that runs a single port.Tasklet.
package tasklet

import (
	"context"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// Option configures a TaskletStep.
type Option func(*TaskletStep)

// WithObserver adds an observer.
func WithObserver(o port.Observer) Option {
	return func(s *TaskletStep) { s.observers = append(s.observers, o) }
}

// WithListener adds a StepExecutionListener. The tasklet itself is registered automatically
// when it implements the interface.
func WithListener(l port.StepExecutionListener) Option {
	return func(s *TaskletStep) { s.listeners = append(s.listeners, l) }
}

// TaskletStep is a port.Step running a tasklet once. The exit status returned by the tasklet
// becomes the step's exit status unless a listener overrides it.
type TaskletStep struct {
	name      string
	tasklet   port.Tasklet
	observers port.CompositeObserver
	listeners []port.StepExecutionListener
}

// NewTaskletStep creates a TaskletStep.
func NewTaskletStep(name string, tasklet port.Tasklet, opts ...Option) *TaskletStep {
	s := &TaskletStep{name: name, tasklet: tasklet}
	if l, ok := tasklet.(port.StepExecutionListener); ok {
		s.listeners = append(s.listeners, l)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StepName returns the step name.
func (s *TaskletStep) StepName() string {
	return s.name
}

// Execute runs the tasklet. Tasklets implementing Close(context.Context) error are closed
// afterwards; a close failure fails an otherwise successful step.
func (s *TaskletStep) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) (err error) {
	logger.Infof("TaskletStep '%s' executing.", s.name)

	stepExecution.MarkAsStarted()
	ctx = port.WithStepExecution(ctx, stepExecution)
	s.observers.BeforeStep(ctx, stepExecution)
	for _, l := range s.listeners {
		l.BeforeStep(ctx, stepExecution)
	}

	exitStatus, err := s.tasklet.Execute(ctx, stepExecution)
	if err != nil {
		err = exception.NewBatchError(s.name, "tasklet execution failed", err, false, false)
	}

	if closer, ok := s.tasklet.(interface{ Close(context.Context) error }); ok {
		if closeErr := closer.Close(ctx); closeErr != nil {
			logger.Errorf("TaskletStep '%s': failed to close tasklet: %v", s.name, closeErr)
			if err == nil {
				err = exception.NewBatchError(s.name, "failed to close tasklet", closeErr, false, false)
			}
		}
	}

	for _, l := range s.listeners {
		if status := l.AfterStep(ctx, stepExecution); status != "" {
			exitStatus = status
		}
	}
	if err != nil {
		stepExecution.MarkAsFailed(err)
	} else {
		stepExecution.MarkAsCompleted(exitStatus)
	}
	s.observers.AfterStep(ctx, stepExecution)

	logger.Infof("TaskletStep '%s' finished. ExitStatus: %s", s.name, stepExecution.ExitStatus)
	return err
}

var _ port.Step = (*TaskletStep)(nil)
