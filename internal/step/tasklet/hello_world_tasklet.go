// Package tasklet holds the single-shot steps of the communes jobs.
package tasklet

import (
	"context"
	"fmt"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// Pinger checks that a database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HelloWorldTasklet opens the import job: it greets and fails the job early when the commune
// database cannot be reached.
type HelloWorldTasklet struct {
	db Pinger
}

var _ port.Tasklet = (*HelloWorldTasklet)(nil)

// NewHelloWorldTasklet creates a HelloWorldTasklet. db may be nil to skip the database check.
func NewHelloWorldTasklet(db Pinger) *HelloWorldTasklet {
	return &HelloWorldTasklet{db: db}
}

func (t *HelloWorldTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	logger.Infof("Hello World from step '%s'!", stepExecution.StepName)
	if t.db == nil {
		return model.ExitStatusCompleted, nil
	}
	if err := t.db.Ping(ctx); err != nil {
		return model.ExitStatusFailed, exception.NewBatchError("hello_world", fmt.Sprintf("step '%s': database is not reachable", stepExecution.StepName), err, false, false)
	}
	logger.Debugf("Database connection checked.")
	return model.ExitStatusCompleted, nil
}
