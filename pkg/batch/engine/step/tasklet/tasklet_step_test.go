package tasklet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	batchtest "github.com/tigerroll/communes/pkg/batch/test"
)

type fakeTasklet struct {
	exit     model.ExitStatus
	err      error
	closeErr error
	closed   bool
	ran      bool
}

func (f *fakeTasklet) Execute(context.Context, *model.StepExecution) (model.ExitStatus, error) {
	f.ran = true
	return f.exit, f.err
}

func (f *fakeTasklet) Close(context.Context) error {
	f.closed = true
	return f.closeErr
}

func execute(t *testing.T, step *TaskletStep) (*model.StepExecution, error) {
	t.Helper()
	je := model.NewJobExecution("job", 1, nil)
	se := je.NewStepExecution(step.StepName())
	return se, step.Execute(context.Background(), je, se)
}

func TestTaskletStep_Completes(t *testing.T) {
	tl := &fakeTasklet{}
	obs := &batchtest.RecordingObserver{}

	se, err := execute(t, NewTaskletStep("helloWorld", tl, WithObserver(obs)))

	require.NoError(t, err)
	assert.True(t, tl.ran)
	assert.True(t, tl.closed)
	assert.Equal(t, model.ExitStatusCompleted, se.ExitStatus, "an empty tasklet status means COMPLETED")
	assert.Equal(t, []string{"beforeStep:helloWorld", "afterStep:helloWorld:COMPLETED"}, obs.Events)
}

func TestTaskletStep_PropagatesCustomExitStatus(t *testing.T) {
	se, err := execute(t, NewTaskletStep("check", &fakeTasklet{exit: model.ExitStatusNoOp}))
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, se.ExitStatus)
}

func TestTaskletStep_Failures(t *testing.T) {
	se, err := execute(t, NewTaskletStep("helloWorld", &fakeTasklet{err: errors.New("database unreachable")}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unreachable")
	assert.Equal(t, model.BatchStatusFailed, se.Status)

	se, err = execute(t, NewTaskletStep("helloWorld", &fakeTasklet{closeErr: errors.New("close failed")}))
	require.Error(t, err)
	assert.Equal(t, model.ExitStatusFailed, se.ExitStatus)
}
