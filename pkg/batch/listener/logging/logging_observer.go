// Package logging provides an observer that writes every job, step, chunk and item notification
// to the batch logger.
package logging

import (
	"context"
	"strings"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// ParameterMasker returns a copy of the parameters that is safe to log.
type ParameterMasker func(params map[string]interface{}) map[string]interface{}

// LoggingObserver logs lifecycle notifications. Job and step boundaries are logged at INFO,
// chunks and records at DEBUG, skips and retries at WARN.
type LoggingObserver struct {
	mask ParameterMasker
}

// NewLoggingObserver creates a LoggingObserver. mask may be nil.
func NewLoggingObserver(mask ParameterMasker) *LoggingObserver {
	if mask == nil {
		mask = func(params map[string]interface{}) map[string]interface{} { return params }
	}
	return &LoggingObserver{mask: mask}
}

func (l *LoggingObserver) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	params := model.JobParameters(l.mask(jobExecution.Parameters))
	logger.Infof("Job '%s' (Run ID: %d, ID: %s) starting. Params: %s",
		jobExecution.JobName, jobExecution.RunID, jobExecution.ID, params.String())
}

func (l *LoggingObserver) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	if jobExecution.Status == model.BatchStatusFailed {
		logger.Errorf("Job '%s' (Run ID: %d) failed at step '%s'. Failures: %s",
			jobExecution.JobName, jobExecution.RunID, jobExecution.FailedStep, strings.Join(jobExecution.Failures, "; "))
		return
	}
	logger.Infof("Job '%s' (Run ID: %d) ended. Status: %s, ExitStatus: %s",
		jobExecution.JobName, jobExecution.RunID, jobExecution.Status, jobExecution.ExitStatus)
}

func (l *LoggingObserver) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("Step '%s' (ID: %s) starting.", stepExecution.StepName, stepExecution.ID)
}

func (l *LoggingObserver) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("Step '%s' ended. Status: %s, ExitStatus: %s, Read: %d, Written: %d, Filtered: %d, Skipped: %d",
		stepExecution.StepName, stepExecution.Status, stepExecution.ExitStatus,
		stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.FilterCount, stepExecution.SkipCount())
}

func (l *LoggingObserver) BeforeChunkCommit(ctx context.Context, stepExecution *model.StepExecution, chunk port.ChunkEvent) {
	logger.Debugf("Step '%s': committing chunk %d (%d items).", stepExecution.StepName, chunk.Index, chunk.Size)
}

func (l *LoggingObserver) AfterChunkCommit(ctx context.Context, stepExecution *model.StepExecution, chunk port.ChunkEvent) {
	if chunk.Err != nil {
		logger.Warnf("Step '%s': chunk %d %s: %v", stepExecution.StepName, chunk.Index, chunk.State, chunk.Err)
		return
	}
	logger.Debugf("Step '%s': chunk %d %s. Read: %d, Written: %d",
		stepExecution.StepName, chunk.Index, chunk.State, stepExecution.ReadCount, stepExecution.WriteCount)
}

func (l *LoggingObserver) BeforeRecord(ctx context.Context, stepExecution *model.StepExecution, item interface{}) {
	if logger.IsDebugEnabled() {
		logger.Debugf("Step '%s': processing %+v", stepExecution.StepName, item)
	}
}

func (l *LoggingObserver) AfterRecord(ctx context.Context, stepExecution *model.StepExecution, item interface{}, result interface{}, err error) {
	if err != nil {
		logger.Debugf("Step '%s': processing of %+v failed: %v", stepExecution.StepName, item, err)
	}
}

// OnSkip logs "Skip in Read", "Skip in Process" or "Skip in Write" with the item and its reason.
func (l *LoggingObserver) OnSkip(ctx context.Context, stepExecution *model.StepExecution, record model.SkipRecord) {
	switch record.Phase {
	case model.SkipPhaseRead:
		logger.Warnf("Skip in Read: step '%s', %s: %v", stepExecution.StepName, exception.KindOf(record.Reason), record.Reason)
	case model.SkipPhaseProcess:
		logger.Warnf("Skip in Process: step '%s', item %+v, %s: %v", stepExecution.StepName, record.Item, exception.KindOf(record.Reason), record.Reason)
	case model.SkipPhaseWrite:
		logger.Warnf("Skip in Write: step '%s', item %+v, %s: %v", stepExecution.StepName, record.Item, exception.KindOf(record.Reason), record.Reason)
	}
}

func (l *LoggingObserver) OnRetry(ctx context.Context, stepExecution *model.StepExecution, event port.RetryEvent) {
	logger.Warnf("Retry in %s: step '%s', attempt %d failed: %v", event.Phase, stepExecution.StepName, event.Attempt, event.Err)
}

var _ port.Observer = (*LoggingObserver)(nil)
