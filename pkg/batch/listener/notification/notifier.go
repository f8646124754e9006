// Package notification sends a message when a job run ends.
package notification

import (
	"context"
	"fmt"
	"time"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// Notifier delivers job completion notices.
type Notifier interface {
	NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) error
}

// LogNotifier writes the completion notice to the batch logger.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NotifyJobCompletion logs the notice at INFO for completed runs and at WARN otherwise.
func (n *LogNotifier) NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) error {
	message := Message(execution)
	if execution.Status == model.BatchStatusCompleted {
		logger.Infof("%s", message)
	} else {
		logger.Warnf("%s", message)
	}
	return nil
}

var _ Notifier = (*LogNotifier)(nil)

// Message renders the completion notice of execution.
func Message(execution *model.JobExecution) string {
	duration := time.Duration(0)
	if execution.EndTime != nil {
		duration = execution.EndTime.Sub(execution.StartTime)
	}
	return fmt.Sprintf(
		"Job Notification: Job '%s' (Run ID: %d) finished with Status: %s, ExitStatus: %s. Duration: %s, Failures: %d",
		execution.JobName,
		execution.RunID,
		execution.Status,
		execution.ExitStatus,
		duration.Round(time.Millisecond),
		len(execution.Failures),
	)
}

// NotificationObserver notifies when a job run ends. Delivery failures are logged and never
// affect the run.
type NotificationObserver struct {
	port.NoOpObserver
	notifier Notifier
}

// NewNotificationObserver creates a NotificationObserver sending through notifier.
func NewNotificationObserver(notifier Notifier) *NotificationObserver {
	return &NotificationObserver{notifier: notifier}
}

func (o *NotificationObserver) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	if err := o.notifier.NotifyJobCompletion(ctx, jobExecution); err != nil {
		logger.Warnf("Failed to send the completion notice of job '%s': %v", jobExecution.JobName, err)
	}
}

var _ port.Observer = (*NotificationObserver)(nil)
