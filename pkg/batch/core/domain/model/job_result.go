package model

import "fmt"

// JobResult is what a job run reports to its caller.
type JobResult struct {
	RunID      int64
	JobName    string
	ExitStatus ExitStatus
	FailedStep string // set only when ExitStatus is FAILED
	Reason     string // set only when ExitStatus is FAILED
}

// Completed is the result of a run that ended normally.
func Completed(jobName string, runID int64) JobResult {
	return JobResult{RunID: runID, JobName: jobName, ExitStatus: ExitStatusCompleted}
}

// CompletedWithMissingCoordinates is the result of a run that ended normally but left communes
// without coordinates.
func CompletedWithMissingCoordinates(jobName string, runID int64) JobResult {
	return JobResult{RunID: runID, JobName: jobName, ExitStatus: ExitStatusCompletedWithMissingCoordinates}
}

// Failed is the result of a run aborted by stepID.
func Failed(jobName string, runID int64, stepID, reason string) JobResult {
	return JobResult{RunID: runID, JobName: jobName, ExitStatus: ExitStatusFailed, FailedStep: stepID, Reason: reason}
}

// ResultOf derives the JobResult from a finished JobExecution.
func ResultOf(je *JobExecution) JobResult {
	switch je.ExitStatus {
	case ExitStatusFailed:
		reason := ""
		if len(je.Failures) > 0 {
			reason = je.Failures[len(je.Failures)-1]
		}
		return Failed(je.JobName, je.RunID, je.FailedStep, reason)
	case ExitStatusCompletedWithMissingCoordinates:
		return CompletedWithMissingCoordinates(je.JobName, je.RunID)
	default:
		return Completed(je.JobName, je.RunID)
	}
}

// IsFailed reports whether the run failed.
func (r JobResult) IsFailed() bool {
	return r.ExitStatus.IsFailed()
}

func (r JobResult) String() string {
	if r.IsFailed() {
		return fmt.Sprintf("%s(step=%s, reason=%s)", r.ExitStatus, r.FailedStep, r.Reason)
	}
	return r.ExitStatus.String()
}
