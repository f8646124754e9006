package model

import "time"

// JobRun is the persisted summary of one job run.
type JobRun struct {
	RunID      int64
	JobName    string
	Status     JobStatus
	ExitStatus ExitStatus
	StartTime  time.Time
	EndTime    *time.Time
	FailedStep string
	Reason     string
	// Parameters is the rendered, masked job parameters.
	Parameters string
}

// JobRunOf snapshots je. The parameters are rendered from params, which callers pass already
// masked.
func JobRunOf(je *JobExecution, params JobParameters) JobRun {
	result := ResultOf(je)
	return JobRun{
		RunID:      je.RunID,
		JobName:    je.JobName,
		Status:     je.Status,
		ExitStatus: je.ExitStatus,
		StartTime:  je.StartTime,
		EndTime:    je.EndTime,
		FailedStep: result.FailedStep,
		Reason:     result.Reason,
		Parameters: params.String(),
	}
}
