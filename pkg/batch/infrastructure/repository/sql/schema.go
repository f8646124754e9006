package sql

import (
	"time"

	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
)

// JobRunEntity is the row of batch_job_run. The table is created by the framework migrations.
type JobRunEntity struct {
	ID            uint       `gorm:"primaryKey"`
	JobName       string     `gorm:"column:job_name"`
	RunID         int64      `gorm:"column:run_id"`
	Status        string     `gorm:"column:status"`
	ExitStatus    string     `gorm:"column:exit_status"`
	Parameters    string     `gorm:"column:parameters"`
	StartTime     time.Time  `gorm:"column:start_time"`
	EndTime       *time.Time `gorm:"column:end_time"`
	FailedStep    string     `gorm:"column:failed_step"`
	FailureReason string     `gorm:"column:failure_reason"`
}

func (JobRunEntity) TableName() string {
	return "batch_job_run"
}

var (
	jobRunConflictColumns = []string{"job_name", "run_id"}
	jobRunUpdateColumns   = []string{"status", "exit_status", "parameters", "start_time", "end_time", "failed_step", "failure_reason"}
)

func fromDomainJobRun(run model.JobRun) *JobRunEntity {
	return &JobRunEntity{
		JobName:       run.JobName,
		RunID:         run.RunID,
		Status:        run.Status.String(),
		ExitStatus:    run.ExitStatus.String(),
		Parameters:    run.Parameters,
		StartTime:     run.StartTime,
		EndTime:       run.EndTime,
		FailedStep:    run.FailedStep,
		FailureReason: run.Reason,
	}
}

func toDomainJobRun(entity *JobRunEntity) model.JobRun {
	return model.JobRun{
		RunID:      entity.RunID,
		JobName:    entity.JobName,
		Status:     model.JobStatus(entity.Status),
		ExitStatus: model.ExitStatus(entity.ExitStatus),
		StartTime:  entity.StartTime,
		EndTime:    entity.EndTime,
		FailedStep: entity.FailedStep,
		Reason:     entity.FailureReason,
		Parameters: entity.Parameters,
	}
}
