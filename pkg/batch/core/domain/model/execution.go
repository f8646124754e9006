package model

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// NewID returns a new random execution identifier.
func NewID() string {
	return uuid.New().String()
}

// JobParameters are the identifying parameters of one job run.
type JobParameters map[string]interface{}

// NewJobParameters returns an empty JobParameters.
func NewJobParameters() JobParameters {
	return JobParameters{}
}

// Put stores value under key.
func (jp JobParameters) Put(key string, value interface{}) {
	jp[key] = value
}

// GetString returns the string value of key.
func (jp JobParameters) GetString(key string) (string, bool) {
	v, ok := jp[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt64 returns the integer value of key, accepting any integer type.
func (jp JobParameters) GetInt64(key string) (int64, bool) {
	switch v := jp[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// String renders the parameters with sorted keys.
func (jp JobParameters) String() string {
	keys := make([]string, 0, len(jp))
	for k := range jp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, jp[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// JobExecution is one run of a job.
type JobExecution struct {
	ID             string
	RunID          int64
	JobName        string
	Parameters     JobParameters
	Status         JobStatus
	ExitStatus     ExitStatus
	StartTime      time.Time
	EndTime        *time.Time
	Failures       []string
	FailedStep     string
	StepExecutions []*StepExecution
}

// NewJobExecution creates a JobExecution in STARTING state.
func NewJobExecution(jobName string, runID int64, params JobParameters) *JobExecution {
	if params == nil {
		params = NewJobParameters()
	}
	return &JobExecution{
		ID:         NewID(),
		RunID:      runID,
		JobName:    jobName,
		Parameters: params,
		Status:     BatchStatusStarting,
		ExitStatus: ExitStatusUnknown,
		StartTime:  time.Now(),
	}
}

// MarkAsStarted moves the execution to STARTED.
func (je *JobExecution) MarkAsStarted() {
	je.Status = BatchStatusStarted
	je.StartTime = time.Now()
}

// MarkAsCompleted ends the execution with the given exit status.
func (je *JobExecution) MarkAsCompleted(exitStatus ExitStatus) {
	if exitStatus == "" {
		exitStatus = ExitStatusCompleted
	}
	je.Status = BatchStatusCompleted
	je.ExitStatus = exitStatus
	now := time.Now()
	je.EndTime = &now
}

// MarkAsFailed ends the execution as FAILED because of stepName.
func (je *JobExecution) MarkAsFailed(stepName string, err error) {
	je.Status = BatchStatusFailed
	je.ExitStatus = ExitStatusFailed
	je.FailedStep = stepName
	now := time.Now()
	je.EndTime = &now
	je.AddFailureException(err)
}

// AddFailureException records err once.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	msg := exception.ExtractErrorMessage(err)
	for _, existing := range je.Failures {
		if existing == msg {
			return
		}
	}
	je.Failures = append(je.Failures, msg)
}

// NewStepExecution creates the StepExecution for stepName and attaches it to the job.
func (je *JobExecution) NewStepExecution(stepName string) *StepExecution {
	se := &StepExecution{
		ID:           NewID(),
		StepName:     stepName,
		JobExecution: je,
		Status:       BatchStatusStarting,
		ExitStatus:   ExitStatusUnknown,
		StartTime:    time.Now(),
		Accumulator:  NewAccumulator(),
	}
	je.StepExecutions = append(je.StepExecutions, se)
	return se
}

// StepExecution is one run of a step inside a JobExecution. All counters are owned by it.
type StepExecution struct {
	ID           string
	StepName     string
	JobExecution *JobExecution
	Status       JobStatus
	ExitStatus   ExitStatus
	StartTime    time.Time
	EndTime      *time.Time
	Failures     []string

	ReadCount        int
	WriteCount       int
	FilterCount      int
	CommitCount      int
	RollbackCount    int
	RetryCount       int
	SkipReadCount    int
	SkipProcessCount int
	SkipWriteCount   int

	// Accumulator holds step-scoped counters maintained by readers, processors and writers.
	Accumulator *Accumulator

	mu          sync.Mutex
	skipRecords []SkipRecord
}

// NewStepExecution creates a detached StepExecution, mainly for tests of single components.
func NewStepExecution(stepName string) *StepExecution {
	return NewJobExecution("", 0, nil).NewStepExecution(stepName)
}

// MarkAsStarted moves the step to STARTED.
func (se *StepExecution) MarkAsStarted() {
	se.Status = BatchStatusStarted
	se.StartTime = time.Now()
}

// MarkAsCompleted ends the step with exitStatus (COMPLETED when empty).
func (se *StepExecution) MarkAsCompleted(exitStatus ExitStatus) {
	if exitStatus == "" {
		exitStatus = ExitStatusCompleted
	}
	se.Status = BatchStatusCompleted
	se.ExitStatus = exitStatus
	now := time.Now()
	se.EndTime = &now
}

// MarkAsFailed ends the step as FAILED and records err.
func (se *StepExecution) MarkAsFailed(err error) {
	se.Status = BatchStatusFailed
	se.ExitStatus = ExitStatusFailed
	now := time.Now()
	se.EndTime = &now
	se.AddFailureException(err)
}

// AddFailureException records err once.
func (se *StepExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	msg := exception.ExtractErrorMessage(err)
	for _, existing := range se.Failures {
		if existing == msg {
			logger.Debugf("Skipped adding duplicate error '%s' to StepExecution (ID: %s).", msg, se.ID)
			return
		}
	}
	se.Failures = append(se.Failures, msg)
}

// AddSkipRecord stores rec and bumps the skip counter of its phase.
func (se *StepExecution) AddSkipRecord(rec SkipRecord) {
	se.mu.Lock()
	defer se.mu.Unlock()
	if rec.StepName == "" {
		rec.StepName = se.StepName
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now()
	}
	switch rec.Phase {
	case SkipPhaseRead:
		se.SkipReadCount++
	case SkipPhaseProcess:
		se.SkipProcessCount++
	case SkipPhaseWrite:
		se.SkipWriteCount++
	}
	se.skipRecords = append(se.skipRecords, rec)
}

// SkipRecords returns a copy of the skip records collected so far.
func (se *StepExecution) SkipRecords() []SkipRecord {
	se.mu.Lock()
	defer se.mu.Unlock()
	out := make([]SkipRecord, len(se.skipRecords))
	copy(out, se.skipRecords)
	return out
}

// SkipCount is the total number of skipped items across phases.
func (se *StepExecution) SkipCount() int {
	return se.SkipReadCount + se.SkipProcessCount + se.SkipWriteCount
}

// Summary renders the step counters on one line.
func (se *StepExecution) Summary() string {
	return fmt.Sprintf(
		"StepExecution: name=%s, status=%s, exitStatus=%s, readCount=%d, filterCount=%d, writeCount=%d, "+
			"readSkipCount=%d, processSkipCount=%d, writeSkipCount=%d, commitCount=%d, rollbackCount=%d, retryCount=%d",
		se.StepName, se.Status, se.ExitStatus, se.ReadCount, se.FilterCount, se.WriteCount,
		se.SkipReadCount, se.SkipProcessCount, se.SkipWriteCount, se.CommitCount, se.RollbackCount, se.RetryCount,
	)
}
