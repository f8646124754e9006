package model

// JobStatus is the lifecycle state of a job or step execution.
type JobStatus string

const (
	BatchStatusStarting  JobStatus = "STARTING"
	BatchStatusStarted   JobStatus = "STARTED"
	BatchStatusCompleted JobStatus = "COMPLETED"
	BatchStatusFailed    JobStatus = "FAILED"
	BatchStatusStopped   JobStatus = "STOPPED"
	BatchStatusUnknown   JobStatus = "UNKNOWN"
)

// String returns the string representation of the JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsFinished reports whether the status is terminal.
func (s JobStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped:
		return true
	default:
		return false
	}
}

// ExitStatus is the outcome code a step or job reports when it ends.
// Flow transitions are keyed on it.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
	ExitStatusNoOp      ExitStatus = "NOOP"

	// ExitStatusCompletedWithMissingCoordinates is reported by steps that leave communes
	// without coordinates. It is informational and never a failure.
	ExitStatusCompletedWithMissingCoordinates ExitStatus = "COMPLETED_WITH_MISSING_COORDINATES"
)

// String returns the ExitStatus as a string.
func (s ExitStatus) String() string {
	return string(s)
}

// IsFailed reports whether the exit status aborts a flow.
func (s ExitStatus) IsFailed() bool {
	return s == ExitStatusFailed
}

// ChunkState is the phase of the chunk currently handled by a chunk-oriented step.
type ChunkState int

const (
	ChunkFilling ChunkState = iota
	ChunkProcessing
	ChunkCommitting
	ChunkCommitted
	ChunkRolledBack
)

func (s ChunkState) String() string {
	switch s {
	case ChunkFilling:
		return "FILLING"
	case ChunkProcessing:
		return "PROCESSING"
	case ChunkCommitting:
		return "COMMITTING"
	case ChunkCommitted:
		return "COMMITTED"
	case ChunkRolledBack:
		return "ROLLED_BACK"
	default:
		return "UNKNOWN"
	}
}
