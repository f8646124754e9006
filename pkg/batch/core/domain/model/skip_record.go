package model

import "time"

// SkipPhase tells which part of the chunk loop produced a skip.
type SkipPhase string

const (
	SkipPhaseRead    SkipPhase = "read"
	SkipPhaseProcess SkipPhase = "process"
	SkipPhaseWrite   SkipPhase = "write"
)

// SkipRecord describes one item excluded from a step's output. It lives only as long as the
// StepExecution that holds it.
type SkipRecord struct {
	StepName   string
	Phase      SkipPhase
	Item       interface{} // nil for read skips when the reader could not produce an item.
	Reason     error
	OccurredAt time.Time
}
