// Package skip decides which item failures a chunk-oriented step may skip.
package skip

import (
	"errors"

	"github.com/tigerroll/communes/pkg/batch/support/util/exception"
)

// UnlimitedSkips is the skip limit that never fails a step.
const UnlimitedSkips = -1

// SkipPolicy classifies item errors as skippable and enforces the skip limit of a step.
// The skip count itself is owned by the StepExecution, so one policy can serve every run of a
// step.
type SkipPolicy interface {
	// ShouldSkip reports whether err is of a skippable kind.
	ShouldSkip(err error) bool
	// CanSkip reports whether one more skip is allowed after skipCount skips.
	CanSkip(skipCount int) bool
	// GetSkipLimit returns the configured limit: UnlimitedSkips, 0 for none, or n.
	GetSkipLimit() int
}

// DefaultSkipPolicyFactory creates SkipPolicy instances from configuration.
type DefaultSkipPolicyFactory struct{}

// NewDefaultSkipPolicyFactory creates a DefaultSkipPolicyFactory.
func NewDefaultSkipPolicyFactory() *DefaultSkipPolicyFactory {
	return &DefaultSkipPolicyFactory{}
}

// Create returns a policy skipping the registered error kinds in skippableExceptions (and any
// BatchError raised as skippable) at most skipLimit times. A skipLimit below -1 is rejected.
func (f *DefaultSkipPolicyFactory) Create(skipLimit int, skippableExceptions []string) (SkipPolicy, error) {
	if skipLimit < UnlimitedSkips {
		return nil, exception.NewBatchErrorf("skip", "invalid skip limit %d (use -1 for unlimited)", skipLimit)
	}
	return &defaultSkipPolicy{
		skipLimit:           skipLimit,
		skippableExceptions: skippableExceptions,
	}, nil
}

// NeverSkip returns a policy that skips nothing.
func NeverSkip() SkipPolicy {
	return &defaultSkipPolicy{}
}

type defaultSkipPolicy struct {
	skipLimit           int
	skippableExceptions []string
}

// ShouldSkip checks the BatchError skippable flag first, then the configured error kinds.
// SkipLimitExceeded is never skippable.
func (p *defaultSkipPolicy) ShouldSkip(err error) bool {
	if err == nil || exception.IsErrorOfType(err, "SkipLimitExceeded") {
		return false
	}
	var be *exception.BatchError
	if errors.As(err, &be) && be.IsSkippable() {
		return true
	}
	for _, typeName := range p.skippableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

func (p *defaultSkipPolicy) CanSkip(skipCount int) bool {
	if p.skipLimit == UnlimitedSkips {
		return true
	}
	return skipCount < p.skipLimit
}

func (p *defaultSkipPolicy) GetSkipLimit() int {
	return p.skipLimit
}

var _ SkipPolicy = (*defaultSkipPolicy)(nil)
