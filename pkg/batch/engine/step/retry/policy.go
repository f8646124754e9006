// Package retry decides which failures are retried and how long to wait between attempts.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/communes/pkg/batch/support/util/exception"
)

// RetryPolicy classifies errors as retryable and bounds the number of attempts.
type RetryPolicy interface {
	// ShouldRetry reports whether err is of a retryable kind.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before attempt+1, given that attempt (starting at 1)
	// just failed.
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the total number of attempts, including the first one.
	GetMaxAttempts() int
}

// DefaultRetryPolicyFactory creates RetryPolicy instances from configuration.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create returns a fixed backoff policy: at most maxAttempts attempts, waiting initialInterval
// milliseconds between them. maxAttempts below 1 is treated as 1 (no retry).
func (f *DefaultRetryPolicyFactory) Create(maxAttempts int, initialInterval int, retryableExceptions []string) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if initialInterval < 0 {
		initialInterval = 0
	}
	return &defaultRetryPolicy{
		maxAttempts:         maxAttempts,
		interval:            time.Duration(initialInterval) * time.Millisecond,
		retryableExceptions: retryableExceptions,
	}
}

// NeverRetry returns a policy with a single attempt.
func NeverRetry() RetryPolicy {
	return &defaultRetryPolicy{maxAttempts: 1}
}

type defaultRetryPolicy struct {
	maxAttempts         int
	interval            time.Duration
	retryableExceptions []string
}

func (p *defaultRetryPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry checks the BatchError retryable flag first, then the configured error kinds.
// Cancellation of the run context is never retried.
func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil || p.maxAttempts <= 1 {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var be *exception.BatchError
	if errors.As(err, &be) && be.IsRetryable() {
		return true
	}
	for _, typeName := range p.retryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

func (p *defaultRetryPolicy) GetBackoffInterval(int) time.Duration {
	return p.interval
}

var _ RetryPolicy = (*defaultRetryPolicy)(nil)

// Sleep waits for d or until ctx is done, whichever comes first. It returns ctx.Err() when the
// wait was interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
