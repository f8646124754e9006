// Package exception provides the error types shared by the batch engine and the helpers used by
// skip and retry policies to classify errors.
//
// Error kinds are referenced by name in configuration (for example `skippable_exceptions:
// [ValidationError]`). Each kind is registered once with RegisterErrorType and matched with
// IsErrorOfType.
package exception

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	errorRegistry = make(map[string]error)
	registryMutex sync.RWMutex
)

// RegisterErrorType registers an error kind under name.
//
// prototype is either a sentinel error (matched with errors.Is) or an instance of a custom error
// type such as `&ParseError{}` (matched by dynamic type anywhere in the wrap chain).
// It panics when name is empty or prototype is nil.
func RegisterErrorType(name string, prototype error) {
	if name == "" {
		panic("error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("cannot register nil prototype for name: %s", name))
	}
	registryMutex.Lock()
	defer registryMutex.Unlock()
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name has been registered.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is the engine's general purpose error. It records the module that raised it and
// carries explicit skippable and retryable flags that take precedence over configured lists.
type BatchError struct {
	// Module is the component that raised the error ("reader", "writer", "config", ...).
	Module string
	// Message is a short description.
	Message string
	// OriginalErr is the wrapped cause, if any.
	OriginalErr error

	isRetryable bool
	isSkippable bool
}

// NewBatchError creates a BatchError.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
	}
}

// NewBatchErrorf creates a BatchError with a formatted message.
//
// Optional trailing arguments are consumed from the end of a, in this order:
// [originalErr error], then [isRetryable bool], then [isSkippable bool]. What remains is passed
// to fmt.Sprintf.
//
//	NewBatchErrorf("reader", "line %d is malformed", 12, true, false, err)
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	var isRetryable, isSkippable bool
	args := a

	if n := len(args); n > 0 {
		if err, ok := args[n-1].(error); ok {
			originalErr = err
			args = args[:n-1]
		}
	}
	if n := len(args); n > 0 {
		if b, ok := args[n-1].(bool); ok {
			isRetryable = b
			args = args[:n-1]
		}
	}
	if n := len(args); n > 0 {
		if b, ok := args[n-1].(bool); ok {
			isSkippable = b
			args = args[:n-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, args...), originalErr, isSkippable, isRetryable)
}

// Error implements error.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *BatchError) Unwrap() error { return e.OriginalErr }

// IsRetryable reports whether the error was raised as retryable.
func (e *BatchError) IsRetryable() bool { return e.isRetryable }

// IsSkippable reports whether the error was raised as skippable.
func (e *BatchError) IsSkippable() bool { return e.isSkippable }

// IsBatchError reports whether err is, or wraps, a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// CommitError is returned when a chunk could not be written and committed. The chunk has been
// rolled back when this error is observed.
type CommitError struct {
	StepName string
	Cause    error
}

// NewCommitError wraps cause as a CommitError for stepName.
func NewCommitError(stepName string, cause error) *CommitError {
	return &CommitError{StepName: stepName, Cause: cause}
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("step '%s': chunk commit failed: %v", e.StepName, e.Cause)
}

func (e *CommitError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the underlying cause is transient.
func (e *CommitError) IsRetryable() bool { return IsTransient(e.Cause) }

// SkipLimitExceededError is returned when a step records more skips than its policy allows.
// It always fails the step.
type SkipLimitExceededError struct {
	StepName  string
	SkipLimit int
	Cause     error
}

// NewSkipLimitExceededError creates a SkipLimitExceededError.
func NewSkipLimitExceededError(stepName string, skipLimit int, cause error) *SkipLimitExceededError {
	return &SkipLimitExceededError{StepName: stepName, SkipLimit: skipLimit, Cause: cause}
}

func (e *SkipLimitExceededError) Error() string {
	return fmt.Sprintf("step '%s': skip limit of %d exceeded: %v", e.StepName, e.SkipLimit, e.Cause)
}

func (e *SkipLimitExceededError) Unwrap() error { return e.Cause }

// IsTransient reports whether err is worth retrying: a BatchError flagged retryable, an error that
// declares itself temporary or a timeout, or a broken driver connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) && be.IsRetryable() {
		return true
	}
	var retryable interface{ IsRetryable() bool }
	if errors.As(err, &retryable) && retryable.IsRetryable() {
		return true
	}
	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return errors.Is(err, driver.ErrBadConn)
}

// IsErrorOfType reports whether err matches the error kind errorTypeName.
//
// The check order is: a registered prototype (errors.Is for sentinels, dynamic type for custom
// types), then a Go type name such as "*net.OpError", then a substring of the message of any
// error in the chain.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil || errorTypeName == "" {
		return false
	}

	registryMutex.RLock()
	prototype, registered := errorRegistry[errorTypeName]
	registryMutex.RUnlock()

	if registered {
		if errors.Is(err, prototype) {
			return true
		}
		if matchesType(err, reflect.TypeOf(prototype)) {
			return true
		}
	}

	for current := err; current != nil; current = errors.Unwrap(current) {
		errType := reflect.TypeOf(current)
		if errType.String() == errorTypeName ||
			(errType.Kind() == reflect.Ptr && errType.Elem().String() == errorTypeName) {
			return true
		}
		if !registered && strings.Contains(current.Error(), errorTypeName) {
			return true
		}
	}
	return false
}

// matchesType walks the wrap chain (including joined errors) looking for an error of type target.
func matchesType(err error, target reflect.Type) bool {
	if err == nil {
		return false
	}
	if reflect.TypeOf(err) == target {
		// Sentinel prototypes of a common type (errors.New) are compared by identity only.
		if target.String() != "*errors.errorString" {
			return true
		}
	}
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if matchesType(inner, target) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return matchesType(e.Unwrap(), target)
	}
	return false
}

// ExtractErrorMessage returns a short message for err: the Message of a BatchError, else Error().
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := err.(*BatchError); ok {
		return be.Message
	}
	return err.Error()
}

// KindOf names the kind of err for metric labels and log lines: the type name of the first error
// in the chain that is not a *BatchError, without package or pointer. Plain errors are "error".
func KindOf(err error) string {
	for current := err; current != nil; current = errors.Unwrap(current) {
		if _, ok := current.(*BatchError); ok {
			continue
		}
		t := reflect.TypeOf(current)
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		if t.Name() == "" || t.Name() == "errorString" || t.Name() == "wrapError" {
			continue
		}
		return t.Name()
	}
	if err == nil {
		return ""
	}
	return "error"
}

func init() {
	RegisterErrorType("CommitError", &CommitError{})
	RegisterErrorType("SkipLimitExceeded", &SkipLimitExceededError{})
	RegisterErrorType("BatchError", &BatchError{})

	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
	RegisterErrorType("sql.ErrConnDone", sql.ErrConnDone)
	RegisterErrorType("driver.ErrBadConn", driver.ErrBadConn)
}
