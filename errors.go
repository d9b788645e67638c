// Package promise error taxonomy, ES2022-cause-chain compatible, grounded
// on the teacher's errors.go (TypeError/RangeError/TimeoutError/
// AggregateError/PanicError), extended with the remaining wire-visible
// kinds spec §6.4 requires: CancelledError, InvalidArgumentError,
// RejectionWrapError.
package promise

import (
	"errors"
	"fmt"
)

// TypeError mirrors JavaScript's TypeError: used for an empty [Race], a task
// factory that panics or returns a nil promise, and an [Await] value that
// does not match the requested type. Adoption cycles use [CycleError].
type TypeError struct {
	Cause   error
	Message string
}

func (e *TypeError) Error() string {
	if e.Message == "" {
		return "type error"
	}
	return e.Message
}

func (e *TypeError) Unwrap() error { return e.Cause }

// RangeError mirrors JavaScript's RangeError.
type RangeError struct {
	Cause   error
	Message string
}

func (e *RangeError) Error() string {
	if e.Message == "" {
		return "range error"
	}
	return e.Message
}

func (e *RangeError) Unwrap() error { return e.Cause }

// TimeoutError is raised by [Timeout] when the wrapped promise is still
// pending after the given duration.
type TimeoutError struct {
	Duration string
	Cause    error
}

func (e *TimeoutError) Error() string {
	if e.Duration == "" {
		return "operation timed out"
	}
	return fmt.Sprintf("operation timed out after %s", e.Duration)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// CancelledError is surfaced when code awaits a cancelled promise, or when
// a combinator (All/Race/Any/Concurrent/Batch) rejects because one of its
// inputs was cancelled. Key carries the originating input's key, when the
// rejection is attributable to a specific element.
type CancelledError struct {
	Key    any
	Reason string
}

func (e *CancelledError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "the operation was cancelled"
	}
	if e.Key != nil {
		return fmt.Sprintf("%v (key %v)", reason, e.Key)
	}
	return reason
}

// Is implements errors.Is support: any two *CancelledError values match,
// regardless of key, matching the cancellation-kind equality spec §6.4
// expects callers to check.
func (e *CancelledError) Is(target error) bool {
	_, ok := target.(*CancelledError)
	return ok
}

// InvalidArgumentError is the rejection reason of the promise returned for
// a precondition violation: concurrency <= 0, batch_size <= 0,
// timeout <= 0.
type InvalidArgumentError struct {
	Argument string
	Message  string
}

func (e *InvalidArgumentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("invalid argument: %s", e.Argument)
}

// RejectionWrapError wraps a non-error rejection reason so that reject(r)
// always carries a throwable/error-kind value (spec invariant: reason
// always carries a throwable). The original reason is preserved verbatim.
type RejectionWrapError struct {
	Reason any
}

func (e *RejectionWrapError) Error() string {
	return fmt.Sprintf("rejected with non-error value: %v", e.Reason)
}

// wrapReason ensures a rejection reason satisfies error, wrapping non-error
// values in a [RejectionWrapError] as spec §4.2/§6.4 requires.
func wrapReason(r any) error {
	if r == nil {
		return &RejectionWrapError{Reason: nil}
	}
	if err, ok := r.(error); ok {
		return err
	}
	return &RejectionWrapError{Reason: r}
}

// AggregateError carries multiple underlying errors: produced by [Any]
// when every input rejects or cancels, and by [Promise.Cancel] when more
// than one on-cancel handler panics.
type AggregateError struct {
	Message string
	Errors  []error
}

func (e *AggregateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "all operations failed"
}

// AggregateErrorCause returns the first error in Errors, if any, for
// ES2022 .cause compatibility.
func (e *AggregateError) AggregateErrorCause() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unwrap enables errors.Is/errors.As to check against every contained error.
func (e *AggregateError) Unwrap() []error { return e.Errors }

// Is matches any *AggregateError, regardless of contents.
func (e *AggregateError) Is(target error) bool {
	var aggTarget *AggregateError
	return errors.As(target, &aggTarget)
}

// CycleError is raised when a promise is resolved directly with itself. A
// cycle through other promises (A adopts B, B adopts A) is not detected;
// such promises stay pending.
type CycleError struct {
	Message string
}

func (e *CycleError) Error() string {
	if e.Message == "" {
		return "chaining cycle detected"
	}
	return e.Message
}

// Is matches any *CycleError.
func (e *CycleError) Is(target error) bool {
	_, ok := target.(*CycleError)
	return ok
}

// PanicError wraps a recovered panic value so it can flow through the
// promise rejection path as an error.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
