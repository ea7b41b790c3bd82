package api

import (
	"errors"
	"fmt"
)

// ErrHandleDiscarded is returned when a caller acquires the lock of a handle
// that was torn down while the caller was waiting for it. The handle is no
// longer in the registry; callers should fetch a fresh one.
var ErrHandleDiscarded = errors.New("workflow handle has been discarded")

// ResolutionError is returned when a user supplied workflow reference cannot
// be turned into a canonical location. It is raised before any load attempt.
type ResolutionError struct {
	// Input is the reference exactly as the user supplied it.
	Input string

	// Reason describes what is wrong with Input.
	Reason string

	// Cause is the underlying parse error, if any.
	Cause error
}

// Error implements the error interface for ResolutionError.
func (e *ResolutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot resolve workflow location %q: %s: %v", e.Input, e.Reason, e.Cause)
	}
	return fmt.Sprintf("cannot resolve workflow location %q: %s", e.Input, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// NewResolutionError creates a ResolutionError.
func NewResolutionError(input, reason string, cause error) *ResolutionError {
	return &ResolutionError{Input: input, Reason: reason, Cause: cause}
}

// IsResolutionError checks if an error is or wraps a ResolutionError.
func IsResolutionError(err error) bool {
	var target *ResolutionError
	return errors.As(err, &target)
}

// LoadError is returned when a location resolves but the workflow behind it
// cannot be loaded: missing directory, invalid definition, permission denied
// or a network failure while fetching a remote workflow. The cause chain is
// preserved and the error is never retried by the registry.
type LoadError struct {
	// Location is the canonical key of the workflow that failed to load.
	Location string

	// Cause is the underlying failure.
	Cause error
}

// Error implements the error interface for LoadError.
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load workflow %s: %v", e.Location, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// NewLoadError creates a LoadError. If cause already is a LoadError it is
// returned unchanged so that load errors are never double wrapped.
func NewLoadError(location string, cause error) *LoadError {
	var existing *LoadError
	if errors.As(cause, &existing) {
		return existing
	}
	return &LoadError{Location: location, Cause: cause}
}

// IsLoadError checks if an error is or wraps a LoadError.
func IsLoadError(err error) bool {
	var target *LoadError
	return errors.As(err, &target)
}

// InvalidInputError is returned when a supplied parameter does not match the
// callee's declared input contract. It does not invalidate the cached handle.
type InvalidInputError struct {
	Parameter string
	Reason    string
}

// Error implements the error interface for InvalidInputError.
func (e *InvalidInputError) Error() string {
	if e.Parameter == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input parameter '%s': %s", e.Parameter, e.Reason)
}

// NewInvalidInputError creates an InvalidInputError.
func NewInvalidInputError(parameter, reason string) *InvalidInputError {
	return &InvalidInputError{Parameter: parameter, Reason: reason}
}

// IsInvalidInputError checks if an error is or wraps an InvalidInputError.
func IsInvalidInputError(err error) bool {
	var target *InvalidInputError
	return errors.As(err, &target)
}

// ExecutionFailure is returned when an invocation completed but the callee
// did not reach the EXECUTED state. Message carries the engine's own
// error and warning text.
type ExecutionFailure struct {
	Location string
	State    TerminalState
	Message  string
}

// Error implements the error interface for ExecutionFailure.
func (e *ExecutionFailure) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("workflow %s finished in state %s", e.Location, e.State)
	}
	return fmt.Sprintf("workflow %s finished in state %s: %s", e.Location, e.State, e.Message)
}

// IsExecutionFailure checks if an error is or wraps an ExecutionFailure.
func IsExecutionFailure(err error) bool {
	var target *ExecutionFailure
	return errors.As(err, &target)
}

// ConcurrencyError is returned when acquiring a handle's lock was canceled
// before it could complete. It is a cancellation, not a data error.
type ConcurrencyError struct {
	Location string
	Cause    error
}

// Error implements the error interface for ConcurrencyError.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("waiting for workflow %s was interrupted: %v", e.Location, e.Cause)
}

// Unwrap returns the underlying cause, typically context.Canceled or
// context.DeadlineExceeded.
func (e *ConcurrencyError) Unwrap() error {
	return e.Cause
}

// IsConcurrencyError checks if an error is or wraps a ConcurrencyError.
func IsConcurrencyError(err error) bool {
	var target *ConcurrencyError
	return errors.As(err, &target)
}
