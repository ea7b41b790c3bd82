// Package api holds the types shared by every layer of subflow: the typed
// error taxonomy, terminal states, parameter declarations and invocation
// results.
//
// # Errors
//
// Each failure class has its own error type and an IsXxx helper built on
// errors.As, so callers can classify an error however deeply it is wrapped:
//
//   - ResolutionError: a reference that cannot become a Location
//   - LoadError: a Location whose workflow cannot be loaded
//   - InvalidInputError: parameters that violate the input contract
//   - ExecutionFailure: a run that did not reach StateExecuted
//   - ConcurrencyError: waiting for a workflow was interrupted
//
// ErrHandleDiscarded is a sentinel for a lock granted on a handle that was
// torn down while the caller waited.
//
// The package has no dependencies on other subflow packages.
package api
