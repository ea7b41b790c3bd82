// Package invoke calls callee workflows as synchronous subroutines.
//
// Service is the entry point used by the CLI and by the "call" step tool:
// it resolves the target, gets a cached handle from the callee registry,
// locks it, applies the inputs, runs the workflow and reads its outputs.
// The lock is released on every path out of the call.
//
// Backend is the lower-level capability interface over a single open
// workflow. LocalBackend drives a cached, shared handle and blocks while
// another caller uses it. EphemeralBackend drives a private, non-cached
// instance and rejects concurrent use outright.
package invoke
