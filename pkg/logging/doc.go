// Package logging provides the structured, subsystem-oriented logger used
// throughout subflow.
//
// It is a thin layer over Go's log/slog. Every entry carries a subsystem
// attribute so that registry, lifecycle and executor events can be filtered
// independently.
//
// # Log Levels
//   - **Debug**: cache hits, lock handoffs, state transitions
//   - **Info**: loads, evictions, invocation summaries
//   - **Warn**: recoverable problems such as failed temp-dir cleanup
//   - **Error**: failures surfaced to the caller
//
// # Usage
//
//	logging.Init(logging.Options{Level: logging.LevelInfo, Format: logging.FormatJSON, Output: os.Stderr})
//
//	logging.Info("Registry", "Loaded %s", loc)
//	logging.Debug("Handle", "Lock acquired on %s", loc)
//	logging.Error("Executor", err, "Invocation of %s failed", loc)
//
// # Subsystems
//
//   - **Registry**: instance cache, single-flight loads, eviction
//   - **Handle**: exclusive-use lock
//   - **Lifecycle**: state transitions and teardown
//   - **Executor**: individual invocations
//   - **Service**: resolve/load/lock/invoke orchestration
//   - **Fetcher**: remote workflow downloads
//   - **Watcher**: filesystem-driven invalidation
//   - **Engine**: local workflow engine
//   - **Config**: configuration loading
//   - **Pool**: worker pool task failures
//   - **Bootstrap**: wiring and shutdown of the runtime
//
// Calls made before Init are dropped below WARN and routed to slog's default
// logger otherwise, which keeps package tests quiet.
package logging
