// Package app wires subflow together.
//
// NewApplication loads the configuration, initializes logging and builds
// the runtime in dependency order:
//
//  1. Location resolver
//  2. Workflow engine: instance registry, toolbox and loader
//  3. Remote fetcher
//  4. Callee registry, with listeners that keep the filesystem watcher and
//     caller tracking in sync with the cache
//  5. Worker pool, invocation tracker and the invocation service
//  6. The "call" tool, which makes the service reachable from workflow steps
//  7. Filesystem watcher (when enabled)
//
// Close tears the runtime down in reverse order. Callers should always
// defer it; it waits for handles that are still in use.
package app
