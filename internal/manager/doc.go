// Package manager implements the coordination core's one manager role:
// startup, the per-step sync/decide/update barrier sequence, reporter
// dispatch, and world decide/update.
//
// Exactly one Manager exists per run; any number of workers
// (internal/worker) attach to the same store and coordinate with it
// purely through store reads/writes and the "command"/"finished"
// pub/sub and set primitives — never through shared memory.
package manager
