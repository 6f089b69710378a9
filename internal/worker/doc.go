// Package worker implements the coordination core's worker role:
// registration, the sync/decide/update command loop over a
// locally-owned shard of agents, and the same-shard local-dispatch
// optimization that skips a store round trip for updates a worker
// produces for its own agents.
package worker
