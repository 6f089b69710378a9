package store

import "strconv"

// Reserved keys and channels. Every party in a run agrees on these names
// without further negotiation.
const (
	KeyWorld             = "world"
	KeyPopulation        = "population"
	KeyUpdatesPopulation = "updates:population"
	KeyUpdatesWorld      = "updates:world"
	KeyWorkers           = "workers"
	KeyWorkerIDs         = "worker_ids"
	KeyFinished          = "finished"
	KeyCurrentPhase      = "current_phase"

	ChannelCommand = "command"
)

// KeyUpdates returns the per-shard update-list key "updates:<w>".
func KeyUpdates(worker int) string {
	return "updates:" + strconv.Itoa(worker)
}

// KeySpawn returns the per-shard spawn-list key "spawn:<w>".
func KeySpawn(worker int) string {
	return "spawn:" + strconv.Itoa(worker)
}

// KeyKill returns the per-shard kill-list key "kill:<w>".
func KeyKill(worker int) string {
	return "kill:" + strconv.Itoa(worker)
}

// KeyIndex returns the named-index key "idx:<name>".
func KeyIndex(name string) string {
	return "idx:" + name
}

// KeyAgent returns the per-agent state key. Agent ids are stored under
// their decimal string form so that any Store backend (Redis included)
// can address them as plain string keys.
func KeyAgent(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// Commands published on ChannelCommand, in the order a run emits them.
const (
	CommandStart     = "start"
	CommandSync      = "sync"
	CommandDecide    = "decide"
	CommandUpdate    = "update"
	CommandTerminate = "terminate"
)
