// Package population implements the read/write facade over the
// coordinator store: per-agent state, world state, named index sets,
// queued population mutations, and the spawn/kill pipeline that keeps
// the "population" set and per-shard adoption lists in sync.
//
// # Overview
//
// Population is the one type both the Manager and every Worker hold a
// handle to. It never caches agent state locally — every read goes to the
// store, since the store is the single source of truth across the
// manager/worker boundary. The only local state a Population carries is
// its shard hasher (set once the worker count is known) and a reference
// to the user's Simulation value, probed for the optional
// OnSpawns/OnDeaths hooks via type assertion.
//
// # Spawn/kill pipeline
//
//	decide queues Spawn/Kill  →  updates:population (set)
//	                                    │
//	                    manager calls Population.Update()
//	                                    │
//	                 drains, partitions into spawns/kills
//	                    │                           │
//	            population SADD              population SREM
//	            set_agents (MSET)             state key DEL
//	            spawn:<w> LPUSH                kill:<w> LPUSH
//	                    │                           │
//	             OnSpawns hook                OnDeaths hook
//
// Failure policy: any store error aborts the call — there is no local
// retry. Reads of unknown ids return "absent", which is not an error.
package population
