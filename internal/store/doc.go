// Package store defines the coordinator store capability that every
// manager and worker uses as their sole channel of communication, and
// provides two implementations.
//
// # Overview
//
// The coordination engine has no shared in-process memory across the
// manager/worker boundary: every piece of state —
// agent states, world state, pending updates, population mutations, the
// run-control sets, and the phase command itself — flows through a single
// external capability. This package names that capability as the Store
// interface and provides:
//
//	RedisStore  - backed by github.com/redis/go-redis/v9, the production path
//	MemStore    - an in-process implementation for tests and small demos
//
// # Architecture
//
//	┌───────────────────────────────────────────────┐
//	│                   Store                        │
//	│   Get/Set/MSet/Del · SAdd/SRem/SMembers/SCard/  │
//	│   SPop/SRandMember/SUnionStore · LPush/LRange/  │
//	│   LPop · Publish/Subscribe                      │
//	└───────────────────────────────────────────────┘
//	        ▲                              ▲
//	        │                              │
//	┌───────┴────────┐            ┌────────┴────────┐
//	│   RedisStore    │            │    MemStore     │
//	│ (go-redis/v9)   │            │ (sync.RWMutex,  │
//	│                 │            │  in-process     │
//	│                 │            │  pub/sub)       │
//	└─────────────────┘            └─────────────────┘
//
// # Thread Safety
//
// Every method on both implementations is safe for concurrent use by
// manager and worker goroutines; the store itself is the linearization
// point the rest of the engine relies on instead of in-process locks.
package store
