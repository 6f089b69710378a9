// Package sim defines the Simulation capability the coordination core
// consumes. The core is parametric over three user-supplied types: agent
// state S, world state W, and update payload U. It never inspects them
// beyond encoding/decoding and equality — a user expresses multi-kind
// agents as a tagged variant over a concrete Go type and the engine
// remains oblivious to its shape.
//
// This package deliberately has no dependency on internal/population or
// internal/store: Decide and Update receive narrow capability interfaces
// (PopulationView, Updater) rather than concrete engine types, so user
// simulation code only ever imports sim.
package sim

// Agent is one simulated actor: a stable id paired with user-defined
// state.
type Agent[S any] struct {
	ID    uint64
	State S
}

// PopulationView is the read-only capability Decide receives for
// inspecting other agents: reads are always permitted during decide;
// writes are forbidden, hence no agent/world mutating methods appear
// here.
//
// Index bookkeeping (Index/Indexes/Unindex/Unindexes) is included here
// even though PopulationView is otherwise read-only, because it only
// ever touches the store's named index sets, never agent or world
// state — the same side channel decide, OnSpawns, and OnDeaths all use
// to keep index sets in sync with who is alive.
type PopulationView[S any] interface {
	Count() int
	GetAgent(id uint64) (Agent[S], bool)
	GetAgents(ids []uint64) []Agent[S]
	Lookup(index string) []Agent[S]
	Random(index string) (Agent[S], bool)
	Randoms(index string, k int) []Agent[S]
	CountIndex(index string) int
	Index(index string, id uint64)
	Indexes(index string, ids []uint64)
	Unindex(index string, id uint64)
	Unindexes(index string, ids []uint64)
}

// Updater is the narrow staging capability Decide uses to propose
// mutations; it is satisfied by *updates.Updates (internal/updates).
type Updater[S, U any] interface {
	Queue(agentID uint64, u U)
	QueueWorld(u U)
	Spawn(state S) uint64
	Kill(id uint64, state S)
}

// Simulation is the mandatory capability every run must provide: how an
// agent decides (reads its neighborhood, proposes updates) and how it
// applies queued updates to its own state.
//
// Decide must not mutate agent, world, or the population: an agent is
// readable by any worker during decide via the store, but writes in
// decide are forbidden. It stages proposals into updates via the
// PopulationView/Updater handles passed by the caller.
//
// Update applies the updates queued for a single agent by the preceding
// decide phase and reports whether the state actually changed, so the
// worker can skip redundant writes for agents nothing touched.
type Simulation[S, W, U any] interface {
	Decide(agent Agent[S], world W, population PopulationView[S], updates Updater[S, U])
	Update(state *S, updates []U) (changed bool)
}

// SpawnObserver is an optional hook invoked once, centrally, after a batch
// of spawns has been applied to the store. Implement it on your
// Simulation value if you need to react to new agents (e.g. indexing
// them).
type SpawnObserver[S any] interface {
	OnSpawns(agents []Agent[S], population PopulationView[S])
}

// DeathObserver is the Kill-side counterpart of SpawnObserver.
type DeathObserver[S any] interface {
	OnDeaths(agents []Agent[S], population PopulationView[S])
}

// WorldSimulation is an optional capability for simulations with a
// meaningful World type: a world-level decide/update pair run once per
// step by the manager, never by workers.
type WorldSimulation[S, W, U any] interface {
	WorldDecide(world W, population PopulationView[S], updates Updater[S, U])
	WorldUpdate(world W, updates []U) W
}
