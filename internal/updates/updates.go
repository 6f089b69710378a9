// Package updates implements the per-caller staging buffer: outgoing
// per-agent updates partitioned by destination worker shard, plus world
// updates and population mutations, flushed to the coordinator store in
// one Push call.
package updates

import (
	"context"

	"github.com/dreamware/loom/internal/codec"
	"github.com/dreamware/loom/internal/shardhash"
	"github.com/dreamware/loom/internal/sim"
	"github.com/dreamware/loom/internal/store"
)

// MutationKind tags a PopulationMutation as a spawn or a kill.
type MutationKind uint8

const (
	MutationSpawn MutationKind = iota
	MutationKill
)

// PopulationMutation is the wire form of a population membership change:
// Spawn(id, state) or Kill(id, state).
type PopulationMutation[S any] struct {
	Kind  MutationKind
	ID    uint64
	State S
}

// AgentUpdate is the wire form of a single (agent id, update) pair queued
// for a destination shard.
type AgentUpdate[U any] struct {
	ID     uint64
	Update U
}

// Updates is a per-caller staging container. A decide call (or the
// manager's world-decide step) queues into one Updates value and then
// flushes it with Push; Updates is not safe for concurrent use by
// multiple goroutines — each decider should own its own instance (workers
// keep one reusable buffer).
type Updates[S, U any] struct {
	hasher   shardhash.Hasher
	perShard map[int][]AgentUpdate[U]
	world    []U
	pop      []PopulationMutation[S]
}

// New returns an empty Updates buffer that routes agent-targeted updates
// through hasher.
func New[S, U any](hasher shardhash.Hasher) *Updates[S, U] {
	return &Updates[S, U]{
		hasher:   hasher,
		perShard: make(map[int][]AgentUpdate[U]),
	}
}

var _ sim.Updater[struct{}, struct{}] = (*Updates[struct{}, struct{}])(nil)

// Queue stages u for delivery to the shard that owns agentID.
func (b *Updates[S, U]) Queue(agentID uint64, u U) {
	w := b.hasher.Shard(agentID)
	b.perShard[w] = append(b.perShard[w], AgentUpdate[U]{ID: agentID, Update: u})
}

// QueueWorld stages u for the manager's world-update phase.
func (b *Updates[S, U]) QueueWorld(u U) {
	b.world = append(b.world, u)
}

// Spawn stages the creation of a new agent with the given initial state
// and returns its freshly generated id. The spawn does not take effect
// until Push is called and the manager's next population.Update() drains
// it — effective at the boundary between this step's update and the
// next step's sync.
func (b *Updates[S, U]) Spawn(state S) uint64 {
	id := sim.NewID()
	b.pop = append(b.pop, PopulationMutation[S]{Kind: MutationSpawn, ID: id, State: state})
	return id
}

// Kill stages the destruction of the agent with the given id and
// last-known state.
func (b *Updates[S, U]) Kill(id uint64, state S) {
	b.pop = append(b.pop, PopulationMutation[S]{Kind: MutationKill, ID: id, State: state})
}

// DrainShard removes and returns the items staged for shard w, without
// touching any other shard's queue or the population/world queues. A
// worker calls this during decide to pull out the updates it produced
// for its own shard and apply them directly, skipping the store round
// trip Push would otherwise send them through.
func (b *Updates[S, U]) DrainShard(w int) []AgentUpdate[U] {
	items := b.perShard[w]
	delete(b.perShard, w)
	return items
}

// Push emits all staged items to st and clears the buffer. It issues one
// store call per shard list plus one each for the population and world
// sets; these calls are not wrapped in a transaction, so an error part
// way through leaves the earlier calls applied and the buffer uncleared.
//
// Per shard w, the encoded (id, update) pairs are appended to list key
// "updates:<w>" such that LRANGE(0,-1) afterwards returns them in caller
// insertion order; since LPUSH prepends each argument in turn, the pairs
// are encoded in reverse before the call. Ordering across distinct Push
// calls targeting the same shard is explicitly unordered.
func (b *Updates[S, U]) Push(ctx context.Context, st store.Store) error {
	for w, items := range b.perShard {
		if len(items) == 0 {
			continue
		}
		encoded := make([][]byte, len(items))
		for i, item := range items {
			data, err := codec.Encode(item)
			if err != nil {
				return err
			}
			encoded[len(items)-1-i] = data
		}
		if err := st.LPush(ctx, store.KeyUpdates(w), encoded...); err != nil {
			return err
		}
	}

	if len(b.pop) > 0 {
		encoded := make([][]byte, len(b.pop))
		for i, m := range b.pop {
			data, err := codec.Encode(m)
			if err != nil {
				return err
			}
			encoded[i] = data
		}
		if err := st.SAdd(ctx, store.KeyUpdatesPopulation, encoded...); err != nil {
			return err
		}
	}

	if len(b.world) > 0 {
		encoded := make([][]byte, len(b.world))
		for i, u := range b.world {
			data, err := codec.Encode(u)
			if err != nil {
				return err
			}
			encoded[i] = data
		}
		if err := st.SAdd(ctx, store.KeyUpdatesWorld, encoded...); err != nil {
			return err
		}
	}

	b.perShard = make(map[int][]AgentUpdate[U])
	b.world = nil
	b.pop = nil
	return nil
}

// Reset discards any staged items without flushing them, useful for
// reusing a buffer across phases that don't end in a Push (rarely
// needed; most callers just Push).
func (b *Updates[S, U]) Reset() {
	b.perShard = make(map[int][]AgentUpdate[U])
	b.world = nil
	b.pop = nil
}
