package population

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dreamware/loom/internal/codec"
	"github.com/dreamware/loom/internal/shardhash"
	"github.com/dreamware/loom/internal/sim"
	"github.com/dreamware/loom/internal/store"
	"github.com/dreamware/loom/internal/updates"
)

// Population is the read/write facade over the coordinator store for
// agent state, world state, and named indices. S is the agent state
// type, W the world state type, U the update payload type.
type Population[S, W, U any] struct {
	st     store.Store
	hasher *shardhash.Hasher
	sim    any // probed for SpawnObserver[S]/DeathObserver[S]
}

// New returns a Population backed by st. simValue is the concrete
// Simulation implementation supplied to the run; it is retained only to
// be probed for the optional SpawnObserver/DeathObserver hooks.
func New[S, W, U any](st store.Store, simValue any) *Population[S, W, U] {
	return &Population[S, W, U]{st: st, sim: simValue}
}

// SetHasher installs the shard hasher used to route spawn/kill
// notifications to their owning worker. The manager calls this once the
// worker count for a run is known, before the first step.
func (p *Population[S, W, U]) SetHasher(h shardhash.Hasher) {
	p.hasher = &h
}

func idBytes(id uint64) []byte {
	return []byte(strconv.FormatUint(id, 10))
}

func bytesID(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 10, 64)
}

// Count returns the number of live agents.
func (p *Population[S, W, U]) Count(ctx context.Context) (int, error) {
	n, err := p.st.SCard(ctx, store.KeyPopulation)
	if err != nil {
		return 0, fmt.Errorf("population: count: %w", err)
	}
	return int(n), nil
}

// World returns the current world state.
func (p *Population[S, W, U]) World(ctx context.Context) (W, error) {
	var zero W
	data, err := p.st.Get(ctx, store.KeyWorld)
	if err != nil {
		return zero, fmt.Errorf("population: world: %w", err)
	}
	return codec.Decode[W](data)
}

// SetWorld overwrites the world state.
func (p *Population[S, W, U]) SetWorld(ctx context.Context, w W) error {
	data, err := codec.Encode(w)
	if err != nil {
		return err
	}
	if err := p.st.Set(ctx, store.KeyWorld, data); err != nil {
		return fmt.Errorf("population: set world: %w", err)
	}
	return nil
}

// GetAgent fetches a single agent by id. ok is false if the agent does
// not exist (dead or never spawned), which is not an error.
func (p *Population[S, W, U]) GetAgent(ctx context.Context, id uint64) (sim.Agent[S], bool, error) {
	data, err := p.st.Get(ctx, store.KeyAgent(id))
	if err == store.ErrKeyNotFound {
		return sim.Agent[S]{}, false, nil
	}
	if err != nil {
		return sim.Agent[S]{}, false, fmt.Errorf("population: get agent %d: %w", id, err)
	}
	state, err := codec.Decode[S](data)
	if err != nil {
		return sim.Agent[S]{}, false, err
	}
	return sim.Agent[S]{ID: id, State: state}, true, nil
}

// GetAgents fetches a batch of agents by id, silently skipping any that
// no longer exist.
func (p *Population[S, W, U]) GetAgents(ctx context.Context, ids []uint64) ([]sim.Agent[S], error) {
	out := make([]sim.Agent[S], 0, len(ids))
	for _, id := range ids {
		a, ok, err := p.GetAgent(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// SetAgent persists a single agent's state.
func (p *Population[S, W, U]) SetAgent(ctx context.Context, id uint64, state S) error {
	data, err := codec.Encode(state)
	if err != nil {
		return err
	}
	if err := p.st.Set(ctx, store.KeyAgent(id), data); err != nil {
		return fmt.Errorf("population: set agent %d: %w", id, err)
	}
	return nil
}

// SetAgents persists a batch of agents' states in a single round trip.
func (p *Population[S, W, U]) SetAgents(ctx context.Context, agents []sim.Agent[S]) error {
	if len(agents) == 0 {
		return nil
	}
	pairs := make(map[string][]byte, len(agents))
	for _, a := range agents {
		data, err := codec.Encode(a.State)
		if err != nil {
			return err
		}
		pairs[store.KeyAgent(a.ID)] = data
	}
	if err := p.st.MSet(ctx, pairs); err != nil {
		return fmt.Errorf("population: set agents: %w", err)
	}
	return nil
}

// Lookup returns every agent currently indexed under name.
func (p *Population[S, W, U]) Lookup(ctx context.Context, name string) ([]sim.Agent[S], error) {
	members, err := p.st.SMembers(ctx, store.KeyIndex(name))
	if err != nil {
		return nil, fmt.Errorf("population: lookup %q: %w", name, err)
	}
	return p.resolveMembers(ctx, members)
}

// LookupAny returns the union of every agent indexed under any of names,
// without duplicates. It supplements the per-index Lookup with a single
// round trip via SUNIONSTORE into a scratch key, useful when a decide
// step treats several indices as one neighborhood (e.g. "predator" and
// "scavenger" agents sharing a diet).
func (p *Population[S, W, U]) LookupAny(ctx context.Context, names ...string) ([]sim.Agent[S], error) {
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = store.KeyIndex(n)
	}
	dest := store.KeyIndex("__union_scratch__")
	if err := p.st.SUnionStore(ctx, dest, keys...); err != nil {
		return nil, fmt.Errorf("population: lookup any: %w", err)
	}
	members, err := p.st.SMembers(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("population: lookup any: %w", err)
	}
	_ = p.st.Del(ctx, dest)
	return p.resolveMembers(ctx, members)
}

// CountIndex returns the cardinality of a named index without resolving
// any agent state.
func (p *Population[S, W, U]) CountIndex(ctx context.Context, name string) (int, error) {
	n, err := p.st.SCard(ctx, store.KeyIndex(name))
	if err != nil {
		return 0, fmt.Errorf("population: count index %q: %w", name, err)
	}
	return int(n), nil
}

// Random returns one uniformly-chosen agent from the named index, or
// ok=false if the index is empty.
func (p *Population[S, W, U]) Random(ctx context.Context, name string) (sim.Agent[S], bool, error) {
	members, err := p.st.SRandMember(ctx, store.KeyIndex(name), 1)
	if err != nil {
		return sim.Agent[S]{}, false, fmt.Errorf("population: random %q: %w", name, err)
	}
	if len(members) == 0 {
		return sim.Agent[S]{}, false, nil
	}
	id, err := bytesID(members[0])
	if err != nil {
		return sim.Agent[S]{}, false, err
	}
	a, ok, err := p.GetAgent(ctx, id)
	return a, ok, err
}

// Randoms returns up to k distinct agents drawn from the named index.
func (p *Population[S, W, U]) Randoms(ctx context.Context, name string, k int) ([]sim.Agent[S], error) {
	members, err := p.st.SRandMember(ctx, store.KeyIndex(name), int64(k))
	if err != nil {
		return nil, fmt.Errorf("population: randoms %q: %w", name, err)
	}
	return p.resolveMembers(ctx, members)
}

func (p *Population[S, W, U]) resolveMembers(ctx context.Context, members [][]byte) ([]sim.Agent[S], error) {
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := bytesID(m)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return p.GetAgents(ctx, ids)
}

// Index adds id to the named index.
func (p *Population[S, W, U]) Index(ctx context.Context, name string, id uint64) error {
	return p.st.SAdd(ctx, store.KeyIndex(name), idBytes(id))
}

// Indexes adds every id in ids to the named index in one round trip.
func (p *Population[S, W, U]) Indexes(ctx context.Context, name string, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([][]byte, len(ids))
	for i, id := range ids {
		members[i] = idBytes(id)
	}
	return p.st.SAdd(ctx, store.KeyIndex(name), members...)
}

// Unindex removes id from the named index.
func (p *Population[S, W, U]) Unindex(ctx context.Context, name string, id uint64) error {
	return p.st.SRem(ctx, store.KeyIndex(name), idBytes(id))
}

// Unindexes removes every id in ids from the named index in one round trip.
func (p *Population[S, W, U]) Unindexes(ctx context.Context, name string, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([][]byte, len(ids))
	for i, id := range ids {
		members[i] = idBytes(id)
	}
	return p.st.SRem(ctx, store.KeyIndex(name), members...)
}

// ResetIndices deletes the named indices in names. Which indices a
// population has touched is not knowable in general, so ResetIndices
// takes the explicit set of names a run declares it maintains: the store
// has no notion of "all idx:* keys" without a scan.
func (p *Population[S, W, U]) ResetIndices(ctx context.Context, names []string) error {
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = store.KeyIndex(n)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := p.st.Del(ctx, keys...); err != nil {
		return fmt.Errorf("population: reset indices: %w", err)
	}
	return nil
}

// Reset clears all agent state, the population set, and the world key,
// returning the run to an empty-population state. Named indices are left
// untouched; call ResetIndices separately if a full reset is needed.
func (p *Population[S, W, U]) Reset(ctx context.Context) error {
	members, err := p.st.SMembers(ctx, store.KeyPopulation)
	if err != nil {
		return fmt.Errorf("population: reset: %w", err)
	}
	keys := make([]string, 0, len(members)+2)
	for _, m := range members {
		id, err := bytesID(m)
		if err != nil {
			return err
		}
		keys = append(keys, store.KeyAgent(id))
	}
	keys = append(keys, store.KeyPopulation, store.KeyWorld)
	if err := p.st.Del(ctx, keys...); err != nil {
		return fmt.Errorf("population: reset: %w", err)
	}
	return nil
}

// Update drains the pending population mutations queued since the last
// call (updates:population), applies spawns and kills to the store, and
// invokes the SpawnObserver/DeathObserver hooks if the run's Simulation
// implements them. It returns the number of mutations applied.
//
// The manager calls this once per step during the run protocol, plus
// once more after the step loop exits to flush the final step's
// decide-phase mutations — without that trailing call, spawns queued in
// the last step would never be reconciled (see DESIGN.md).
func (p *Population[S, W, U]) Update(ctx context.Context) (int, error) {
	if p.hasher == nil {
		return 0, fmt.Errorf("population: update: hasher not set")
	}
	raw, err := p.st.SMembers(ctx, store.KeyUpdatesPopulation)
	if err != nil {
		return 0, fmt.Errorf("population: update: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	if err := p.st.Del(ctx, store.KeyUpdatesPopulation); err != nil {
		return 0, fmt.Errorf("population: update: %w", err)
	}

	var spawned, killed []sim.Agent[S]
	spawnByShard := make(map[int][]uint64)
	killByShard := make(map[int][]uint64)

	for _, data := range raw {
		m, err := codec.Decode[updates.PopulationMutation[S]](data)
		if err != nil {
			return 0, err
		}
		switch m.Kind {
		case updates.MutationSpawn:
			spawned = append(spawned, sim.Agent[S]{ID: m.ID, State: m.State})
			w := p.hasher.Shard(m.ID)
			spawnByShard[w] = append(spawnByShard[w], m.ID)
		case updates.MutationKill:
			killed = append(killed, sim.Agent[S]{ID: m.ID, State: m.State})
			w := p.hasher.Shard(m.ID)
			killByShard[w] = append(killByShard[w], m.ID)
		}
	}

	if err := p.spawn(ctx, spawned, spawnByShard); err != nil {
		return 0, err
	}
	if err := p.kill(ctx, killed, killByShard); err != nil {
		return 0, err
	}

	if len(spawned) > 0 {
		if obs, ok := p.sim.(sim.SpawnObserver[S]); ok {
			obs.OnSpawns(spawned, p.View(ctx))
		}
	}
	if len(killed) > 0 {
		if obs, ok := p.sim.(sim.DeathObserver[S]); ok {
			obs.OnDeaths(killed, p.View(ctx))
		}
	}

	return len(raw), nil
}

func (p *Population[S, W, U]) spawn(ctx context.Context, agents []sim.Agent[S], byShard map[int][]uint64) error {
	if len(agents) == 0 {
		return nil
	}
	if err := p.SetAgents(ctx, agents); err != nil {
		return err
	}
	members := make([][]byte, len(agents))
	for i, a := range agents {
		members[i] = idBytes(a.ID)
	}
	if err := p.st.SAdd(ctx, store.KeyPopulation, members...); err != nil {
		return fmt.Errorf("population: spawn: %w", err)
	}
	byID := make(map[uint64]sim.Agent[S], len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	for w, ids := range byShard {
		encoded := make([][]byte, len(ids))
		for i, id := range ids {
			data, err := codec.Encode(byID[id])
			if err != nil {
				return err
			}
			encoded[i] = data
		}
		if err := p.st.LPush(ctx, store.KeySpawn(w), encoded...); err != nil {
			return fmt.Errorf("population: spawn: %w", err)
		}
	}
	return nil
}

func (p *Population[S, W, U]) kill(ctx context.Context, agents []sim.Agent[S], byShard map[int][]uint64) error {
	if len(agents) == 0 {
		return nil
	}
	keys := make([]string, len(agents))
	members := make([][]byte, len(agents))
	for i, a := range agents {
		keys[i] = store.KeyAgent(a.ID)
		members[i] = idBytes(a.ID)
	}
	if err := p.st.Del(ctx, keys...); err != nil {
		return fmt.Errorf("population: kill: %w", err)
	}
	if err := p.st.SRem(ctx, store.KeyPopulation, members...); err != nil {
		return fmt.Errorf("population: kill: %w", err)
	}
	for w, ids := range byShard {
		encoded := make([][]byte, len(ids))
		for i, id := range ids {
			encoded[i] = idBytes(id)
		}
		if err := p.st.LPush(ctx, store.KeyKill(w), encoded...); err != nil {
			return fmt.Errorf("population: kill: %w", err)
		}
	}
	return nil
}

// View returns a sim.PopulationView[S] bound to ctx, suitable for passing
// into user Decide/OnSpawns/OnDeaths calls. A store error during decide
// is fatal to the run rather than locally recoverable, so the view
// panics on error instead of threading one through the narrow capability
// interface decide code is written against.
func (p *Population[S, W, U]) View(ctx context.Context) sim.PopulationView[S] {
	return view[S, W, U]{p: p, ctx: ctx}
}

type view[S, W, U any] struct {
	p   *Population[S, W, U]
	ctx context.Context
}

func (v view[S, W, U]) must(err error) {
	if err != nil {
		panic(err)
	}
}

func (v view[S, W, U]) Count() int {
	n, err := v.p.Count(v.ctx)
	v.must(err)
	return n
}

func (v view[S, W, U]) GetAgent(id uint64) (sim.Agent[S], bool) {
	a, ok, err := v.p.GetAgent(v.ctx, id)
	v.must(err)
	return a, ok
}

func (v view[S, W, U]) GetAgents(ids []uint64) []sim.Agent[S] {
	a, err := v.p.GetAgents(v.ctx, ids)
	v.must(err)
	return a
}

func (v view[S, W, U]) Lookup(index string) []sim.Agent[S] {
	a, err := v.p.Lookup(v.ctx, index)
	v.must(err)
	return a
}

func (v view[S, W, U]) Random(index string) (sim.Agent[S], bool) {
	a, ok, err := v.p.Random(v.ctx, index)
	v.must(err)
	return a, ok
}

func (v view[S, W, U]) Randoms(index string, k int) []sim.Agent[S] {
	a, err := v.p.Randoms(v.ctx, index, k)
	v.must(err)
	return a
}

func (v view[S, W, U]) CountIndex(index string) int {
	n, err := v.p.CountIndex(v.ctx, index)
	v.must(err)
	return n
}

func (v view[S, W, U]) Index(index string, id uint64) {
	v.must(v.p.Index(v.ctx, index, id))
}

func (v view[S, W, U]) Indexes(index string, ids []uint64) {
	v.must(v.p.Indexes(v.ctx, index, ids))
}

func (v view[S, W, U]) Unindex(index string, id uint64) {
	v.must(v.p.Unindex(v.ctx, index, id))
}

func (v view[S, W, U]) Unindexes(index string, ids []uint64) {
	v.must(v.p.Unindexes(v.ctx, index, ids))
}
