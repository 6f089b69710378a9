package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/dreamware/loom/internal/codec"
	"github.com/dreamware/loom/internal/population"
	"github.com/dreamware/loom/internal/shardhash"
	"github.com/dreamware/loom/internal/sim"
	"github.com/dreamware/loom/internal/store"
	"github.com/dreamware/loom/internal/updates"
)

// Worker owns one shard of the agent population: it holds the live
// state for every agent the shard hasher routes to it, runs Decide for
// each on every step, and applies the resulting updates. Any number of
// Workers can attach to the same store.
type Worker[S, W, U any] struct {
	st  store.Store
	sim sim.Simulation[S, W, U]
	pop *population.Population[S, W, U]

	selfID  []byte
	idx     int
	n       int
	hasher  shardhash.Hasher
	local   map[uint64]S
	pending map[uint64][]U
	buf     *updates.Updates[S, U]
}

// New returns a Worker bound to st and simulation. Run must be called to
// register it and enter the command loop.
func New[S, W, U any](st store.Store, simulation sim.Simulation[S, W, U]) *Worker[S, W, U] {
	return &Worker[S, W, U]{
		st:      st,
		sim:     simulation,
		pop:     population.New[S, W, U](st, simulation),
		local:   make(map[uint64]S),
		pending: make(map[uint64][]U),
	}
}

// Run registers the worker, waits for the run to start, claims a shard
// index, then loops on commands until "terminate". It returns when the
// run ends or ctx is canceled.
func (w *Worker[S, W, U]) Run(ctx context.Context) error {
	w.selfID = []byte(uuid.NewString())
	if err := w.st.SAdd(ctx, store.KeyWorkers, w.selfID); err != nil {
		return fmt.Errorf("worker: register: %w", err)
	}

	sub := w.st.Subscribe(ctx, store.ChannelCommand)
	defer sub.Close()

	if err := w.waitForStart(ctx, sub); err != nil {
		return err
	}
	if err := w.claimShard(ctx); err != nil {
		return err
	}
	w.buf = updates.New[S, U](w.hasher)

	for {
		cmd, err := sub.Receive(ctx)
		if err != nil {
			return fmt.Errorf("worker %s: %w", w.idStr(), err)
		}
		switch cmd {
		case store.CommandSync:
			if err := w.sync(ctx); err != nil {
				return err
			}
		case store.CommandDecide:
			if err := w.decide(ctx); err != nil {
				return err
			}
		case store.CommandUpdate:
			if err := w.update(ctx); err != nil {
				return err
			}
		case store.CommandTerminate:
			return w.terminate(ctx)
		}
	}
}

func (w *Worker[S, W, U]) idStr() string { return string(w.selfID) }

// waitForStart blocks until the run starts. Registering into "workers"
// necessarily happens before Subscribe, so a manager that publishes
// "start" in that window would otherwise never be seen: pub/sub does not
// replay past messages. current_phase is the fallback a just-joined
// worker reads once to catch a "start" it might have missed; if it finds
// nothing set yet, it falls back to waiting on the subscription as usual.
func (w *Worker[S, W, U]) waitForStart(ctx context.Context, sub store.Subscription) error {
	phase, err := w.st.Get(ctx, store.KeyCurrentPhase)
	if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		return fmt.Errorf("worker: waiting for start: %w", err)
	}
	if len(phase) > 0 {
		return nil
	}

	for {
		cmd, err := sub.Receive(ctx)
		if err != nil {
			return fmt.Errorf("worker: waiting for start: %w", err)
		}
		if cmd == store.CommandStart {
			return nil
		}
	}
}

func (w *Worker[S, W, U]) claimShard(ctx context.Context) error {
	raw, err := w.st.LPop(ctx, store.KeyWorkerIDs)
	if err != nil {
		return fmt.Errorf("worker: claim shard: %w", err)
	}
	idx, err := strconv.Atoi(string(raw))
	if err != nil {
		return fmt.Errorf("worker: claim shard: %w", err)
	}
	n, err := w.st.SCard(ctx, store.KeyWorkers)
	if err != nil {
		return fmt.Errorf("worker: claim shard: %w", err)
	}
	w.idx = idx
	w.n = int(n)
	w.hasher = shardhash.New(w.n)
	w.pop.SetHasher(w.hasher)
	return nil
}

func (w *Worker[S, W, U]) ack(ctx context.Context) error {
	if err := w.st.SAdd(ctx, store.KeyFinished, w.selfID); err != nil {
		return fmt.Errorf("worker %s: ack: %w", w.idStr(), err)
	}
	return nil
}

// sync drains spawn:<i>/kill:<i> into the local map.
func (w *Worker[S, W, U]) sync(ctx context.Context) error {
	spawned, err := w.st.LRange(ctx, store.KeySpawn(w.idx))
	if err != nil {
		return fmt.Errorf("worker %s: sync: %w", w.idStr(), err)
	}
	if len(spawned) > 0 {
		if err := w.st.Del(ctx, store.KeySpawn(w.idx)); err != nil {
			return fmt.Errorf("worker %s: sync: %w", w.idStr(), err)
		}
	}
	for _, data := range spawned {
		a, err := codec.Decode[sim.Agent[S]](data)
		if err != nil {
			return fmt.Errorf("worker %s: sync: %w", w.idStr(), err)
		}
		w.local[a.ID] = a.State
	}

	killed, err := w.st.LRange(ctx, store.KeyKill(w.idx))
	if err != nil {
		return fmt.Errorf("worker %s: sync: %w", w.idStr(), err)
	}
	if len(killed) > 0 {
		if err := w.st.Del(ctx, store.KeyKill(w.idx)); err != nil {
			return fmt.Errorf("worker %s: sync: %w", w.idStr(), err)
		}
	}
	for _, data := range killed {
		id, err := strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("worker %s: sync: %w", w.idStr(), err)
		}
		delete(w.local, id)
		delete(w.pending, id)
	}

	return w.ack(ctx)
}

// decide runs Simulation.Decide for every locally-owned agent, moves
// same-shard updates directly into the pending map, and pushes the
// remainder (and any spawn/kill mutations) to the store.
func (w *Worker[S, W, U]) decide(ctx context.Context) error {
	world, err := w.pop.World(ctx)
	if err != nil {
		return fmt.Errorf("worker %s: decide: %w", w.idStr(), err)
	}
	view := w.pop.View(ctx)

	for id, state := range w.local {
		w.sim.Decide(sim.Agent[S]{ID: id, State: state}, world, view, w.buf)
	}

	for _, item := range w.buf.DrainShard(w.idx) {
		w.pending[item.ID] = append(w.pending[item.ID], item.Update)
	}

	if err := w.buf.Push(ctx, w.st); err != nil {
		return fmt.Errorf("worker %s: decide: %w", w.idStr(), err)
	}
	return w.ack(ctx)
}

// update drains updates:<i>, merges them after any locally-dispatched
// entries for the same step, applies Simulation.Update to every local
// agent (with an empty list for agents nothing was queued for), and
// writes back the agents whose state changed.
func (w *Worker[S, W, U]) update(ctx context.Context) error {
	raw, err := w.st.LRange(ctx, store.KeyUpdates(w.idx))
	if err != nil {
		return fmt.Errorf("worker %s: update: %w", w.idStr(), err)
	}
	if len(raw) > 0 {
		if err := w.st.Del(ctx, store.KeyUpdates(w.idx)); err != nil {
			return fmt.Errorf("worker %s: update: %w", w.idStr(), err)
		}
	}
	for _, data := range raw {
		item, err := codec.Decode[updates.AgentUpdate[U]](data)
		if err != nil {
			return fmt.Errorf("worker %s: update: %w", w.idStr(), err)
		}
		w.pending[item.ID] = append(w.pending[item.ID], item.Update)
	}

	var changed []sim.Agent[S]
	for id, state := range w.local {
		ups := w.pending[id]
		delete(w.pending, id)
		if w.sim.Update(&state, ups) {
			w.local[id] = state
			changed = append(changed, sim.Agent[S]{ID: id, State: state})
		}
	}

	if err := w.pop.SetAgents(ctx, changed); err != nil {
		return fmt.Errorf("worker %s: update: %w", w.idStr(), err)
	}
	return w.ack(ctx)
}

func (w *Worker[S, W, U]) terminate(ctx context.Context) error {
	return w.st.SRem(ctx, store.KeyWorkers, w.selfID)
}
