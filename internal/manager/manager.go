package manager

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dreamware/loom/internal/codec"
	"github.com/dreamware/loom/internal/population"
	"github.com/dreamware/loom/internal/shardhash"
	"github.com/dreamware/loom/internal/sim"
	"github.com/dreamware/loom/internal/store"
	"github.com/dreamware/loom/internal/updates"
)

// PollInterval is how often the manager re-checks the "workers" set
// during startup and the "finished" set during a barrier wait. Both
// waits use a time.Ticker to re-check until their condition holds.
var PollInterval = 10 * time.Millisecond

// Reporter is invoked by the manager between the sync barrier and the
// decide command, every Interval steps. Reporters must not mutate
// agents or the world; a returned error aborts the run.
type Reporter[S, W, U any] struct {
	Interval int
	Fn       func(ctx context.Context, step int, pop *population.Population[S, W, U], st store.Store) error
}

// Manager is the single coordination point of a run: it drives the
// sync/decide/update step sequence, owns the world-level decide/update
// pair, and fires registered reporters.
type Manager[S, W, U any] struct {
	st  store.Store
	sim sim.Simulation[S, W, U]
	pop *population.Population[S, W, U]

	initial   []sim.Agent[S] // staged by Spawn/Spawns before Run begins
	reporters []Reporter[S, W, U]

	hasher   shardhash.Hasher
	nWorkers int
}

// New returns a Manager bound to st and simulation, resetting any
// run-control state a previous run on this store may have left behind.
func New[S, W, U any](ctx context.Context, st store.Store, simulation sim.Simulation[S, W, U]) (*Manager[S, W, U], error) {
	if err := st.Del(ctx, store.KeyWorkers, store.KeyWorkerIDs, store.KeyFinished, store.KeyCurrentPhase); err != nil {
		return nil, fmt.Errorf("manager: new: %w", err)
	}
	return &Manager[S, W, U]{
		st:  st,
		sim: simulation,
		pop: population.New[S, W, U](st, simulation),
	}, nil
}

// Population exposes the manager's population view, e.g. for tests or a
// caller that wants to inspect final state after Run returns.
func (m *Manager[S, W, U]) Population() *population.Population[S, W, U] {
	return m.pop
}

// Spawn stages the creation of one initial agent, held locally until Run
// begins.
func (m *Manager[S, W, U]) Spawn(state S) uint64 {
	id := sim.NewID()
	m.initial = append(m.initial, sim.Agent[S]{ID: id, State: state})
	return id
}

// Spawns stages a batch of initial agents and returns their ids in order.
func (m *Manager[S, W, U]) Spawns(states []S) []uint64 {
	ids := make([]uint64, len(states))
	for i, s := range states {
		ids[i] = m.Spawn(s)
	}
	return ids
}

// RegisterReporter adds r to the set of reporters fired during Run.
func (m *Manager[S, W, U]) RegisterReporter(r Reporter[S, W, U]) {
	m.reporters = append(m.reporters, r)
}

// Run executes the startup protocol followed by nSteps steps of the
// sync/decide/update sequence, then publishes "terminate".
func (m *Manager[S, W, U]) Run(ctx context.Context, world W, nSteps int) error {
	if err := m.startup(ctx, world); err != nil {
		return err
	}

	decideBuf := updates.New[S, U](m.hasher)

	for step := 0; step < nSteps; step++ {
		if _, err := m.pop.Update(ctx); err != nil {
			return fmt.Errorf("manager: step %d: population update: %w", step, err)
		}
		if err := m.publishAndBarrier(ctx, store.CommandSync); err != nil {
			return err
		}

		if err := m.runReporters(ctx, step); err != nil {
			return fmt.Errorf("manager: step %d: reporter: %w", step, err)
		}

		if err := m.publishAndBarrier(ctx, store.CommandDecide); err != nil {
			return err
		}
		if err := m.worldDecide(ctx, decideBuf); err != nil {
			return fmt.Errorf("manager: step %d: world decide: %w", step, err)
		}
		if err := decideBuf.Push(ctx, m.st); err != nil {
			return fmt.Errorf("manager: step %d: push world decide updates: %w", step, err)
		}

		if err := m.publishAndBarrier(ctx, store.CommandUpdate); err != nil {
			return err
		}
		if err := m.worldUpdate(ctx); err != nil {
			return fmt.Errorf("manager: step %d: world update: %w", step, err)
		}
	}

	// Final reconciliation pass: the last step's decide phase queued
	// population mutations that no subsequent sync barrier will ever
	// drain (there is no step n_steps). Applying them here is what makes
	// a simulation where each agent spawns one child per step report the
	// full geometric count rather than under-counting by the last
	// step's spawns; see DESIGN.md for the full reasoning.
	if _, err := m.pop.Update(ctx); err != nil {
		return fmt.Errorf("manager: final population update: %w", err)
	}

	return m.st.Publish(ctx, store.ChannelCommand, store.CommandTerminate)
}

func (m *Manager[S, W, U]) startup(ctx context.Context, world W) error {
	n, err := m.waitForStableWorkerCount(ctx)
	if err != nil {
		return err
	}
	m.nWorkers = n
	m.hasher = shardhash.New(n)
	m.pop.SetHasher(m.hasher)
	log.Printf("manager: %d workers registered", n)

	ids := make([][]byte, n)
	for i := 0; i < n; i++ {
		ids[i] = []byte(fmt.Sprintf("%d", i))
	}
	if err := m.st.LPush(ctx, store.KeyWorkerIDs, ids...); err != nil {
		return fmt.Errorf("manager: startup: %w", err)
	}

	if err := m.pop.SetWorld(ctx, world); err != nil {
		return fmt.Errorf("manager: startup: %w", err)
	}

	if len(m.initial) > 0 {
		encoded := make([][]byte, len(m.initial))
		for i, a := range m.initial {
			data, err := codec.Encode(updates.PopulationMutation[S]{
				Kind:  updates.MutationSpawn,
				ID:    a.ID,
				State: a.State,
			})
			if err != nil {
				return err
			}
			encoded[i] = data
		}
		if err := m.st.SAdd(ctx, store.KeyUpdatesPopulation, encoded...); err != nil {
			return fmt.Errorf("manager: startup: %w", err)
		}
	}

	// Set before publishing so a worker that registered into "workers"
	// before it subscribed (and so could miss this publish) can instead
	// pick up the phase on its own initial read of current_phase.
	if err := m.st.Set(ctx, store.KeyCurrentPhase, []byte(store.CommandStart)); err != nil {
		return fmt.Errorf("manager: startup: %w", err)
	}
	return m.st.Publish(ctx, store.ChannelCommand, store.CommandStart)
}

// waitForStableWorkerCount polls the "workers" set until it is non-empty
// and its cardinality is unchanged across two consecutive polls.
func (m *Manager[S, W, U]) waitForStableWorkerCount(ctx context.Context) (int, error) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var last int64 = -1
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
			n, err := m.st.SCard(ctx, store.KeyWorkers)
			if err != nil {
				return 0, fmt.Errorf("manager: waiting for workers: %w", err)
			}
			if n > 0 && n == last {
				return int(n), nil
			}
			last = n
		}
	}
}

func (m *Manager[S, W, U]) publishAndBarrier(ctx context.Context, command string) error {
	if err := m.st.Set(ctx, store.KeyCurrentPhase, []byte(command)); err != nil {
		return fmt.Errorf("manager: %s: %w", command, err)
	}
	if err := m.st.Publish(ctx, store.ChannelCommand, command); err != nil {
		return fmt.Errorf("manager: %s: %w", command, err)
	}
	if err := m.waitBarrier(ctx); err != nil {
		return fmt.Errorf("manager: %s barrier: %w", command, err)
	}
	if err := m.st.Del(ctx, store.KeyFinished); err != nil {
		return fmt.Errorf("manager: %s: %w", command, err)
	}
	return nil
}

func (m *Manager[S, W, U]) waitBarrier(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := m.st.SCard(ctx, store.KeyFinished)
			if err != nil {
				return err
			}
			if int(n) >= m.nWorkers {
				return nil
			}
		}
	}
}

func (m *Manager[S, W, U]) runReporters(ctx context.Context, step int) error {
	for _, r := range m.reporters {
		if r.Interval <= 0 || step%r.Interval != 0 {
			continue
		}
		if err := r.Fn(ctx, step, m.pop, m.st); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager[S, W, U]) worldDecide(ctx context.Context, buf *updates.Updates[S, U]) error {
	ws, ok := m.sim.(sim.WorldSimulation[S, W, U])
	if !ok {
		return nil
	}
	world, err := m.pop.World(ctx)
	if err != nil {
		return err
	}
	ws.WorldDecide(world, m.pop.View(ctx), buf)
	return nil
}

func (m *Manager[S, W, U]) worldUpdate(ctx context.Context) error {
	ws, ok := m.sim.(sim.WorldSimulation[S, W, U])
	if !ok {
		return nil
	}
	raw, err := m.st.SMembers(ctx, store.KeyUpdatesWorld)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	if err := m.st.Del(ctx, store.KeyUpdatesWorld); err != nil {
		return err
	}
	us := make([]U, len(raw))
	for i, data := range raw {
		u, err := codec.Decode[U](data)
		if err != nil {
			return err
		}
		us[i] = u
	}
	world, err := m.pop.World(ctx)
	if err != nil {
		return err
	}
	world = ws.WorldUpdate(world, us)
	return m.pop.SetWorld(ctx, world)
}
