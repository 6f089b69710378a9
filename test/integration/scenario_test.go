// Package integration runs whole-run scenarios against the manager,
// worker, and engine packages together, the way cmd/manager and
// cmd/worker compose them in production. S1-S4 run over both store
// backends; S5 and S6 run over MemStore only.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dreamware/loom/internal/engine"
	"github.com/dreamware/loom/internal/manager"
	"github.com/dreamware/loom/internal/population"
	"github.com/dreamware/loom/internal/shardhash"
	"github.com/dreamware/loom/internal/sim"
	"github.com/dreamware/loom/internal/store"
	"github.com/dreamware/loom/internal/updates"
)

func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return map[string]store.Store{
		"mem":   store.NewMemStore(),
		"redis": store.NewRedisStoreFromClient(client),
	}
}

func runCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// --- S1: counter agent ---

type s1State struct{ H int }
type s1Update struct{ Amount int }
type s1Sim struct{}

func (s1Sim) Decide(agent sim.Agent[s1State], _ struct{}, _ sim.PopulationView[s1State], u sim.Updater[s1State, s1Update]) {
	u.Queue(agent.ID, s1Update{Amount: 10})
}
func (s1Sim) Update(state *s1State, ups []s1Update) bool {
	for _, up := range ups {
		state.H += up.Amount
	}
	return len(ups) > 0
}

func TestScenarioCounterAgent(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := runCtx(t)
			mgr, err := manager.New[s1State, struct{}, s1Update](ctx, st, s1Sim{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			id := mgr.Spawn(s1State{H: 0})
			if err := engine.Run[s1State, struct{}, s1Update](ctx, st, s1Sim{}, mgr, struct{}{}, 4, 10); err != nil {
				t.Fatalf("Run: %v", err)
			}
			a, ok, err := mgr.Population().GetAgent(ctx, id)
			if err != nil || !ok {
				t.Fatalf("GetAgent: ok=%v err=%v", ok, err)
			}
			if a.State.H != 100 {
				t.Errorf("H = %d, want 100", a.State.H)
			}
		})
	}
}

// --- S2: multi-variant state, tagged union over a single Go type ---

type s2Kind uint8

const (
	s2Person s2Kind = iota
	s2Cat
)

type s2State struct {
	Kind   s2Kind
	Health int
	Purrs  int
}

type s2Update struct {
	Kind        s2Kind
	HealthDelta int
}

type s2Sim struct{}

func (s2Sim) Decide(agent sim.Agent[s2State], _ struct{}, _ sim.PopulationView[s2State], u sim.Updater[s2State, s2Update]) {
	switch agent.State.Kind {
	case s2Person:
		u.Queue(agent.ID, s2Update{Kind: s2Person, HealthDelta: -1})
	case s2Cat:
		u.Queue(agent.ID, s2Update{Kind: s2Cat})
	}
}
func (s2Sim) Update(state *s2State, ups []s2Update) bool {
	changed := false
	for _, up := range ups {
		switch up.Kind {
		case s2Person:
			state.Health += up.HealthDelta
		case s2Cat:
			state.Purrs++
		}
		changed = true
	}
	return changed
}

func TestScenarioMultiVariantState(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := runCtx(t)
			mgr, err := manager.New[s2State, struct{}, s2Update](ctx, st, s2Sim{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			ids := mgr.Spawns([]s2State{
				{Kind: s2Person, Health: 100},
				{Kind: s2Cat, Purrs: 0},
			})
			if err := engine.Run[s2State, struct{}, s2Update](ctx, st, s2Sim{}, mgr, struct{}{}, 2, 10); err != nil {
				t.Fatalf("Run: %v", err)
			}
			person, _, err := mgr.Population().GetAgent(ctx, ids[0])
			if err != nil {
				t.Fatalf("GetAgent(person): %v", err)
			}
			if person.State.Health != 90 {
				t.Errorf("person.Health = %d, want 90", person.State.Health)
			}
			cat, _, err := mgr.Population().GetAgent(ctx, ids[1])
			if err != nil {
				t.Fatalf("GetAgent(cat): %v", err)
			}
			if cat.State.Purrs != 10 {
				t.Errorf("cat.Purrs = %d, want 10", cat.State.Purrs)
			}
		})
	}
}

// --- S3: cross-agent update via a named index ---

type s3State struct {
	Tag    string
	Health int
}
type s3Update struct{ HealthDelta int }
type s3Sim struct{}

func (s3Sim) Decide(agent sim.Agent[s3State], _ struct{}, pop sim.PopulationView[s3State], u sim.Updater[s3State, s3Update]) {
	if agent.State.Tag != "hello" {
		return
	}
	for _, other := range pop.Lookup("goodbye") {
		u.Queue(other.ID, s3Update{HealthDelta: 12})
	}
}
func (s3Sim) Update(state *s3State, ups []s3Update) bool {
	changed := false
	for _, up := range ups {
		state.Health += up.HealthDelta
		changed = true
	}
	return changed
}

func TestScenarioCrossAgentUpdate(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := runCtx(t)
			mgr, err := manager.New[s3State, struct{}, s3Update](ctx, st, s3Sim{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			ids := mgr.Spawns([]s3State{
				{Tag: "hello", Health: 50},
				{Tag: "goodbye", Health: 50},
			})
			// Index by tag before the run starts, same as a simulation's
			// own setup code would.
			pop := mgr.Population()
			if err := pop.Index(ctx, "hello", ids[0]); err != nil {
				t.Fatalf("Index: %v", err)
			}
			if err := pop.Index(ctx, "goodbye", ids[1]); err != nil {
				t.Fatalf("Index: %v", err)
			}

			if err := engine.Run[s3State, struct{}, s3Update](ctx, st, s3Sim{}, mgr, struct{}{}, 2, 10); err != nil {
				t.Fatalf("Run: %v", err)
			}

			a, _, err := pop.GetAgent(ctx, ids[0])
			if err != nil {
				t.Fatalf("GetAgent(A): %v", err)
			}
			if a.State.Health != 50 {
				t.Errorf("A.Health = %d, want unchanged 50", a.State.Health)
			}
			b, _, err := pop.GetAgent(ctx, ids[1])
			if err != nil {
				t.Fatalf("GetAgent(B): %v", err)
			}
			if b.State.Health != 50+120 {
				t.Errorf("B.Health = %d, want %d", b.State.Health, 50+120)
			}
		})
	}
}

// --- S6: barrier fairness ---

type s6State struct{}
type s6Update struct{}
type s6Sim struct{}

func (s6Sim) Decide(sim.Agent[s6State], struct{}, sim.PopulationView[s6State], sim.Updater[s6State, s6Update]) {
}
func (s6Sim) Update(*s6State, []s6Update) bool { return false }

// TestScenarioBarrierFairness drives exactly the population-seeding half
// of one step (the part that assigns ids to shards) and inspects the
// per-shard spawn lists directly: those lists are precisely what each
// worker's "sync" step would load into its local map, so their lengths
// are the scenario's "each worker's local map size" without needing a
// live worker to ask.
func TestScenarioBarrierFairness(t *testing.T) {
	const nWorkers = 4
	const nAgents = 4000

	ctx := runCtx(t)
	st := store.NewMemStore()
	hasher := shardhash.New(nWorkers)

	pop := population.New[s6State, struct{}, s6Update](st, s6Sim{})
	pop.SetHasher(hasher)

	buf := updates.New[s6State, s6Update](hasher)
	for i := 0; i < nAgents; i++ {
		buf.Spawn(s6State{})
	}
	if err := buf.Push(ctx, st); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, err := pop.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}

	want := nAgents / nWorkers
	tolerance := want / 10
	for w := 0; w < nWorkers; w++ {
		items, err := st.LRange(ctx, store.KeySpawn(w))
		if err != nil {
			t.Fatalf("LRange(spawn:%d): %v", w, err)
		}
		n := len(items)
		if diff := n - want; diff < -tolerance || diff > tolerance {
			t.Errorf("shard %d local map size = %d, want within 10%% of %d", w, n, want)
		}
	}
}
