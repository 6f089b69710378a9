package integration

import (
	"sync"
	"testing"

	"github.com/dreamware/loom/internal/demo"
	"github.com/dreamware/loom/internal/engine"
	"github.com/dreamware/loom/internal/manager"
	"github.com/dreamware/loom/internal/sim"
	"github.com/dreamware/loom/internal/store"
)

// trackedSim wraps demo.Sim to record every id it sees spawned or
// killed, independent of the "people" index demo.Sim itself maintains —
// giving the test a second, independently-derived account of who should
// be alive to check the store against.
type trackedSim struct {
	demo.Sim
	mu      sync.Mutex
	spawned map[uint64]bool
	killed  map[uint64]bool
}

func newTrackedSim(s demo.Sim) *trackedSim {
	return &trackedSim{Sim: s, spawned: make(map[uint64]bool), killed: make(map[uint64]bool)}
}

func (s *trackedSim) OnSpawns(agents []sim.Agent[demo.State], pop sim.PopulationView[demo.State]) {
	s.Sim.OnSpawns(agents, pop)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range agents {
		s.spawned[a.ID] = true
	}
}

func (s *trackedSim) OnDeaths(agents []sim.Agent[demo.State], pop sim.PopulationView[demo.State]) {
	s.Sim.OnDeaths(agents, pop)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range agents {
		s.killed[a.ID] = true
	}
}

// TestScenarioResourceGrid seeds a small grid, runs it for a handful of
// steps, and confirms every id the simulation reports
// killed is absent from the store while every id reported spawned but
// not killed is present — i.e. a kill issued in some step's decide is
// reflected in the population by the time the run ends, and the
// "people" index stays exactly in sync with the population set.
func TestScenarioResourceGrid(t *testing.T) {
	ctx := runCtx(t)
	st := store.NewMemStore()

	cfg := demo.Config{
		Width: 4, Height: 4,
		ResourcePerCell: 6, ResourceToLive: 6,
		StartResources: 4, BirthThreshold: 10,
		PReplenishment: 0.9,
	}
	tracked := newTrackedSim(cfg.Simulation())

	mgr, err := manager.New[demo.State, demo.World, demo.Update](ctx, st, tracked)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	world := demo.NewWorld(cfg.Width, cfg.Height, cfg.ResourcePerCell)
	var initial []uint64
	for i := 0; i < 12; i++ {
		pos := demo.Pos{X: i % cfg.Width, Y: (i / cfg.Width) % cfg.Height}
		id := mgr.Spawn(demo.State{Resources: cfg.StartResources, Pos: pos})
		world.Cells[pos.Y*world.Width+pos.X].Occupants[id] = struct{}{}
		initial = append(initial, id)
	}

	if err := engine.Run[demo.State, demo.World, demo.Update](ctx, st, tracked, mgr, world, 2, 8); err != nil {
		t.Fatalf("Run: %v", err)
	}

	pop := mgr.Population()

	for id := range tracked.killed {
		if _, ok, err := pop.GetAgent(ctx, id); err != nil {
			t.Fatalf("GetAgent(%d): %v", id, err)
		} else if ok {
			t.Errorf("agent %d was reported killed but is still present", id)
		}
	}

	alive := map[uint64]bool{}
	for _, id := range initial {
		alive[id] = true
	}
	for id := range tracked.spawned {
		alive[id] = true
	}
	for id := range tracked.killed {
		delete(alive, id)
	}
	for id := range alive {
		if _, ok, err := pop.GetAgent(ctx, id); err != nil {
			t.Fatalf("GetAgent(%d): %v", id, err)
		} else if !ok {
			t.Errorf("agent %d should be alive (never reported killed) but is absent", id)
		}
	}

	count, err := pop.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	peopleCount, err := pop.CountIndex(ctx, "people")
	if err != nil {
		t.Fatalf("CountIndex: %v", err)
	}
	if count != peopleCount {
		t.Errorf("population count = %d, \"people\" index count = %d, want equal", count, peopleCount)
	}
}
