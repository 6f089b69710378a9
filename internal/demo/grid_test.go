package demo

import (
	"testing"

	"github.com/dreamware/loom/internal/sim"
)

func TestDecideKillsStarvedAgent(t *testing.T) {
	s := Sim{Width: 4, Height: 4, ResourceToLive: 6, BirthThreshold: 10, StartResources: 10}
	world := NewWorld(4, 4, 6)
	buf := newCaptureUpdater()

	s.Decide(sim.Agent[State]{ID: 1, State: State{Resources: 0, Pos: Pos{X: 1, Y: 1}}}, world, nil, buf)

	if len(buf.kills) != 1 || buf.kills[0] != 1 {
		t.Fatalf("kills = %v, want [1]", buf.kills)
	}
	if len(buf.spawns) != 0 {
		t.Errorf("expected no spawns for a starved agent, got %d", len(buf.spawns))
	}
}

func TestDecideSpawnsAtBirthThreshold(t *testing.T) {
	s := Sim{Width: 4, Height: 4, ResourceToLive: 6, BirthThreshold: 10, StartResources: 10}
	world := NewWorld(4, 4, 6)
	buf := newCaptureUpdater()

	s.Decide(sim.Agent[State]{ID: 1, State: State{Resources: 12, Pos: Pos{X: 1, Y: 1}}}, world, nil, buf)

	if len(buf.spawns) != 1 {
		t.Fatalf("spawns = %d, want 1", len(buf.spawns))
	}
	if buf.spawns[0].Resources != s.StartResources {
		t.Errorf("spawned child Resources = %d, want %d", buf.spawns[0].Resources, s.StartResources)
	}
}

func TestUpdateMetabolizesAndDetectsChange(t *testing.T) {
	s := Sim{ResourceToLive: 6}
	st := &State{Resources: 20}
	changed := s.Update(st, nil)
	if !changed {
		t.Error("expected metabolism alone to count as a change")
	}
	if st.Resources != 14 {
		t.Errorf("Resources = %d, want 14", st.Resources)
	}
}

func TestUpdateStarvesToZeroNotNegative(t *testing.T) {
	s := Sim{ResourceToLive: 6}
	st := &State{Resources: 3}
	s.Update(st, nil)
	if st.Resources != 0 {
		t.Errorf("Resources = %d, want 0 (clamped)", st.Resources)
	}
}

func TestWorldUpdateAppliesReplenishDrainAndOccupancy(t *testing.T) {
	s := Sim{ResourcePerCell: 6}
	world := NewWorld(2, 2, 6)
	pos := Pos{X: 0, Y: 0}
	world.cellAt(pos).Resources = 0

	world = s.WorldUpdate(world, []Update{
		{Kind: UpdateReplenish, Positions: []Pos{pos}},
		{Kind: UpdateNewOccupant, ID: 7, Pos: pos},
	})
	if world.cellAt(pos).Resources != 6 {
		t.Errorf("Resources = %d, want 6", world.cellAt(pos).Resources)
	}
	if _, ok := world.cellAt(pos).Occupants[7]; !ok {
		t.Error("expected occupant 7 registered at pos")
	}

	other := Pos{X: 1, Y: 1}
	world = s.WorldUpdate(world, []Update{
		{Kind: UpdateMoveOccupant, ID: 7, From: pos, To: other},
		{Kind: UpdateDrain, Positions: []Pos{other}},
	})
	if _, ok := world.cellAt(pos).Occupants[7]; ok {
		t.Error("expected occupant 7 removed from original pos")
	}
	if _, ok := world.cellAt(other).Occupants[7]; !ok {
		t.Error("expected occupant 7 registered at new pos")
	}
	if world.cellAt(other).Resources != 0 {
		t.Errorf("Resources at drained cell = %d, want 0", world.cellAt(other).Resources)
	}
}

// captureUpdater is a minimal sim.Updater[State, Update] stand-in that
// records calls instead of routing them through a shard hasher, enough
// to assert what Decide/WorldDecide stage without a store.
type captureUpdater struct {
	queued map[uint64][]Update
	world  []Update
	spawns []State
	kills  []uint64
}

func newCaptureUpdater() *captureUpdater {
	return &captureUpdater{queued: make(map[uint64][]Update)}
}

func (c *captureUpdater) Queue(id uint64, u Update) { c.queued[id] = append(c.queued[id], u) }
func (c *captureUpdater) QueueWorld(u Update)       { c.world = append(c.world, u) }
func (c *captureUpdater) Spawn(state State) uint64 {
	c.spawns = append(c.spawns, state)
	return uint64(len(c.spawns))
}
func (c *captureUpdater) Kill(id uint64, _ State) { c.kills = append(c.kills, id) }

var _ sim.Updater[State, Update] = (*captureUpdater)(nil)
