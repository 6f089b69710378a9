package demo

import (
	"math/rand"

	"github.com/dreamware/loom/internal/sim"
)

// Pos is a cell coordinate on the grid.
type Pos struct {
	X, Y int
}

// Cell is one grid square: its remaining resources and which agents
// currently occupy it.
type Cell struct {
	Pos       Pos
	Resources int
	Occupants map[uint64]struct{}
}

// World is the grid. Cells is row-major, length Width*Height.
type World struct {
	Width, Height int
	Cells         []Cell
}

// NewWorld returns a Width x Height grid with every cell seeded at
// resourcePerCell.
func NewWorld(width, height, resourcePerCell int) World {
	cells := make([]Cell, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			cells[i] = Cell{
				Pos:       Pos{X: x, Y: y},
				Resources: resourcePerCell,
				Occupants: make(map[uint64]struct{}),
			}
		}
	}
	return World{Width: width, Height: height, Cells: cells}
}

func (w World) index(p Pos) int {
	return p.Y*w.Width + p.X
}

func (w World) cellAt(p Pos) *Cell {
	return &w.Cells[w.index(p)]
}

// State is one agent's position and stored energy.
type State struct {
	Resources int
	Pos       Pos
}

// UpdateKind tags an Update's payload, since msgpack has no native
// tagged-union support and Go has no sum types.
type UpdateKind uint8

const (
	UpdateGiveResource UpdateKind = iota
	UpdateReplenish
	UpdateDrain
	UpdateNewOccupant
	UpdateMoveOccupant
	UpdateMoveTo
)

// Update is the single payload type carrying every kind of mutation this
// simulation produces, agent-targeted and world-targeted alike.
type Update struct {
	Kind      UpdateKind
	Amount    int
	Positions []Pos
	ID        uint64
	Pos       Pos
	From, To  Pos
}

// Sim implements sim.Simulation[State, World, Update],
// sim.WorldSimulation[State, World, Update], sim.SpawnObserver[State],
// and sim.DeathObserver[State]: a resource-grid population-dynamics
// model where agents draw energy from cells, metabolize each step, die at
// zero resources, split in two at a birth threshold, and wander when
// their cell runs dry. Wandering is clamped at the grid edges.
type Sim struct {
	PReplenishment  float64
	BirthThreshold  int
	ResourcePerCell int
	ResourceToLive  int
	StartResources  int
	Width, Height   int
}

var (
	_ sim.Simulation[State, World, Update]      = Sim{}
	_ sim.WorldSimulation[State, World, Update] = Sim{}
	_ sim.SpawnObserver[State]                  = Sim{}
	_ sim.DeathObserver[State]                  = Sim{}
)

// Decide applies the birth/death/move rule: an agent with no energy
// dies; one with enough energy splits off a child at its own position;
// one standing on a drained cell wanders to a random neighbor.
func (s Sim) Decide(agent sim.Agent[State], world World, _ sim.PopulationView[State], u sim.Updater[State, Update]) {
	st := agent.State
	if st.Resources <= 0 {
		u.Kill(agent.ID, st)
		return
	}

	if st.Resources >= s.BirthThreshold {
		childID := u.Spawn(State{Resources: s.StartResources, Pos: st.Pos})
		u.QueueWorld(Update{Kind: UpdateNewOccupant, ID: childID, Pos: st.Pos})
	}

	if world.cellAt(st.Pos).Resources <= 0 {
		next := s.randomNeighbor(st.Pos)
		u.Queue(agent.ID, Update{Kind: UpdateMoveTo, Pos: next})
		u.QueueWorld(Update{Kind: UpdateMoveOccupant, ID: agent.ID, From: st.Pos, To: next})
	}
}

func (s Sim) randomNeighbor(p Pos) Pos {
	x := p.X
	if rand.Float64() < 0.5 {
		x = min(p.X+1, s.Width-1)
	} else {
		x = max(p.X-1, 0)
	}
	y := p.Y
	if rand.Float64() < 0.5 {
		y = min(p.Y+1, s.Height-1)
	} else {
		y = max(p.Y-1, 0)
	}
	return Pos{X: x, Y: y}
}

// Update applies queued moves/energy gains, then metabolizes: every
// agent spends ResourceToLive energy each step regardless of what else
// happened to it.
func (s Sim) Update(state *State, ups []Update) bool {
	before := state.Resources
	changed := false
	for _, up := range ups {
		switch up.Kind {
		case UpdateMoveTo:
			state.Pos = up.Pos
			changed = true
		case UpdateGiveResource:
			state.Resources += up.Amount
			changed = true
		}
	}
	if state.Resources <= s.ResourceToLive {
		state.Resources = 0
	} else {
		state.Resources -= s.ResourceToLive
	}
	return changed || state.Resources != before
}

// WorldDecide gives one random occupant of every resourced cell that
// cell's entire stock, then marks it drained; empty cells replenish
// with probability PReplenishment.
func (s Sim) WorldDecide(world World, _ sim.PopulationView[State], u sim.Updater[State, Update]) {
	var toDrain, toReplenish []Pos
	for _, c := range world.Cells {
		if c.Resources > 0 {
			if len(c.Occupants) > 0 {
				id := randomOccupant(c.Occupants)
				u.Queue(id, Update{Kind: UpdateGiveResource, Amount: c.Resources})
				toDrain = append(toDrain, c.Pos)
			}
		} else if rand.Float64() <= s.PReplenishment {
			toReplenish = append(toReplenish, c.Pos)
		}
	}
	u.QueueWorld(Update{Kind: UpdateReplenish, Positions: toReplenish})
	u.QueueWorld(Update{Kind: UpdateDrain, Positions: toDrain})
}

func randomOccupant(occupants map[uint64]struct{}) uint64 {
	n := rand.Intn(len(occupants))
	i := 0
	for id := range occupants {
		if i == n {
			return id
		}
		i++
	}
	panic("demo: randomOccupant called on empty map")
}

// WorldUpdate applies the accumulated replenish/drain/occupancy updates
// to the grid.
func (s Sim) WorldUpdate(world World, ups []Update) World {
	for _, up := range ups {
		switch up.Kind {
		case UpdateReplenish:
			for _, p := range up.Positions {
				world.cellAt(p).Resources = s.ResourcePerCell
			}
		case UpdateDrain:
			for _, p := range up.Positions {
				world.cellAt(p).Resources = 0
			}
		case UpdateNewOccupant:
			world.cellAt(up.Pos).Occupants[up.ID] = struct{}{}
		case UpdateMoveOccupant:
			delete(world.cellAt(up.From).Occupants, up.ID)
			world.cellAt(up.To).Occupants[up.ID] = struct{}{}
		}
	}
	return world
}

// OnSpawns adds every newly-born agent to the "people" index, so
// reporters can call population.CountIndex("people") for a live census
// without scanning the whole population set.
func (s Sim) OnSpawns(agents []sim.Agent[State], population sim.PopulationView[State]) {
	ids := make([]uint64, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	population.Indexes("people", ids)
}

// OnDeaths is the Kill-side counterpart of OnSpawns.
func (s Sim) OnDeaths(agents []sim.Agent[State], population sim.PopulationView[State]) {
	ids := make([]uint64, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	population.Unindexes("people", ids)
}
