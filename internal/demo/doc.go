// Package demo implements a grid population dynamics model: agents
// occupy grid cells, draw energy from cell resources, metabolize it every
// step, die when they run out, and split into two when they accumulate
// enough. The grid does not wrap: moves past an edge stay on the edge. It serves as the reference simulation wired into
// cmd/manager and cmd/worker.
package demo
