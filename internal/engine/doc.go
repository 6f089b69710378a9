// Package engine implements the run orchestrator: it spawns the manager
// goroutine and nWorkers worker goroutines sharing one store handle and
// simulation value, and joins all of them.
package engine
