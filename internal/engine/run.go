package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/loom/internal/manager"
	"github.com/dreamware/loom/internal/sim"
	"github.com/dreamware/loom/internal/store"
	"github.com/dreamware/loom/internal/worker"
)

// Run spawns nWorkers worker goroutines bound to st and simulation,
// spawns mgr's Run as a goroutine, and waits for all of them to finish.
// mgr must already carry any initial population staged via
// Manager.Spawn/Spawns.
//
// If any worker or the manager returns a non-nil error, the others are
// canceled via their shared context and Run returns the first error.
func Run[S, W, U any](ctx context.Context, st store.Store, simulation sim.Simulation[S, W, U], mgr *manager.Manager[S, W, U], world W, nWorkers, nSteps int) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < nWorkers; i++ {
		w := worker.New[S, W, U](st, simulation)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	g.Go(func() error {
		return mgr.Run(gctx, world, nSteps)
	})

	return g.Wait()
}
