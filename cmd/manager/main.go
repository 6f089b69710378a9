// Package main implements the loom manager process: the single
// coordination point of a run. It connects to the shared coordinator
// store, stages the initial agent population, drives the
// sync/decide/update step sequence, and reports population size at a
// configurable interval. See internal/manager for the protocol and
// internal/demo for the population-dynamics scenario this binary runs.
//
// Configuration:
//   - STORE_ADDR: Redis address (default: "127.0.0.1:6379")
//   - SCENARIO_CONFIG: optional path to a YAML scenario file overlaying
//     internal/demo.DefaultConfig
//
// Example usage:
//
//	STORE_ADDR=127.0.0.1:6379 ./manager
package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/loom/internal/demo"
	"github.com/dreamware/loom/internal/manager"
	"github.com/dreamware/loom/internal/population"
	"github.com/dreamware/loom/internal/store"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	storeAddr := getenv("STORE_ADDR", "127.0.0.1:6379")

	cfg := demo.DefaultConfig()
	if path := os.Getenv("SCENARIO_CONFIG"); path != "" {
		loaded, err := demo.LoadConfig(path)
		if err != nil {
			logFatal("load scenario config: %v", err)
		}
		cfg = loaded
	}

	st, err := store.NewRedisStore(storeAddr)
	if err != nil {
		logFatal("connect to store: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Println("manager: shutdown signal received")
		cancel()
	}()

	sim := cfg.Simulation()
	mgr, err := manager.New[demo.State, demo.World, demo.Update](ctx, st, sim)
	if err != nil {
		logFatal("new manager: %v", err)
	}

	world := demo.NewWorld(cfg.Width, cfg.Height, cfg.ResourcePerCell)
	for i := 0; i < cfg.StartPopulation; i++ {
		pos := demo.Pos{X: rand.Intn(cfg.Width), Y: rand.Intn(cfg.Height)}
		id := mgr.Spawn(demo.State{Resources: cfg.StartResources, Pos: pos})
		cell := &world.Cells[pos.Y*world.Width+pos.X]
		cell.Occupants[id] = struct{}{}
	}
	log.Printf("manager: staged %d initial agents on a %dx%d grid", cfg.StartPopulation, cfg.Width, cfg.Height)

	mgr.RegisterReporter(manager.Reporter[demo.State, demo.World, demo.Update]{
		Interval: cfg.ReportEvery,
		Fn: func(ctx context.Context, step int, pop *population.Population[demo.State, demo.World, demo.Update], _ store.Store) error {
			n, err := pop.CountIndex(ctx, "people")
			if err != nil {
				return err
			}
			log.Printf("[%02d] population: %d", step, n)
			return nil
		},
	})

	start := time.Now()
	if err := mgr.Run(ctx, world, cfg.NSteps); err != nil {
		logFatal("run: %v", err)
	}
	log.Printf("manager: run finished in %s", time.Since(start))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
