// Package main implements a loom worker process: it owns one shard of
// the agent population, attaching to the shared coordinator store and
// looping on the manager's sync/decide/update commands until the run
// terminates. See internal/worker for the protocol and internal/demo
// for the population-dynamics scenario this binary runs.
//
// Any number of worker processes may run concurrently against the same
// store; each claims a distinct shard index once the run starts.
//
// Configuration:
//   - STORE_ADDR: Redis address (default: "127.0.0.1:6379")
//   - SCENARIO_CONFIG: optional path to a YAML scenario file overlaying
//     internal/demo.DefaultConfig (must match the manager's)
//
// Example usage:
//
//	STORE_ADDR=127.0.0.1:6379 ./worker
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dreamware/loom/internal/demo"
	"github.com/dreamware/loom/internal/store"
	"github.com/dreamware/loom/internal/worker"
)

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
		log.Println("worker: shutdown signal received")
		cancel()
	}()

	w := worker.New[demo.State, demo.World, demo.Update](st, cfg.Simulation())
	log.Println("worker: registered, waiting for run to start")
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		logFatal("run: %v", err)
	}
	log.Println("worker: stopped")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
