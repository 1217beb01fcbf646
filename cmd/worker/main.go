// Command worker runs a standalone Task dispatch loop against the
// configured TaskQueue/StateStore, scaled out independently of cmd/engine's
// HTTP surface. Any number of worker processes may share one Queue and
// StateStore.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowforge/engine/common/bootstrap"
	"github.com/flowforge/engine/common/engine"
	"github.com/flowforge/engine/common/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Setup(ctx, "worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap worker: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	eng := engine.New(components.Functions, components.Evaluator, components.Queue, components.Store, components.Logger)

	loaded, err := eng.LoadBlueprintsDir(components.Config.Engine.BlueprintsDir)
	if err != nil {
		components.Logger.Error("failed to load blueprints", "dir", components.Config.Engine.BlueprintsDir, "error", err)
		os.Exit(1)
	}
	components.Logger.Info("blueprints loaded", "dir", components.Config.Engine.BlueprintsDir, "count", len(loaded))

	w := &worker.Worker{
		Blueprints: eng,
		Functions:  components.Functions,
		Queue:      components.Queue,
		Store:      components.Store,
		Evaluator:  components.Evaluator,
		Logger:     components.Logger,
		PopTimeout: components.Config.Engine.PopTimeout,
	}

	components.Logger.Info("starting worker")
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		components.Logger.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
	components.Logger.Info("worker stopped")
}
