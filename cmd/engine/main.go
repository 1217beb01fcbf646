package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/flowforge/engine/cmd/engine/events"
	"github.com/flowforge/engine/cmd/engine/handlers"
	"github.com/flowforge/engine/common/bootstrap"
	"github.com/flowforge/engine/common/engine"
	ratelimitmw "github.com/flowforge/engine/common/middleware"
	"github.com/flowforge/engine/common/metrics"
	"github.com/flowforge/engine/common/server"
	"github.com/flowforge/engine/common/worker"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "engine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap engine: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	eng := engine.New(components.Functions, components.Evaluator, components.Queue, components.Store, components.Logger)
	eng.RateLimit = components.RateLimit

	loaded, err := eng.LoadBlueprintsDir(components.Config.Engine.BlueprintsDir)
	if err != nil {
		components.Logger.Error("failed to load blueprints", "dir", components.Config.Engine.BlueprintsDir, "error", err)
		os.Exit(1)
	}
	components.Logger.Info("blueprints loaded", "dir", components.Config.Engine.BlueprintsDir, "count", len(loaded))

	hub := events.NewHub()
	go hub.Run()

	// cmd/engine also runs one embedded Worker loop so a single process
	// is enough to compile, start, and run blueprints to completion;
	// cmd/worker is the dedicated binary for scaling dispatch out across
	// many processes sharing the same Queue/StateStore.
	w := &worker.Worker{
		Blueprints: eng,
		Functions:  components.Functions,
		Queue:      components.Queue,
		Store:      components.Store,
		Evaluator:  components.Evaluator,
		Logger:     components.Logger,
		Events:     hub,
		PopTimeout: components.Config.Engine.PopTimeout,
	}
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go func() {
		if err := w.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			components.Logger.Error("embedded worker stopped", "error", err)
		}
	}()

	e := setupEcho()
	setupMiddleware(e)
	if components.RateLimit != nil {
		e.Use(ratelimitmw.GlobalRateLimitMiddleware(components.RateLimit, components.Config.Engine.GlobalRateLimit))
	}
	setupHealthCheck(e, components)
	registerRoutes(e, handlers.NewEngineHandler(components, eng, hub))

	srv := server.New("engine", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]interface{}{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(200, map[string]interface{}{
			"status":  "ok",
			"service": "engine",
			"system":  metrics.GetSystemInfo().ToMap(),
		})
	})
}
