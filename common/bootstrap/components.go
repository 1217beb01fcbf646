package bootstrap

import (
	"context"
	"fmt"

	"github.com/flowforge/engine/common/cache"
	"github.com/flowforge/engine/common/config"
	"github.com/flowforge/engine/common/db"
	"github.com/flowforge/engine/common/expr"
	"github.com/flowforge/engine/common/function"
	"github.com/flowforge/engine/common/logger"
	"github.com/flowforge/engine/common/queue"
	"github.com/flowforge/engine/common/ratelimit"
	rediscommon "github.com/flowforge/engine/common/redis"
	"github.com/flowforge/engine/common/statestore"
	"github.com/flowforge/engine/common/telemetry"
)

// Components holds all initialized service dependencies that cmd/engine
// and cmd/worker share: both binaries call Setup with the same config and
// differ only in which of the resulting components they act on.
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.DB
	Redis     *rediscommon.Client
	Queue     queue.TaskQueue
	Store     statestore.StateStore
	Cache     cache.Cache
	Functions *function.Registry
	Evaluator *expr.Evaluator
	RateLimit *ratelimit.RateLimiter
	Telemetry *telemetry.Telemetry

	// Internal
	cleanupFuncs []func() error
}

// Shutdown performs graceful shutdown of all components.
// Should be called with defer after Setup().
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errors []error

	// Run cleanup functions in reverse order (LIFO)
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errors = append(errors, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("shutdown errors: %v", errors)
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// Health checks health of all components.
func (c *Components) Health(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Health(ctx); err != nil {
			return fmt.Errorf("database unhealthy: %w", err)
		}
	}
	if c.Redis != nil {
		if _, err := c.Redis.GetUnderlying().Ping(ctx).Result(); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}
	return nil
}

// addCleanup registers a cleanup function.
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
