package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

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

// Setup initializes all service components. This is the shared entry point
// for cmd/engine and cmd/worker: both wire up the same Queue/StateStore
// pair, just from opposite ends (engine pushes, worker pops).
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := components.Config

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", cfg.Service.Environment,
	)

	// 3. Initialize Postgres (only needed when the StateStore tier is
	// "postgres"; cmd/worker running against memory or redis state never
	// pays for a pool).
	needsPostgres := cfg.StateStore.Type == "postgres"
	if !options.skipDB && needsPostgres {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, cfg, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing database connection")
			components.DB.Close()
			return nil
		})

		if options.dbInitHook != nil {
			components.Logger.Info("running database init hook")
			if err := options.dbInitHook(components.DB); err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("database init hook failed: %w", err)
			}
		}
	}

	// 4. Initialize the shared Redis client, if anything needs one: the
	// RedisQueue, the RedisStore, and the RateLimiter all talk to the same
	// instance, so one connection is built once and handed to whichever of
	// them is configured.
	needsRedis := cfg.Queue.Type == "redis" || cfg.StateStore.Type == "redis" || cfg.Engine.RateLimitEnabled
	if needsRedis {
		components.Logger.Info("connecting to redis", "addr", cfg.Redis.Addr)
		raw := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := raw.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		components.Redis = rediscommon.NewClient(raw, components.Logger)

		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return raw.Close()
		})
	}

	// 5. Initialize the TaskQueue
	if !options.skipQueue {
		components.Logger.Info("initializing queue", "type", cfg.Queue.Type)

		switch cfg.Queue.Type {
		case "memory":
			components.Queue = queue.NewMemoryQueue(cfg.Queue.MemoryBuffer)
		case "redis":
			components.Queue = queue.NewRedisQueue(components.Redis, cfg.Queue.RedisListKey)
		default:
			return nil, fmt.Errorf("unknown queue type: %s", cfg.Queue.Type)
		}
	}

	// 6. Initialize the StateStore
	if !options.skipStateStore {
		components.Logger.Info("initializing state store", "type", cfg.StateStore.Type)

		switch cfg.StateStore.Type {
		case "memory":
			components.Store = statestore.NewMemoryStore()
		case "redis":
			components.Store = statestore.NewRedisStore(components.Redis.GetUnderlying())
		case "postgres":
			if components.DB == nil {
				return nil, fmt.Errorf("postgres state store requires the database component")
			}
			components.Store = statestore.NewPostgresStore(components.DB.Pool)
		default:
			return nil, fmt.Errorf("unknown state store type: %s", cfg.StateStore.Type)
		}
	}

	// 7. Initialize the Function registry and the CEL evaluator: every
	// component that runs blueprints (the compiler's Function validation,
	// the worker's dispatch loop) shares the same registry instance.
	if !options.skipFunctions {
		components.Functions = function.NewRegistry()
		if err := components.Functions.Register(function.NewHTTPHandler()); err != nil {
			return nil, fmt.Errorf("failed to register http function handler: %w", err)
		}
	}
	components.Evaluator = expr.NewEvaluator()

	// 8. Initialize the rate limiter, if enabled
	if cfg.Engine.RateLimitEnabled {
		if components.Redis == nil {
			return nil, fmt.Errorf("rate limiting requires redis")
		}
		components.Logger.Info("initializing rate limiter", "global_limit", cfg.Engine.GlobalRateLimit)
		components.RateLimit = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), components.Logger)
	}

	// 9. Initialize cache
	if !options.skipCache && cfg.Cache.Enabled {
		components.Logger.Info("initializing cache", "size_mb", cfg.Cache.SizeMB)
		components.Cache = cache.NewMemoryCache(components.Logger)

		components.addCleanup(func() error {
			components.Logger.Info("closing cache")
			return components.Cache.Close()
		})
	}

	// 10. Initialize telemetry
	if !options.skipTelemetry && cfg.Telemetry.EnablePprof {
		components.Logger.Info("initializing telemetry")
		components.Telemetry = telemetry.New(
			cfg.Telemetry.PprofPort,
			cfg.Telemetry.MetricsPort,
			components.Logger,
		)

		if err := components.Telemetry.Start(ctx); err != nil {
			components.Logger.Warn("failed to start telemetry", "error", err)
		}
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"queue", components.Queue != nil,
		"store", components.Store != nil,
		"rate_limit", components.RateLimit != nil,
		"cache", components.Cache != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error. Useful for services that
// can't recover from initialization failure.
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
