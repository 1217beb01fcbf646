package bootstrap

import (
	"github.com/flowforge/engine/common/config"
	"github.com/flowforge/engine/common/db"
	"github.com/flowforge/engine/common/logger"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	skipDB         bool
	skipQueue      bool
	skipStateStore bool
	skipCache      bool
	skipTelemetry  bool
	skipFunctions  bool
	customLogger   *logger.Logger
	customConfig   *config.Config
	dbInitHook     func(*db.DB) error
}

// WithoutDB skips database initialization. A StateStore of type "postgres"
// still needs the pool, so this is only safe to combine with a memory or
// redis StateStore.
func WithoutDB() Option {
	return func(o *options) {
		o.skipDB = true
	}
}

// WithoutQueue skips TaskQueue initialization
func WithoutQueue() Option {
	return func(o *options) {
		o.skipQueue = true
	}
}

// WithoutStateStore skips StateStore initialization
func WithoutStateStore() Option {
	return func(o *options) {
		o.skipStateStore = true
	}
}

// WithoutCache skips cache initialization
func WithoutCache() Option {
	return func(o *options) {
		o.skipCache = true
	}
}

// WithoutTelemetry skips telemetry initialization
func WithoutTelemetry() Option {
	return func(o *options) {
		o.skipTelemetry = true
	}
}

// WithoutFunctions skips registering the built-in Function handlers
func WithoutFunctions() Option {
	return func(o *options) {
		o.skipFunctions = true
	}
}

// WithCustomLogger uses a custom logger instead of creating one
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCustomConfig uses a custom config instead of loading from env
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}

// WithDBInitHook runs a custom function after DB initialization
// Useful for running migrations, seeding data, etc.
func WithDBInitHook(hook func(*db.DB) error) Option {
	return func(o *options) {
		o.dbInitHook = hook
	}
}

func defaultOptions() *options {
	return &options{
		skipDB:         false,
		skipQueue:      false,
		skipStateStore: false,
		skipCache:      false,
		skipTelemetry:  false,
		skipFunctions:  false,
	}
}
