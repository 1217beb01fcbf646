package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Service    ServiceConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Queue      QueueConfig
	StateStore StateStoreConfig
	Engine     EngineConfig
	Telemetry  TelemetryConfig
}

// ServiceConfig holds service-specific settings.
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings, used by the durable
// PostgresStore tier.
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings, shared by the RedisQueue,
// RedisStore, and RateLimiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Enabled    bool
	SizeMB     int
	DefaultTTL time.Duration
}

// QueueConfig selects and configures the TaskQueue implementation.
type QueueConfig struct {
	Type          string // "memory" or "redis"
	MemoryBuffer  int    // MemoryQueue channel capacity
	RedisListKey  string // RedisQueue list key
}

// StateStoreConfig selects and configures the StateStore implementation.
type StateStoreConfig struct {
	Type string // "memory", "redis", or "postgres"
}

// EngineConfig holds workflow-engine-specific tuning.
type EngineConfig struct {
	PopTimeout         time.Duration // how long a worker blocks on an empty queue
	DefaultMaxAttempts int           // not read by the worker: a Function node with no retry policy makes one attempt
	HistoryLimit       int           // not read: instance.Ring's size is fixed at 500 events
	RateLimitEnabled   bool
	GlobalRateLimit    int64  // total HTTP requests/minute across all callers (GlobalRateLimitMiddleware)
	BlueprintsDir      string // directory of .yaml/.json workflow documents compiled at startup
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	EnablePprof    bool
	PprofPort      int
	EnableTracing  bool
	EnableMetrics  bool
	MetricsPort    int
	TracingBackend string
}

// Load loads configuration from environment variables.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "flowforge"),
			User:        getEnv("POSTGRES_USER", "flowforge"),
			Password:    getEnv("POSTGRES_PASSWORD", "flowforge"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			SizeMB:     getEnvInt("CACHE_SIZE_MB", 512),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Queue: QueueConfig{
			Type:         getEnv("QUEUE_TYPE", "memory"),
			MemoryBuffer: getEnvInt("QUEUE_MEMORY_BUFFER", 1024),
			RedisListKey: getEnv("QUEUE_REDIS_KEY", "flowforge:tasks"),
		},
		StateStore: StateStoreConfig{
			Type: getEnv("STATESTORE_TYPE", "memory"),
		},
		Engine: EngineConfig{
			PopTimeout:         getEnvDuration("ENGINE_POP_TIMEOUT", 5*time.Second),
			DefaultMaxAttempts: getEnvInt("ENGINE_DEFAULT_MAX_ATTEMPTS", 1),
			HistoryLimit:       getEnvInt("ENGINE_HISTORY_LIMIT", 500),
			RateLimitEnabled:   getEnvBool("ENGINE_RATE_LIMIT_ENABLED", false),
			GlobalRateLimit:    int64(getEnvInt("ENGINE_GLOBAL_RATE_LIMIT", 100)),
			BlueprintsDir:      getEnv("ENGINE_BLUEPRINTS_DIR", "blueprints"),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:    getEnvBool("ENABLE_PPROF", true),
			PprofPort:      getEnvInt("PPROF_PORT", 6060),
			EnableTracing:  getEnvBool("ENABLE_TRACING", false),
			EnableMetrics:  getEnvBool("ENABLE_METRICS", true),
			MetricsPort:    getEnvInt("METRICS_PORT", 9090),
			TracingBackend: getEnv("TRACING_BACKEND", "stdout"),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	switch c.Queue.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown queue type: %s", c.Queue.Type)
	}

	switch c.StateStore.Type {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown state store type: %s", c.StateStore.Type)
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
