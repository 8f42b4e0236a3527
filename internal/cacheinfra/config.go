package cacheinfra

import (
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the configuration for the key-value store adapters.
type Config struct {
	// Backend selects the adapter: "memory" (sturdyc) or "redis".
	Backend string

	// KeyPrefix is prepended to every key written by the adapter.
	// Usually built with cache.KeyPrefix(environment, app).
	KeyPrefix string

	// TTL is the time-to-live applied to cached entries.
	// The memory backend requires it to be greater than 0; for redis,
	// zero means entries never expire.
	TTL time.Duration

	Memory MemoryConfig
	Redis  RedisConfig
}

// MemoryConfig configures the in-process sturdyc client.
type MemoryConfig struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		TTL:     5 * time.Minute,
		Memory: MemoryConfig{
			Capacity:           10000,
			NumShards:          256,
			EvictionPercentage: 10,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}

// ToSturdycOptions converts the memory settings to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage are passed directly to
// sturdyc.New and are not included here.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.Memory.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.Memory.EvictionInterval))
	}
	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if strings.Contains(c.KeyPrefix, " ") {
		return &ConfigError{Field: "KeyPrefix", Message: "must not contain spaces"}
	}

	if c.TTL < 0 {
		return &ConfigError{Field: "TTL", Message: "must be non-negative"}
	}

	switch c.Backend {
	case BackendMemory:
		return c.validateMemory()
	case BackendRedis:
		return c.validateRedis()
	default:
		return &ConfigError{Field: "Backend", Message: "must be one of memory, redis"}
	}
}

func (c Config) validateMemory() error {
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.Memory.Capacity <= 0 {
		return &ConfigError{Field: "Memory.Capacity", Message: "must be greater than 0"}
	}

	if c.Memory.NumShards <= 0 {
		return &ConfigError{Field: "Memory.NumShards", Message: "must be greater than 0"}
	}

	if c.Memory.EvictionPercentage < 1 || c.Memory.EvictionPercentage > 100 {
		return &ConfigError{Field: "Memory.EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.Memory.EvictionInterval < 0 {
		return &ConfigError{Field: "Memory.EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

func (c Config) validateRedis() error {
	if c.Redis.Addr == "" {
		return &ConfigError{Field: "Redis.Addr", Message: "cannot be empty"}
	}

	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		return &ConfigError{Field: "Redis.DB", Message: "must be between 0 and 15"}
	}

	if c.Redis.PoolSize <= 0 {
		return &ConfigError{Field: "Redis.PoolSize", Message: "must be greater than 0"}
	}

	if c.Redis.MaxRetries < 0 {
		return &ConfigError{Field: "Redis.MaxRetries", Message: "must be non-negative"}
	}

	if c.Redis.DialTimeout <= 0 || c.Redis.ReadTimeout <= 0 || c.Redis.WriteTimeout <= 0 {
		return &ConfigError{Field: "Redis.Timeouts", Message: "must be greater than 0"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
