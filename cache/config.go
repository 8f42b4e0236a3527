package cache

import (
	"time"

	"github.com/goliatone/go-repository-indexcache/internal/cacheinfra"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = cacheinfra.BackendMemory
	BackendRedis  = cacheinfra.BackendRedis
)

var (
	_ KeyValueStore = (*cacheinfra.MemoryStore)(nil)
	_ KeyValueStore = (*cacheinfra.RedisStore)(nil)
	_ Closer        = (*cacheinfra.RedisStore)(nil)
)

// Config exposes key-value store configuration options for consumers of the cache package.
type Config struct {
	Backend   string        `mapstructure:"backend"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	Memory    MemoryConfig  `mapstructure:"memory"`
	Redis     RedisConfig   `mapstructure:"redis"`
}

// MemoryConfig mirrors the in-process sturdyc options.
type MemoryConfig struct {
	Capacity           int           `mapstructure:"capacity"`
	NumShards          int           `mapstructure:"num_shards"`
	EvictionPercentage int           `mapstructure:"eviction_percentage"`
	EvictionInterval   time.Duration `mapstructure:"eviction_interval"`
}

// RedisConfig mirrors the go-redis connection options.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewStore constructs the KeyValueStore selected by cfg.Backend.
func NewStore(cfg Config) (KeyValueStore, error) {
	internal := cfg.toInternal()
	if err := internal.Validate(); err != nil {
		return nil, err
	}
	if internal.Backend == BackendRedis {
		return cacheinfra.NewRedisStore(internal)
	}
	return cacheinfra.NewMemoryStore(internal)
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Backend:   c.Backend,
		KeyPrefix: c.KeyPrefix,
		TTL:       c.TTL,
		Memory: cacheinfra.MemoryConfig{
			Capacity:           c.Memory.Capacity,
			NumShards:          c.Memory.NumShards,
			EvictionPercentage: c.Memory.EvictionPercentage,
			EvictionInterval:   c.Memory.EvictionInterval,
		},
		Redis: cacheinfra.RedisConfig{
			Addr:         c.Redis.Addr,
			Password:     c.Redis.Password,
			DB:           c.Redis.DB,
			PoolSize:     c.Redis.PoolSize,
			MaxRetries:   c.Redis.MaxRetries,
			DialTimeout:  c.Redis.DialTimeout,
			ReadTimeout:  c.Redis.ReadTimeout,
			WriteTimeout: c.Redis.WriteTimeout,
		},
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Backend:   cfg.Backend,
		KeyPrefix: cfg.KeyPrefix,
		TTL:       cfg.TTL,
		Memory: MemoryConfig{
			Capacity:           cfg.Memory.Capacity,
			NumShards:          cfg.Memory.NumShards,
			EvictionPercentage: cfg.Memory.EvictionPercentage,
			EvictionInterval:   cfg.Memory.EvictionInterval,
		},
		Redis: RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		},
	}
}
