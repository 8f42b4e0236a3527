package di

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/viper"

	"github.com/goliatone/go-repository-indexcache/cache"
)

// EnvPrefix prefixes the environment variables read by LoadConfig, e.g.
// INDEXCACHE_CACHE_BACKEND or INDEXCACHE_DB_DSN.
const EnvPrefix = "INDEXCACHE"

// Config is the container configuration.
type Config struct {
	Cache   cache.Config  `mapstructure:"cache"`
	DB      DBConfig      `mapstructure:"db"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// DBConfig selects the system of record. Driver is "sqlite3" or "postgres";
// an empty Driver leaves the container without a database.
type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// MetricsConfig controls the Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// DefaultConfig returns an in-memory cache with metrics enabled and no database.
func DefaultConfig() Config {
	return Config{
		Cache: cache.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "indexcache",
		},
	}
}

// Validate checks the cache and database settings.
func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	switch c.DB.Driver {
	case "", DriverSQLite, DriverPostgres:
	default:
		return goerrors.New("unsupported db driver "+c.DB.Driver, goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"field": "db.driver"})
	}
	if c.DB.Driver != "" && c.DB.DSN == "" {
		return goerrors.New("db.dsn is required when db.driver is set", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"field": "db.dsn"})
	}
	return nil
}

// LoadConfig reads the configuration file at path (any format viper knows)
// over DefaultConfig, then applies INDEXCACHE_* environment variables. An
// empty path reads defaults and environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "read config "+path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.key_prefix", d.Cache.KeyPrefix)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("cache.memory.capacity", d.Cache.Memory.Capacity)
	v.SetDefault("cache.memory.num_shards", d.Cache.Memory.NumShards)
	v.SetDefault("cache.memory.eviction_percentage", d.Cache.Memory.EvictionPercentage)
	v.SetDefault("cache.memory.eviction_interval", d.Cache.Memory.EvictionInterval)

	v.SetDefault("cache.redis.addr", d.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", d.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", d.Cache.Redis.DB)
	v.SetDefault("cache.redis.pool_size", d.Cache.Redis.PoolSize)
	v.SetDefault("cache.redis.max_retries", d.Cache.Redis.MaxRetries)
	v.SetDefault("cache.redis.dial_timeout", d.Cache.Redis.DialTimeout)
	v.SetDefault("cache.redis.read_timeout", d.Cache.Redis.ReadTimeout)
	v.SetDefault("cache.redis.write_timeout", d.Cache.Redis.WriteTimeout)

	v.SetDefault("db.driver", d.DB.Driver)
	v.SetDefault("db.dsn", d.DB.DSN)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}
