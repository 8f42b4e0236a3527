package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the Redis-backed key-value store. Scalars are plain string
// keys, lists are Redis lists; every value is msgpack encoded.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore validates cfg and connects a go-redis client.
// The connection is lazy; use Ping to check reachability.
func NewRedisStore(cfg Config) (*RedisStore, error) {
	cfg.Backend = BackendRedis
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	return NewRedisStoreFromClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client. A zero ttl stores keys without expiry.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Get implements cache.KeyValueStore.
func (s *RedisStore) Get(ctx context.Context, key string) (any, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	v, err := decodeValue(data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set implements cache.KeyValueStore.
func (s *RedisStore) Set(ctx context.Context, key string, value any) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete implements cache.KeyValueStore using GETDEL.
func (s *RedisStore) Delete(ctx context.Context, key string) (any, bool, error) {
	data, err := s.client.GetDel(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis delete %s: %w", key, err)
	}
	v, err := decodeValue(data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// ListPush implements cache.KeyValueStore. The list TTL is refreshed on every
// push so it outlives the records whose back-references it holds.
func (s *RedisStore) ListPush(ctx context.Context, key string, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	items, err := encodeValues(values)
	if err != nil {
		return err
	}
	args := make([]any, len(items))
	for i, item := range items {
		args[i] = item
	}

	k := s.key(key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, args...)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis list push %s: %w", key, err)
	}
	return nil
}

// ListRemove implements cache.KeyValueStore. LREM with a negative count
// removes from the tail, which undoes the matching RPUSH exactly.
func (s *RedisStore) ListRemove(ctx context.Context, key string, value any) error {
	item, err := encodeValue(value)
	if err != nil {
		return err
	}
	if err := s.client.LRem(ctx, s.key(key), -1, item).Err(); err != nil {
		return fmt.Errorf("redis list remove %s: %w", key, err)
	}
	return nil
}

// ListGetAll implements cache.KeyValueStore.
func (s *RedisStore) ListGetAll(ctx context.Context, key string) ([]any, error) {
	raw, err := s.client.LRange(ctx, s.key(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list get %s: %w", key, err)
	}
	return decodeStrings(raw)
}

// ListClear implements cache.KeyValueStore. Read and delete run in one MULTI block.
func (s *RedisStore) ListClear(ctx context.Context, key string) ([]any, error) {
	k := s.key(key)
	var lrange *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, k, 0, -1)
		pipe.Del(ctx, k)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis list clear %s: %w", key, err)
	}
	return decodeStrings(lrange.Val())
}

func decodeStrings(raw []string) ([]any, error) {
	items := make([][]byte, len(raw))
	for i, r := range raw {
		items[i] = []byte(r)
	}
	return decodeValues(items)
}
