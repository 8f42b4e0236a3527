package cacheinfra

import (
	"bytes"
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

// MemoryStore is an in-process key-value store. Scalar keys live in a sturdyc
// client (sharded, TTL, capacity eviction); lists live in an xsync map so that
// back-reference lists are never evicted ahead of the records they point to.
type MemoryStore struct {
	values *sturdyc.Client[[]byte]
	lists  *xsync.MapOf[string, [][]byte]
	prefix string

	// guards scalar writes so Delete reads and removes the same value
	mu sync.Mutex
}

// NewMemoryStore validates cfg and builds a MemoryStore.
func NewMemoryStore(cfg Config) (*MemoryStore, error) {
	cfg.Backend = BackendMemory
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[[]byte](
		cfg.Memory.Capacity,
		cfg.Memory.NumShards,
		cfg.TTL,
		cfg.Memory.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &MemoryStore{
		values: client,
		lists:  xsync.NewMapOf[string, [][]byte](),
		prefix: cfg.KeyPrefix,
	}, nil
}

func (s *MemoryStore) key(k string) string {
	return s.prefix + k
}

// Get implements cache.KeyValueStore.
func (s *MemoryStore) Get(ctx context.Context, key string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, ok := s.values.Get(s.key(key))
	if !ok {
		return nil, false, nil
	}
	v, err := decodeValue(data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set implements cache.KeyValueStore.
func (s *MemoryStore) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values.Set(s.key(key), data)
	s.mu.Unlock()
	return nil
}

// Delete implements cache.KeyValueStore.
func (s *MemoryStore) Delete(ctx context.Context, key string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	data, ok := s.values.Get(s.key(key))
	if ok {
		s.values.Delete(s.key(key))
	}
	s.mu.Unlock()

	if !ok {
		return nil, false, nil
	}
	v, err := decodeValue(data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// ListPush implements cache.KeyValueStore.
func (s *MemoryStore) ListPush(ctx context.Context, key string, values ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	items, err := encodeValues(values)
	if err != nil {
		return err
	}
	s.lists.Compute(s.key(key), func(old [][]byte, loaded bool) ([][]byte, bool) {
		next := make([][]byte, 0, len(old)+len(items))
		next = append(next, old...)
		next = append(next, items...)
		return next, false
	})
	return nil
}

// ListRemove implements cache.KeyValueStore. Only the last matching element is removed.
func (s *MemoryStore) ListRemove(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	item, err := encodeValue(value)
	if err != nil {
		return err
	}
	s.lists.Compute(s.key(key), func(old [][]byte, loaded bool) ([][]byte, bool) {
		if !loaded {
			return nil, true
		}
		for i := len(old) - 1; i >= 0; i-- {
			if bytes.Equal(old[i], item) {
				next := make([][]byte, 0, len(old)-1)
				next = append(next, old[:i]...)
				next = append(next, old[i+1:]...)
				return next, len(next) == 0
			}
		}
		return old, false
	})
	return nil
}

// ListGetAll implements cache.KeyValueStore.
func (s *MemoryStore) ListGetAll(ctx context.Context, key string) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, ok := s.lists.Load(s.key(key))
	if !ok {
		return []any{}, nil
	}
	return decodeValues(items)
}

// ListClear implements cache.KeyValueStore.
func (s *MemoryStore) ListClear(ctx context.Context, key string) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, ok := s.lists.LoadAndDelete(s.key(key))
	if !ok {
		return []any{}, nil
	}
	return decodeValues(items)
}

// Size returns the number of scalar entries and lists currently held.
func (s *MemoryStore) Size() (values int, lists int) {
	return s.values.Size(), s.lists.Size()
}
