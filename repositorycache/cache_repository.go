package repositorycache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/goliatone/go-repository-indexcache/cache"
	"github.com/goliatone/go-repository-indexcache/internal/metrics"
	"github.com/goliatone/go-repository-indexcache/transaction"
)

// Loader reads a record from the system of record. found is false when
// nothing matches.
type Loader func(ctx context.Context) (record Record, found bool, err error)

// CacheOption configures a CacheRepository.
type CacheOption func(*CacheRepository)

// WithKeyBuilder replaces the default key builder.
func WithKeyBuilder(keys cache.KeyBuilder) CacheOption {
	return func(r *CacheRepository) {
		if keys != nil {
			r.keys = keys
		}
	}
}

// WithCacheLogger sets the logger used for cache events.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(r *CacheRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCacheMetrics sets the collectors updated on hits, misses, writes and evictions.
func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(r *CacheRepository) {
		r.metrics = m
	}
}

// CacheRepository keeps the cache entries of one entity type: the id key
// holding the record, one filter key per registered index pointing at the id,
// and the relation list of back-references used for cascading invalidation.
//
// Every mutation made while a transaction.Coordinator is active in ctx records
// its inverse, so a rollback leaves the cache as it was. Mutations are issued
// one at a time in a fixed order; the log replays them in reverse.
type CacheRepository struct {
	entity  string
	index   *CacheIndex
	store   cache.KeyValueStore
	keys    cache.KeyBuilder
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCacheRepository creates the cache repository for entity.
func NewCacheRepository(entity string, index *CacheIndex, store cache.KeyValueStore, opts ...CacheOption) *CacheRepository {
	r := &CacheRepository{
		entity: entity,
		index:  index,
		store:  store,
		keys:   cache.NewDefaultKeyBuilder(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("entity", entity)
	return r
}

// Entity returns the entity type this repository caches.
func (r *CacheRepository) Entity() string {
	return r.entity
}

// FindOne reads the record addressed by f. Identity filters read the id key;
// index filters read the filter key first, then the id key. found is false on
// a miss at either hop, or when the cached record no longer holds the filter
// values.
func (r *CacheRepository) FindOne(ctx context.Context, f Filter) (Record, bool, error) {
	lookup, err := r.index.ParseFilter(r.entity, f)
	if err != nil {
		return nil, false, err
	}

	id := lookup.ID
	if lookup.Kind == ByIndex {
		key, ok := r.keys.FilterKey(r.entity, lookup.Values)
		if !ok {
			r.metrics.Miss(r.entity)
			return nil, false, nil
		}
		v, found, err := r.store.Get(ctx, key)
		if err != nil {
			return nil, false, r.storeError("get", key, err)
		}
		if !found || v == nil {
			r.metrics.Miss(r.entity)
			return nil, false, nil
		}
		id = v
	}

	record, found, err := r.get(ctx, r.entity, id)
	if err != nil {
		return nil, false, err
	}
	if !found {
		r.metrics.Miss(r.entity)
		return nil, false, nil
	}

	if !lookup.Matches(record) {
		r.logger.Debug("stale cache entry", "lookup", lookup.Kind.String(), "id", id)
		r.metrics.Miss(r.entity)
		return nil, false, nil
	}

	r.metrics.Hit(r.entity)
	return record, true, nil
}

// FindOneOrCreate returns the cached record for f, or calls load on a miss and
// caches what it returns. Concurrent callers may both load; the last write
// wins and carries the same record.
func (r *CacheRepository) FindOneOrCreate(ctx context.Context, f Filter, load Loader) (Record, bool, error) {
	record, found, err := r.FindOne(ctx, f)
	if err != nil || found {
		return record, found, err
	}

	record, found, err = load(ctx)
	if err != nil || !found {
		return nil, false, err
	}

	stored, err := r.Create(ctx, record)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// Create caches record: the id key first, then one filter key per index whose
// fields are all present, then a back-reference on every embedded entity.
// The record is returned unchanged.
func (r *CacheRepository) Create(ctx context.Context, record Record) (Record, error) {
	id, ok := record.ID()
	if !ok {
		return nil, missingIDError(r.entity)
	}

	if err := r.set(ctx, r.keys.IDKey(r.entity, id), map[string]any(record)); err != nil {
		return nil, err
	}

	for _, key := range r.filterKeys(r.entity, record) {
		if err := r.set(ctx, key, id); err != nil {
			return nil, err
		}
	}

	ref := backRef{Entity: r.entity, ID: id}
	err := walkRelations(record, r.index.Relations(r.entity), func(rel Relation, embedded Record) error {
		embeddedID, ok := embedded.ID()
		if !ok {
			return nil
		}
		return r.push(ctx, r.keys.RelationKey(rel.Entity, embeddedID), ref)
	})
	if err != nil {
		return nil, err
	}

	r.metrics.Write(r.entity)
	return record, nil
}

// Delete removes the id key of record and every filter key derived from
// either record or the cached value it replaces, so a record carrying only
// its id still takes its filter keys with it.
func (r *CacheRepository) Delete(ctx context.Context, record Record) error {
	id, ok := record.ID()
	if !ok {
		return missingIDError(r.entity)
	}

	previous, err := r.del(ctx, r.keys.IDKey(r.entity, id))
	if err != nil {
		return err
	}
	keys := r.filterKeys(r.entity, record)
	if cached, ok := asRecord(previous); ok {
		keys = appendMissing(keys, r.filterKeys(r.entity, cached)...)
	}
	for _, key := range keys {
		if _, err := r.del(ctx, key); err != nil {
			return err
		}
	}

	r.metrics.Evict(r.entity)
	return nil
}

// DeleteByFilter resolves f through the cache and deletes what it finds.
func (r *CacheRepository) DeleteByFilter(ctx context.Context, f Filter) error {
	record, found, err := r.FindOne(ctx, f)
	if err != nil || !found {
		return err
	}
	return r.Delete(ctx, record)
}

// ClearRelated consumes the relation list of id and evicts every record that
// embedded it. Evicted records cascade to their own relation lists.
func (r *CacheRepository) ClearRelated(ctx context.Context, id any) error {
	return r.clearRelated(ctx, r.entity, id, make(map[string]struct{}))
}

// Clear evicts the record id unless relationsOnly, then cascades through its
// relation list.
func (r *CacheRepository) Clear(ctx context.Context, id any, relationsOnly bool) error {
	visited := make(map[string]struct{})
	if !relationsOnly {
		if err := r.evict(ctx, r.entity, id); err != nil {
			return err
		}
	}
	return r.clearRelated(ctx, r.entity, id, visited)
}

// ClearReferenced evicts the entities record points at through its
// registered references, and cascades from each of them.
func (r *CacheRepository) ClearReferenced(ctx context.Context, record Record) error {
	visited := make(map[string]struct{})
	for _, ref := range r.index.References(r.entity) {
		value, ok := record.Get(ref.Field)
		if !ok || value == nil {
			continue
		}

		ids := []any{value}
		if items, ok := asSlice(value); ok {
			ids = items
		}
		for _, id := range ids {
			if id == nil {
				continue
			}
			if err := r.evict(ctx, ref.Entity, id); err != nil {
				return err
			}
			if err := r.clearRelated(ctx, ref.Entity, id, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *CacheRepository) clearRelated(ctx context.Context, entity string, id any, visited map[string]struct{}) error {
	key := r.keys.RelationKey(entity, id)
	if _, seen := visited[key]; seen {
		return nil
	}
	visited[key] = struct{}{}

	values, err := r.store.ListClear(ctx, key)
	if err != nil {
		return r.storeError("list clear", key, err)
	}
	if len(values) == 0 {
		return nil
	}
	transaction.AddCompensatingAction(ctx, func(ctx context.Context) error {
		return r.store.ListPush(ctx, key, values...)
	})

	for _, v := range values {
		ref, ok := parseBackRef(v)
		if !ok {
			r.logger.Warn("skipping malformed back-reference", "key", key)
			continue
		}
		if err := r.evict(ctx, ref.Entity, ref.ID); err != nil {
			return err
		}
		if err := r.clearRelated(ctx, ref.Entity, ref.ID, visited); err != nil {
			return err
		}
	}
	return nil
}

// evict deletes the id key of entity/id and the filter keys derived from the
// record it held. Indexes of other entities come from the shared CacheIndex.
func (r *CacheRepository) evict(ctx context.Context, entity string, id any) error {
	previous, err := r.del(ctx, r.keys.IDKey(entity, id))
	if err != nil {
		return err
	}
	record, ok := asRecord(previous)
	if !ok {
		return nil
	}
	for _, key := range r.filterKeys(entity, record) {
		if _, err := r.del(ctx, key); err != nil {
			return err
		}
	}
	r.metrics.Evict(entity)
	return nil
}

func (r *CacheRepository) get(ctx context.Context, entity string, id any) (Record, bool, error) {
	key := r.keys.IDKey(entity, id)
	v, found, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, false, r.storeError("get", key, err)
	}
	if !found {
		return nil, false, nil
	}
	record, ok := asRecord(v)
	if !ok {
		r.logger.Warn("cached value is not a record", "key", key, "type", fmt.Sprintf("%T", v))
		return nil, false, nil
	}
	return record, true, nil
}

// filterKeys derives the filter key of every index of entity whose fields are
// all set on record.
func (r *CacheRepository) filterKeys(entity string, record Record) []string {
	var keys []string
	for _, fields := range r.index.Indexes(entity) {
		values := make(map[string]any, len(fields))
		complete := true
		for _, field := range fields {
			v, ok := record.Get(field)
			if !ok || v == nil {
				complete = false
				break
			}
			values[field] = v
		}
		if !complete {
			continue
		}
		if key, ok := r.keys.FilterKey(entity, values); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// set writes key and records the exact inverse: the previous value is put
// back, or the key is deleted when there was none.
func (r *CacheRepository) set(ctx context.Context, key string, value any) error {
	var (
		previous any
		existed  bool
	)
	if transaction.Active(ctx) {
		var err error
		previous, existed, err = r.store.Get(ctx, key)
		if err != nil {
			return r.storeError("get", key, err)
		}
	}

	if err := r.store.Set(ctx, key, value); err != nil {
		return r.storeError("set", key, err)
	}

	transaction.AddCompensatingAction(ctx, func(ctx context.Context) error {
		if existed {
			return r.store.Set(ctx, key, previous)
		}
		_, _, err := r.store.Delete(ctx, key)
		return err
	})
	return nil
}

// del removes key and records the re-insert of the value it held.
func (r *CacheRepository) del(ctx context.Context, key string) (any, error) {
	previous, found, err := r.store.Delete(ctx, key)
	if err != nil {
		return nil, r.storeError("delete", key, err)
	}
	if !found {
		return nil, nil
	}

	transaction.AddCompensatingAction(ctx, func(ctx context.Context) error {
		return r.store.Set(ctx, key, previous)
	})
	return previous, nil
}

// push appends ref to the relation list at key unless it is already there,
// and records its removal. Re-caching a record leaves a single entry.
func (r *CacheRepository) push(ctx context.Context, key string, ref backRef) error {
	values, err := r.store.ListGetAll(ctx, key)
	if err != nil {
		return r.storeError("list get", key, err)
	}
	for _, v := range values {
		if existing, ok := parseBackRef(v); ok && existing.same(ref) {
			return nil
		}
	}

	value := ref.value()
	if err := r.store.ListPush(ctx, key, value); err != nil {
		return r.storeError("list push", key, err)
	}

	transaction.AddCompensatingAction(ctx, func(ctx context.Context) error {
		return r.store.ListRemove(ctx, key, value)
	})
	return nil
}

func (r *CacheRepository) storeError(op, key string, err error) error {
	r.logger.Error("cache store failure", "op", op, "key", key, "error", err)
	return fmt.Errorf("cache %s %s: %w", op, key, err)
}

func appendMissing(keys []string, more ...string) []string {
	for _, k := range more {
		if !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}
