package repositorycache

import (
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-repository-indexcache/cache"
)

// CacheIndex is the registry of unique field sets, relations and references
// per entity type. Every entry is registered once at startup; a second
// registration for the same entity fails. One CacheIndex is shared by all the
// cache repositories of an application so cascades can derive the keys of
// other entities.
type CacheIndex struct {
	mu         sync.RWMutex
	indexes    map[string][][]string
	relations  map[string][]Relation
	references map[string][]Reference
}

// NewCacheIndex returns an empty registry.
func NewCacheIndex() *CacheIndex {
	return &CacheIndex{
		indexes:    make(map[string][][]string),
		relations:  make(map[string][]Relation),
		references: make(map[string][]Reference),
	}
}

// RegisterIndexes records the unique field sets of entity. Fields are
// normalized, deduplicated and sorted; sets containing id are dropped since
// identity lookups need no derived key.
func (x *CacheIndex) RegisterIndexes(entity string, fieldSets [][]string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, exists := x.indexes[entity]; exists {
		return AlreadyInitializedError(entity, "indexes")
	}

	seen := make(map[string]struct{})
	sets := make([][]string, 0, len(fieldSets))
	for _, set := range fieldSets {
		fields := normalizeFieldSet(set)
		if len(fields) == 0 || containsString(fields, IDField) {
			continue
		}
		sig := strings.Join(fields, cache.FieldSeparator)
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		sets = append(sets, fields)
	}

	x.indexes[entity] = sets
	return nil
}

// RegisterRelations records the relation tree of entity.
func (x *CacheIndex) RegisterRelations(entity string, relations []Relation) error {
	if err := validateRelations(entity, relations); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, exists := x.relations[entity]; exists {
		return AlreadyInitializedError(entity, "relations")
	}
	x.relations[entity] = cloneRelations(relations)
	return nil
}

// RegisterReferences records the foreign key fields of entity whose targets
// must be invalidated whenever entity is written.
func (x *CacheIndex) RegisterReferences(entity string, references []Reference) error {
	for _, ref := range references {
		if ref.Entity == "" || ref.Field == "" {
			return invalidRelationError(entity, "reference needs an entity and a field")
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, exists := x.references[entity]; exists {
		return AlreadyInitializedError(entity, "references")
	}
	x.references[entity] = append([]Reference(nil), references...)
	return nil
}

// Indexes returns a copy of the field sets registered for entity.
func (x *CacheIndex) Indexes(entity string) [][]string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	sets := x.indexes[entity]
	out := make([][]string, len(sets))
	for i, set := range sets {
		out[i] = append([]string(nil), set...)
	}
	return out
}

// Relations returns the relation tree registered for entity.
func (x *CacheIndex) Relations(entity string) []Relation {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return cloneRelations(x.relations[entity])
}

// References returns the references registered for entity.
func (x *CacheIndex) References(entity string) []Reference {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]Reference(nil), x.references[entity]...)
}

// HasIndex reports whether fields, in any order, match a registered index.
func (x *CacheIndex) HasIndex(entity string, fields []string) bool {
	want := strings.Join(normalizeFieldSet(fields), cache.FieldSeparator)

	x.mu.RLock()
	defer x.mu.RUnlock()

	for _, set := range x.indexes[entity] {
		if strings.Join(set, cache.FieldSeparator) == want {
			return true
		}
	}
	return false
}

// ParseFilter validates f against the registrations of entity. A filter
// carrying id becomes a ByIdentity lookup whose other fields are checked
// against the cached record; any other filter must match an index exactly.
func (x *CacheIndex) ParseFilter(entity string, f Filter) (Lookup, error) {
	if len(f) == 0 {
		return Lookup{}, InvalidFilterError(entity, nil)
	}

	values, err := normalizeFilter(entity, f)
	if err != nil {
		return Lookup{}, err
	}

	if id, ok := values[IDField]; ok {
		delete(values, IDField)
		return Lookup{
			Entity: entity,
			Kind:   ByIdentity,
			ID:     id,
			Fields: sortedFields(values),
			Values: values,
		}, nil
	}

	fields := sortedFields(values)
	if !x.HasIndex(entity, fields) {
		return Lookup{}, InvalidFilterError(entity, fields)
	}

	return Lookup{
		Entity: entity,
		Kind:   ByIndex,
		Fields: fields,
		Values: values,
	}, nil
}

func normalizeFieldSet(set []string) []string {
	seen := make(map[string]struct{}, len(set))
	out := make([]string, 0, len(set))
	for _, field := range set {
		field = cache.NormalizeField(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
