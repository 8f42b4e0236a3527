package repositorycache

import (
	"fmt"
	"sort"

	"github.com/goliatone/go-repository-indexcache/cache"
)

// Filter is a field equality mapping. Fields of related entities are written
// with the $ marker, e.g. {"$customer.email$": "a@b.com"}.
type Filter map[string]any

// FilterByID returns the identity filter {id: id}.
func FilterByID(id any) Filter {
	return Filter{IDField: id}
}

// HasRelatedFields reports whether any field carries the related entity marker.
func (f Filter) HasRelatedFields() bool {
	for field := range f {
		if cache.IsRelatedField(field) {
			return true
		}
	}
	return false
}

// LookupKind tells how a Lookup addresses the cache.
type LookupKind int

const (
	// ByIdentity reads the id key directly.
	ByIdentity LookupKind = iota + 1
	// ByIndex reads a filter key, then the id key it points to.
	ByIndex
)

func (k LookupKind) String() string {
	switch k {
	case ByIdentity:
		return "identity"
	case ByIndex:
		return "index"
	default:
		return "unknown"
	}
}

// Lookup is a Filter validated against the registered indexes of an entity.
// Build it with CacheIndex.ParseFilter.
type Lookup struct {
	Entity string
	Kind   LookupKind
	// ID is set for ByIdentity lookups.
	ID any
	// Fields are the normalized, sorted field names other than id.
	Fields []string
	// Values maps each normalized field to its filter value.
	Values map[string]any
}

// Matches reports whether record holds every value of the lookup. A cached
// record that no longer matches makes the lookup a miss.
func (l Lookup) Matches(record Record) bool {
	if record == nil {
		return false
	}
	if l.Kind == ByIdentity {
		id, ok := record.ID()
		if !ok || !cache.SameValue(id, l.ID) {
			return false
		}
	}
	for field, want := range l.Values {
		got, ok := record.Get(field)
		if !ok || !cache.SameValue(got, want) {
			return false
		}
	}
	return true
}

// normalizeFilter strips related field markers and rejects values that cannot
// be part of a key.
func normalizeFilter(entity string, f Filter) (map[string]any, error) {
	out := make(map[string]any, len(f))
	for field, value := range f {
		if value == nil || !isScalar(value) {
			return nil, InvalidFilterValueError(entity, field, value)
		}
		out[cache.NormalizeField(field)] = value
	}
	return out, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	case fmt.Stringer:
		return true
	default:
		return false
	}
}

func sortedFields(values map[string]any) []string {
	fields := make([]string, 0, len(values))
	for field := range values {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
