package repositorycache

import (
	"reflect"
	"strings"
)

// IDField is the identity field every record carries.
const IDField = "id"

// Record is one entity instance: field name to scalar, nested record, or a
// slice of those. Dotted paths such as "customer.name" address nested values.
type Record map[string]any

// ID returns the identity value of the record.
func (r Record) ID() (any, bool) {
	if r == nil {
		return nil, false
	}
	id, ok := r[IDField]
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}

// Get returns the value at a dotted path.
func (r Record) Get(path string) (any, bool) {
	return valueAt(map[string]any(r), path)
}

// Clone returns a deep copy of the record. Nested maps and slices are copied.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return Record(cloneMap(map[string]any(r)))
}

func valueAt(m map[string]any, path string) (any, bool) {
	if m == nil || path == "" {
		return nil, false
	}
	current := any(m)
	for _, part := range strings.Split(path, ".") {
		next, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = next[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// asMap accepts the map shapes a record can take after going through a codec.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Record:
		return map[string]any(m), m != nil
	case map[string]any:
		return m, m != nil
	default:
		return nil, false
	}
}

// asRecord converts a value read from the cache back into a Record.
func asRecord(v any) (Record, bool) {
	m, ok := asMap(v)
	if !ok {
		return nil, false
	}
	return Record(m), true
}

// asSlice returns the elements of any slice value.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []Record:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	if m, ok := asMap(v); ok {
		return cloneMap(m)
	}
	if s, ok := asSlice(v); ok {
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
