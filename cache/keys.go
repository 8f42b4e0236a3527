package cache

import (
	"fmt"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// KeySeparator joins the entity name with the rest of a key.
	KeySeparator = ":"
	// FieldSeparator joins field:value pairs inside a filter key.
	FieldSeparator = ";"
	// RelationKeyPrefix marks the back-reference lists used for cascading invalidation.
	RelationKeyPrefix = "relation::"
	// RelatedFieldMarker wraps filter fields that belong to a related entity, e.g. $customer.name$.
	RelatedFieldMarker = "$"
)

// KeyBuilder derives the cache keys for records and filter lookups.
// Keys must be reproduced exactly: other processes sharing the store read them.
type KeyBuilder interface {
	// IDKey addresses the primary record entry: <entity>:<id>.
	IDKey(entity string, id any) string
	// FilterKey addresses a derived lookup: <entity>:<field>:<value>;...
	// ok is false when the filter is empty or holds a nil value.
	FilterKey(entity string, filter map[string]any) (key string, ok bool)
	// RelationKey addresses the back-reference list: relation::<entity>:<id>.
	RelationKey(entity string, id any) string
}

type defaultKeyBuilder struct{}

// NewDefaultKeyBuilder returns the KeyBuilder producing the canonical key formats.
func NewDefaultKeyBuilder() KeyBuilder {
	return defaultKeyBuilder{}
}

func (defaultKeyBuilder) IDKey(entity string, id any) string {
	return entity + KeySeparator + FormatValue(id)
}

func (defaultKeyBuilder) RelationKey(entity string, id any) string {
	return RelationKeyPrefix + entity + KeySeparator + FormatValue(id)
}

func (defaultKeyBuilder) FilterKey(entity string, filter map[string]any) (string, bool) {
	if len(filter) == 0 {
		return "", false
	}

	normalized := make(map[string]any, len(filter))
	for field, value := range filter {
		if value == nil {
			return "", false
		}
		normalized[NormalizeField(field)] = value
	}

	fields := make([]string, 0, len(normalized))
	for field := range normalized {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	pairs := make([]string, len(fields))
	for i, field := range fields {
		pairs[i] = field + KeySeparator + FormatValue(normalized[field])
	}

	return entity + KeySeparator + strings.Join(pairs, FieldSeparator), true
}

// NormalizeField strips the $ wrapping used for related entity fields.
// "$customer.name$" and "$customer.name" both become "customer.name".
func NormalizeField(field string) string {
	if !strings.HasPrefix(field, RelatedFieldMarker) {
		return field
	}
	trimmed := strings.TrimPrefix(field, RelatedFieldMarker)
	trimmed = strings.TrimSuffix(trimmed, RelatedFieldMarker)
	if trimmed == "" {
		return field
	}
	return trimmed
}

// IsRelatedField reports whether field is qualified with the related entity marker.
func IsRelatedField(field string) bool {
	return strings.HasPrefix(field, RelatedFieldMarker)
}

// FormatValue renders a scalar the way it appears inside a key.
func FormatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// SameValue compares two scalars by their key representation, so values that
// went through a codec (int vs int64, []byte vs string) still match.
func SameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return FormatValue(a) == FormatValue(b)
}

// KeyPrefix builds the store namespace shared by all keys of one deployment,
// <environment>:<app>:.
func KeyPrefix(environment, app string) (string, error) {
	environment = strings.TrimSpace(environment)
	app = strings.TrimSpace(app)
	if environment == "" {
		return "", goerrors.New("key prefix environment is required", goerrors.CategoryBadInput)
	}
	if app == "" {
		return "", goerrors.New("key prefix app is required", goerrors.CategoryBadInput)
	}
	if strings.Contains(environment, KeySeparator) || strings.Contains(app, KeySeparator) {
		return "", goerrors.New(fmt.Sprintf("key prefix segments must not contain %q", KeySeparator), goerrors.CategoryBadInput)
	}
	return environment + KeySeparator + app + KeySeparator, nil
}
