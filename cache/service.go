package cache

import "context"

// KeyValueStore is the key-value collaborator that backs the derived cache.
// Values are opaque structured data; implementations serialize them, so a value
// read back is always a copy of what was written.
type KeyValueStore interface {
	// Get returns the value stored at key. found is false on a miss.
	Get(ctx context.Context, key string) (value any, found bool, err error)
	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key string, value any) error
	// Delete removes key and returns the value it held before removal.
	Delete(ctx context.Context, key string) (previous any, found bool, err error)
	// ListPush appends values to the tail of the list stored at key.
	ListPush(ctx context.Context, key string, values ...any) error
	// ListRemove removes the last occurrence of value from the list at key.
	ListRemove(ctx context.Context, key string, value any) error
	// ListGetAll returns every value of the list at key, head first.
	ListGetAll(ctx context.Context, key string) ([]any, error)
	// ListClear removes the list at key and returns the values it held.
	ListClear(ctx context.Context, key string) ([]any, error)
}

// Closer is implemented by stores holding network or background resources.
type Closer interface {
	Close() error
}
