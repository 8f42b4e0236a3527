// Package cache provides the key-value contract and key derivation used by the
// derived record cache.
//
// # Overview
//
// This package exports two main interfaces and their default implementations:
//
//   - KeyValueStore: get/set/delete-with-previous-value plus list operations,
//     backed by Redis or by an in-process sturdyc client (see NewStore)
//   - KeyBuilder: derives the id, filter and relation keys for an entity
//
// # Key Formats
//
// Keys are shared between processes, so their layout is fixed:
//
//	<entity>:<id>                          primary record entry
//	<entity>:<field>:<value>;<field>:<value>  filter lookup, fields sorted
//	relation::<entity>:<id>                back-reference list
//
// Fields wrapped with the related entity marker ($customer.name$) are
// normalized to customer.name before sorting. A filter holding a nil value
// never produces a key.
//
// # Basic Usage
//
//	store, err := cache.NewStore(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	keys := cache.NewDefaultKeyBuilder()
//	key, ok := keys.FilterKey("user", map[string]any{"email": "a@b.com"})
//	// key == "user:email:a@b.com"
//
// # Namespacing
//
// Deployments sharing one Redis database should set Config.KeyPrefix, usually
// built with KeyPrefix(environment, app). The prefix is applied by the store
// adapter; KeyBuilder output never includes it.
//
// # Error Handling
//
// Store I/O failures are returned wrapped with the failing key. A miss is not
// an error: Get and Delete report it through the found flag.
package cache
