// Package repositorycache keeps a key-value cache of records consistent with
// the transactional store they come from.
//
// # Overview
//
// Three pieces cooperate:
//
//   - CacheIndex: the per-entity registry of unique field sets (indexes),
//     relation trees and references, registered once at startup
//   - CacheRepository: the cache entries of one entity type plus cascading
//     invalidation across entities
//   - Repository: per-entity orchestration of the RecordStore and the
//     CacheRepository
//
// Every cache mutation made while a transaction.Coordinator is open records
// its inverse, so a rollback of the store transaction also restores the cache.
//
// # Cache Layout
//
// For a user {id: "u1", email: "a@b.com"} with the index ["email"]:
//
//	user:u1               -> {id: "u1", email: "a@b.com"}
//	user:email:a@b.com    -> "u1"
//
// For an order {id: "o1", customer: {id: "c1"}} with the relation
// {Entity: "customer", As: "customer"}, the customer gets a back-reference:
//
//	relation::customer:c1 -> [{entity: "order", id: "o1"}]
//
// Writing customer c1 later consumes that list and evicts order o1 together
// with its filter keys.
//
// # Basic Usage
//
//	index := repositorycache.NewCacheIndex()
//	users, err := repositorycache.New(repositorycache.EntityConfig{
//		Name:               "user",
//		Indexes:            [][]string{{"email"}},
//		PatchAllowedFields: []string{"name", "email"},
//	}, userStore, kv, index)
//
//	coord := transaction.NewCoordinator(beginner)
//	err = coord.Use(ctx, func(ctx context.Context) error {
//		_, err := users.PatchByID(ctx, "u1", repositorycache.Record{"email": "new@b.com"})
//		return err
//	})
//
// # Filters
//
// A cached read accepts {id} (other fields are then checked against the
// cached record) or exactly the fields of one registered index. Anything else
// fails with InvalidFilterError: it means an index registration is missing.
// Values must be scalars. Fields of related entities use the $ marker,
// {"$customer.email$": "a@b.com"}, and are stored under "customer.email".
//
// Filter keys can go stale when another writer changes a record; reads
// compare the cached record with the filter values and treat a mismatch as a
// miss.
//
// # Error Handling
//
// Errors are go-errors values with a text code; use the Is* predicates.
// Configuration errors (AlreadyInitialized, InvalidFilter) are returned as is
// and should fail startup. NotFound and Validation are the user facing ones.
// Key-value store failures are returned too: the cache is never silently
// bypassed.
//
// # See Also
//
// For the key formats and store adapters, see the cache package.
// For the system-of-record adapters, see the bunstore package.
package repositorycache
