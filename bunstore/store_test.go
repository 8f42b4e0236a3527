package bunstore

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-indexcache/pkg/testsupport"
	"github.com/goliatone/go-repository-indexcache/repositorycache"
	"github.com/goliatone/go-repository-indexcache/transaction"
)

var shopSchema = []string{
	`CREATE TABLE addresses (id TEXT PRIMARY KEY, city TEXT)`,
	`CREATE TABLE customers (id TEXT PRIMARY KEY, email TEXT, name TEXT, address_id TEXT)`,
	`CREATE TABLE products (id TEXT PRIMARY KEY, sku TEXT)`,
	`CREATE TABLE orders (id TEXT PRIMARY KEY, number TEXT, customer_id TEXT, total INTEGER)`,
	`CREATE TABLE order_items (id TEXT PRIMARY KEY, order_id TEXT, product_id TEXT, qty INTEGER)`,
}

var orderJoins = []Join{
	{
		As: "customer", Table: "customers", Kind: BelongsTo, ForeignKey: "customer_id",
		Joins: []Join{{As: "address", Table: "addresses", Kind: BelongsTo, ForeignKey: "address_id"}},
	},
	{
		As: "items", Table: "order_items", Kind: HasMany, ForeignKey: "order_id",
		Joins: []Join{{As: "product", Table: "products", Kind: BelongsTo, ForeignKey: "product_id"}},
	},
}

func newShopDB(t *testing.T) *bun.DB {
	t.Helper()
	db := testsupport.NewSQLiteDB(t, shopSchema...)

	testsupport.InsertRows(t, db, "addresses", map[string]any{"id": "a1", "city": "Lisbon"})
	testsupport.InsertRows(t, db, "customers",
		map[string]any{"id": "c1", "email": "c1@x", "name": "Ana", "address_id": "a1"},
		map[string]any{"id": "c2", "email": "c2@x", "name": "Rui", "address_id": nil},
	)
	testsupport.InsertRows(t, db, "products", map[string]any{"id": "p1", "sku": "SKU-1"})
	testsupport.InsertRows(t, db, "orders",
		map[string]any{"id": "o1", "number": "N-1", "customer_id": "c1", "total": 10},
		map[string]any{"id": "o2", "number": "N-2", "customer_id": "c2", "total": 20},
	)
	testsupport.InsertRows(t, db, "order_items",
		map[string]any{"id": "i1", "order_id": "o1", "product_id": "p1", "qty": 2},
		map[string]any{"id": "i2", "order_id": "o1", "product_id": "p1", "qty": 1},
	)
	return db
}

func TestNew_DefaultTable(t *testing.T) {
	assert.Equal(t, "order_items", New(nil, "order_item").Table())
	assert.Equal(t, "addresses", New(nil, "address").Table())
	assert.Equal(t, "people", New(nil, "person", WithTable("people")).Table())
}

func TestStore_FindOne(t *testing.T) {
	store := New(newShopDB(t), "customer")
	ctx := context.Background()

	record, err := store.FindOne(ctx, repositorycache.Filter{"email": "c1@x"})
	require.NoError(t, err)
	assert.Equal(t, "c1", record["id"])
	assert.Equal(t, "Ana", record["name"])

	_, err = store.FindOne(ctx, repositorycache.Filter{"email": "missing@x"})
	assert.True(t, repositorycache.IsStoreNotFound(err), "expected not found, got %v", err)
}

func TestStore_NilFilterValue(t *testing.T) {
	store := New(newShopDB(t), "customer")

	record, err := store.FindOne(context.Background(), repositorycache.Filter{"address_id": nil})
	require.NoError(t, err)
	assert.Equal(t, "c2", record["id"])
}

func TestStore_Joins(t *testing.T) {
	store := New(newShopDB(t), "order", WithJoins(orderJoins...))

	order, err := store.FindOne(context.Background(), repositorycache.FilterByID("o1"))
	require.NoError(t, err)

	customer, ok := order["customer"].(map[string]any)
	require.True(t, ok, "expected embedded customer, got %T", order["customer"])
	assert.Equal(t, "c1@x", customer["email"])

	city, ok := repositorycache.Record(order).Get("customer.address.city")
	require.True(t, ok)
	assert.Equal(t, "Lisbon", city)

	items, ok := order["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "i1", first["id"])
	assert.Equal(t, int64(2), first["qty"])
	assert.Equal(t, "SKU-1", first["product"].(map[string]any)["sku"])
}

func TestStore_MissingBelongsTo(t *testing.T) {
	store := New(newShopDB(t), "customer", WithJoins(Join{As: "address", Table: "addresses", Kind: BelongsTo, ForeignKey: "address_id"}))

	record, err := store.FindOne(context.Background(), repositorycache.FilterByID("c2"))
	require.NoError(t, err)
	value, present := record["address"]
	assert.True(t, present)
	assert.Nil(t, value)
}

func TestStore_RelatedFilter(t *testing.T) {
	store := New(newShopDB(t), "order", WithJoins(orderJoins...))
	ctx := context.Background()

	order, err := store.FindOne(ctx, repositorycache.Filter{"$customer.email$": "c2@x"})
	require.NoError(t, err)
	assert.Equal(t, "o2", order["id"])

	order, err = store.FindOne(ctx, repositorycache.Filter{"$items.product_id$": "p1"})
	require.NoError(t, err)
	assert.Equal(t, "o1", order["id"])

	_, err = store.FindOne(ctx, repositorycache.Filter{"$customer.email$": "c2@x", "number": "N-1"})
	assert.True(t, repositorycache.IsStoreNotFound(err))
}

func TestStore_UnknownJoin(t *testing.T) {
	store := New(newShopDB(t), "order")

	_, err := store.FindOne(context.Background(), repositorycache.Filter{"$seller.email$": "x"})
	require.Error(t, err)
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryBadInput), "expected bad input, got %v", err)
}

func TestStore_FindAndCount(t *testing.T) {
	db := testsupport.NewSQLiteDB(t, `CREATE TABLE users (id TEXT PRIMARY KEY, role TEXT, created_at INTEGER)`)
	for i, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		testsupport.InsertRows(t, db, "users", map[string]any{"id": id, "role": "member", "created_at": i})
	}
	testsupport.InsertRows(t, db, "users", map[string]any{"id": "admin", "role": "admin", "created_at": 99})

	store := New(db, "user")
	records, count, err := store.FindAndCount(context.Background(),
		repositorycache.Filter{"role": "member"},
		repositorycache.Query{Order: []string{"created_at DESC"}, Limit: 2, Offset: 2},
	)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	require.Len(t, records, 2)
	assert.Equal(t, "u3", records[0]["id"])
	assert.Equal(t, "u2", records[1]["id"])
}

func TestStore_FindAll_RejectsRawOrder(t *testing.T) {
	db := testsupport.NewSQLiteDB(t, `CREATE TABLE users (id TEXT PRIMARY KEY, created_at INTEGER)`)
	testsupport.InsertRows(t, db, "users", map[string]any{"id": "u1", "created_at": 1})
	store := New(db, "user")
	ctx := context.Background()

	for _, order := range []string{
		"created_at; DROP TABLE users",
		"(SELECT 1) DESC",
		"created_at DESC NULLS LAST",
		"created_at sideways",
		"",
	} {
		_, err := store.FindAll(ctx, repositorycache.Filter{}, repositorycache.Query{Order: []string{order}})
		assert.True(t, goerrors.IsCategory(err, goerrors.CategoryBadInput), "order %q: got %v", order, err)
	}
	assert.Equal(t, 1, testsupport.CountRows(t, db, "users"))

	records, err := store.FindAll(ctx, repositorycache.Filter{}, repositorycache.Query{Order: []string{"users.created_at desc", "id"}})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestParseOrder(t *testing.T) {
	orders, err := parseOrder([]string{"created_at", "name DESC", "  email   asc "})
	require.NoError(t, err)
	assert.Equal(t, []orderBy{
		{column: "created_at"},
		{column: "name", desc: true},
		{column: "email"},
	}, orders)
}

func TestStore_Writes(t *testing.T) {
	db := newShopDB(t)
	store := New(db, "order", WithJoins(orderJoins...))
	ctx := context.Background()

	created, err := store.Create(ctx, repositorycache.Record{
		"id": "o3", "number": "N-3", "customer_id": "c1", "total": 5,
		"customer": map[string]any{"id": "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, "N-3", created["number"])
	assert.Equal(t, "c1@x", created["customer"].(map[string]any)["email"])

	updated, err := store.Update(ctx, repositorycache.Filter{"number": "N-3"}, repositorycache.Record{"total": 7, "id": "other"})
	require.NoError(t, err)
	assert.Equal(t, "o3", updated["id"])
	assert.Equal(t, int64(7), updated["total"])

	deleted, err := store.Delete(ctx, repositorycache.FilterByID("o3"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted["total"])
	assert.Len(t, deleted["items"], 0)
	assert.Equal(t, 2, testsupport.CountRows(t, db, "orders"))

	_, err = store.Delete(ctx, repositorycache.FilterByID("o3"))
	assert.True(t, repositorycache.IsStoreNotFound(err))
}

func TestStore_CreateWithoutID(t *testing.T) {
	store := New(newShopDB(t), "order")

	_, err := store.Create(context.Background(), repositorycache.Record{"number": "N-9"})
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryBadInput))
}

func TestStore_Transaction(t *testing.T) {
	db := newShopDB(t)
	store := New(db, "customer")
	coordinator := transaction.NewCoordinator(NewBeginner(db))
	ctx := context.Background()
	errAbort := errors.New("abort")

	err := coordinator.Use(ctx, func(ctx context.Context) error {
		if _, err := store.Create(ctx, repositorycache.Record{"id": "c3", "email": "c3@x"}); err != nil {
			return err
		}
		if _, err := store.Update(ctx, repositorycache.FilterByID("c1"), repositorycache.Record{"email": "new@x"}); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	_, err = store.FindOne(ctx, repositorycache.FilterByID("c3"))
	assert.True(t, repositorycache.IsStoreNotFound(err), "expected insert to roll back")
	c1, err := store.FindOne(ctx, repositorycache.FilterByID("c1"))
	require.NoError(t, err)
	assert.Equal(t, "c1@x", c1["email"])

	err = coordinator.Use(ctx, func(ctx context.Context) error {
		_, err := store.Create(ctx, repositorycache.Record{"id": "c3", "email": "c3@x"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, testsupport.CountRows(t, db, "customers"))
}

func TestNewBeginner_Error(t *testing.T) {
	db := testsupport.NewSQLiteDB(t)
	require.NoError(t, db.Close())

	coordinator := transaction.NewCoordinator(NewBeginner(db))
	called := false
	err := coordinator.Use(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}
