package cacheinfra

import (
	"context"
	"reflect"
	"testing"
)

// kvStore is the method set shared by both adapters.
type kvStore interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) (any, bool, error)
	ListPush(ctx context.Context, key string, values ...any) error
	ListRemove(ctx context.Context, key string, value any) error
	ListGetAll(ctx context.Context, key string) ([]any, error)
	ListClear(ctx context.Context, key string) ([]any, error)
}

// runStoreContract exercises the behavior every adapter must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) kvStore) {
	t.Run("get miss", func(t *testing.T) {
		s := newStore(t)
		v, found, err := s.Get(context.Background(), "user:missing")
		if err != nil || found || v != nil {
			t.Errorf("expected clean miss, got %v, %v, %v", v, found, err)
		}
	})

	t.Run("set then get returns a copy", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		record := map[string]any{"id": "u1", "age": 42, "tags": []any{"a", "b"}, "nested": map[string]any{"ok": true}}

		if err := s.Set(ctx, "user:u1", record); err != nil {
			t.Fatalf("Set: %v", err)
		}
		record["id"] = "mutated"

		v, found, err := s.Get(ctx, "user:u1")
		if err != nil || !found {
			t.Fatalf("Get: found=%v err=%v", found, err)
		}
		got := v.(map[string]any)
		if got["id"] != "u1" {
			t.Errorf("stored value shares state with the caller: %v", got)
		}
		if got["age"] != int64(42) {
			t.Errorf("expected integers to decode as int64, got %T", got["age"])
		}
		if !reflect.DeepEqual(got["tags"], []any{"a", "b"}) {
			t.Errorf("unexpected tags %v", got["tags"])
		}
	})

	t.Run("scalar values", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.Set(ctx, "user:email:a@b.com", "u1")

		v, found, _ := s.Get(ctx, "user:email:a@b.com")
		if !found || v != "u1" {
			t.Errorf("expected u1, got %v", v)
		}
	})

	t.Run("delete returns previous", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.Set(ctx, "k", "v")

		prev, found, err := s.Delete(ctx, "k")
		if err != nil || !found || prev != "v" {
			t.Errorf("expected previous value, got %v, %v, %v", prev, found, err)
		}
		if _, found, _ := s.Get(ctx, "k"); found {
			t.Error("key survived delete")
		}

		prev, found, err = s.Delete(ctx, "k")
		if err != nil || found || prev != nil {
			t.Errorf("expected second delete to be a miss, got %v, %v, %v", prev, found, err)
		}
	})

	t.Run("list push and get all", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := map[string]any{"entity": "order", "id": "o1"}
		b := map[string]any{"entity": "order", "id": "o2"}

		if err := s.ListPush(ctx, "relation::customer:c1", a); err != nil {
			t.Fatalf("ListPush: %v", err)
		}
		if err := s.ListPush(ctx, "relation::customer:c1", b, a); err != nil {
			t.Fatalf("ListPush: %v", err)
		}

		got, err := s.ListGetAll(ctx, "relation::customer:c1")
		if err != nil {
			t.Fatalf("ListGetAll: %v", err)
		}
		want := []any{a, b, a}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("list remove takes the last occurrence", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.ListPush(ctx, "l", "x", "y", "x", "z")

		if err := s.ListRemove(ctx, "l", "x"); err != nil {
			t.Fatalf("ListRemove: %v", err)
		}
		got, _ := s.ListGetAll(ctx, "l")
		if want := []any{"x", "y", "z"}; !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}

		if err := s.ListRemove(ctx, "missing", "x"); err != nil {
			t.Errorf("removing from a missing list should be a no-op, got %v", err)
		}
	})

	t.Run("map values remove regardless of key order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.ListPush(ctx, "l", map[string]any{"entity": "order", "id": "o1"})

		_ = s.ListRemove(ctx, "l", map[string]any{"id": "o1", "entity": "order"})
		got, _ := s.ListGetAll(ctx, "l")
		if len(got) != 0 {
			t.Errorf("expected empty list, got %v", got)
		}
	})

	t.Run("list clear returns removed values", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.ListPush(ctx, "l", "a", "b")

		removed, err := s.ListClear(ctx, "l")
		if err != nil {
			t.Fatalf("ListClear: %v", err)
		}
		if want := []any{"a", "b"}; !reflect.DeepEqual(removed, want) {
			t.Errorf("expected %v, got %v", want, removed)
		}

		got, _ := s.ListGetAll(ctx, "l")
		if len(got) != 0 {
			t.Errorf("expected empty list after clear, got %v", got)
		}
		removed, _ = s.ListClear(ctx, "l")
		if len(removed) != 0 {
			t.Errorf("expected nothing on second clear, got %v", removed)
		}
	})
}
