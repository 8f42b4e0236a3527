package repositorycache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/goliatone/go-repository-indexcache/internal/cacheinfra"
	"github.com/goliatone/go-repository-indexcache/transaction"
)

func newTestKV(t *testing.T) *cacheinfra.MemoryStore {
	t.Helper()
	kv, err := cacheinfra.NewMemoryStore(cacheinfra.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create memory store: %v", err)
	}
	return kv
}

// inTransaction runs fn inside a coordinator with no store transaction and
// returns whatever fn returned.
func inTransaction(t *testing.T, fn func(ctx context.Context) error) error {
	t.Helper()
	coord := transaction.NewCoordinator(nil)
	return coord.Use(context.Background(), fn)
}

var errAbort = errors.New("abort")

// failingKV wraps a store and fails the operations named in failOn
type failingKV struct {
	*cacheinfra.MemoryStore
	failOn map[string]bool
}

var errKVDown = errors.New("kv unavailable")

func (f *failingKV) Get(ctx context.Context, key string) (any, bool, error) {
	if f.failOn["Get"] {
		return nil, false, errKVDown
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key string, value any) error {
	if f.failOn["Set"] {
		return errKVDown
	}
	return f.MemoryStore.Set(ctx, key, value)
}

// mockRecordStore is an in-memory RecordStore that tracks method calls
type mockRecordStore struct {
	mu        sync.Mutex
	records   map[string]Record
	calls     []string
	createErr error
	updateErr error
}

func newMockRecordStore(records ...Record) *mockRecordStore {
	s := &mockRecordStore{records: make(map[string]Record)}
	for _, r := range records {
		id, _ := r.ID()
		s.records[fmt.Sprint(id)] = r.Clone()
	}
	return s
}

func (s *mockRecordStore) recordCall(method string) {
	s.calls = append(s.calls, method)
}

func (s *mockRecordStore) getCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *mockRecordStore) clearCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *mockRecordStore) countCalls(method string) int {
	n := 0
	for _, c := range s.getCalls() {
		if c == method {
			n++
		}
	}
	return n
}

func (s *mockRecordStore) match(f Filter) []Record {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Record
	for _, id := range ids {
		r := s.records[id]
		ok := true
		for field, want := range f {
			got, found := r.Get(normalizeTestField(field))
			if !found || fmt.Sprint(got) != fmt.Sprint(want) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r.Clone())
		}
	}
	return out
}

func normalizeTestField(field string) string {
	if len(field) > 1 && field[0] == '$' {
		field = field[1:]
		if field[len(field)-1] == '$' {
			field = field[:len(field)-1]
		}
	}
	return field
}

func (s *mockRecordStore) FindOne(ctx context.Context, f Filter) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordCall("FindOne")
	matches := s.match(f)
	if len(matches) == 0 {
		return nil, sql.ErrNoRows
	}
	return matches[0], nil
}

func (s *mockRecordStore) FindAll(ctx context.Context, f Filter, q Query) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordCall("FindAll")
	return s.match(f), nil
}

func (s *mockRecordStore) FindAndCount(ctx context.Context, f Filter, q Query) ([]Record, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordCall("FindAndCount")
	all := s.match(f)
	start := q.Offset
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return all[start:end], len(all), nil
}

func (s *mockRecordStore) Create(ctx context.Context, record Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordCall("Create")
	if s.createErr != nil {
		return nil, s.createErr
	}
	id, _ := record.ID()
	s.records[fmt.Sprint(id)] = record.Clone()
	return record.Clone(), nil
}

func (s *mockRecordStore) Update(ctx context.Context, f Filter, fields Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordCall("Update")
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	matches := s.match(f)
	if len(matches) == 0 {
		return nil, sql.ErrNoRows
	}
	updated := matches[0]
	for k, v := range fields {
		updated[k] = v
	}
	id, _ := updated.ID()
	s.records[fmt.Sprint(id)] = updated.Clone()
	return updated, nil
}

func (s *mockRecordStore) Delete(ctx context.Context, f Filter) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordCall("Delete")
	matches := s.match(f)
	if len(matches) == 0 {
		return nil, sql.ErrNoRows
	}
	id, _ := matches[0].ID()
	delete(s.records, fmt.Sprint(id))
	return matches[0], nil
}
