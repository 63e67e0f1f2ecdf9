// Package storetest is a conformance suite every ObjectStore backend runs.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/crudflow/internal/runtime/store"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) store.ObjectStore

// Run executes the suite against the backend produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.ObjectStore)
	}{
		{"InsertAndFind", testInsertAndFind},
		{"FindByID", testFindByID},
		{"CollectionsAreIsolated", testCollectionsIsolated},
		{"InsertCopiesInput", testInsertCopiesInput},
		{"UpdateSetsOnlyGivenFields", testUpdate},
		{"UpdateMissingMatchesNothing", testUpdateMissing},
		{"Remove", testRemove},
		{"MaxID", testMaxID},
		{"ConcurrentInserts", testConcurrentInserts},
		{"CanceledContext", testCanceledContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func testInsertAndFind(t *testing.T, s store.ObjectStore) {
	ctx := context.Background()
	k1, err := s.Insert(ctx, "tickets", store.Record{
		"id":      1,
		"content": "first",
		"tags":    []any{"a", "b"},
		"created": 1700000000.25,
		"period":  map[string]any{"from": 3, "to": nil},
		"done":    false,
	})
	require.NoError(t, err)
	k2, err := s.Insert(ctx, "tickets", store.Record{"id": 2, "content": "second", "_id": "caller-supplied"})
	require.NoError(t, err)
	assert.NotEmpty(t, k1)
	assert.NotEqual(t, k1, k2)

	recs, err := s.Find(ctx, "tickets", nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, k1, recs[0][store.StorageKey])
	assert.Equal(t, k2, recs[1][store.StorageKey])
	assert.Equal(t, store.Record{
		"id":      int64(1),
		"content": "first",
		"tags":    []any{"a", "b"},
		"created": 1700000000.25,
		"period":  map[string]any{"from": int64(3), "to": nil},
		"done":    false,
	}, store.Strip(recs[0]))
	assert.Equal(t, "second", recs[1]["content"])
}

func testFindByID(t *testing.T, s store.ObjectStore) {
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := s.Insert(ctx, "items", store.Record{"id": i, "n": fmt.Sprint(i)})
		require.NoError(t, err)
	}

	recs, err := s.Find(ctx, "items", store.ByID(2))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0]["n"])

	recs, err = s.Find(ctx, "items", store.Filter{"n": "3"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(3), recs[0]["id"])

	recs, err = s.Find(ctx, "items", store.ByID(99))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func testCollectionsIsolated(t *testing.T, s store.ObjectStore) {
	ctx := context.Background()
	_, err := s.Insert(ctx, "a", store.Record{"id": 7})
	require.NoError(t, err)

	recs, err := s.Find(ctx, "b", nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	max, err := s.MaxID(ctx, "b")
	require.NoError(t, err)
	assert.Zero(t, max)
}

func testInsertCopiesInput(t *testing.T, s store.ObjectStore) {
	ctx := context.Background()
	rec := store.Record{"id": 1, "tags": []any{"x"}}
	_, err := s.Insert(ctx, "items", rec)
	require.NoError(t, err)
	rec["tags"].([]any)[0] = "mutated"
	_, hasKey := rec[store.StorageKey]
	assert.False(t, hasKey, "Insert must not write the storage key into the caller's map")

	recs, err := s.Find(ctx, "items", nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []any{"x"}, recs[0]["tags"])
}

func testUpdate(t *testing.T, s store.ObjectStore) {
	ctx := context.Background()
	_, err := s.Insert(ctx, "items", store.Record{"id": 1, "content": "old", "tags": []any{"keep"}})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "items", store.Record{"id": 2, "content": "other"})
	require.NoError(t, err)

	matched, err := s.Update(ctx, "items", store.ByID(1), store.Record{"id": 1, "content": "new", "extra": 5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), matched)

	recs, err := s.Find(ctx, "items", nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, store.Record{"id": int64(1), "content": "new", "tags": []any{"keep"}, "extra": int64(5)}, store.Strip(recs[0]))
	assert.Equal(t, "other", recs[1]["content"])
}

func testUpdateMissing(t *testing.T, s store.ObjectStore) {
	ctx := context.Background()
	matched, err := s.Update(ctx, "items", store.ByID(42), store.Record{"id": 42, "content": "ghost"})
	require.NoError(t, err)
	assert.Zero(t, matched)

	recs, err := s.Find(ctx, "items", nil)
	require.NoError(t, err)
	assert.Empty(t, recs, "update must not upsert")
}

func testRemove(t *testing.T, s store.ObjectStore) {
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := s.Insert(ctx, "items", store.Record{"id": i})
		require.NoError(t, err)
	}

	removed, err := s.Remove(ctx, "items", store.ByID(2))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = s.Remove(ctx, "items", store.ByID(2))
	require.NoError(t, err)
	assert.Zero(t, removed)

	recs, err := s.Find(ctx, "items", nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(1), recs[0]["id"])
	assert.Equal(t, int64(3), recs[1]["id"])
}

func testMaxID(t *testing.T, s store.ObjectStore) {
	ctx := context.Background()
	max, err := s.MaxID(ctx, "items")
	require.NoError(t, err)
	assert.Zero(t, max)

	for _, rec := range []store.Record{{"id": 1}, {"id": 5}, {"id": 3}, {"content": "no id"}} {
		_, err := s.Insert(ctx, "items", rec)
		require.NoError(t, err)
	}
	max, err = s.MaxID(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, int64(5), max)

	_, err = s.Remove(ctx, "items", store.ByID(5))
	require.NoError(t, err)
	max, err = s.MaxID(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, int64(3), max)
}

func testConcurrentInserts(t *testing.T, s store.ObjectStore) {
	ctx := context.Background()
	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := s.Insert(ctx, "items", store.Record{"id": id})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	recs, err := s.Find(ctx, "items", nil)
	require.NoError(t, err)
	assert.Len(t, recs, n)
	max, err := s.MaxID(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, int64(n), max)
}

func testCanceledContext(t *testing.T, s store.ObjectStore) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Insert(ctx, "items", store.Record{"id": 1})
	assert.Error(t, err)

	recs, err := s.Find(context.Background(), "items", nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
