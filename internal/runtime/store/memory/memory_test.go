package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	"github.com/drblury/crudflow/internal/runtime/store"
	"github.com/drblury/crudflow/internal/runtime/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.ObjectStore {
		return New()
	})
}

func TestRegisteredWithStoreRegistry(t *testing.T) {
	s, err := store.Open(context.Background(), store.Options{Backend: BackendName})
	require.NoError(t, err)
	assert.IsType(t, &Store{}, s)
}

func TestClosedStoreRejectsCalls(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	ctx := context.Background()
	_, err := s.Find(ctx, "items", nil)
	assert.ErrorIs(t, err, errspkg.ErrStoreClosed)
	_, err = s.Insert(ctx, "items", store.Record{"id": 1})
	assert.ErrorIs(t, err, errspkg.ErrStoreClosed)
	_, err = s.MaxID(ctx, "items")
	assert.ErrorIs(t, err, errspkg.ErrStoreClosed)
}

func TestFindReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Insert(ctx, "items", store.Record{"id": 1, "content": "a"})
	require.NoError(t, err)

	recs, err := s.Find(ctx, "items", nil)
	require.NoError(t, err)
	recs[0]["content"] = "mutated"

	recs, err = s.Find(ctx, "items", nil)
	require.NoError(t, err)
	assert.Equal(t, "a", recs[0]["content"])
}

func TestRemoveReleasesDocuments(t *testing.T) {
	s := New()
	ctx := context.Background()
	for id := 1; id <= 3; id++ {
		_, err := s.Insert(ctx, "items", store.Record{"id": id})
		require.NoError(t, err)
	}

	removed, err := s.Remove(ctx, "items", store.ByID(2))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	docs := s.collections["items"]
	require.Len(t, docs, 2)
	tail := docs[len(docs):cap(docs)]
	for _, doc := range tail {
		assert.Equal(t, document{}, doc)
	}

	recs, err := s.Find(ctx, "items", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recs[0]["id"])
	assert.Equal(t, int64(3), recs[1]["id"])
}
