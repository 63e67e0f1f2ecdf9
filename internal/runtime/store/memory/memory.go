// Package memory is an in-process ObjectStore. Documents are deep-copied on
// the way in and out so callers never share state with the store.
package memory

import (
	"context"
	"sync"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	"github.com/drblury/crudflow/internal/runtime/ids"
	"github.com/drblury/crudflow/internal/runtime/store"
)

const BackendName = "memory"

func init() {
	store.Register(BackendName, func(ctx context.Context, opts store.Options) (store.ObjectStore, error) {
		return New(), nil
	})
}

type document struct {
	key string
	rec store.Record
}

// Store keeps each collection as an insertion-ordered slice.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]document
	closed      bool
}

func New() *Store {
	return &Store{collections: make(map[string][]document)}
}

func (s *Store) Find(ctx context.Context, collection string, filter store.Filter) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errspkg.ErrStoreClosed
	}

	out := make([]store.Record, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		if !store.Matches(doc.rec, filter) {
			continue
		}
		rec, err := store.Clone(doc.rec)
		if err != nil {
			return nil, err
		}
		rec[store.StorageKey] = doc.key
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, collection string, rec store.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc, err := store.Clone(store.Strip(rec))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errspkg.ErrStoreClosed
	}
	key := ids.CreateULID()
	s.collections[collection] = append(s.collections[collection], document{key: key, rec: doc})
	return key, nil
}

func (s *Store) Update(ctx context.Context, collection string, filter store.Filter, patch store.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fields := store.Strip(patch)
	if _, err := store.Clone(fields); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errspkg.ErrStoreClosed
	}

	var matched int64
	for _, doc := range s.collections[collection] {
		if !store.Matches(doc.rec, filter) {
			continue
		}
		// each document gets its own copy of nested values
		set, err := store.Clone(fields)
		if err != nil {
			return matched, err
		}
		for k, v := range set {
			doc.rec[k] = v
		}
		matched++
	}
	return matched, nil
}

func (s *Store) Remove(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errspkg.ErrStoreClosed
	}

	docs := s.collections[collection]
	kept := docs[:0]
	var removed int64
	for _, doc := range docs {
		if store.Matches(doc.rec, filter) {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	clear(docs[len(kept):])
	s.collections[collection] = kept
	return removed, nil
}

func (s *Store) MaxID(ctx context.Context, collection string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errspkg.ErrStoreClosed
	}

	var max int64
	for _, doc := range s.collections[collection] {
		if id, ok := store.IntID(doc.rec[store.IDField]); ok && id > max {
			max = id
		}
	}
	return max, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.collections = nil
	return nil
}
