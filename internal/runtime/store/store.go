// Package store defines the document store crudflow viewsets persist records
// in, plus a registry so backends can be selected by name from config.
package store

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
	"github.com/drblury/crudflow/internal/runtime/logging"
)

// StorageKey is the backend-generated key carried by stored documents. It
// never leaves the process: handlers strip it before answering a call.
const StorageKey = "_id"

// IDField holds the sequential record identifier.
const IDField = "id"

// Record is one document. Numbers are normalized to int64 when integral.
type Record = map[string]any

// Filter selects documents whose top-level fields equal the given values.
// An empty filter selects every document of the collection.
type Filter map[string]any

// ByID is the filter selecting the record with the given identifier.
func ByID(id any) Filter {
	return Filter{IDField: id}
}

// ObjectStore is a collection-oriented document store.
type ObjectStore interface {
	// Find returns matching documents in insertion order.
	Find(ctx context.Context, collection string, filter Filter) ([]Record, error)
	// Insert stores a copy of rec and returns its generated storage key.
	Insert(ctx context.Context, collection string, rec Record) (string, error)
	// Update sets the fields of patch on every matching document and returns
	// the number of documents matched.
	Update(ctx context.Context, collection string, filter Filter, patch Record) (int64, error)
	// Remove deletes every matching document and returns how many were removed.
	Remove(ctx context.Context, collection string, filter Filter) (int64, error)
	// MaxID returns the largest integer id in the collection, 0 when empty.
	MaxID(ctx context.Context, collection string) (int64, error)
	Close() error
}

// Strip returns rec without StorageKey. The input is not modified.
func Strip(rec Record) Record {
	if _, ok := rec[StorageKey]; !ok {
		return rec
	}
	out := make(Record, len(rec)-1)
	for k, v := range rec {
		if k != StorageKey {
			out[k] = v
		}
	}
	return out
}

// StripAll applies Strip to every record.
func StripAll(recs []Record) []Record {
	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = Strip(rec)
	}
	return out
}

// Clone deep-copies a record through its JSON form, which also normalizes
// numbers the way every backend does.
func Clone(rec Record) (Record, error) {
	b, err := jsoncodec.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return jsoncodec.UnmarshalDocument(b)
}

// Matches reports whether rec satisfies filter.
func Matches(rec Record, filter Filter) bool {
	for k, want := range filter {
		got, ok := rec[k]
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

// equalValues compares numbers by value and everything else structurally.
// Containers are compared as stored; both sides come out of JSON decoding.
func equalValues(a, b any) bool {
	if ai, ok := IntID(a); ok {
		bi, ok := IntID(b)
		return ok && ai == bi
	}
	return reflect.DeepEqual(a, b)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) && math.Abs(n) <= 1<<53 {
			return int64(n), true
		}
	}
	return 0, false
}

// IntID extracts an integral number from a scalar record value.
func IntID(v any) (int64, bool) {
	switch v.(type) {
	case map[string]any, []any:
		return 0, false
	}
	return asInt(jsoncodec.Normalize(v))
}

// Options carries what a backend needs to open.
type Options struct {
	Backend     string
	SQLiteFile  string
	PostgresURL string
	Logger      logging.ServiceLogger
}

// Opener opens a backend.
type Opener func(ctx context.Context, opts Options) (ObjectStore, error)

var (
	registryMu sync.RWMutex
	openers    = map[string]Opener{}
)

// Register makes a backend available to Open. Backends call it from init.
func Register(name string, opener Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	openers[name] = opener
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (ObjectStore, error) {
	registryMu.RLock()
	opener, ok := openers[opts.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", errspkg.ErrUnknownStore, opts.Backend, Backends())
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	return opener(ctx, opts)
}
