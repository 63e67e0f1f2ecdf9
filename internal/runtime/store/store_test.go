package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
)

func TestStripLeavesInputUntouched(t *testing.T) {
	rec := Record{"_id": "01H", "id": int64(1), "content": "x"}
	out := Strip(rec)

	assert.Equal(t, Record{"id": int64(1), "content": "x"}, out)
	assert.Contains(t, rec, "_id")

	plain := Record{"id": int64(2)}
	assert.Equal(t, plain, Strip(plain))
	assert.Equal(t, []Record{{"id": int64(1), "content": "x"}}, StripAll([]Record{rec}))
}

func TestMatchesNormalizesNumbers(t *testing.T) {
	rec := Record{"id": int64(3), "tags": []any{"a"}, "content": "hi"}

	assert.True(t, Matches(rec, nil))
	assert.True(t, Matches(rec, ByID(3)))
	assert.True(t, Matches(rec, ByID(3.0)))
	assert.True(t, Matches(rec, ByID(json.Number("3"))))
	assert.True(t, Matches(rec, Filter{"tags": []any{"a"}}))
	assert.False(t, Matches(rec, ByID(4)))
	assert.False(t, Matches(rec, ByID("3")))
	assert.False(t, Matches(rec, Filter{"missing": nil}))
}

func TestCloneIsDeep(t *testing.T) {
	rec := Record{"id": 1, "nested": map[string]any{"n": 2.0}}
	c, err := Clone(rec)
	require.NoError(t, err)

	c["nested"].(map[string]any)["n"] = int64(9)
	assert.Equal(t, 2.0, rec["nested"].(map[string]any)["n"])
	assert.Equal(t, int64(1), c["id"])

	_, err = Clone(Record{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestIntID(t *testing.T) {
	id, ok := IntID(json.Number("12"))
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)

	_, ok = IntID(1.5)
	assert.False(t, ok)
	_, ok = IntID("12")
	assert.False(t, ok)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "mongo"})
	assert.ErrorIs(t, err, errspkg.ErrUnknownStore)
}

func TestRegisterAndOpen(t *testing.T) {
	var got Options
	Register("fake", func(ctx context.Context, opts Options) (ObjectStore, error) {
		got = opts
		return nil, nil
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(openers, "fake")
		registryMu.Unlock()
	})

	_, err := Open(context.Background(), Options{Backend: "fake", SQLiteFile: "x.db"})
	require.NoError(t, err)
	assert.Equal(t, "x.db", got.SQLiteFile)
	assert.NotNil(t, got.Logger, "a nop logger is supplied")
	assert.Contains(t, Backends(), "fake")
}
