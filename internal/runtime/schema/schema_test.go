package schema

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
)

const ticketSchema = `
close({
	content: string & != ""
	period:  int & >0
	tags?: [...string]
})
`

func TestCompileRejectsBlankAndBrokenSources(t *testing.T) {
	v := NewValidator()

	_, err := v.Compile("empty", "  ")
	assert.ErrorIs(t, err, errspkg.ErrSchemaRequired)

	_, err = v.Compile("broken", "content: string &")
	assert.ErrorContains(t, err, "schema broken")

	_, err = v.Compile("conflict", "a: 1 & 2")
	assert.Error(t, err)
}

func TestValidateAcceptsMatchingRecord(t *testing.T) {
	v := NewValidator()
	s, err := v.Compile("ticket", ticketSchema)
	require.NoError(t, err)
	assert.Equal(t, "ticket", s.Name())
	assert.Equal(t, ticketSchema, s.Source())

	err = v.Validate(map[string]any{"content": "fix printer", "period": int64(120), "tags": []any{"it"}}, s)
	assert.NoError(t, err)
}

func TestValidateReportsViolations(t *testing.T) {
	v := NewValidator()
	s := v.MustCompile("ticket", ticketSchema)

	tests := []struct {
		name string
		rec  map[string]any
		want string
	}{
		{"missing required field", map[string]any{"content": "x"}, "period"},
		{"wrong type", map[string]any{"content": 5, "period": 1}, "content"},
		{"constraint", map[string]any{"content": "x", "period": int64(0)}, "period"},
		{"closed struct", map[string]any{"content": "x", "period": 1, "owner": "me"}, "owner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.rec, s)
			var verr *errspkg.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Contains(t, verr.Message, tt.want)
		})
	}
}

func TestValidateMissingRecordAndSchema(t *testing.T) {
	v := NewValidator()
	s := v.MustCompile("open", "id: int")

	var verr *errspkg.ValidationError
	require.True(t, errors.As(v.Validate(nil, s), &verr))
	assert.Equal(t, "Object data is missing.", verr.Message)

	assert.ErrorIs(t, v.Validate(map[string]any{}, nil), errspkg.ErrSchemaRequired)

	other := NewValidator()
	assert.Error(t, other.Validate(map[string]any{"id": 1}, s))
}

func TestOpenSchemaAllowsExtraFields(t *testing.T) {
	v := NewValidator()
	s := v.MustCompile("update", "id: int")
	assert.NoError(t, v.Validate(map[string]any{"id": int64(3), "content": "changed"}, s))
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() { NewValidator().MustCompile("x", "") })
}

func TestValidateIsSafeForConcurrentUse(t *testing.T) {
	v := NewValidator()
	s := v.MustCompile("ticket", ticketSchema)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := map[string]any{"content": "c", "period": int64(i + 1)}
			assert.NoError(t, v.Validate(rec, s))
		}(i)
	}
	wg.Wait()
}
