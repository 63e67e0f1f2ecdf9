package ids

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCreateULIDIsMonotonic(t *testing.T) {
	prev := CreateULID()
	for range 200 {
		next := CreateULID()
		require.Len(t, next, ulid.EncodedSize)
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestCreateULIDUniqueAcrossGoroutines(t *testing.T) {
	const workers, perWorker = 8, 50
	results := make([][]string, workers)

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			for range perWorker {
				results[w] = append(results[w], CreateULID())
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]struct{}, workers*perWorker)
	for _, batch := range results {
		for _, id := range batch {
			seen[id] = struct{}{}
		}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestGeneratorEmbedsClock(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	gen := NewGenerator(rand.Reader, func() time.Time { return at })

	ts, err := Time(gen.New())
	require.NoError(t, err)
	assert.True(t, ts.Equal(at), ts)
}

func TestGeneratorIsDeterministicForFixedEntropy(t *testing.T) {
	at := func() time.Time { return time.UnixMilli(1700000000000) }
	seed := bytes.Repeat([]byte{7}, 64)

	a := NewGenerator(bytes.NewReader(seed), at).New()
	b := NewGenerator(bytes.NewReader(seed), at).New()
	assert.Equal(t, a, b)
}

func TestTimeRejectsGarbage(t *testing.T) {
	_, err := Time("not-a-ulid")
	assert.Error(t, err)
}
