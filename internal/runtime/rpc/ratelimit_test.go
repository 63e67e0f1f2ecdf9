package rpc

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientLimiterDisabled(t *testing.T) {
	var l *clientLimiter = newClientLimiter(0, 0)
	assert.Nil(t, l)
	assert.True(t, l.allow("anyone", time.Now()))
}

func TestClientLimiterPerClientBuckets(t *testing.T) {
	l := newClientLimiter(1, 2)
	now := time.Unix(1700000000, 0)

	assert.True(t, l.allow("a", now))
	assert.True(t, l.allow("a", now))
	assert.False(t, l.allow("a", now))
	assert.True(t, l.allow("b", now), "other clients keep their own bucket")

	assert.True(t, l.allow("a", now.Add(time.Second)))
}

func TestClientLimiterDefaultsBurst(t *testing.T) {
	l := newClientLimiter(0.5, 0)
	assert.Equal(t, 1, l.burst)
}

func TestClientLimiterPrunesIdleEntries(t *testing.T) {
	l := newClientLimiter(100, 100)
	start := time.Unix(1700000000, 0)
	l.allow("idle", start)

	later := start.Add(limiterIdleTTL + time.Minute)
	for i := 0; i < 512; i++ {
		l.allow("busy", later)
	}
	_, ok := l.byKey["idle"]
	assert.False(t, ok)
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest("POST", "/rpc", nil)
	r.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "10.0.0.7", clientKey(r))

	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientKey(r))

	r.RemoteAddr = ""
	assert.Equal(t, "unknown", clientKey(r))
}
