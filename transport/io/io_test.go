package io

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/crudflow/transport"
	"github.com/drblury/crudflow/transport/transporttest"
)

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	defer func() { transport.DefaultRegistry = original }()
	transport.DefaultRegistry = transport.NewRegistry()

	Register()
	assert.Equal(t, transport.IOCapabilities, transport.GetCapabilities(TransportName))
	assert.False(t, Capabilities().SupportsBusRPC())
}

func TestPublishAndFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	tr, err := Build(context.Background(), &transporttest.Config{IOFile: path}, watermill.NopLogger{})
	require.NoError(t, err)

	first := message.NewMessage("evt-1", []byte(`{"object":{"id":1}}`))
	first.Metadata.Set("ce_type", "app.changeditems")
	require.NoError(t, tr.Publisher.Publish("app.changeditems", first))
	require.NoError(t, tr.Publisher.Publish("app.deleteditems", message.NewMessage("evt-2", []byte(`{"id":1}`))))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := tr.Subscriber.Subscribe(ctx, "app.changeditems")
	require.NoError(t, err)

	got := receive(t, messages)
	assert.Equal(t, "evt-1", got.UUID)
	assert.Equal(t, "app.changeditems", got.Metadata.Get("ce_type"))
	got.Ack()

	require.NoError(t, tr.Publisher.Publish("app.changeditems", message.NewMessage("evt-3", []byte(`{"object":{"id":2}}`))))
	got = receive(t, messages)
	assert.Equal(t, "evt-3", got.UUID)
	assert.JSONEq(t, `{"object":{"id":2}}`, string(got.Payload))
	got.Ack()
}

func TestPublisherRejectsAfterClose(t *testing.T) {
	pub, err := PublisherFactory(filepath.Join(t.TempDir(), "events.log"), watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, pub.Close())
	assert.Error(t, pub.Publish("t", message.NewMessage("x", nil)))
}

func receive(t *testing.T, messages <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg, ok := <-messages:
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}
