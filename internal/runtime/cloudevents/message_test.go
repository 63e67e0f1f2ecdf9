package cloudevents

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func changedEvent() Event {
	return New("app.changeditems", "crudflow", map[string]any{
		"object": map[string]any{
			"id":      int64(3),
			"content": "hello",
			"tags":    []string{"a", "b"},
			"created": 1700000000.25,
		},
	}).WithExtension(ExtCollection, "items")
}

func TestJSONMessageRoundTrip(t *testing.T) {
	evt := changedEvent()
	msg, err := ToMessage(evt, EncodingJSON)
	require.NoError(t, err)

	assert.Equal(t, evt.ID, msg.UUID)
	assert.Equal(t, ContentTypeStructured, msg.Metadata.Get("content-type"))

	decoded, err := FromMessage(msg)
	require.NoError(t, err)
	obj := decoded.Data["object"].(map[string]any)
	assert.Equal(t, int64(3), obj["id"])
	assert.Equal(t, []any{"a", "b"}, obj["tags"])
	assert.Equal(t, 1700000000.25, obj["created"])
	assert.Equal(t, "items", decoded.Extension(ExtCollection))
}

func TestProtobufMessageRoundTrip(t *testing.T) {
	evt := changedEvent()
	msg, err := ToMessage(evt, EncodingProtobuf)
	require.NoError(t, err)

	assert.Equal(t, ContentTypeProtobuf, msg.Metadata.Get("content-type"))
	assert.Equal(t, "app.changeditems", msg.Metadata.Get("ce_type"))
	assert.Equal(t, "items", msg.Metadata.Get("ce_collection"))

	decoded, err := FromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, "crudflow", decoded.Source)
	assert.True(t, evt.Time.Equal(decoded.Time))
	obj := decoded.Data["object"].(map[string]any)
	assert.Equal(t, int64(3), obj["id"])
	assert.Equal(t, "hello", obj["content"])
	assert.Equal(t, "items", decoded.Extension(ExtCollection))
}

func TestToMessageRejects(t *testing.T) {
	_, err := ToMessage(Event{}, EncodingJSON)
	assert.Error(t, err)

	_, err = ToMessage(changedEvent(), Encoding("avro"))
	assert.ErrorIs(t, err, ErrUnknownEncoding)
}

func TestFromMessageRejectsGarbage(t *testing.T) {
	_, err := FromMessage(message.NewMessage("x", []byte("not json")))
	assert.Error(t, err)

	msg := message.NewMessage("x", []byte{0xff, 0x01})
	msg.Metadata.Set("content-type", ContentTypeProtobuf)
	_, err = FromMessage(msg)
	assert.Error(t, err)
}
