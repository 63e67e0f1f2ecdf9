package metadata

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// CorrelationID returns the correlation id of msg. Messages without one are
// identified by their UUID.
func CorrelationID(msg *message.Message) string {
	if id := msg.Metadata.Get(KeyCorrelationID); id != "" {
		return id
	}
	return msg.UUID
}

// EnsureCorrelationID stamps md with newID() unless it already carries a
// correlation id, and returns the id in effect.
func EnsureCorrelationID(md message.Metadata, newID func() string) string {
	if id := md.Get(KeyCorrelationID); id != "" {
		return id
	}
	id := newID()
	md.Set(KeyCorrelationID, id)
	return id
}

// ReplyTo returns the reply topic requested by the caller, or fallback.
func ReplyTo(md message.Metadata, fallback string) string {
	if topic := md.Get(KeyReplyTo); topic != "" {
		return topic
	}
	return fallback
}

// Request builds the headers of a bus RPC request. An empty replyTo leaves
// the reply on the default topic.
func Request(procedure, correlationID, replyTo string) message.Metadata {
	md := message.Metadata{
		KeyProcedure:     procedure,
		KeyCorrelationID: correlationID,
	}
	if replyTo != "" {
		md[KeyReplyTo] = replyTo
	}
	return md
}

// Reply builds the headers of a bus RPC reply.
func Reply(procedure, correlationID string) message.Metadata {
	return message.Metadata{
		KeyProcedure:     procedure,
		KeyCorrelationID: correlationID,
	}
}

// Event builds the headers of a change event.
func Event(collection, correlationID string) message.Metadata {
	md := message.Metadata{}
	if collection != "" {
		md[KeyCollection] = collection
	}
	if correlationID != "" {
		md[KeyCorrelationID] = correlationID
	}
	return md
}

type collectionKey struct{}

// WithCollection records the collection a published change belongs to.
func WithCollection(ctx context.Context, collection string) context.Context {
	return context.WithValue(ctx, collectionKey{}, collection)
}

// Collection returns the collection stored by WithCollection.
func Collection(ctx context.Context) string {
	name, _ := ctx.Value(collectionKey{}).(string)
	return name
}
