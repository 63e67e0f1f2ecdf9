package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/drblury/crudflow/internal/runtime/cloudevents"
	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/crudflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/crudflow/internal/runtime/metadata"
	"github.com/drblury/crudflow/internal/runtime/rpc"
)

// Publish wraps payload in a CloudEvent whose type is the topic and sends it
// on the configured transport. The request id of the calling procedure, if
// any, travels as the correlation id.
func (s *Service) Publish(ctx context.Context, topic string, payload map[string]any) error {
	if s == nil {
		return errors.New("crudflow service is nil")
	}
	if s.publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	evt := cloudevents.New(topic, s.Conf.ServiceName, payload)
	correlationID := rpc.RequestID(ctx)
	if correlationID != "" {
		evt = evt.WithExtension(cloudevents.ExtCorrelationID, correlationID)
	}
	collection := metadatapkg.Collection(ctx)
	if collection != "" {
		evt = evt.WithSubject(collection).WithExtension(cloudevents.ExtCollection, collection)
	}

	msg, err := cloudevents.ToMessage(evt, s.encoding)
	if err != nil {
		return fmt.Errorf("failed to encode event for %s: %w", topic, err)
	}
	for k, v := range metadatapkg.Event(collection, correlationID) {
		msg.Metadata.Set(k, v)
	}
	msg.SetContext(ctx)

	err = s.publisher.Publish(topic, msg)
	s.metrics.eventPublished(topic, err)
	if err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", topic, err)
	}
	s.Logger.Debug("Published event", loggingpkg.LogFields{
		"topic":    topic,
		"event_id": evt.ID,
	})
	return nil
}
