package runtime

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	idspkg "github.com/drblury/crudflow/internal/runtime/ids"
	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/crudflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/crudflow/internal/runtime/metadata"
	"github.com/drblury/crudflow/internal/runtime/rpc"
)

// ReplySuffix is appended to a procedure name to form its default bus RPC
// reply topic.
const ReplySuffix = ".result"

// BusRequest is the payload of a bus RPC call message.
type BusRequest struct {
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// BusReply is the payload published on the reply topic. Exactly one of
// Result and Error is meaningful.
type BusReply struct {
	Result any        `json:"result"`
	Error  *rpc.Error `json:"error,omitempty"`
}

// ReplyTopic returns the default reply topic for procedure.
func ReplyTopic(procedure string) string {
	return procedure + ReplySuffix
}

func (s *Service) addBusHandler(procedure string) {
	s.router.AddConsumerHandler(
		"rpc:"+procedure,
		procedure,
		s.subscriber,
		s.busHandler(procedure),
	)
}

// busHandler invokes the procedure for each message and publishes the reply.
// Procedure errors become error replies; only undecodable payloads and
// failed reply publishes are returned to the router.
func (s *Service) busHandler(procedure string) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		call, err := decodeBusRequest(msg.Payload)
		if err != nil {
			return &UnprocessableMessageError{payload: string(msg.Payload), err: err}
		}

		correlationID := metadatapkg.CorrelationID(msg)
		ctx := rpc.WithRequestID(msg.Context(), correlationID)
		ctx = withCallTransport(ctx, TransportBus)

		var reply BusReply
		result, err := s.registry.Invoke(ctx, procedure, call)
		if err != nil {
			reply.Error = rpc.ToError(err)
		} else {
			reply.Result = result
		}

		payload, err := jsoncodec.Marshal(reply)
		if err != nil {
			return fmt.Errorf("failed to encode reply for %s: %w", procedure, err)
		}
		out := message.NewMessage(idspkg.CreateULID(), payload)
		out.Metadata = metadatapkg.Reply(procedure, correlationID)
		out.SetContext(ctx)

		topic := metadatapkg.ReplyTo(msg.Metadata, ReplyTopic(procedure))
		if err := s.publisher.Publish(topic, out); err != nil {
			return fmt.Errorf("failed to publish reply for %s: %w", procedure, err)
		}
		s.Logger.Debug("Answered bus RPC call", loggingpkg.LogFields{
			"procedure":      procedure,
			"reply_topic":    topic,
			"correlation_id": correlationID,
		})
		return nil
	}
}

func decodeBusRequest(payload []byte) (rpc.Call, error) {
	if len(payload) == 0 {
		return rpc.Call{Kwargs: map[string]any{}}, nil
	}
	doc, err := jsoncodec.UnmarshalDocument(payload)
	if err != nil {
		return rpc.Call{}, err
	}
	call := rpc.Call{Kwargs: map[string]any{}}
	if args, ok := doc["args"]; ok && args != nil {
		list, ok := args.([]any)
		if !ok {
			return rpc.Call{}, fmt.Errorf("args must be an array")
		}
		call.Args = list
	}
	if kwargs, ok := doc["kwargs"]; ok && kwargs != nil {
		obj, ok := kwargs.(map[string]any)
		if !ok {
			return rpc.Call{}, fmt.Errorf("kwargs must be an object")
		}
		call.Kwargs = obj
	}
	return call, nil
}

// UnprocessableMessageError marks a bus RPC message that can never succeed,
// such as a payload that is not JSON. It is not retried and goes to the
// poison queue when one is configured.
type UnprocessableMessageError struct {
	payload string
	err     error
}

func (e *UnprocessableMessageError) Error() string {
	return "unprocessable message: " + e.payload + " error: " + e.err.Error()
}

func (e *UnprocessableMessageError) Unwrap() error {
	return e.err
}

func isUnprocessable(err error) bool {
	var target *UnprocessableMessageError
	return errors.As(err, &target)
}
