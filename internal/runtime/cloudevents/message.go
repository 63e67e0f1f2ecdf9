package cloudevents

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
)

// Encoding selects how an event is carried in a Watermill message.
type Encoding string

const (
	// EncodingJSON puts the whole structured event in the payload.
	EncodingJSON Encoding = "json"
	// EncodingProtobuf uses binary mode: attributes in ce_* metadata, data
	// as a serialized google.protobuf.Struct.
	EncodingProtobuf Encoding = "protobuf"
)

const (
	ContentTypeStructured = "application/cloudevents+json"
	ContentTypeProtobuf   = "application/protobuf"

	metadataPrefix      = "ce_"
	metadataContentType = "content-type"
)

// ErrUnknownEncoding is returned for encodings other than json and protobuf.
var ErrUnknownEncoding = errors.New("unknown event encoding")

// ToMessage converts an event into a Watermill message. The message UUID is
// the event id.
func ToMessage(evt Event, encoding Encoding) (*message.Message, error) {
	if err := evt.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	switch encoding {
	case EncodingJSON, "":
		payload, err := evt.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}
		msg := message.NewMessage(evt.ID, payload)
		msg.Metadata.Set(metadataContentType, ContentTypeStructured)
		msg.Metadata.Set(metadataPrefix+"type", evt.Type)
		return msg, nil
	case EncodingProtobuf:
		return toBinaryMessage(evt)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
	}
}

func toBinaryMessage(evt Event) (*message.Message, error) {
	var payload []byte
	if evt.Data != nil {
		data, err := structpb.NewStruct(jsonCompatible(evt.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to convert event data: %w", err)
		}
		payload, err = proto.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event data: %w", err)
		}
	}

	msg := message.NewMessage(evt.ID, payload)
	msg.Metadata.Set(metadataContentType, ContentTypeProtobuf)
	msg.Metadata.Set(metadataPrefix+"specversion", evt.SpecVersion)
	msg.Metadata.Set(metadataPrefix+"type", evt.Type)
	msg.Metadata.Set(metadataPrefix+"source", evt.Source)
	msg.Metadata.Set(metadataPrefix+"id", evt.ID)
	if !evt.Time.IsZero() {
		msg.Metadata.Set(metadataPrefix+"time", evt.Time.UTC().Format(time.RFC3339Nano))
	}
	if evt.Subject != "" {
		msg.Metadata.Set(metadataPrefix+"subject", evt.Subject)
	}
	for k, v := range evt.Extensions {
		msg.Metadata.Set(metadataPrefix+k, v)
	}
	return msg, nil
}

// FromMessage decodes a message produced by ToMessage in either mode.
func FromMessage(msg *message.Message) (Event, error) {
	if msg.Metadata.Get(metadataContentType) == ContentTypeProtobuf {
		return fromBinaryMessage(msg)
	}
	var evt Event
	if err := evt.UnmarshalJSON(msg.Payload); err != nil {
		return Event{}, fmt.Errorf("failed to decode structured event: %w", err)
	}
	return evt, evt.Validate()
}

func fromBinaryMessage(msg *message.Message) (Event, error) {
	evt := Event{
		DataContentType: ContentTypeProtobuf,
		Extensions:      map[string]string{},
	}
	for k, v := range msg.Metadata {
		name, ok := strings.CutPrefix(k, metadataPrefix)
		if !ok {
			continue
		}
		if name == "time" {
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return Event{}, fmt.Errorf("invalid time: %w", err)
			}
			evt.Time = t
			continue
		}
		evt.setAttribute(name, v)
	}
	if len(msg.Payload) > 0 {
		var data structpb.Struct
		if err := proto.Unmarshal(msg.Payload, &data); err != nil {
			return Event{}, fmt.Errorf("failed to decode event data: %w", err)
		}
		if m, ok := jsoncodec.Normalize(data.AsMap()).(map[string]any); ok {
			evt.Data = m
		}
	}
	return evt, evt.Validate()
}

// jsonCompatible maps values structpb cannot take (int64, typed slices and
// maps) onto their JSON equivalents.
func jsonCompatible(data map[string]any) map[string]any {
	raw, err := jsoncodec.Marshal(data)
	if err != nil {
		return data
	}
	var out map[string]any
	if err := jsoncodec.Unmarshal(raw, &out); err != nil {
		return data
	}
	return out
}
