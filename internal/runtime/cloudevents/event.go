// Package cloudevents provides the CloudEvents v1.0 envelope crudflow wraps
// change events in, and the conversion to and from Watermill messages in
// structured JSON or binary protobuf mode.
package cloudevents

import (
	"errors"
	"fmt"
	"time"

	idspkg "github.com/drblury/crudflow/internal/runtime/ids"
	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
)

// SpecVersion is the CloudEvents specification version implemented.
const SpecVersion = "1.0"

// Extension attribute names. CloudEvents restricts them to lowercase
// alphanumerics.
const (
	ExtCorrelationID = "correlationid"
	ExtCollection    = "collection"
)

// Event is a CloudEvents v1.0 event with an object payload.
type Event struct {
	SpecVersion     string
	Type            string
	Source          string
	ID              string
	Time            time.Time
	DataContentType string
	Subject         string
	Data            map[string]any
	Extensions      map[string]string
}

// New creates an event with a ULID id and the current UTC time.
func New(eventType, source string, data map[string]any) Event {
	return Event{
		SpecVersion: SpecVersion,
		Type:        eventType,
		Source:      source,
		ID:          idspkg.CreateULID(),
		Time:        time.Now().UTC(),
		Data:        data,
		Extensions:  map[string]string{},
	}
}

// WithSubject sets the subject and returns the event.
func (e Event) WithSubject(subject string) Event {
	e.Subject = subject
	return e
}

// WithExtension sets an extension attribute and returns the event. The
// extensions map is copied so the receiver is left untouched.
func (e Event) WithExtension(key, value string) Event {
	ext := make(map[string]string, len(e.Extensions)+1)
	for k, v := range e.Extensions {
		ext[k] = v
	}
	ext[key] = value
	e.Extensions = ext
	return e
}

// Extension returns an extension attribute, or "".
func (e Event) Extension(key string) string {
	return e.Extensions[key]
}

// Validate checks the required attributes.
func (e Event) Validate() error {
	var errs []error
	if e.SpecVersion != SpecVersion {
		errs = append(errs, fmt.Errorf("specversion must be %q, got %q", SpecVersion, e.SpecVersion))
	}
	if e.Type == "" {
		errs = append(errs, errors.New("type is required"))
	}
	if e.Source == "" {
		errs = append(errs, errors.New("source is required"))
	}
	if e.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	return errors.Join(errs...)
}

var reservedAttributes = map[string]bool{
	"specversion":     true,
	"type":            true,
	"source":          true,
	"id":              true,
	"time":            true,
	"datacontenttype": true,
	"subject":         true,
	"data":            true,
}

// MarshalJSON renders the structured JSON format, extensions flattened into
// the top-level object.
func (e Event) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"specversion": e.SpecVersion,
		"type":        e.Type,
		"source":      e.Source,
		"id":          e.ID,
	}
	if !e.Time.IsZero() {
		m["time"] = e.Time.UTC().Format(time.RFC3339Nano)
	}
	if e.DataContentType != "" {
		m["datacontenttype"] = e.DataContentType
	}
	if e.Subject != "" {
		m["subject"] = e.Subject
	}
	if e.Data != nil {
		m["data"] = e.Data
	}
	for k, v := range e.Extensions {
		if !reservedAttributes[k] {
			m[k] = v
		}
	}
	return jsoncodec.Marshal(m)
}

// UnmarshalJSON parses the structured JSON format. Unknown string attributes
// become extensions.
func (e *Event) UnmarshalJSON(data []byte) error {
	raw, err := jsoncodec.UnmarshalDocument(data)
	if err != nil {
		return err
	}
	*e = Event{Extensions: map[string]string{}}
	for k, v := range raw {
		switch k {
		case "data":
			if v == nil {
				continue
			}
			obj, ok := v.(map[string]any)
			if !ok {
				return errors.New("data must be an object")
			}
			e.Data = obj
		case "time":
			s, _ := v.(string)
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return fmt.Errorf("invalid time: %w", err)
			}
			e.Time = t
		default:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("attribute %q must be a string", k)
			}
			e.setAttribute(k, s)
		}
	}
	return nil
}

func (e *Event) setAttribute(key, value string) {
	switch key {
	case "specversion":
		e.SpecVersion = value
	case "type":
		e.Type = value
	case "source":
		e.Source = value
	case "id":
		e.ID = value
	case "datacontenttype":
		e.DataContentType = value
	case "subject":
		e.Subject = value
	default:
		if e.Extensions == nil {
			e.Extensions = map[string]string{}
		}
		e.Extensions[key] = value
	}
}
