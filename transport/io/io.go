// Package io appends crudflow events to a JSON-lines file and tails it for
// subscribers. It is meant for local audit trails and debugging.
package io

import (
	"bufio"
	"context"
	"errors"
	stdio "io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
	"github.com/drblury/crudflow/transport"
)

const TransportName = "io"

// DefaultFilePath is used when no file is configured.
const DefaultFilePath = "events.log"

// PollInterval is how long a subscriber waits at end of file before re-reading.
var PollInterval = 50 * time.Millisecond

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(path string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return &Publisher{path: path, logger: logger}, nil
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(path string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return &Subscriber{path: path, logger: logger}, nil
}

func init() {
	Register()
}

// Register adds the io transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	path := cfg.GetIOFile()
	if path == "" {
		path = DefaultFilePath
	}

	pub, err := PublisherFactory(path, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	sub, err := SubscriberFactory(path, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// line is one persisted event.
type line struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Publisher appends events to the file, one JSON object per line.
type Publisher struct {
	path   string
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
}

func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("io: publisher closed")
	}

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, msg := range messages {
		b, err := jsoncodec.Marshal(line{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		})
		if err != nil {
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Subscriber replays the file from the start and then follows appended lines.
// Each message must be acked or nacked before the next one is delivered.
type Subscriber struct {
	path   string
	logger watermill.LoggerAdapter
}

func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	out := make(chan *message.Message)
	go func() {
		defer close(out)
		defer f.Close()
		s.follow(ctx, f, topic, out)
	}()
	return out, nil
}

func (s *Subscriber) follow(ctx context.Context, f *os.File, topic string, out chan<- *message.Message) {
	reader := bufio.NewReader(f)
	var partial []byte
	for {
		chunk, err := reader.ReadBytes('\n')
		partial = append(partial, chunk...)
		if errors.Is(err, stdio.EOF) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(PollInterval):
				continue
			}
		}
		if err != nil {
			s.logger.Error("Failed to read event file", err, watermill.LogFields{"path": s.path})
			return
		}

		raw := partial
		partial = nil
		if !s.deliver(ctx, raw, topic, out) {
			return
		}
	}
}

func (s *Subscriber) deliver(ctx context.Context, raw []byte, topic string, out chan<- *message.Message) bool {
	var l line
	if err := jsoncodec.Unmarshal(raw, &l); err != nil {
		s.logger.Error("Skipping malformed event line", err, watermill.LogFields{"path": s.path})
		return true
	}
	if l.Topic != topic {
		return true
	}

	msg := message.NewMessage(l.UUID, l.Payload)
	for k, v := range l.Metadata {
		msg.Metadata.Set(k, v)
	}

	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	}
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Debug("Event nacked", watermill.LogFields{"uuid": msg.UUID})
	case <-ctx.Done():
		return false
	}
	return true
}

func (s *Subscriber) Close() error {
	return nil
}
