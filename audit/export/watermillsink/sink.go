// Package watermillsink forwards audit events onto a Watermill publisher,
// one JSON message per event. It lets deployments fan audit trails out to
// whatever broker the rest of their stack already speaks.
package watermillsink

import (
	"context"
	"encoding/json"
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	perch "github.com/perchlabs/perch"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "perch.audit"

// Sink publishes audit events to a Watermill topic. Publish failures are
// logged and dropped; audit delivery never blocks or fails a login.
type Sink struct {
	publisher message.Publisher
	topic     string
}

// New creates a Sink over publisher. An empty topic falls back to
// DefaultTopic.
func New(publisher message.Publisher, topic string) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{
		publisher: publisher,
		topic:     topic,
	}
}

// Emit implements [perch.AuditSink].
func (s *Sink) Emit(_ context.Context, event perch.AuditEvent) {
	if s == nil || s.publisher == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("watermillsink: marshal event: %v", err)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", event.EventType)

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		log.Printf("watermillsink: publish %s: %v", s.topic, err)
	}
}

// Close closes the underlying publisher.
func (s *Sink) Close() error {
	if s == nil || s.publisher == nil {
		return nil
	}
	return s.publisher.Close()
}
