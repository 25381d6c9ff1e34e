package service

import (
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/talmeida/linktrace/internal/app/model"
)

// JetStreamAccessPublisher publishes access-log entries to NATS JetStream.
// The durable consumer on the other side persists them and dispatches any
// webhook callback, keeping both off the redirect's critical path.
type JetStreamAccessPublisher struct {
	js nats.JetStreamContext
}

// NewAccessPublisher creates a JetStream-backed access event publisher.
func NewAccessPublisher(js nats.JetStreamContext) *JetStreamAccessPublisher {
	return &JetStreamAccessPublisher{js: js}
}

// Publish sends a fully built entry (id already assigned) to the stream.
func (p *JetStreamAccessPublisher) Publish(entry *model.AccessLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.AccessStreamSubject, data)
	return err
}
