package client

import (
	"context"
	"time"
)

// SourceTypeDevice marks events emitted on behalf of a terminal.
const SourceTypeDevice = "DEVICE"

// EventMessage is the envelope of every published event.
type EventMessage struct {
	SourceType string      `json:"source_type"`
	SourceID   string      `json:"source_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Details    interface{} `json:"details,omitempty"`
}

// Publisher emits sync events to interested parties.
type Publisher interface {
	// Publish sends details as an event of the given topic for a device.
	Publish(ctx context.Context, deviceID, topic string, details interface{}) error
	Close()
}

// Nop is a Publisher that drops every event. It is used when no message
// broker is configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, deviceID, topic string, details interface{}) error {
	return nil
}

func (Nop) Close() {}
