// Package transport is the control plane of the realtime session: who is
// connected, which streams are published, and the signal channel between
// participants. Media itself flows between clients and is only commanded
// through a MediaSink.
package transport

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/huijing/sgtechonline/internal/domain"
)

const connectionDataKey = "username"

// Connection identifies one participant connection.
type Connection struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// NewConnection creates a connection carrying the display name in its data.
func NewConnection(displayName string) Connection {
	q := url.Values{}
	q.Set(connectionDataKey, displayName)
	return Connection{
		ID:   uuid.New().String(),
		Data: q.Encode(),
	}
}

// DisplayName returns the name from "username=<name>" data, or the raw data.
func (c Connection) DisplayName() string {
	if q, err := url.ParseQuery(c.Data); err == nil {
		if name := q.Get(connectionDataKey); name != "" {
			return name
		}
	}
	return strings.TrimPrefix(c.Data, connectionDataKey+"=")
}

// Stream is a published media stream.
type Stream struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Role       domain.Role `json:"role"`
	Connection Connection  `json:"connection"`
}

// Signal is a typed message between participants. An empty To addresses
// every participant of the session, the sender included.
type Signal struct {
	ID   string     `json:"id"`
	Type string     `json:"type"`
	Data string     `json:"data"`
	From Connection `json:"from"`
	To   string     `json:"to,omitempty"`
}

// EventType classifies session events.
type EventType string

const (
	EventStreamCreated   EventType = "streamCreated"
	EventStreamDestroyed EventType = "streamDestroyed"
	EventSignal          EventType = "signal"
)

// Event is delivered to a session. Exactly one of Stream and Signal is set.
type Event struct {
	Type   EventType
	Stream *Stream
	Signal *Signal
}

// MediaSink executes media-plane commands on the participant's client.
type MediaSink interface {
	Publish(stream Stream)
	Subscribe(stream Stream)
	Unsubscribe(streamID string)
}

// NopSink ignores every command.
type NopSink struct{}

func (NopSink) Publish(Stream)     {}
func (NopSink) Subscribe(Stream)   {}
func (NopSink) Unsubscribe(string) {}

// Session is one participant's handle on a binding session.
type Session interface {
	Connection() Connection
	Publish(ctx context.Context, role domain.Role) (Stream, error)
	Subscribe(ctx context.Context, stream Stream) error
	Unsubscribe(ctx context.Context, streamID string) error
	Signal(ctx context.Context, sig Signal) error
	Events() <-chan Event
	Close(ctx context.Context) error
}
