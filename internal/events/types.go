// Package events provides the in-process event bus feeding the live activity stream.
package events

import (
	"encoding/json"
	"time"
)

// Channel names events are published under. Subscribers attach to a channel
// and receive everything published there.
const (
	ChannelPunches = "punches"
)

// Event represents a notification event to be sent to stream clients.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Channel   string          `json:"-"` // internal routing key, not sent to client
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventHandler is a function that handles incoming events.
type EventHandler func(event Event)

// EventBus defines the interface for publishing and subscribing to events.
type EventBus interface {
	// Publish sends an event to all subscribers of the event's channel.
	Publish(event Event) error
	// Subscribe registers a handler for events on a channel.
	// Returns an unsubscribe function.
	Subscribe(channel string, handler EventHandler) (unsubscribe func())
	// GetEventsSince returns events after the given event ID for replay.
	GetEventsSince(channel string, lastEventID string) ([]Event, error)
}

// EventStore defines the interface for storing and retrieving events.
type EventStore interface {
	// Store saves an event for later replay.
	Store(event Event) error
	// GetSince returns events after the given event ID.
	GetSince(channel string, eventID string, limit int) ([]Event, error)
	// Cleanup removes events older than the given duration.
	Cleanup(olderThan time.Duration) error
}
