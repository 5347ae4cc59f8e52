package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// InMemoryEventBus implements EventBus using in-memory channels.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]EventHandler // channel -> subscriptionID -> handler
	store       EventStore
}

// NewEventBus creates a new InMemoryEventBus with the given event store.
func NewEventBus(store EventStore) *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string]map[string]EventHandler),
		store:       store,
	}
}

// Publish sends an event to all subscribers of the event's channel.
// It also stores the event for replay if a store is configured.
func (eb *InMemoryEventBus) Publish(event Event) error {
	if event.Channel == "" {
		return fmt.Errorf("event must have a Channel")
	}

	// Store first so replay sees the event even when nobody is connected.
	// Replay is best effort; live delivery still proceeds on store failure.
	if eb.store != nil {
		_ = eb.store.Store(event)
	}

	eb.mu.RLock()
	handlers, exists := eb.subscribers[event.Channel]
	if !exists || len(handlers) == 0 {
		eb.mu.RUnlock()
		return nil // No subscribers, not an error
	}

	// Copy handlers to avoid holding lock during delivery
	handlersCopy := make([]EventHandler, 0, len(handlers))
	for _, handler := range handlers {
		handlersCopy = append(handlersCopy, handler)
	}
	eb.mu.RUnlock()

	for _, handler := range handlersCopy {
		handler(event)
	}

	return nil
}

// Subscribe registers a handler for events on a channel.
// Returns an unsubscribe function that removes the subscription.
func (eb *InMemoryEventBus) Subscribe(channel string, handler EventHandler) (unsubscribe func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.subscribers[channel] == nil {
		eb.subscribers[channel] = make(map[string]EventHandler)
	}

	subscriptionID := uuid.New().String()
	eb.subscribers[channel][subscriptionID] = handler

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()

		if handlers, exists := eb.subscribers[channel]; exists {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(eb.subscribers, channel)
			}
		}
	}
}

// GetEventsSince returns events after the given event ID for replay.
// Returns empty slice if no store is configured or no events found.
func (eb *InMemoryEventBus) GetEventsSince(channel string, lastEventID string) ([]Event, error) {
	if eb.store == nil {
		return []Event{}, nil
	}

	return eb.store.GetSince(channel, lastEventID, 100) // Default limit of 100 events
}

// SubscriberCount returns the number of subscribers on a channel.
// Useful for testing and monitoring.
func (eb *InMemoryEventBus) SubscriberCount(channel string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if handlers, exists := eb.subscribers[channel]; exists {
		return len(handlers)
	}
	return 0
}

// TotalSubscribers returns the total number of subscribers across all channels.
// Useful for monitoring.
func (eb *InMemoryEventBus) TotalSubscribers() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	total := 0
	for _, handlers := range eb.subscribers {
		total += len(handlers)
	}
	return total
}
