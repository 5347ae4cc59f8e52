package events

import (
	"container/list"
	"sync"
	"time"
)

// InMemoryEventStore implements EventStore using an in-memory buffer.
type InMemoryEventStore struct {
	mu            sync.RWMutex
	events        *list.List                 // Doubly linked list for efficient removal
	eventIndex    map[string]*list.Element   // eventID -> list element for O(1) lookup
	channelEvents map[string][]*list.Element // channel -> list of event elements
	maxSize       int                        // Maximum number of events to store
}

// NewEventStore creates a new InMemoryEventStore with the given buffer size.
func NewEventStore(maxSize int) *InMemoryEventStore {
	if maxSize <= 0 {
		maxSize = 500 // Default buffer size
	}

	return &InMemoryEventStore{
		events:        list.New(),
		eventIndex:    make(map[string]*list.Element),
		channelEvents: make(map[string][]*list.Element),
		maxSize:       maxSize,
	}
}

// Store saves an event for later replay.
// If the buffer is full, the oldest event is removed.
func (es *InMemoryEventStore) Store(event Event) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.events.Len() >= es.maxSize {
		es.removeOldestLocked()
	}

	elem := es.events.PushBack(event)
	es.eventIndex[event.ID] = elem
	es.channelEvents[event.Channel] = append(es.channelEvents[event.Channel], elem)

	return nil
}

// GetSince returns events after the given event ID on a channel.
// If eventID is empty, returns the most recent events up to limit.
func (es *InMemoryEventStore) GetSince(channel string, eventID string, limit int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]Event, 0)

	// If no eventID provided, return recent events on the channel
	if eventID == "" {
		elems := es.channelEvents[channel]
		start := 0
		if len(elems) > limit {
			start = len(elems) - limit
		}
		for i := start; i < len(elems); i++ {
			result = append(result, elems[i].Value.(Event))
		}
		return result, nil
	}

	startElem, exists := es.eventIndex[eventID]
	if !exists {
		// Event aged out of the buffer, client has to resync from the API
		return result, nil
	}

	for elem := startElem.Next(); elem != nil && len(result) < limit; elem = elem.Next() {
		event := elem.Value.(Event)
		if event.Channel == channel {
			result = append(result, event)
		}
	}

	return result, nil
}

// Cleanup removes events older than the given duration.
func (es *InMemoryEventStore) Cleanup(olderThan time.Duration) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)

	// Oldest events sit at the front; stop at the first one that is newer
	for es.events.Len() > 0 {
		front := es.events.Front()
		event := front.Value.(Event)

		if event.Timestamp.After(cutoff) {
			break
		}

		es.removeElementLocked(front)
	}

	return nil
}

// removeOldestLocked removes the oldest event. Must be called with lock held.
func (es *InMemoryEventStore) removeOldestLocked() {
	if es.events.Len() == 0 {
		return
	}

	es.removeElementLocked(es.events.Front())
}

// removeElementLocked removes an element from all indexes. Must be called with lock held.
func (es *InMemoryEventStore) removeElementLocked(elem *list.Element) {
	event := elem.Value.(Event)

	es.events.Remove(elem)
	delete(es.eventIndex, event.ID)

	chanElems := es.channelEvents[event.Channel]
	for i, e := range chanElems {
		if e == elem {
			es.channelEvents[event.Channel] = append(chanElems[:i], chanElems[i+1:]...)
			break
		}
	}

	if len(es.channelEvents[event.Channel]) == 0 {
		delete(es.channelEvents, event.Channel)
	}
}

// Len returns the number of events in the store.
func (es *InMemoryEventStore) Len() int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.events.Len()
}

// LenForChannel returns the number of events on a channel.
func (es *InMemoryEventStore) LenForChannel(channel string) int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.channelEvents[channel])
}

// Clear removes all events from the store.
func (es *InMemoryEventStore) Clear() {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.events = list.New()
	es.eventIndex = make(map[string]*list.Element)
	es.channelEvents = make(map[string][]*list.Element)
}
