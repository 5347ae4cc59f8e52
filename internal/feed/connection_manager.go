package feed

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lengolf/timeclock/backend/internal/events"
)

// ConnectionManager tracks open feed connections. All connections watch the
// same punches channel, so the registry is flat: one map keyed by connection
// ID with a single total cap.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	config      Config
}

// NewConnectionManager creates a ConnectionManager with the given config.
func NewConnectionManager(config Config) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		config:      config,
	}
}

// AddConnection registers a new connection. When the cap is reached the
// oldest connection is told why and closed to make room; dashboards left
// open all day lose to the one just opened.
func (cm *ConnectionManager) AddConnection(conn *Connection) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if len(cm.connections) >= cm.config.MaxConnections {
		oldest := cm.findOldestLocked()
		if oldest != nil {
			cm.sendConnectionLimitEventLocked(oldest)
			oldest.Close()
			delete(cm.connections, oldest.ID)
			ConnectionsActive.Dec()
		}
	}

	cm.connections[conn.ID] = conn
	ConnectionsActive.Inc()
	return nil
}

// RemoveConnection closes and removes a connection.
func (cm *ConnectionManager) RemoveConnection(connID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn, exists := cm.connections[connID]; exists {
		conn.Close()
		delete(cm.connections, connID)
		ConnectionsActive.Dec()
	}
}

// Broadcast sends an event to every open connection. Write failures are
// skipped; the dead connection is reaped by the cleanup routine.
func (cm *ConnectionManager) Broadcast(event events.Event) {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		if !conn.IsClosed() {
			conns = append(conns, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		if err := cm.sendEventToConnection(conn, event); err != nil {
			continue
		}
	}
}

// CountConnections returns the number of open connections.
func (cm *ConnectionManager) CountConnections() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	count := 0
	for _, conn := range cm.connections {
		if !conn.IsClosed() {
			count++
		}
	}
	return count
}

// UpdateLastPing updates the last ping time for a connection.
func (cm *ConnectionManager) UpdateLastPing(connID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn, exists := cm.connections[connID]; exists {
		conn.LastPing = time.Now()
	}
}

// CleanupDeadConnections removes connections that are closed, unresponsive,
// or past the connection timeout.
func (cm *ConnectionManager) CleanupDeadConnections() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for connID, conn := range cm.connections {
		if conn.IsClosed() || cm.isConnectionDead(conn) || cm.isConnectionTimedOut(conn) {
			conn.Close()
			delete(cm.connections, connID)
			ConnectionsActive.Dec()
		}
	}
}

// CloseAll closes every connection. Called during shutdown so streaming
// handlers return before the HTTP server's drain deadline.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for connID, conn := range cm.connections {
		conn.Close()
		delete(cm.connections, connID)
		ConnectionsActive.Dec()
	}
}

// StartCleanupRoutine starts a background goroutine that periodically reaps
// dead connections. Returns a stop function.
func (cm *ConnectionManager) StartCleanupRoutine(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				cm.CleanupDeadConnections()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}

// isConnectionDead reports whether a connection has missed three heartbeats.
func (cm *ConnectionManager) isConnectionDead(conn *Connection) bool {
	deadThreshold := cm.config.HeartbeatInterval * 3
	return time.Since(conn.LastPing) > deadThreshold
}

// isConnectionTimedOut reports whether a connection exceeded its lifetime.
func (cm *ConnectionManager) isConnectionTimedOut(conn *Connection) bool {
	return time.Since(conn.CreatedAt) > cm.config.ConnectionTimeout
}

// findOldestLocked finds the oldest connection. Caller must hold the lock.
func (cm *ConnectionManager) findOldestLocked() *Connection {
	if len(cm.connections) == 0 {
		return nil
	}

	conns := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}

	sort.Slice(conns, func(i, j int) bool {
		return conns[i].CreatedAt.Before(conns[j].CreatedAt)
	})

	return conns[0]
}

// sendConnectionLimitEventLocked tells a connection it is being displaced.
// Caller must hold the lock.
func (cm *ConnectionManager) sendConnectionLimitEventLocked(conn *Connection) {
	limitEvent := events.ConnectionLimitEvent{
		Message:        "Maximum connections exceeded, closing oldest connection",
		MaxConnections: cm.config.MaxConnections,
	}

	data, err := json.Marshal(limitEvent)
	if err != nil {
		return
	}

	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeConnectionLimit,
		Channel:   events.ChannelPunches,
		Data:      data,
		Timestamp: time.Now(),
	}

	// Best effort - the connection is going away either way
	_ = cm.sendEventToConnection(conn, event)
}

// sendEventToConnection writes one event to one connection.
func (cm *ConnectionManager) sendEventToConnection(conn *Connection, event events.Event) error {
	if conn.IsClosed() {
		return ErrConnectionClosed
	}

	if _, err := fmt.Fprint(conn.Writer, FormatEvent(event)); err != nil {
		return err
	}

	conn.Flusher.Flush()
	EventsSentTotal.WithLabelValues(event.Type).Inc()
	return nil
}
