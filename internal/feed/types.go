// Package feed streams punch activity to admin dashboards over Server-Sent
// Events. Every connection watches the same punches channel; there is no
// per-viewer routing.
package feed

import (
	"net/http"
	"time"
)

// Config holds live feed configuration.
type Config struct {
	HeartbeatInterval time.Duration // Default: 30 seconds
	ConnectionTimeout time.Duration // Default: 1 hour
	MaxConnections    int           // Default: 10
}

// DefaultConfig returns the default feed configuration.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		ConnectionTimeout: 1 * time.Hour,
		MaxConnections:    10,
	}
}

// Connection represents an active feed connection.
type Connection struct {
	ID        string
	Writer    http.ResponseWriter
	Flusher   http.Flusher
	Done      chan struct{}
	CreatedAt time.Time
	LastPing  time.Time
}

// NewConnection creates a new feed connection.
func NewConnection(id string, w http.ResponseWriter) (*Connection, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingNotSupported
	}

	return &Connection{
		ID:        id,
		Writer:    w,
		Flusher:   flusher,
		Done:      make(chan struct{}),
		CreatedAt: time.Now(),
		LastPing:  time.Now(),
	}, nil
}

// Close closes the connection.
func (c *Connection) Close() {
	select {
	case <-c.Done:
		// Already closed
	default:
		close(c.Done)
	}
}

// IsClosed returns true if the connection is closed.
func (c *Connection) IsClosed() bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}
