package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lengolf/timeclock/backend/internal/admin"
	"github.com/lengolf/timeclock/backend/internal/events"
)

// Handler serves the live punch activity stream.
type Handler struct {
	config      Config
	connManager *ConnectionManager
	eventBus    events.EventBus
	tokens      *admin.TokenService
	logger      *slog.Logger
}

// NewHandler creates a feed Handler.
func NewHandler(config Config, connManager *ConnectionManager, eventBus events.EventBus, tokens *admin.TokenService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:      config,
		connManager: connManager,
		eventBus:    eventBus,
		tokens:      tokens,
		logger:      logger,
	}
}

// HandleStream handles GET /api/v1/feed. EventSource cannot set headers, so
// the token is accepted via the token query parameter as well as the
// Authorization header.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authenticate(r)
	if err != nil {
		h.writeUnauthorized(w)
		return
	}

	connID := uuid.New().String()
	conn, err := NewConnection(connID, w)
	if err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	if err := h.connManager.AddConnection(conn); err != nil {
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}

	h.logger.Info("feed connection opened", "conn_id", connID, "user", claims.Username)

	h.sendConnectedEvent(conn)

	// Replay events the client missed while reconnecting
	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		h.replayEvents(conn, lastEventID)
	}

	unsubscribe := h.eventBus.Subscribe(events.ChannelPunches, func(event events.Event) {
		h.sendEvent(conn, event)
	})
	defer unsubscribe()

	heartbeatDone := make(chan struct{})
	go h.heartbeatLoop(conn, heartbeatDone)

	ctx := r.Context()
	timeout := time.NewTimer(h.config.ConnectionTimeout)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		// Client disconnected
	case <-conn.Done:
		// Connection closed by server (limit exceeded or shutdown)
	case <-timeout.C:
		// Connection lifetime exceeded
	}

	close(heartbeatDone)
	h.connManager.RemoveConnection(connID)
	h.logger.Info("feed connection closed", "conn_id", connID)
}

// authenticate extracts and validates the admin token from the request.
func (h *Handler) authenticate(r *http.Request) (*admin.Claims, error) {
	tokenString := r.URL.Query().Get("token")

	if tokenString == "" {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims, err := h.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// writeUnauthorized writes a 401 Unauthorized response.
func (h *Handler) writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"code":    "AUTH_TOKEN_INVALID",
			"message": "Invalid or missing authentication token",
		},
		"timestamp": time.Now().UTC(),
	})
}

// sendConnectedEvent sends the connected event to a new connection.
func (h *Handler) sendConnectedEvent(conn *Connection) {
	connectedData := events.ConnectedEvent{
		Timestamp: time.Now(),
		Message:   "Connected to live punch feed",
	}

	data, err := json.Marshal(connectedData)
	if err != nil {
		return
	}

	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeConnected,
		Channel:   events.ChannelPunches,
		Data:      data,
		Timestamp: time.Now(),
	}

	h.sendEvent(conn, event)
}

// sendEvent writes one event to a connection.
func (h *Handler) sendEvent(conn *Connection, event events.Event) error {
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

// heartbeatLoop sends heartbeat events at regular intervals.
func (h *Handler) heartbeatLoop(conn *Connection, done <-chan struct{}) {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-conn.Done:
			return
		case <-ticker.C:
			h.sendHeartbeat(conn)
		}
	}
}

// sendHeartbeat sends a heartbeat event to a connection.
func (h *Handler) sendHeartbeat(conn *Connection) {
	heartbeatData := events.HeartbeatEvent{
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(heartbeatData)
	if err != nil {
		return
	}

	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeHeartbeat,
		Channel:   events.ChannelPunches,
		Data:      data,
		Timestamp: time.Now(),
	}

	if err := h.sendEvent(conn, event); err != nil {
		// Connection may be dead, the cleanup routine will reap it
		return
	}

	h.connManager.UpdateLastPing(conn.ID)
}

// replayEvents replays missed events to a reconnecting client.
func (h *Handler) replayEvents(conn *Connection, lastEventID string) {
	missedEvents, err := h.eventBus.GetEventsSince(events.ChannelPunches, lastEventID)
	if err != nil {
		return
	}
	if len(missedEvents) == 0 {
		return
	}

	ReplaysTotal.Inc()
	for _, event := range missedEvents {
		if err := h.sendEvent(conn, event); err != nil {
			return
		}
	}
}

// FormatEvent formats an event as an SSE message.
// Format: event: <type>\ndata: <json>\nid: <id>\n\n
func FormatEvent(event events.Event) string {
	return fmt.Sprintf("event: %s\ndata: %s\nid: %s\n\n",
		event.Type,
		string(event.Data),
		event.ID,
	)
}
