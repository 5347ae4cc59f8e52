package feed

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lengolf/timeclock/backend/internal/events"
)

func testConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		ConnectionTimeout: time.Hour,
		MaxConnections:    10,
	}
}

// newTestConnection returns a connection backed by a recorder; the recorder
// satisfies http.Flusher so NewConnection accepts it
func newTestConnection(t *testing.T, id string) (*Connection, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	conn, err := NewConnection(id, rec)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	return conn, rec
}

func punchEvent(id string) events.Event {
	data, _ := json.Marshal(events.PunchRecordedEvent{
		EntryID:   uuid.NewString(),
		StaffID:   1,
		StaffName: "Nok",
		Action:    "clock_in",
		Timestamp: time.Now(),
	})
	return events.Event{
		ID:        id,
		Type:      events.EventTypePunchRecorded,
		Channel:   events.ChannelPunches,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func TestAddAndCountConnections(t *testing.T) {
	cm := NewConnectionManager(testConfig())

	for i := 0; i < 3; i++ {
		conn, _ := newTestConnection(t, fmt.Sprintf("conn-%d", i))
		if err := cm.AddConnection(conn); err != nil {
			t.Fatalf("AddConnection() error = %v", err)
		}
	}

	if got := cm.CountConnections(); got != 3 {
		t.Errorf("CountConnections() = %d, want 3", got)
	}
}

func TestAddConnection_EvictsOldestAtCap(t *testing.T) {
	config := testConfig()
	config.MaxConnections = 2
	cm := NewConnectionManager(config)

	oldest, oldestRec := newTestConnection(t, "oldest")
	oldest.CreatedAt = time.Now().Add(-time.Minute)
	cm.AddConnection(oldest)

	middle, _ := newTestConnection(t, "middle")
	cm.AddConnection(middle)

	newest, _ := newTestConnection(t, "newest")
	cm.AddConnection(newest)

	if got := cm.CountConnections(); got != 2 {
		t.Errorf("CountConnections() = %d, want 2", got)
	}
	if !oldest.IsClosed() {
		t.Error("oldest connection should have been closed")
	}
	if middle.IsClosed() || newest.IsClosed() {
		t.Error("younger connections must survive the eviction")
	}

	// The displaced client is told why before the close
	body := oldestRec.Body.String()
	if !strings.Contains(body, "event: "+events.EventTypeConnectionLimit) {
		t.Errorf("expected a connection_limit event, got %q", body)
	}
}

func TestRemoveConnection(t *testing.T) {
	cm := NewConnectionManager(testConfig())
	conn, _ := newTestConnection(t, "conn-1")
	cm.AddConnection(conn)

	cm.RemoveConnection("conn-1")
	if !conn.IsClosed() {
		t.Error("removed connection should be closed")
	}
	if got := cm.CountConnections(); got != 0 {
		t.Errorf("CountConnections() = %d, want 0", got)
	}

	// Removing an unknown ID is a no-op
	cm.RemoveConnection("ghost")
}

func TestBroadcast(t *testing.T) {
	cm := NewConnectionManager(testConfig())

	first, firstRec := newTestConnection(t, "conn-1")
	cm.AddConnection(first)
	second, secondRec := newTestConnection(t, "conn-2")
	cm.AddConnection(second)
	closed, closedRec := newTestConnection(t, "conn-3")
	cm.AddConnection(closed)
	closed.Close()

	cm.Broadcast(punchEvent("evt-1"))

	for name, rec := range map[string]*httptest.ResponseRecorder{
		"first": firstRec, "second": secondRec,
	} {
		if !strings.Contains(rec.Body.String(), "event: punch_recorded") {
			t.Errorf("%s connection missed the broadcast: %q", name, rec.Body.String())
		}
	}
	if closedRec.Body.Len() != 0 {
		t.Error("closed connection must not receive broadcasts")
	}
}

func TestCleanupDeadConnections(t *testing.T) {
	config := testConfig()
	config.HeartbeatInterval = time.Second
	cm := NewConnectionManager(config)

	stale, _ := newTestConnection(t, "stale")
	stale.LastPing = time.Now().Add(-10 * time.Second)
	cm.AddConnection(stale)

	expired, _ := newTestConnection(t, "expired")
	expired.CreatedAt = time.Now().Add(-2 * time.Hour)
	cm.AddConnection(expired)

	fresh, _ := newTestConnection(t, "fresh")
	cm.AddConnection(fresh)

	cm.CleanupDeadConnections()

	if got := cm.CountConnections(); got != 1 {
		t.Errorf("CountConnections() = %d, want 1", got)
	}
	if !stale.IsClosed() {
		t.Error("connection past three missed heartbeats should be reaped")
	}
	if !expired.IsClosed() {
		t.Error("connection past its lifetime should be reaped")
	}
	if fresh.IsClosed() {
		t.Error("healthy connection should survive cleanup")
	}
}

func TestUpdateLastPing(t *testing.T) {
	cm := NewConnectionManager(testConfig())
	conn, _ := newTestConnection(t, "conn-1")
	conn.LastPing = time.Now().Add(-time.Minute)
	cm.AddConnection(conn)

	before := conn.LastPing
	cm.UpdateLastPing("conn-1")
	if !conn.LastPing.After(before) {
		t.Error("UpdateLastPing should move the ping time forward")
	}
}

func TestCloseAll(t *testing.T) {
	cm := NewConnectionManager(testConfig())
	var conns []*Connection
	for i := 0; i < 4; i++ {
		conn, _ := newTestConnection(t, fmt.Sprintf("conn-%d", i))
		cm.AddConnection(conn)
		conns = append(conns, conn)
	}

	cm.CloseAll()

	if got := cm.CountConnections(); got != 0 {
		t.Errorf("CountConnections() = %d, want 0", got)
	}
	for _, conn := range conns {
		if !conn.IsClosed() {
			t.Errorf("connection %s not closed by CloseAll", conn.ID)
		}
	}
}

func TestStartCleanupRoutine(t *testing.T) {
	config := testConfig()
	config.HeartbeatInterval = 10 * time.Millisecond
	cm := NewConnectionManager(config)

	stale, _ := newTestConnection(t, "stale")
	stale.LastPing = time.Now().Add(-time.Minute)
	cm.AddConnection(stale)

	stop := cm.StartCleanupRoutine(10 * time.Millisecond)
	defer stop()

	deadline := time.After(2 * time.Second)
	for cm.CountConnections() != 0 {
		select {
		case <-deadline:
			t.Fatal("cleanup routine never reaped the stale connection")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestConnection_CloseIdempotent(t *testing.T) {
	conn, _ := newTestConnection(t, "conn-1")

	if conn.IsClosed() {
		t.Error("new connection should be open")
	}
	conn.Close()
	conn.Close()
	if !conn.IsClosed() {
		t.Error("connection should report closed")
	}
}

func TestFormatEvent(t *testing.T) {
	event := events.Event{
		ID:        "evt-42",
		Type:      events.EventTypePunchRecorded,
		Channel:   events.ChannelPunches,
		Data:      json.RawMessage(`{"staff_id":1}`),
		Timestamp: time.Now(),
	}

	got := FormatEvent(event)
	want := "event: punch_recorded\ndata: {\"staff_id\":1}\nid: evt-42\n\n"
	if got != want {
		t.Errorf("FormatEvent() = %q, want %q", got, want)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", config.HeartbeatInterval)
	}
	if config.ConnectionTimeout != time.Hour {
		t.Errorf("ConnectionTimeout = %v, want 1h", config.ConnectionTimeout)
	}
	if config.MaxConnections != 10 {
		t.Errorf("MaxConnections = %d, want 10", config.MaxConnections)
	}
}
