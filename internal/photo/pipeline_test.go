package photo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lengolf/timeclock/backend/internal/events"
	"github.com/lengolf/timeclock/backend/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockUploader records uploads and can fail a configured number of times
type mockUploader struct {
	mu        sync.Mutex
	uploads   []string
	failFirst int
	calls     int
}

func (m *mockUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failFirst {
		return "", errors.New("storage unavailable")
	}
	m.uploads = append(m.uploads, key)
	return key, nil
}

func (m *mockUploader) uploadedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.uploads))
	copy(out, m.uploads)
	return out
}

// mockMarker settles photo statuses and signals each settlement
type mockMarker struct {
	mu       sync.Mutex
	uploaded map[uuid.UUID]string
	failed   map[uuid.UUID]bool
	settled  chan uuid.UUID
}

func newMockMarker() *mockMarker {
	return &mockMarker{
		uploaded: make(map[uuid.UUID]string),
		failed:   make(map[uuid.UUID]bool),
		settled:  make(chan uuid.UUID, 16),
	}
}

func (m *mockMarker) MarkPhotoUploaded(ctx context.Context, id uuid.UUID, photoRef string) error {
	m.mu.Lock()
	m.uploaded[id] = photoRef
	m.mu.Unlock()
	m.settled <- id
	return nil
}

func (m *mockMarker) MarkPhotoFailed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	m.failed[id] = true
	m.mu.Unlock()
	m.settled <- id
	return nil
}

func (m *mockMarker) waitSettled(t *testing.T) uuid.UUID {
	t.Helper()
	select {
	case id := <-m.settled:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for photo settlement")
		return uuid.Nil
	}
}

func pendingEntry(staffID int64) repository.TimeEntry {
	return repository.TimeEntry{
		ID:          uuid.New(),
		StaffID:     staffID,
		Action:      repository.ActionClockIn,
		Timestamp:   time.Now(),
		PhotoStatus: repository.PhotoStatusPending,
	}
}

func TestPipeline_UploadsAcceptedCapture(t *testing.T) {
	uploader := &mockUploader{}
	marker := newMockMarker()
	bus := events.NewEventBus(events.NewEventStore(100))

	// The status write precedes the event, so waiting on the event also
	// guarantees the marker has settled.
	eventCh := make(chan events.Event, 1)
	bus.Subscribe(events.ChannelPunches, func(event events.Event) {
		eventCh <- event
	})

	p := NewPipeline(PipelineConfig{
		Uploader: uploader,
		Entries:  marker,
		EventBus: bus,
		Logger:   testLogger(),
		Workers:  1,
	})
	p.Start()
	defer p.Stop(context.Background())

	entry := pendingEntry(7)
	p.Enqueue(entry, makeJPEG(t, 64, 64))

	var event events.Event
	select {
	case event = <-eventCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for photo_status event")
	}

	wantKey := fmt.Sprintf("punch-photos/7/%s.jpg", entry.ID)

	marker.mu.Lock()
	ref, uploaded := marker.uploaded[entry.ID]
	marker.mu.Unlock()
	if !uploaded || ref != wantKey {
		t.Errorf("expected uploaded with ref %q, got %q", wantKey, ref)
	}

	keys := uploader.uploadedKeys()
	if len(keys) != 1 || keys[0] != wantKey {
		t.Errorf("expected one upload under %q, got %v", wantKey, keys)
	}

	if event.Type != events.EventTypePhotoStatus {
		t.Fatalf("expected photo_status event, got %q", event.Type)
	}
	var status events.PhotoStatusEvent
	if err := json.Unmarshal(event.Data, &status); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if status.Status != string(repository.PhotoStatusUploaded) || !status.HasPhoto {
		t.Errorf("unexpected event payload: %+v", status)
	}
	if strings.Contains(string(event.Data), wantKey) {
		t.Error("storage key must not leak into feed events")
	}
}

func TestPipeline_CorruptBodySettlesFailed(t *testing.T) {
	uploader := &mockUploader{}
	marker := newMockMarker()

	p := NewPipeline(PipelineConfig{
		Uploader: uploader,
		Entries:  marker,
		Logger:   testLogger(),
		Workers:  1,
	})
	p.Start()
	defer p.Stop(context.Background())

	// Valid magic, undecodable body: accepted by the gate, fails in the worker
	entry := pendingEntry(7)
	p.Enqueue(entry, append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("garbage")...))

	marker.waitSettled(t)
	if !marker.failed[entry.ID] {
		t.Error("expected photo marked failed")
	}
	if len(uploader.uploadedKeys()) != 0 {
		t.Error("corrupt capture must not reach storage")
	}
}

func TestPipeline_RetriesThenSucceeds(t *testing.T) {
	uploader := &mockUploader{failFirst: 2}
	marker := newMockMarker()

	p := NewPipeline(PipelineConfig{
		Uploader:   uploader,
		Entries:    marker,
		Logger:     testLogger(),
		Workers:    1,
		MaxRetries: 3,
	})
	p.Start()
	defer p.Stop(context.Background())

	entry := pendingEntry(7)
	p.Enqueue(entry, makeJPEG(t, 32, 32))

	marker.waitSettled(t)
	if _, ok := marker.uploaded[entry.ID]; !ok {
		t.Error("expected upload to succeed on the third attempt")
	}
}

func TestPipeline_ExhaustedRetriesSettleFailed(t *testing.T) {
	uploader := &mockUploader{failFirst: 100}
	marker := newMockMarker()

	p := NewPipeline(PipelineConfig{
		Uploader:   uploader,
		Entries:    marker,
		Logger:     testLogger(),
		Workers:    1,
		MaxRetries: 2,
	})
	p.Start()
	defer p.Stop(context.Background())

	entry := pendingEntry(7)
	p.Enqueue(entry, makeJPEG(t, 32, 32))

	marker.waitSettled(t)
	if !marker.failed[entry.ID] {
		t.Error("expected photo marked failed after retry exhaustion")
	}
}

func TestPipeline_EnqueueAfterStopSettlesFailed(t *testing.T) {
	uploader := &mockUploader{}
	marker := newMockMarker()

	p := NewPipeline(PipelineConfig{
		Uploader: uploader,
		Entries:  marker,
		Logger:   testLogger(),
		Workers:  1,
	})
	p.Start()
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	entry := pendingEntry(7)
	p.Enqueue(entry, makeJPEG(t, 32, 32))

	marker.waitSettled(t)
	if !marker.failed[entry.ID] {
		t.Error("capture after stop must settle failed, not hang")
	}
}

func TestPipeline_QueueFullDropsCapture(t *testing.T) {
	uploader := &mockUploader{}
	marker := newMockMarker()

	// No workers started: the queue only drains by overflowing
	p := NewPipeline(PipelineConfig{
		Uploader:  uploader,
		Entries:   marker,
		Logger:    testLogger(),
		QueueSize: 1,
	})

	first := pendingEntry(7)
	p.Enqueue(first, makeJPEG(t, 16, 16))

	overflow := pendingEntry(8)
	p.Enqueue(overflow, makeJPEG(t, 16, 16))

	marker.waitSettled(t)
	if !marker.failed[overflow.ID] {
		t.Error("overflow capture must settle failed")
	}
	if marker.failed[first.ID] {
		t.Error("queued capture must stay pending")
	}
}

func TestPipeline_StopIdempotent(t *testing.T) {
	p := NewPipeline(PipelineConfig{
		Uploader: &mockUploader{},
		Entries:  newMockMarker(),
		Logger:   testLogger(),
	})
	p.Start()

	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}

func TestPipeline_StopDrainsQueue(t *testing.T) {
	uploader := &mockUploader{}
	marker := newMockMarker()

	p := NewPipeline(PipelineConfig{
		Uploader: uploader,
		Entries:  marker,
		Logger:   testLogger(),
		Workers:  2,
	})
	p.Start()

	entries := make([]repository.TimeEntry, 5)
	for i := range entries {
		entries[i] = pendingEntry(int64(i + 1))
		p.Enqueue(entries[i], makeJPEG(t, 16, 16))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// Every queued capture settled before Stop returned
	marker.mu.Lock()
	defer marker.mu.Unlock()
	for _, entry := range entries {
		if _, ok := marker.uploaded[entry.ID]; !ok {
			t.Errorf("entry %s not settled before stop returned", entry.ID)
		}
	}
}

func TestPhotoKey(t *testing.T) {
	id := uuid.MustParse("a2b4c6d8-1234-5678-9abc-def012345678")
	got := PhotoKey(42, id)
	want := "punch-photos/42/a2b4c6d8-1234-5678-9abc-def012345678.jpg"
	if got != want {
		t.Errorf("PhotoKey() = %q, want %q", got, want)
	}
}
