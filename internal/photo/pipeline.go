package photo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lengolf/timeclock/backend/internal/events"
	"github.com/lengolf/timeclock/backend/internal/repository"
)

// Pipeline defaults
const (
	DefaultWorkers       = 2
	DefaultQueueSize     = 64
	DefaultUploadTimeout = 30 * time.Second
	DefaultMaxRetries    = 3

	initialRetryDelay      = 100 * time.Millisecond
	maxRetryDelay          = 2 * time.Second
	retryBackoffMultiplier = 2

	// markTimeout bounds the status writes workers make outside any request
	markTimeout = 10 * time.Second
)

// KeyPrefix is the storage prefix all punch photos live under
const KeyPrefix = "punch-photos/"

// PhotoKey returns the storage key for an entry's capture
func PhotoKey(staffID int64, entryID uuid.UUID) string {
	return fmt.Sprintf("%s%d/%s.jpg", KeyPrefix, staffID, entryID)
}

// Uploader stores processed captures
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// EntryMarker settles an entry's photo status after processing
type EntryMarker interface {
	MarkPhotoUploaded(ctx context.Context, id uuid.UUID, photoRef string) error
	MarkPhotoFailed(ctx context.Context, id uuid.UUID) error
}

// task carries one accepted capture from a recorded punch to storage
type task struct {
	entry repository.TimeEntry
	raw   []byte
}

// Pipeline moves captures from recorded entries to object storage without
// blocking punches. Captures are queued at punch time and handled by a small
// worker pool: downscale, upload with retries, then settle the entry's photo
// status. A full queue drops the capture and marks the photo failed rather
// than applying backpressure to the terminal.
type Pipeline struct {
	validator *Validator
	uploader  Uploader
	entries   EntryMarker
	eventBus  events.EventBus
	logger    *slog.Logger

	maxDimension  int
	jpegQuality   int
	uploadTimeout time.Duration
	workers       int
	maxRetries    int

	queue chan task
	wg    sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// PipelineConfig holds the dependencies and tuning for a Pipeline.
type PipelineConfig struct {
	Uploader Uploader
	Entries  EntryMarker

	// EventBus is optional; without it no photo_status events are published.
	EventBus events.EventBus

	Logger *slog.Logger

	MaxBytes      int64
	MaxDimension  int
	JPEGQuality   int
	UploadTimeout time.Duration
	Workers       int
	QueueSize     int
	MaxRetries    int
}

// NewPipeline creates a Pipeline. Call Start to launch the workers.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	uploadTimeout := cfg.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = DefaultUploadTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	maxDimension := cfg.MaxDimension
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	jpegQuality := cfg.JPEGQuality
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}

	return &Pipeline{
		validator:     NewValidator(cfg.MaxBytes),
		uploader:      cfg.Uploader,
		entries:       cfg.Entries,
		eventBus:      cfg.EventBus,
		logger:        logger,
		maxDimension:  maxDimension,
		jpegQuality:   jpegQuality,
		uploadTimeout: uploadTimeout,
		workers:       workers,
		maxRetries:    maxRetries,
		queue:         make(chan task, queueSize),
	}
}

// Start launches the worker pool
func (p *Pipeline) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info("photo pipeline started",
		"workers", p.workers,
		"queue_size", cap(p.queue),
	)
}

// Stop drains the queue and waits for in-flight work, bounded by ctx.
// Captures enqueued after Stop are marked failed immediately.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("photo pipeline stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("photo pipeline shutdown: %w", ctx.Err())
	}
}

// Validate screens a raw capture before the punch entry is written
func (p *Pipeline) Validate(raw []byte) error {
	return p.validator.Validate(raw)
}

// Enqueue hands an accepted capture to the worker pool. It never blocks: if
// the queue is full or the pipeline is stopping, the capture is dropped and
// the entry's photo is marked failed.
func (p *Pipeline) Enqueue(entry repository.TimeEntry, raw []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.logger.Warn("capture dropped, pipeline stopping", "entry_id", entry.ID)
		recordProcessed(StatusDropped)
		p.settleFailed(entry)
		return
	}

	select {
	case p.queue <- task{entry: entry, raw: raw}:
		QueueDepth.Inc()
	default:
		p.logger.Warn("capture dropped, queue full",
			"entry_id", entry.ID,
			"queue_size", cap(p.queue),
		)
		recordProcessed(StatusDropped)
		p.settleFailed(entry)
	}
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for t := range p.queue {
		QueueDepth.Dec()
		p.process(t)
	}
}

// process runs one capture through downscale, upload, and status settlement
func (p *Pipeline) process(t task) {
	processed, err := Process(t.raw, p.maxDimension, p.jpegQuality)
	if err != nil {
		// The magic bytes passed validation, so the body is truncated or corrupt.
		p.logger.Warn("photo processing failed",
			"entry_id", t.entry.ID,
			"error", err,
		)
		recordProcessed(StatusFailed)
		p.settleFailed(t.entry)
		return
	}

	key := PhotoKey(t.entry.StaffID, t.entry.ID)
	if _, err := p.uploadWithRetry(key, processed); err != nil {
		p.logger.Error("photo upload permanently failed",
			"entry_id", t.entry.ID,
			"key", key,
			"attempts", p.maxRetries,
			"error", err,
		)
		recordProcessed(StatusFailed)
		p.settleFailed(t.entry)
		return
	}

	recordProcessed(StatusUploaded)
	// The entry's photo_ref is the storage key; presigned URLs and the
	// retention sweep both derive from it.
	p.settleUploaded(t.entry, key)
}

// uploadWithRetry uploads with exponential backoff and jitter. Each attempt
// gets its own timeout so one hung connection cannot stall a worker forever.
func (p *Pipeline) uploadWithRetry(key string, data []byte) (string, error) {
	var lastErr error
	delay := initialRetryDelay

	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.uploadTimeout)
		start := time.Now()
		photoRef, err := p.uploader.Upload(ctx, key, data, "image/jpeg")
		cancel()

		if err == nil {
			observeUpload(time.Since(start).Seconds())
			if attempt > 1 {
				p.logger.Info("photo upload succeeded after retry",
					"key", key,
					"attempt", attempt,
				)
			}
			return photoRef, nil
		}

		lastErr = err
		p.logger.Warn("photo upload attempt failed",
			"key", key,
			"attempt", attempt,
			"max_attempts", p.maxRetries,
			"error", err,
		)

		if attempt < p.maxRetries {
			recordRetry()
			jitter := time.Duration(rand.Int63n(int64(delay / 4)))
			sleep := delay + jitter
			if sleep > maxRetryDelay {
				sleep = maxRetryDelay
			}
			time.Sleep(sleep)
			delay *= retryBackoffMultiplier
		}
	}

	return "", lastErr
}

// settleUploaded records the storage reference on the entry. The pending
// guard in the repository keeps a late worker from rewriting a status an
// operator or a prior run already settled.
func (p *Pipeline) settleUploaded(entry repository.TimeEntry, photoRef string) {
	ctx, cancel := context.WithTimeout(context.Background(), markTimeout)
	defer cancel()

	if err := p.entries.MarkPhotoUploaded(ctx, entry.ID, photoRef); err != nil {
		if errors.Is(err, repository.ErrPhotoNotPending) {
			p.logger.Warn("photo status already settled", "entry_id", entry.ID)
			return
		}
		p.logger.Error("failed to mark photo uploaded",
			"entry_id", entry.ID,
			"error", err,
		)
		return
	}

	p.publishStatus(entry, repository.PhotoStatusUploaded)
}

// settleFailed marks the entry's photo failed. Never escalates: the punch
// already succeeded and must stay that way.
func (p *Pipeline) settleFailed(entry repository.TimeEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), markTimeout)
	defer cancel()

	if err := p.entries.MarkPhotoFailed(ctx, entry.ID); err != nil {
		if errors.Is(err, repository.ErrPhotoNotPending) {
			return
		}
		p.logger.Error("failed to mark photo failed",
			"entry_id", entry.ID,
			"error", err,
		)
		return
	}

	p.publishStatus(entry, repository.PhotoStatusFailed)
}

// publishStatus publishes a photo_status event to the live feed
func (p *Pipeline) publishStatus(entry repository.TimeEntry, status repository.PhotoStatus) {
	if p.eventBus == nil {
		return
	}

	eventData := events.PhotoStatusEvent{
		EntryID:  entry.ID.String(),
		StaffID:  entry.StaffID,
		Status:   string(status),
		HasPhoto: status == repository.PhotoStatusUploaded,
	}

	data, err := json.Marshal(eventData)
	if err != nil {
		p.logger.Warn("failed to marshal photo_status event", "error", err)
		return
	}

	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypePhotoStatus,
		Channel:   events.ChannelPunches,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	if err := p.eventBus.Publish(event); err != nil {
		p.logger.Warn("failed to publish photo_status event",
			"entry_id", entry.ID,
			"error", err,
		)
	}
}
