package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// OrphanCleanupConfig holds configuration for the orphaned photo sweep
type OrphanCleanupConfig struct {
	// Interval between sweep runs
	Interval time.Duration
	// AgeThreshold protects fresh objects whose entry mark may still be in flight
	AgeThreshold time.Duration
	// Prefix under which punch photos live
	Prefix string
	// BatchSize is the number of objects checked and deleted per batch
	BatchSize int
	Enabled   bool
}

// DefaultOrphanCleanupConfig returns default configuration
func DefaultOrphanCleanupConfig(prefix string) OrphanCleanupConfig {
	return OrphanCleanupConfig{
		Interval:     24 * time.Hour,
		AgeThreshold: 7 * 24 * time.Hour,
		Prefix:       prefix,
		BatchSize:    1000,
		Enabled:      true,
	}
}

// PhotoRefChecker reports which storage keys are still referenced by a time
// entry. Satisfied by the time entry repository.
type PhotoRefChecker interface {
	PhotoRefsExist(ctx context.Context, refs []string) (map[string]bool, error)
}

// OrphanCleanupJob periodically deletes stored photos no entry references.
// Orphans appear when an upload lands but the entry's photo_ref write fails;
// the sweep keeps the bucket from accumulating them.
type OrphanCleanupJob struct {
	storage    *StorageService
	refChecker PhotoRefChecker
	config     OrphanCleanupConfig
	logger     *slog.Logger
	stopChan   chan struct{}
	wg         sync.WaitGroup

	mu         sync.Mutex
	running    bool
	lastRun    time.Time
	lastResult *CleanupResult
}

// CleanupResult holds the result of one sweep run
type CleanupResult struct {
	StartTime      time.Time
	EndTime        time.Time
	FilesScanned   int
	OrphansFound   int
	OrphansDeleted int
	BytesFreed     int64
	Errors         []string
}

// NewOrphanCleanupJob creates the sweep job
func NewOrphanCleanupJob(storage *StorageService, refChecker PhotoRefChecker, config OrphanCleanupConfig, logger *slog.Logger) *OrphanCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	return &OrphanCleanupJob{
		storage:    storage,
		refChecker: refChecker,
		config:     config,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (j *OrphanCleanupJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("cleanup job is already running")
	}
	if !j.config.Enabled {
		j.logger.Info("orphan photo sweep disabled")
		return nil
	}

	j.running = true
	j.stopChan = make(chan struct{})
	j.wg.Add(1)
	go j.run()

	j.logger.Info("orphan photo sweep started",
		"interval", j.config.Interval.String(),
		"age_threshold", j.config.AgeThreshold.String(),
		"prefix", j.config.Prefix,
	)
	return nil
}

// Stop stops the periodic sweep and waits for an in-flight run
func (j *OrphanCleanupJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stopChan)
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Info("orphan photo sweep stopped")
}

// IsRunning reports whether the sweep loop is active
func (j *OrphanCleanupJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// GetLastResult returns the result of the most recent run
func (j *OrphanCleanupJob) GetLastResult() *CleanupResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastResult
}

func (j *OrphanCleanupJob) run() {
	defer j.wg.Done()

	// First run waits a full interval; startup is the worst time to scan
	// the bucket.
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			result, err := j.RunNow(ctx)
			cancel()
			if err != nil {
				j.logger.Error("orphan photo sweep failed", "error", err)
				continue
			}
			j.logger.Info("orphan photo sweep completed",
				"scanned", result.FilesScanned,
				"found", result.OrphansFound,
				"deleted", result.OrphansDeleted,
				"bytes_freed", result.BytesFreed,
				"errors", len(result.Errors),
				"duration", result.EndTime.Sub(result.StartTime).String(),
			)
		case <-j.stopChan:
			return
		}
	}
}

// RunNow performs a single sweep immediately
func (j *OrphanCleanupJob) RunNow(ctx context.Context) (*CleanupResult, error) {
	result := &CleanupResult{StartTime: time.Now()}

	orphans, scanned, err := j.findOrphans(ctx)
	result.FilesScanned = scanned
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("error finding orphans: %v", err))
	}
	result.OrphansFound = len(orphans)

	if len(orphans) > 0 {
		deleted, bytesFreed, deleteErrors := j.deleteOrphans(ctx, orphans)
		result.OrphansDeleted = deleted
		result.BytesFreed = bytesFreed
		result.Errors = append(result.Errors, deleteErrors...)
	}

	result.EndTime = time.Now()

	j.mu.Lock()
	j.lastRun = result.StartTime
	j.lastResult = result
	j.mu.Unlock()

	return result, nil
}

// orphanFile is a stored object that may have lost its entry reference
type orphanFile struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// findOrphans lists stored photos old enough to judge and filters out those
// still referenced by an entry
func (j *OrphanCleanupJob) findOrphans(ctx context.Context) ([]orphanFile, int, error) {
	var orphans []orphanFile
	var scanned int
	cutoffTime := time.Now().Add(-j.config.AgeThreshold)

	paginator := s3.NewListObjectsV2Paginator(j.storage.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(j.storage.bucket),
		Prefix: aws.String(j.config.Prefix),
	})

	var batch []orphanFile
	for paginator.HasMorePages() {
		select {
		case <-ctx.Done():
			return orphans, scanned, ctx.Err()
		default:
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return orphans, scanned, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			scanned++
			if obj.Key == nil {
				continue
			}
			if obj.LastModified != nil && obj.LastModified.After(cutoffTime) {
				continue
			}

			batch = append(batch, orphanFile{
				Key:          *obj.Key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})

			if len(batch) >= j.config.BatchSize {
				orphansInBatch, err := j.checkBatch(ctx, batch)
				if err != nil {
					j.logger.Error("failed to check photo ref batch", "error", err)
				} else {
					orphans = append(orphans, orphansInBatch...)
				}
				batch = batch[:0]
			}
		}
	}

	if len(batch) > 0 {
		orphansInBatch, err := j.checkBatch(ctx, batch)
		if err != nil {
			j.logger.Error("failed to check final photo ref batch", "error", err)
		} else {
			orphans = append(orphans, orphansInBatch...)
		}
	}

	return orphans, scanned, nil
}

// checkBatch keeps only the files whose key no entry references
func (j *OrphanCleanupJob) checkBatch(ctx context.Context, files []orphanFile) ([]orphanFile, error) {
	if len(files) == 0 {
		return nil, nil
	}

	refs := make([]string, len(files))
	for i, f := range files {
		refs[i] = f.Key
	}

	existsMap, err := j.refChecker.PhotoRefsExist(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to check entry references: %w", err)
	}

	var orphans []orphanFile
	for _, f := range files {
		if !existsMap[f.Key] {
			orphans = append(orphans, f)
		}
	}
	return orphans, nil
}

// deleteOrphans batch-deletes the given objects
func (j *OrphanCleanupJob) deleteOrphans(ctx context.Context, orphans []orphanFile) (int, int64, []string) {
	var deleted int
	var bytesFreed int64
	var errs []string

	for i := 0; i < len(orphans); i += j.config.BatchSize {
		select {
		case <-ctx.Done():
			errs = append(errs, "context cancelled during deletion")
			return deleted, bytesFreed, errs
		default:
		}

		end := i + j.config.BatchSize
		if end > len(orphans) {
			end = len(orphans)
		}
		batch := orphans[i:end]

		objectIdentifiers := make([]types.ObjectIdentifier, len(batch))
		for idx, f := range batch {
			objectIdentifiers[idx] = types.ObjectIdentifier{Key: aws.String(f.Key)}
		}

		output, err := j.storage.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(j.storage.bucket),
			Delete: &types.Delete{
				Objects: objectIdentifiers,
				Quiet:   aws.Bool(false),
			},
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("failed to delete batch at index %d: %v", i, err))
			continue
		}

		deletedKeys := make(map[string]bool, len(output.Deleted))
		for _, d := range output.Deleted {
			if d.Key != nil {
				deletedKeys[*d.Key] = true
			}
		}
		for _, f := range batch {
			if deletedKeys[f.Key] {
				deleted++
				bytesFreed += f.Size
			}
		}

		for _, e := range output.Errors {
			errs = append(errs, fmt.Sprintf("failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}

	return deleted, bytesFreed, errs
}
