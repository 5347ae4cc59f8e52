package storage

import (
	"context"
	"testing"
	"time"
)

// mockRefChecker fakes the entry repository's photo reference lookup
type mockRefChecker struct {
	referenced map[string]bool
	lastRefs   []string
}

func newMockRefChecker(referenced []string) *mockRefChecker {
	m := &mockRefChecker{referenced: make(map[string]bool)}
	for _, ref := range referenced {
		m.referenced[ref] = true
	}
	return m
}

func (m *mockRefChecker) PhotoRefsExist(ctx context.Context, refs []string) (map[string]bool, error) {
	m.lastRefs = refs
	result := make(map[string]bool, len(refs))
	for _, ref := range refs {
		result[ref] = m.referenced[ref]
	}
	return result, nil
}

func TestDefaultOrphanCleanupConfig(t *testing.T) {
	config := DefaultOrphanCleanupConfig("punch-photos/")

	if config.Interval != 24*time.Hour {
		t.Errorf("expected interval to be 24 hours, got %v", config.Interval)
	}
	if config.AgeThreshold != 7*24*time.Hour {
		t.Errorf("expected age threshold to be 7 days, got %v", config.AgeThreshold)
	}
	if config.Prefix != "punch-photos/" {
		t.Errorf("expected prefix punch-photos/, got %q", config.Prefix)
	}
	if config.BatchSize != 1000 {
		t.Errorf("expected batch size to be 1000, got %d", config.BatchSize)
	}
	if !config.Enabled {
		t.Error("expected enabled to be true")
	}
}

func TestOrphanCleanupJob_NewWithDefaults(t *testing.T) {
	checker := newMockRefChecker(nil)
	config := DefaultOrphanCleanupConfig("punch-photos/")

	// A real StorageService needs bucket credentials, so only the
	// configuration paths run here
	job := NewOrphanCleanupJob(nil, checker, config, nil)

	if job == nil {
		t.Fatal("expected job to be created")
	}
	if job.config.Interval != config.Interval {
		t.Errorf("expected interval %v, got %v", config.Interval, job.config.Interval)
	}
	if job.config.AgeThreshold != config.AgeThreshold {
		t.Errorf("expected age threshold %v, got %v", config.AgeThreshold, job.config.AgeThreshold)
	}
}

func TestOrphanCleanupJob_DisabledConfig(t *testing.T) {
	checker := newMockRefChecker(nil)
	config := OrphanCleanupConfig{
		Enabled: false,
	}

	job := NewOrphanCleanupJob(nil, checker, config, nil)

	if err := job.Start(); err != nil {
		t.Errorf("expected no error when starting disabled job, got %v", err)
	}
	if job.IsRunning() {
		t.Error("expected job to not be running when disabled")
	}
}

func TestOrphanCleanupJob_BatchSizeDefault(t *testing.T) {
	checker := newMockRefChecker(nil)
	config := OrphanCleanupConfig{
		Interval:     time.Hour,
		AgeThreshold: time.Hour,
		BatchSize:    0,
		Enabled:      true,
	}

	job := NewOrphanCleanupJob(nil, checker, config, nil)

	if job.config.BatchSize != 1000 {
		t.Errorf("expected batch size to default to 1000, got %d", job.config.BatchSize)
	}
}

func TestOrphanCleanupJob_StartTwice(t *testing.T) {
	checker := newMockRefChecker(nil)
	config := OrphanCleanupConfig{
		Interval:     time.Hour,
		AgeThreshold: time.Hour,
		Enabled:      true,
	}

	job := NewOrphanCleanupJob(nil, checker, config, nil)

	if err := job.Start(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	defer job.Stop()

	if err := job.Start(); err == nil {
		t.Error("expected error starting an already running job")
	}
}

func TestOrphanCleanupJob_StopIdempotent(t *testing.T) {
	checker := newMockRefChecker(nil)
	config := OrphanCleanupConfig{
		Interval:     time.Hour,
		AgeThreshold: time.Hour,
		Enabled:      true,
	}

	job := NewOrphanCleanupJob(nil, checker, config, nil)

	if err := job.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	job.Stop()
	if job.IsRunning() {
		t.Error("expected job stopped")
	}

	// Second stop on an already stopped job must not panic or block
	job.Stop()
}

func TestOrphanCleanupJob_CheckBatch(t *testing.T) {
	checker := newMockRefChecker([]string{
		"punch-photos/7/aaa.jpg",
		"punch-photos/7/bbb.jpg",
	})
	job := NewOrphanCleanupJob(nil, checker, DefaultOrphanCleanupConfig("punch-photos/"), nil)

	files := []orphanFile{
		{Key: "punch-photos/7/aaa.jpg", Size: 100},
		{Key: "punch-photos/7/bbb.jpg", Size: 200},
		{Key: "punch-photos/9/ccc.jpg", Size: 300},
		{Key: "punch-photos/9/ddd.jpg", Size: 400},
	}

	orphans, err := job.checkBatch(context.Background(), files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(orphans) != 2 {
		t.Fatalf("expected 2 orphans, got %d", len(orphans))
	}
	for _, o := range orphans {
		if checker.referenced[o.Key] {
			t.Errorf("referenced photo %s flagged as orphan", o.Key)
		}
	}
	if len(checker.lastRefs) != 4 {
		t.Errorf("expected all 4 keys checked in one batch, got %d", len(checker.lastRefs))
	}
}

func TestOrphanCleanupJob_CheckBatchEmpty(t *testing.T) {
	checker := newMockRefChecker(nil)
	job := NewOrphanCleanupJob(nil, checker, DefaultOrphanCleanupConfig("punch-photos/"), nil)

	orphans, err := job.checkBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orphans) != 0 {
		t.Errorf("expected no orphans from empty batch, got %d", len(orphans))
	}
	if checker.lastRefs != nil {
		t.Error("expected no repository call for empty batch")
	}
}
