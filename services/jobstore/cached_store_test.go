package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/utils/cache"
)

type memoryCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failSet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return cache.ErrNotFound
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("cache down")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func TestCachedStoreWriteThrough(t *testing.T) {
	ctx := context.Background()
	files, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	mem := newMemoryCache()
	store := NewCachedStore(files, mem, time.Minute)

	job := newJob("web-10")
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !mem.has(cacheKey(job.JobID)) {
		t.Fatal("expected record in cache after Save")
	}
	if _, err := files.Get(ctx, job.JobID); err != nil {
		t.Fatalf("expected record in backing store: %v", err)
	}

	got, err := store.Get(ctx, job.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Job.SourceURL != job.SourceURL {
		t.Errorf("cached record mismatch: %+v", got.Job)
	}

	if err := store.Delete(ctx, job.JobID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if mem.has(cacheKey(job.JobID)) {
		t.Error("expected cache eviction on Delete")
	}
	if _, err := store.Get(ctx, job.JobID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get after delete = %v", err)
	}
}

func TestCachedStoreFillsOnMissAndSurvivesCacheFailure(t *testing.T) {
	ctx := context.Background()
	files, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	job := newJob("web-11")
	job.Status = model.ProcessingJobStatusFailed
	if err := files.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mem := newMemoryCache()
	store := NewCachedStore(files, mem, 0)

	if _, err := store.Get(ctx, job.JobID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !mem.has(cacheKey(job.JobID)) {
		t.Error("expected cache fill on miss")
	}

	mem.failSet = true
	job.Status = model.ProcessingJobStatusCompleted
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("Save must not fail on cache error: %v", err)
	}
	if mem.has(cacheKey(job.JobID)) {
		t.Error("stale entry should be evicted when write-through fails")
	}

	got, err := store.Get(ctx, job.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Job.Status != model.ProcessingJobStatusCompleted {
		t.Errorf("status = %s, want completed from backing store", got.Job.Status)
	}
}
