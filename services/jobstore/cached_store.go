package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/utils/cache"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
)

const (
	cacheKeyPrefix = "scrape:job:"
	defaultJobTTL  = 24 * time.Hour
)

// JSONCache is the subset of the Redis cache used for job records
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type cachedJob struct {
	ID         string              `json:"id"`
	Job        model.ProcessingJob `json:"job"`
	ModifiedAt time.Time           `json:"modifiedAt"`
}

// CachedStore is a write-through cache in front of another Store.
// The wrapped store stays authoritative: writes go there first and
// cache failures are logged, never returned.
type CachedStore struct {
	next  Store
	cache JSONCache
	ttl   time.Duration
}

func NewCachedStore(next Store, c JSONCache, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = defaultJobTTL
	}
	return &CachedStore{next: next, cache: c, ttl: ttl}
}

func cacheKey(jobID string) string {
	return cacheKeyPrefix + jobID
}

func (s *CachedStore) Save(ctx context.Context, job *model.ProcessingJob) error {
	if err := s.next.Save(ctx, job); err != nil {
		return err
	}
	entry := cachedJob{ID: job.JobID, Job: *job, ModifiedAt: time.Now()}
	if err := s.cache.SetJSON(ctx, cacheKey(job.JobID), entry, s.ttl); err != nil {
		logging.Warn().Err(err).Str("job_id", job.JobID).Msg("[JOB-CACHE] write-through failed, evicting")
		s.evict(ctx, job.JobID)
	}
	return nil
}

func (s *CachedStore) Get(ctx context.Context, jobID string) (*StoredJob, error) {
	var entry cachedJob
	err := s.cache.GetJSON(ctx, cacheKey(jobID), &entry)
	if err == nil {
		return &StoredJob{ID: entry.ID, Job: entry.Job, ModifiedAt: entry.ModifiedAt}, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		logging.Debug().Err(err).Str("job_id", jobID).Msg("[JOB-CACHE] read failed, falling back to store")
	}

	stored, err := s.next.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	entry = cachedJob{ID: stored.ID, Job: stored.Job, ModifiedAt: stored.ModifiedAt}
	if err := s.cache.SetJSON(ctx, cacheKey(jobID), entry, s.ttl); err != nil {
		logging.Debug().Err(err).Str("job_id", jobID).Msg("[JOB-CACHE] fill failed")
	}
	return stored, nil
}

// List always reads the wrapped store, which is the only complete view
func (s *CachedStore) List(ctx context.Context) ([]StoredJob, error) {
	return s.next.List(ctx)
}

func (s *CachedStore) Delete(ctx context.Context, jobID string) error {
	err := s.next.Delete(ctx, jobID)
	s.evict(ctx, jobID)
	return err
}

func (s *CachedStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *CachedStore) evict(ctx context.Context, jobID string) {
	if err := s.cache.Delete(ctx, cacheKey(jobID)); err != nil {
		logging.Warn().Err(err).Str("job_id", jobID).Msg("[JOB-CACHE] evict failed")
	}
}
