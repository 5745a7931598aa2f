// Package jobstore persists scraping job records keyed by job id.
//
// Every backend stores the whole record on each Save; there are no partial
// updates. Only the task that owns a job id writes its record, so the stores
// do not lock per key beyond what the backend itself provides.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/nrsc-chatbot/portal-api/model"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrInvalidJobID = errors.New("invalid job id")
)

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// StoredJob is a record as read back from a store.
// ID is the storage key, which normalization falls back to when the
// document has no jobId of its own. ModifiedAt is the last write time.
type StoredJob struct {
	ID         string
	Job        model.ProcessingJob
	ModifiedAt time.Time
}

// Store is the durable job record store
type Store interface {
	Save(ctx context.Context, job *model.ProcessingJob) error
	Get(ctx context.Context, jobID string) (*StoredJob, error)
	List(ctx context.Context) ([]StoredJob, error)
	Delete(ctx context.Context, jobID string) error
	Ping(ctx context.Context) error
}

// ValidateJobID rejects ids that cannot be used as a storage key
func ValidateJobID(jobID string) error {
	if !jobIDPattern.MatchString(jobID) {
		return fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	return nil
}
