package scrapejob

import (
	"errors"
	"fmt"

	"github.com/nrsc-chatbot/portal-api/services/jobstore"
)

var (
	// ErrJobNotFound is the store's not-found error, re-exported for callers of this package
	ErrJobNotFound = jobstore.ErrJobNotFound

	// ErrInvalidOperation is returned for control operations a job does not support
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrCircuitTripped marks a job halted after consecutive link failures
	ErrCircuitTripped = errors.New("stopped due to consecutive failures")

	// ErrJobActive is returned when a task is already running for a job id
	ErrJobActive = errors.New("job is already running")

	// ErrDispatcherClosed is returned once shutdown has begun
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
)

// PersistenceError is a failed write of a job record
type PersistenceError struct {
	JobID string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist job %s: %v", e.JobID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func invalidOperation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}
