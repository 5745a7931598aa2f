package scrapejob

import (
	"context"
	"fmt"
	"sync"

	"github.com/nrsc-chatbot/portal-api/utils/logging"
)

// Task is one unit of background work bound to a job id
type Task func(ctx context.Context) error

// Dispatcher runs job tasks in their own goroutines, at most one per job id.
// Task contexts derive from the dispatcher, not from the request that
// submitted them, and are cancelled only by Shutdown.
type Dispatcher struct {
	ctx    context.Context
	cancel context.CancelFunc

	activeJobsMu sync.RWMutex
	activeJobs   map[string]struct{}
	closed       bool

	wg sync.WaitGroup
}

func NewDispatcher() *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		ctx:        ctx,
		cancel:     cancel,
		activeJobs: make(map[string]struct{}),
	}
}

// Submit starts task for jobID. It fails with ErrJobActive when a task for
// the same id is still running and with ErrDispatcherClosed after Shutdown.
func (d *Dispatcher) Submit(jobID string, task Task) error {
	d.activeJobsMu.Lock()
	if d.closed {
		d.activeJobsMu.Unlock()
		return ErrDispatcherClosed
	}
	if _, exists := d.activeJobs[jobID]; exists {
		d.activeJobsMu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobActive, jobID)
	}
	d.activeJobs[jobID] = struct{}{}
	d.wg.Add(1)
	d.activeJobsMu.Unlock()

	JobsActive.Inc()
	go d.run(jobID, task)
	return nil
}

func (d *Dispatcher) run(jobID string, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error().Str("job_id", jobID).Interface("panic", rec).Msg("[DISPATCHER] task panicked")
		}
		d.activeJobsMu.Lock()
		delete(d.activeJobs, jobID)
		d.activeJobsMu.Unlock()
		JobsActive.Dec()
		d.wg.Done()
	}()

	if err := task(d.ctx); err != nil {
		logging.Warn().Err(err).Str("job_id", jobID).Msg("[DISPATCHER] task ended with error")
	}
}

// IsActive reports whether a task for jobID is running
func (d *Dispatcher) IsActive(jobID string) bool {
	d.activeJobsMu.RLock()
	defer d.activeJobsMu.RUnlock()
	_, exists := d.activeJobs[jobID]
	return exists
}

// ActiveCount returns the number of running tasks
func (d *Dispatcher) ActiveCount() int {
	d.activeJobsMu.RLock()
	defer d.activeJobsMu.RUnlock()
	return len(d.activeJobs)
}

// Wait blocks until every submitted task has returned
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown stops accepting tasks, cancels running ones and waits for them
// to record their state, or until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.activeJobsMu.Lock()
	d.closed = true
	d.activeJobsMu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %d tasks still running: %w", d.ActiveCount(), ctx.Err())
	}
}
