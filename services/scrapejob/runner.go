package scrapejob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/services/jobstore"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
	"github.com/sony/gobreaker/v2"
)

// breakerHoldOpen keeps a tripped breaker open for the rest of the job.
// The runner halts on the first open state it sees, so half-open is never used.
const breakerHoldOpen = 100 * 365 * 24 * time.Hour

var errLinkFailed = errors.New("link failed")

// Runner drives one web job from processing to a terminal status.
// Links are processed strictly in order, html first, and the full record
// is written after every link.
type Runner struct {
	store     jobstore.Store
	processor LinkExecutor
	tripAfter uint32
	now       func() time.Time
}

// NewRunner creates a runner that halts a job after consecutiveFailures
// failed links in a row
func NewRunner(store jobstore.Store, processor LinkExecutor, consecutiveFailures int) *Runner {
	if consecutiveFailures < 1 {
		consecutiveFailures = 1
	}
	return &Runner{
		store:     store,
		processor: processor,
		tripAfter: uint32(consecutiveFailures),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// newBreaker builds the per-job breaker. Interval 0 means counts are never
// cleared on a timer, so only a successful link resets the failure streak.
func (r *Runner) newBreaker(jobID string) *gobreaker.CircuitBreaker[LinkOutcome] {
	return gobreaker.NewCircuitBreaker[LinkOutcome](gobreaker.Settings{
		Name:        "scrape-job:" + jobID,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     breakerHoldOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Debug().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[SCRAPE-JOB] breaker state changed")
		},
	})
}

// Run processes every link of job and persists the outcome.
// It returns nil for completed and partially_completed jobs, ErrCircuitTripped
// when the breaker halted the job, and the underlying error when the job
// had to be failed for any other reason. The record is never deleted.
func (r *Runner) Run(ctx context.Context, job *model.ProcessingJob) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = r.abort(ctx, job, fmt.Errorf("job runner panic: %v", rec))
		}
	}()

	start := r.now()
	job.Status = model.ProcessingJobStatusProcessing
	job.Successful = []model.SuccessfulLink{}
	job.Failed = []model.FailedLink{}
	job.Processed = 0
	job.EndTime = nil
	if job.StartTime == nil {
		job.StartTime = &start
	}
	if job.Timestamp == nil {
		job.Timestamp = job.StartTime
	}
	job.Message = fmt.Sprintf("Processing %d links", job.Total)

	if err := r.save(ctx, job); err != nil {
		return r.abort(ctx, job, err)
	}

	logging.Info().
		Str("job_id", job.JobID).
		Int("html", len(job.HTML)).
		Int("pdf", len(job.PDF)).
		Msg("[SCRAPE-JOB] started")

	cb := r.newBreaker(job.JobID)

	for _, link := range job.Links() {
		if cb.State() == gobreaker.StateOpen {
			return r.trip(ctx, job)
		}
		if ctx.Err() != nil {
			return r.interrupt(ctx, job)
		}

		var outcome LinkOutcome
		_, _ = cb.Execute(func() (LinkOutcome, error) {
			outcome = r.processor.Process(ctx, link)
			if !outcome.Success {
				return outcome, errLinkFailed
			}
			return outcome, nil
		})

		// a failure caused by shutdown is not the link's fault
		if !outcome.Success && ctx.Err() != nil {
			return r.interrupt(ctx, job)
		}

		at := r.now()
		if outcome.Success {
			job.Successful = append(job.Successful, model.SuccessfulLink{
				URL:       link.URL,
				Type:      link.Type,
				Attempts:  outcome.Attempts,
				Timestamp: at,
			})
		} else {
			job.Failed = append(job.Failed, model.FailedLink{
				URL:       link.URL,
				Type:      link.Type,
				Attempts:  outcome.Attempts,
				Error:     outcome.Error,
				Timestamp: at,
			})
			logging.Warn().
				Str("job_id", job.JobID).
				Str("url", link.URL).
				Int("attempts", outcome.Attempts).
				Str("error", outcome.Error).
				Msg("[SCRAPE-JOB] link failed")
		}
		job.RecountProcessed()
		job.Message = fmt.Sprintf("Processed %d of %d links", job.Processed, job.Total)

		if err := r.save(ctx, job); err != nil {
			return r.abort(ctx, job, err)
		}
	}

	// a trip on the last link still fails the job
	if cb.State() == gobreaker.StateOpen {
		return r.trip(ctx, job)
	}

	if len(job.Failed) == 0 {
		return r.finish(ctx, job, model.ProcessingJobStatusCompleted,
			fmt.Sprintf("Successfully processed all %d links", job.Processed))
	}
	return r.finish(ctx, job, model.ProcessingJobStatusPartial,
		fmt.Sprintf("Completed with %d failed links out of %d", len(job.Failed), job.Total))
}

func (r *Runner) trip(ctx context.Context, job *model.ProcessingJob) error {
	BreakerTrips.Inc()
	msg := fmt.Sprintf("Processing stopped due to consecutive failures after %d of %d links", job.Processed, job.Total)
	if err := r.finish(ctx, job, model.ProcessingJobStatusFailed, msg); err != nil {
		return err
	}
	return ErrCircuitTripped
}

func (r *Runner) interrupt(ctx context.Context, job *model.ProcessingJob) error {
	msg := fmt.Sprintf("Interrupted by shutdown after %d of %d links", job.Processed, job.Total)
	if err := r.finish(ctx, job, model.ProcessingJobStatusFailed, msg); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Runner) finish(ctx context.Context, job *model.ProcessingJob, status model.ProcessingJobStatus, message string) error {
	end := r.now()
	job.Status = status
	job.Message = message
	job.EndTime = &end

	if err := r.save(ctx, job); err != nil {
		return r.abort(ctx, job, err)
	}

	JobsFinished.WithLabelValues(string(job.Type), string(status)).Inc()
	logging.Info().
		Str("job_id", job.JobID).
		Str("status", string(status)).
		Int("successful", len(job.Successful)).
		Int("failed", len(job.Failed)).
		Int("total", job.Total).
		Msg("[SCRAPE-JOB] finished")
	return nil
}

// abort fails the job with cause in its message and persists it best effort
func (r *Runner) abort(ctx context.Context, job *model.ProcessingJob, cause error) error {
	end := r.now()
	job.Status = model.ProcessingJobStatusFailed
	job.Message = "Processing failed: " + cause.Error()
	job.EndTime = &end

	if err := r.save(ctx, job); err != nil {
		logging.Error().Err(err).Str("job_id", job.JobID).Msg("[SCRAPE-JOB] could not record failure, last checkpoint kept")
	}

	JobsFinished.WithLabelValues(string(job.Type), string(model.ProcessingJobStatusFailed)).Inc()
	logging.Error().Err(cause).Str("job_id", job.JobID).Msg("[SCRAPE-JOB] failed")
	return cause
}

// save writes the full record. Writes outlive the task context so a
// shutdown still records where the job stopped.
func (r *Runner) save(ctx context.Context, job *model.ProcessingJob) error {
	job.RecountProcessed()
	if err := r.store.Save(context.WithoutCancel(ctx), job); err != nil {
		PersistenceFailures.Inc()
		return &PersistenceError{JobID: job.JobID, Err: err}
	}
	return nil
}
