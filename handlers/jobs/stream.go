package jobs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/services/jobstore"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
	"github.com/nrsc-chatbot/portal-api/utils/sse"
)

const (
	defaultStreamPoll      = 2 * time.Second
	defaultStreamKeepAlive = 15 * time.Second
	maxStreamDuration      = 6 * time.Hour
)

// ProgressEvent is the payload of a progress or complete event
type ProgressEvent struct {
	JobID     string                    `json:"jobId"`
	Status    model.ProcessingJobStatus `json:"status"`
	Total     int                       `json:"total"`
	Processed int                       `json:"processed"`
	Failed    int                       `json:"failed"`
	Progress  int                       `json:"progress"`
	Message   string                    `json:"message"`
}

func newProgressEvent(job *model.ProcessingJob) ProgressEvent {
	return ProgressEvent{
		JobID:     job.JobID,
		Status:    job.Status,
		Total:     job.Total,
		Processed: job.Processed,
		Failed:    len(job.Failed),
		Progress:  job.GetProgress(),
		Message:   job.Message,
	}
}

// StreamJob handles GET /api/v1/processing-jobs/:jobId/events
// Emits a progress event whenever the stored record changes and a complete
// event once it reaches a terminal status.
func (h *ProcessingJobHandler) StreamJob(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	job, err := h.service.Get(c.UserContext(), jobID)
	if err != nil {
		return h.handleError(c, err, "Failed to fetch job")
	}

	poll := h.streamPoll
	if poll <= 0 {
		poll = defaultStreamPoll
	}

	sse.PrepareHeaders(c)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// The Fiber context is not valid inside the stream writer goroutine
		ctx, cancel := context.WithTimeout(context.Background(), maxStreamDuration)
		defer cancel()

		if err := h.streamJob(ctx, w, job, poll); err != nil {
			logging.Debug().Err(err).Str("job_id", jobID).Msg("[API] job stream closed")
		}
	})
	return nil
}

func (h *ProcessingJobHandler) streamJob(ctx context.Context, w *bufio.Writer, job *model.ProcessingJob, poll time.Duration) error {
	seq := 0
	send := func(j *model.ProcessingJob) error {
		seq++
		event := sse.EventProgress
		if j.IsTerminal() {
			event = sse.EventComplete
		}
		return sse.Send(w, sse.Event{
			Event: event,
			ID:    fmt.Sprintf("%s:%d", j.JobID, seq),
			Data:  newProgressEvent(j),
		})
	}

	if err := send(job); err != nil || job.IsTerminal() {
		return err
	}
	last := newProgressEvent(job)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	lastWrite := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		current, err := h.service.Get(ctx, job.JobID)
		if err != nil {
			if errors.Is(err, jobstore.ErrJobNotFound) {
				return sse.SendError(w, "Job was deleted")
			}
			return sse.SendError(w, "Failed to fetch job")
		}

		if next := newProgressEvent(current); next != last || current.IsTerminal() {
			if err := send(current); err != nil || current.IsTerminal() {
				return err
			}
			last = next
			lastWrite = time.Now()
			continue
		}

		if time.Since(lastWrite) >= defaultStreamKeepAlive {
			if err := sse.SendKeepAlive(w); err != nil {
				return err
			}
			lastWrite = time.Now()
		}
	}
}
