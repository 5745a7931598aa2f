package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/services/jobstore"
	"github.com/nrsc-chatbot/portal-api/services/scrapejob"
	"github.com/nrsc-chatbot/portal-api/services/scraper"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
	"github.com/nrsc-chatbot/portal-api/utils/pdfvalidation"
	"github.com/nrsc-chatbot/portal-api/utils/response"
	"github.com/nrsc-chatbot/portal-api/utils/validation"
)

// JobService is the job operations the handler exposes
type JobService interface {
	SubmitSeed(ctx context.Context, seedURL string) (*model.ProcessingJob, error)
	SubmitPDF(ctx context.Context, originalName, contentType string, data []byte) (*model.ProcessingJob, error)
	List(ctx context.Context) ([]model.ProcessingJob, error)
	Get(ctx context.Context, jobID string) (*model.ProcessingJob, error)
	Delete(ctx context.Context, jobID string) error
	Retry(ctx context.Context, jobID string) (*scrapejob.RetryResult, error)
}

// ProcessingJobHandler handles scraping job requests
type ProcessingJobHandler struct {
	service     JobService
	validator   *validation.Validator
	maxUploadMB int
	streamPoll  time.Duration
}

// NewProcessingJobHandler creates a new processing job handler
func NewProcessingJobHandler(service JobService, maxUploadMB int) *ProcessingJobHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = pdfvalidation.KnowledgeBaseLimits.MaxFileSizeMB
	}
	return &ProcessingJobHandler{
		service:     service,
		validator:   validation.NewValidator(),
		maxUploadMB: maxUploadMB,
	}
}

// SubmitURLRequest is the body of POST /processing-jobs
type SubmitURLRequest struct {
	URL string `json:"url" validate:"required,url,http_url,max=2048"`
}

// ListJobs handles GET /api/v1/processing-jobs
// The dashboard expects the bare array.
func (h *ProcessingJobHandler) ListJobs(c *fiber.Ctx) error {
	jobs, err := h.service.List(c.UserContext())
	if err != nil {
		logging.Error().Err(err).Msg("[API] failed to list processing jobs")
		return response.InternalServerError(c, "Failed to fetch processing jobs")
	}
	return c.JSON(jobs)
}

// GetJob handles GET /api/v1/processing-jobs/:jobId
func (h *ProcessingJobHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return h.handleError(c, err, "Failed to fetch job")
	}
	return c.JSON(job)
}

// DeleteJob handles DELETE /api/v1/processing-jobs/:jobId
func (h *ProcessingJobHandler) DeleteJob(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("jobId")); err != nil {
		return h.handleError(c, err, "Failed to delete job")
	}
	return c.JSON(fiber.Map{"success": true})
}

// RetryJob handles POST /api/v1/processing-jobs/:jobId/retry
func (h *ProcessingJobHandler) RetryJob(c *fiber.Ctx) error {
	result, err := h.service.Retry(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return h.handleError(c, err, "Failed to retry job")
	}

	body := fiber.Map{
		"success": true,
		"retryOf": result.RetryOf,
		"message": result.Message,
	}
	if result.JobID != "" {
		body["jobId"] = result.JobID
		body["totalLinks"] = result.TotalLinks
	}
	return c.JSON(body)
}

// SubmitURL handles POST /api/v1/processing-jobs
// Discovery runs inline; link processing continues in the background.
func (h *ProcessingJobHandler) SubmitURL(c *fiber.Ctx) error {
	var req SubmitURLRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.URL = validation.SanitizeString(req.URL)

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ErrorWithDetails(c, fiber.StatusUnprocessableEntity,
			"Validation failed", "VALIDATION_ERROR", validation.Describe(err))
	}

	job, err := h.service.SubmitSeed(c.UserContext(), req.URL)
	if err != nil {
		return h.handleError(c, err, "Failed to start scraping job")
	}

	return response.Accepted(c, fiber.Map{
		"success":    true,
		"jobId":      job.JobID,
		"totalLinks": job.Total,
		"message":    job.Message,
	})
}

// UploadPDF handles POST /api/v1/processing-jobs/pdf
func (h *ProcessingJobHandler) UploadPDF(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.BadRequest(c, "File is required")
	}

	maxBytes := int64(h.maxUploadMB) * 1024 * 1024
	if file.Size > maxBytes {
		return response.Error(c, fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("File size exceeds maximum allowed size of %dMB", h.maxUploadMB), "FILE_TOO_LARGE")
	}

	f, err := file.Open()
	if err != nil {
		return response.InternalServerError(c, "Failed to read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return response.InternalServerError(c, "Failed to read uploaded file")
	}

	job, err := h.service.SubmitPDF(c.UserContext(), file.Filename, file.Header.Get("Content-Type"), data)
	if err != nil {
		return h.handleError(c, err, "Failed to start PDF upload")
	}

	return response.Accepted(c, fiber.Map{
		"success":  true,
		"jobId":    job.JobID,
		"filename": job.Filename,
	})
}

// handleError maps service errors to HTTP responses
func (h *ProcessingJobHandler) handleError(c *fiber.Ctx, err error, fallback string) error {
	var rejected *scrapejob.UploadRejectedError
	var discoveryErr *scraper.DiscoveryError

	switch {
	case errors.Is(err, jobstore.ErrJobNotFound), errors.Is(err, jobstore.ErrInvalidJobID):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, scrapejob.ErrInvalidOperation):
		return response.BadRequest(c, err.Error())
	case errors.As(err, &rejected):
		return uploadRejected(c, rejected)
	case errors.Is(err, scraper.ErrInvalidURL):
		return response.ErrorWithDetails(c, fiber.StatusUnprocessableEntity,
			"Validation failed", "VALIDATION_ERROR", err.Error())
	case errors.As(err, &discoveryErr):
		return response.BadGateway(c, "Link discovery failed", discoveryErr.Error())
	case errors.Is(err, scrapejob.ErrDispatcherClosed):
		return response.ServiceUnavailable(c, "Service is shutting down")
	}

	logging.Error().Err(err).Str("path", c.Path()).Msg("[API] " + fallback)
	return response.InternalServerError(c, fallback)
}

func uploadRejected(c *fiber.Ctx, err *scrapejob.UploadRejectedError) error {
	switch err.Reason {
	case pdfvalidation.ReasonTooLarge:
		return response.Error(c, fiber.StatusRequestEntityTooLarge, err.Message, "FILE_TOO_LARGE")
	case pdfvalidation.ReasonUnsupportedType:
		return response.Error(c, fiber.StatusUnsupportedMediaType, err.Message, "UNSUPPORTED_MEDIA_TYPE")
	default:
		return response.BadRequest(c, err.Message)
	}
}
