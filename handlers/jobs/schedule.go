package jobs

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/services/schedule"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
	"github.com/nrsc-chatbot/portal-api/utils/response"
	"github.com/nrsc-chatbot/portal-api/utils/validation"
)

// ScheduleService is the schedule operations the handler exposes
type ScheduleService interface {
	List(ctx context.Context) ([]model.ScheduleEntry, error)
	Remove(ctx context.Context, url string) error
	RunDue(ctx context.Context) (schedule.ScanResult, error)
}

// ScheduleHandler handles rescrape schedule requests
type ScheduleHandler struct {
	service   ScheduleService
	validator *validation.Validator
}

func NewScheduleHandler(service ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{
		service:   service,
		validator: validation.NewValidator(),
	}
}

type removeEntryRequest struct {
	URL string `json:"url" validate:"required"`
}

// ListEntries handles GET /api/v1/schedule
func (h *ScheduleHandler) ListEntries(c *fiber.Ctx) error {
	entries, err := h.service.List(c.UserContext())
	if err != nil {
		logging.Error().Err(err).Msg("[API] failed to list schedule")
		return response.InternalServerError(c, "Failed to fetch schedule")
	}
	return response.Success(c, entries)
}

// RunNow handles POST /api/v1/schedule/run
func (h *ScheduleHandler) RunNow(c *fiber.Ctx) error {
	result, err := h.service.RunDue(c.UserContext())
	if errors.Is(err, schedule.ErrScanInProgress) {
		return response.Conflict(c, "A schedule scan is already running")
	}
	if err != nil {
		logging.Error().Err(err).Msg("[API] schedule scan failed")
		return response.InternalServerError(c, "Schedule scan failed")
	}
	return response.Success(c, result)
}

// RemoveEntry handles DELETE /api/v1/schedule
func (h *ScheduleHandler) RemoveEntry(c *fiber.Ctx) error {
	var req removeEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	err := h.service.Remove(c.UserContext(), req.URL)
	if errors.Is(err, schedule.ErrEntryNotFound) {
		return response.NotFound(c, "Schedule entry not found")
	}
	if err != nil {
		logging.Error().Err(err).Str("url", req.URL).Msg("[API] failed to remove schedule entry")
		return response.InternalServerError(c, "Failed to remove schedule entry")
	}
	return c.JSON(fiber.Map{"success": true})
}
