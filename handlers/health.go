package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is a dependency the health check probes
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and the state of the stores
type HealthHandler struct {
	checks map[string]Pinger
	active func() int
}

// NewHealthHandler probes every named check on each request. active may be nil.
func NewHealthHandler(checks map[string]Pinger, active func() int) *HealthHandler {
	return &HealthHandler{checks: checks, active: active}
}

// HandleCheckHealth handles GET /ping
func (h *HealthHandler) HandleCheckHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := "ok"
	code := fiber.StatusOK
	results := fiber.Map{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			results[name] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	body := fiber.Map{"status": status, "checks": results}
	if h.active != nil {
		body["activeJobs"] = h.active()
	}
	return c.Status(code).JSON(body)
}
