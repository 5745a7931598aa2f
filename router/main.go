package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nrsc-chatbot/portal-api/handlers"
	job_handlers "github.com/nrsc-chatbot/portal-api/handlers/jobs"
	"github.com/nrsc-chatbot/portal-api/utils/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles everything the routes dispatch to
type Handlers struct {
	Auth     *middleware.AuthMiddleware
	Health   *handlers.HealthHandler
	Jobs     *job_handlers.ProcessingJobHandler
	Schedule *job_handlers.ScheduleHandler
}

func SetupRoutes(app *fiber.App, h Handlers) {
	// Public probes
	app.Get("/ping", h.Health.HandleCheckHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 group, admin only
	api := app.Group("/api/v1", h.Auth.RequireAdmin()...)

	// ==================== Scraping jobs ====================
	processingJobs := api.Group("/processing-jobs")
	processingJobs.Get("/", h.Jobs.ListJobs)               // List all jobs, newest first
	processingJobs.Post("/", h.Jobs.SubmitURL)             // Discover links for a seed URL and start a job
	processingJobs.Post("/pdf", h.Jobs.UploadPDF)          // Upload a PDF to the knowledge base
	processingJobs.Get("/:jobId", h.Jobs.GetJob)           // Get one job
	processingJobs.Get("/:jobId/events", h.Jobs.StreamJob) // Stream job progress (SSE)
	processingJobs.Delete("/:jobId", h.Jobs.DeleteJob)     // Delete a finished job
	processingJobs.Post("/:jobId/retry", h.Jobs.RetryJob)  // Retry failed and unprocessed links

	// ==================== Rescrape schedule ====================
	schedule := api.Group("/schedule")
	schedule.Get("/", h.Schedule.ListEntries)    // List scheduled URLs
	schedule.Post("/run", h.Schedule.RunNow)     // Scan due entries now
	schedule.Delete("/", h.Schedule.RemoveEntry) // Stop rescraping a URL
}
