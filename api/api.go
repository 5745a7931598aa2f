package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
)

type APIServer struct {
	app           *fiber.App
	listenAddress string
}

// NewAPIServer creates the Fiber app. bodyLimitMB must cover the largest PDF upload.
func NewAPIServer(listenAddress string, bodyLimitMB int) *APIServer {
	if bodyLimitMB <= 0 {
		bodyLimitMB = 4
	}
	return &APIServer{
		app: fiber.New(fiber.Config{
			AppName: "nrsc-portal-api",
			// headroom for the multipart envelope around the file
			BodyLimit:    (bodyLimitMB + 1) * 1024 * 1024,
			ReadTimeout:  5 * time.Minute,
			WriteTimeout: 5 * time.Minute,
		}),
		listenAddress: listenAddress,
	}
}

func (s *APIServer) GetEngine() *fiber.App {
	return s.app
}

func (s *APIServer) Run() error {
	logging.Info().Str("addr", s.listenAddress).Msg("[API] starting server")
	return s.app.Listen(s.listenAddress)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
