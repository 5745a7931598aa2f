package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nrsc-chatbot/portal-api/api"
	"github.com/nrsc-chatbot/portal-api/config"
	"github.com/nrsc-chatbot/portal-api/handlers"
	job_handlers "github.com/nrsc-chatbot/portal-api/handlers/jobs"
	"github.com/nrsc-chatbot/portal-api/router"
	"github.com/nrsc-chatbot/portal-api/services/cron"
	"github.com/nrsc-chatbot/portal-api/utils/auth"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
	"github.com/nrsc-chatbot/portal-api/utils/middleware"
)

const shutdownTimeout = 30 * time.Second

// LoadConfig reads the environment and pipeline settings and sets up logging
func LoadConfig() (*config.EnviornmentVariable, *config.ScrapeSettings, error) {
	if err := config.LoadENV(); err != nil {
		return nil, nil, err
	}

	getEnv, err := config.Get()
	if err != nil {
		return nil, nil, err
	}

	logging.Init(logging.Config{
		Level:  getEnv.LOG_LEVEL,
		Format: getEnv.LOG_FORMAT,
		Caller: getEnv.IsDevelopment(),
	})

	settings, err := config.LoadScrapeSettings()
	if err != nil {
		return nil, nil, err
	}
	return getEnv, settings, nil
}

func SetupAndRunServer() error {
	getEnv, settings, err := LoadConfig()
	if err != nil {
		return err
	}

	if getEnv.JWT_SECRET == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}

	services, err := BuildServices(getEnv, settings)
	if err != nil {
		return err
	}

	// Jobs left processing by a previous process can never finish
	if _, err := services.Jobs.RecoverInterrupted(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("[SETUP] could not recover interrupted jobs")
	}

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if getEnv.CRON_ENABLED {
		cronManager, err = services.NewCronManager()
		if err == nil {
			err = cronManager.Start()
		}
		if err != nil {
			services.Shutdown(context.Background())
			return fmt.Errorf("start cron: %w", err)
		}
	}

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT), getEnv.MAX_PDF_UPLOAD_MB)
	app := server.GetEngine()

	middleware.SetupSecurity(app, middleware.DefaultSecurityConfig(getEnv.ALLOWED_ORIGINS))
	router.SetupRoutes(app, newHandlers(services))

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-errCh:
	case s := <-sig:
		logging.Info().Str("signal", s.String()).Msg("[SETUP] shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logging.Warn().Err(err).Msg("[SETUP] http shutdown")
	}
	if cronManager != nil {
		cronManager.Stop()
	}
	if err := services.Shutdown(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newHandlers(s *Services) router.Handlers {
	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret: s.Env.JWT_SECRET,
		Issuer: s.Env.JWT_ISSUER,
	})

	var revocations *auth.RevocationList
	checks := map[string]handlers.Pinger{"jobStore": s.Jobs}
	if s.Cache != nil {
		revocations = auth.NewRevocationList(s.Cache)
		checks["cache"] = s.Cache
	}
	if s.DB != nil {
		checks["database"] = pingFunc(s.DB.HealthCheck)
	}

	return router.Handlers{
		Auth:     middleware.NewAuthMiddleware(jwtManager, revocations),
		Health:   handlers.NewHealthHandler(checks, s.Jobs.ActiveJobs),
		Jobs:     job_handlers.NewProcessingJobHandler(s.Jobs, s.Env.MAX_PDF_UPLOAD_MB),
		Schedule: job_handlers.NewScheduleHandler(s.Scheduler),
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
