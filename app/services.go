package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nrsc-chatbot/portal-api/config"
	"github.com/nrsc-chatbot/portal-api/database"
	"github.com/nrsc-chatbot/portal-api/services/cron"
	"github.com/nrsc-chatbot/portal-api/services/jobstore"
	"github.com/nrsc-chatbot/portal-api/services/schedule"
	"github.com/nrsc-chatbot/portal-api/services/scrapejob"
	"github.com/nrsc-chatbot/portal-api/services/scraper"
	"github.com/nrsc-chatbot/portal-api/services/storage"
	"github.com/nrsc-chatbot/portal-api/utils/cache"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
	"github.com/nrsc-chatbot/portal-api/utils/pdfvalidation"
	"gorm.io/gorm"
)

// Services is the wired pipeline shared by the server and the cmd tools
type Services struct {
	Env      *config.EnviornmentVariable
	Settings *config.ScrapeSettings

	DB            *database.GORMStore // nil with the file store
	Cache         *cache.RedisCache   // nil without REDIS_URL
	JobStore      jobstore.Store
	ScheduleStore schedule.Store

	Client     *scraper.Client
	Dispatcher *scrapejob.Dispatcher
	Jobs       *scrapejob.JobService
	Registrar  *schedule.Registrar
	Scheduler  *schedule.Scheduler
	Intervals  *schedule.IntervalTable
}

// BuildServices connects the stores and wires the job pipeline
func BuildServices(env *config.EnviornmentVariable, settings *config.ScrapeSettings) (*Services, error) {
	s := &Services{Env: env, Settings: settings}

	if err := s.openStores(); err != nil {
		s.closeStores()
		return nil, err
	}

	window, err := schedule.ParseQuietWindow(settings.Schedule.Timezone, settings.Schedule.QuietStart, settings.Schedule.QuietEnd)
	if err != nil {
		s.closeStores()
		return nil, err
	}
	s.Intervals = schedule.NewIntervalTable(settings.Schedule.Domains, settings.Schedule.DefaultIntervalDays)
	s.Registrar = schedule.NewRegistrar(s.ScheduleStore, s.Intervals, window)

	var archiver scrapejob.Archiver
	archiveCfg := storage.ArchiveConfig{
		AccessKey: env.SPACES_ACCESS_KEY,
		SecretKey: env.SPACES_SECRET_KEY,
		Bucket:    env.SPACES_BUCKET,
		Region:    env.SPACES_REGION,
		Endpoint:  env.SPACES_ENDPOINT,
	}
	if archiveCfg.Enabled() {
		archive, err := storage.NewPDFArchive(archiveCfg)
		if err != nil {
			s.closeStores()
			return nil, fmt.Errorf("object storage: %w", err)
		}
		archiver = archive
		logging.Info().Str("bucket", archiveCfg.Bucket).Msg("[SETUP] archiving uploaded PDFs")
	}

	s.Client = scraper.NewClient(env.SCRAPER_BASE_URL, settings.Discovery.Timeout)
	s.Dispatcher = scrapejob.NewDispatcher()

	processor := scrapejob.NewLinkProcessor(s.Client, settings.Processor)
	runner := scrapejob.NewRunner(s.JobStore, processor, settings.Processor.ConsecutiveFailures)
	uploader := scrapejob.NewPDFUploader(s.JobStore, s.Client, archiver, settings.Upload.Timeout)

	limits := pdfvalidation.KnowledgeBaseLimits
	limits.MaxFileSizeMB = env.MAX_PDF_UPLOAD_MB

	s.Jobs = scrapejob.NewJobService(scrapejob.Deps{
		Store:      s.JobStore,
		Discoverer: s.Client,
		Runner:     runner,
		Uploader:   uploader,
		Dispatcher: s.Dispatcher,
		Registrar:  s.Registrar,
		Archiver:   archiver,
		PDFLimits:  limits,
	})
	s.Scheduler = schedule.NewScheduler(s.ScheduleStore, s.Jobs, window, settings.Schedule)

	return s, nil
}

func (s *Services) openStores() error {
	env := s.Env

	switch env.JOB_STORE {
	case config.JobStorePostgres:
		db, err := database.StartGORM(env)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		s.DB = db
		if err := db.Init(); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		s.JobStore = jobstore.NewGORMStore(db.DB())
		s.ScheduleStore = schedule.NewGORMStore(db.DB())
	case config.JobStoreFile, "":
		jobs, err := jobstore.NewFileStore(filepath.Join(env.DATA_DIR, "jobs"))
		if err != nil {
			return err
		}
		sched, err := schedule.NewFileStore(env.DATA_DIR)
		if err != nil {
			return err
		}
		s.JobStore = jobs
		s.ScheduleStore = sched
	default:
		return fmt.Errorf("unknown JOB_STORE %q", env.JOB_STORE)
	}

	if env.REDIS_URL != "" {
		redisCache, err := cache.NewRedisCache(env.REDIS_URL)
		if err != nil {
			// the backing store is authoritative, run uncached
			logging.Warn().Err(err).Msg("[SETUP] redis unavailable, job cache disabled")
		} else {
			s.Cache = redisCache
			s.JobStore = jobstore.NewCachedStore(s.JobStore, redisCache, 0)
		}
	}

	logging.Info().Str("store", env.JOB_STORE).Bool("cache", s.Cache != nil).Msg("[SETUP] job store ready")
	return nil
}

// GormDB returns the Postgres handle, nil with the file store
func (s *Services) GormDB() *gorm.DB {
	if s.DB == nil {
		return nil
	}
	return s.DB.DB()
}

// NewCronManager builds the cron manager for the daily rescrape
func (s *Services) NewCronManager() (*cron.CronManager, error) {
	return cron.NewCronManager(s.GormDB(), s.Scheduler, s.Settings.Schedule)
}

// Shutdown waits for running jobs, then closes the stores
func (s *Services) Shutdown(ctx context.Context) error {
	err := s.Dispatcher.Shutdown(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("[SETUP] jobs still running at shutdown")
	}
	s.closeStores()
	return err
}

func (s *Services) closeStores() {
	if s.Cache != nil {
		s.Cache.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
