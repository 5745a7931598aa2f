package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/nrsc-chatbot/portal-api/config"
	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/services/schedule"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// ScanRunner runs one pass over the rescrape schedule
type ScanRunner interface {
	RunDue(ctx context.Context) (schedule.ScanResult, error)
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron     *cron.Cron
	db       *gorm.DB // optional, run history is only kept in Postgres
	scanner  ScanRunner
	settings config.ScheduleSettings

	// cancelled by Stop so an in-flight scan gives up its submissions
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCronManager creates a cron manager evaluating specs in the schedule timezone
func NewCronManager(db *gorm.DB, scanner ScanRunner, settings config.ScheduleSettings) (*CronManager, error) {
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load cron timezone %q: %w", settings.Timezone, err)
	}

	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds(), cron.WithLocation(loc))

	ctx, cancel := context.WithCancel(context.Background())
	return &CronManager{
		cron:     c,
		db:       db,
		scanner:  scanner,
		settings: settings,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	logging.Info().
		Str("spec", m.settings.Cron).
		Str("timezone", m.settings.Timezone).
		Msg("[CRON] jobs started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (m *CronManager) Stop() {
	m.cancel()
	ctx := m.cron.Stop()
	<-ctx.Done()
	logging.Info().Msg("[CRON] jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// Daily: rescrape schedule entries that are due
	_, err := m.cron.AddFunc(m.settings.Cron, func() {
		m.RescrapeDueURLs()
	})
	if err != nil {
		return fmt.Errorf("register %s with spec %q: %w", JobRescrapeDueURLs, m.settings.Cron, err)
	}

	return nil
}

// logJobStart logs the start of a cron job and returns the history row id
func (m *CronManager) logJobStart(jobName string) uint {
	logging.Info().Str("job", jobName).Msg("[CRON] starting job")

	if m.db == nil {
		return 0
	}
	cronLog := model.CronJobLog{
		JobName:   jobName,
		Status:    model.CronJobStatusRunning,
		StartedAt: time.Now(),
	}
	if err := m.db.Create(&cronLog).Error; err != nil {
		logging.Warn().Err(err).Str("job", jobName).Msg("[CRON] could not record job start")
		return 0
	}
	return cronLog.ID
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(jobName string, logID uint, started time.Time, message string) {
	logging.Info().Str("job", jobName).Dur("duration", time.Since(started)).Msg("[CRON] completed job: " + message)

	m.finishLog(logID, started, map[string]interface{}{
		"status":  model.CronJobStatusCompleted,
		"message": message,
	})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(jobName string, logID uint, started time.Time, err error) {
	logging.Error().Err(err).Str("job", jobName).Msg("[CRON] job failed")

	m.finishLog(logID, started, map[string]interface{}{
		"status":    model.CronJobStatusFailed,
		"error_msg": err.Error(),
	})
}

func (m *CronManager) finishLog(logID uint, started time.Time, updates map[string]interface{}) {
	if m.db == nil || logID == 0 {
		return
	}
	now := time.Now()
	updates["completed_at"] = now
	updates["duration"] = now.Sub(started).Milliseconds()
	if err := m.db.Model(&model.CronJobLog{}).Where("id = ?", logID).Updates(updates).Error; err != nil {
		logging.Warn().Err(err).Uint("log_id", logID).Msg("[CRON] could not record job result")
	}
}
