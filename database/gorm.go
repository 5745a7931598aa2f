package database

import (
	"context"
	"fmt"
	"time"

	"github.com/nrsc-chatbot/portal-api/config"
	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GORMStore struct {
	db *gorm.DB
}

// DSN builds the Postgres connection string from the environment config
func DSN(env *config.EnviornmentVariable) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		env.DB_HOST,
		env.DB_USER_NAME,
		env.DB_PASSWORD,
		env.DB_NAME,
		env.DB_PORT,
		env.DB_SSL_MODE,
	)
}

// StartGORM initializes a GORM connection to PostgreSQL
func StartGORM(env *config.EnviornmentVariable) (*GORMStore, error) {
	gormLogger := logger.Default.LogMode(logger.Warn)
	if env.GO_ENV == "production" {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(postgres.Open(DSN(env)), &gorm.Config{
		Logger:      gormLogger,
		PrepareStmt: true,
	})
	if err != nil {
		logging.Error().Err(err).Msg("[DATABASE] unable to connect to PostgreSQL")
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logging.Info().Str("host", env.DB_HOST).Str("db", env.DB_NAME).Msg("[DATABASE] connected to PostgreSQL")

	return &GORMStore{db: db}, nil
}

// Init runs AutoMigrate for the pipeline tables
func (s *GORMStore) Init() error {
	err := s.db.AutoMigrate(
		&model.ProcessingJobRecord{},
		&model.ScheduleEntryRecord{},
		&model.CronJobLog{},
	)
	if err != nil {
		logging.Error().Err(err).Msg("[DATABASE] AutoMigrate failed")
		return err
	}

	logging.Info().Msg("[DATABASE] AutoMigrate completed")
	return nil
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the GORM handle used by the stores
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// HealthCheck verifies the database connection is alive
func (s *GORMStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
