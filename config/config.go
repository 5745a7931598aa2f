package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		if _, err := os.Stat(".env"); err != nil {
			// no .env in development is fine, the process env is used as-is
			return nil
		}
		if err := godotenv.Load(); err != nil {
			return err
		}
	}

	return nil
}

// Job store backends
const (
	JobStoreFile     = "file"
	JobStorePostgres = "postgres"
)

type EnviornmentVariable struct {
	GO_ENV string
	PORT   int
	// Storage
	DATA_DIR  string
	JOB_STORE string
	// Database Configuration
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL string
	// External scraping backend
	SCRAPER_BASE_URL string
	// Object storage for uploaded PDFs (optional)
	SPACES_ACCESS_KEY string
	SPACES_SECRET_KEY string
	SPACES_BUCKET     string
	SPACES_REGION     string
	SPACES_ENDPOINT   string
	// Uploads
	MAX_PDF_UPLOAD_MB int
	// Logging
	LOG_LEVEL  string
	LOG_FORMAT string
	// HTTP
	ALLOWED_ORIGINS string
	CRON_ENABLED    bool
}

// IsDevelopment reports whether the service runs outside production
func (e *EnviornmentVariable) IsDevelopment() bool {
	return e.GO_ENV == "" || e.GO_ENV == "development"
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	maxUploadMB, err := strconv.Atoi(os.Getenv("MAX_PDF_UPLOAD_MB"))
	if err != nil || maxUploadMB <= 0 {
		maxUploadMB = 100
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:    os.Getenv("GO_ENV"),
		PORT:      port,
		DATA_DIR:  getEnvOrDefault("DATA_DIR", "data"),
		JOB_STORE: getEnvOrDefault("JOB_STORE", JobStoreFile),
		// Database
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      getEnvOrDefault("DB_HOST", "localhost"),
		DB_PORT:      getEnvOrDefault("DB_PORT", "5432"),
		DB_SSL_MODE:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: getEnvOrDefault("JWT_ISSUER", "nrsc-chatbot-portal"),
		// Redis
		REDIS_URL: os.Getenv("REDIS_URL"),
		// Scraper
		SCRAPER_BASE_URL: getEnvOrDefault("SCRAPER_BASE_URL", "http://0.0.0.0:7860"),
		// Spaces
		SPACES_ACCESS_KEY: os.Getenv("SPACES_ACCESS_KEY"),
		SPACES_SECRET_KEY: os.Getenv("SPACES_SECRET_KEY"),
		SPACES_BUCKET:     os.Getenv("SPACES_BUCKET"),
		SPACES_REGION:     os.Getenv("SPACES_REGION"),
		SPACES_ENDPOINT:   os.Getenv("SPACES_ENDPOINT"),
		MAX_PDF_UPLOAD_MB: maxUploadMB,
		// Logging
		LOG_LEVEL:  getEnvOrDefault("LOG_LEVEL", "info"),
		LOG_FORMAT: getEnvOrDefault("LOG_FORMAT", "json"),
		// HTTP
		ALLOWED_ORIGINS: getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:5500"),
		CRON_ENABLED:    os.Getenv("CRON_ENABLED") != "false", // Default to enabled
	}

	return envVariables, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
