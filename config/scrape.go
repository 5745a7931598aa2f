package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ScrapeConfigPathEnvVar overrides the location of the pipeline YAML file
const ScrapeConfigPathEnvVar = "SCRAPE_CONFIG_PATH"

var defaultScrapeConfigPaths = []string{
	"scrape.yaml",
	"scrape.yml",
	"/etc/nrsc-portal/scrape.yaml",
}

// ScrapeSettings holds the tunables of the scraping pipeline
type ScrapeSettings struct {
	Processor ProcessorSettings `koanf:"processor"`
	Discovery DiscoverySettings `koanf:"discovery"`
	Upload    UploadSettings    `koanf:"upload"`
	Schedule  ScheduleSettings  `koanf:"schedule"`
}

type ProcessorSettings struct {
	MaxAttempts         int           `koanf:"max_attempts"`
	RetryDelay          time.Duration `koanf:"retry_delay"`
	AttemptTimeout      time.Duration `koanf:"attempt_timeout"`
	ConsecutiveFailures int           `koanf:"consecutive_failures"` // breaker threshold
}

type DiscoverySettings struct {
	Timeout time.Duration `koanf:"timeout"`
}

type UploadSettings struct {
	Timeout time.Duration `koanf:"timeout"`
}

// DomainInterval maps a registered domain to its rescrape interval in days
type DomainInterval struct {
	Domain string `koanf:"domain"`
	Days   int    `koanf:"days"`
}

type ScheduleSettings struct {
	Cron                string           `koanf:"cron"` // robfig/cron spec with seconds
	Timezone            string           `koanf:"timezone"`
	ScanTimeout         time.Duration    `koanf:"scan_timeout"`
	ShortRetry          time.Duration    `koanf:"short_retry"`
	ScanConcurrency     int              `koanf:"scan_concurrency"`
	DefaultIntervalDays int              `koanf:"default_interval_days"`
	QuietStart          string           `koanf:"quiet_start"` // HH:MM local, start of the window to avoid
	QuietEnd            string           `koanf:"quiet_end"`
	Domains             []DomainInterval `koanf:"domains"`
}

// DefaultScrapeSettings returns the documented pipeline defaults
func DefaultScrapeSettings() ScrapeSettings {
	return ScrapeSettings{
		Processor: ProcessorSettings{
			MaxAttempts:         3,
			RetryDelay:          5 * time.Second,
			AttemptTimeout:      time.Hour,
			ConsecutiveFailures: 2,
		},
		Discovery: DiscoverySettings{
			Timeout: 2 * time.Hour,
		},
		Upload: UploadSettings{
			Timeout: 2 * time.Hour,
		},
		Schedule: ScheduleSettings{
			Cron:                "0 0 3 * * *",
			Timezone:            "Asia/Kolkata",
			ScanTimeout:         time.Hour,
			ShortRetry:          time.Hour,
			ScanConcurrency:     4,
			DefaultIntervalDays: 15,
			QuietStart:          "04:30",
			QuietEnd:            "22:00",
			Domains: []DomainInterval{
				{Domain: "isro.gov.in", Days: 7},
				{Domain: "nrsc.gov.in", Days: 10},
				{Domain: "ursc.gov.in", Days: 15},
				{Domain: "inspace.gov.in", Days: 30},
			},
		},
	}
}

// LoadScrapeSettings layers defaults, an optional YAML file and SCRAPE_* env vars.
// SCRAPE_PROCESSOR_MAX_ATTEMPTS maps to processor.max_attempts.
func LoadScrapeSettings() (*ScrapeSettings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultScrapeSettings(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load scrape defaults: %w", err)
	}

	if path := findScrapeConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load scrape config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("SCRAPE_", ".", scrapeEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load scrape env: %w", err)
	}

	settings := &ScrapeSettings{}
	if err := k.Unmarshal("", settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scrape settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func scrapeEnvKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "SCRAPE_"))
	if key == "config_path" {
		return ""
	}
	return strings.Replace(key, "_", ".", 1)
}

func findScrapeConfigFile() string {
	if path := os.Getenv(ScrapeConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range defaultScrapeConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate rejects settings the pipeline cannot run with
func (s *ScrapeSettings) Validate() error {
	if s.Processor.MaxAttempts < 1 {
		return fmt.Errorf("processor.max_attempts must be at least 1")
	}
	if s.Processor.ConsecutiveFailures < 1 {
		return fmt.Errorf("processor.consecutive_failures must be at least 1")
	}
	if s.Schedule.DefaultIntervalDays < 1 {
		return fmt.Errorf("schedule.default_interval_days must be at least 1")
	}
	if s.Schedule.ScanConcurrency < 1 {
		s.Schedule.ScanConcurrency = 1
	}
	for _, d := range s.Schedule.Domains {
		if d.Domain == "" || d.Days < 1 {
			return fmt.Errorf("invalid schedule domain entry %q (%d days)", d.Domain, d.Days)
		}
	}
	if _, err := time.LoadLocation(s.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid schedule.timezone %q: %w", s.Schedule.Timezone, err)
	}
	return nil
}
