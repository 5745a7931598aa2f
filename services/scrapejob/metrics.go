package scrapejob

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_jobs_started_total",
			Help: "Total number of scraping jobs started",
		},
		[]string{"kind"}, // web, retry, pdf
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_jobs_finished_total",
			Help: "Total number of scraping jobs that reached a terminal status",
		},
		[]string{"type", "status"},
	)

	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrape_jobs_active",
			Help: "Current number of running scraping tasks",
		},
	)

	LinkOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_link_outcomes_total",
			Help: "Total number of processed links by type and result",
		},
		[]string{"link_type", "result"},
	)

	LinkAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_link_attempts",
			Help:    "Number of attempts needed per link",
			Buckets: []float64{1, 2, 3, 5},
		},
		[]string{"link_type"},
	)

	BreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_job_breaker_trips_total",
			Help: "Total number of jobs halted by consecutive link failures",
		},
	)

	PersistenceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_job_persistence_failures_total",
			Help: "Total number of failed job record writes",
		},
	)

	DiscoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_discovery_duration_seconds",
			Help:    "Duration of link discovery calls",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"result"},
	)
)
