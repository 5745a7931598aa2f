package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_scan_runs_total",
			Help: "Total number of schedule scans by outcome",
		},
		[]string{"result"}, // ok, skipped, error
	)

	ScanEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_scan_entries_total",
			Help: "Total number of due entries processed by scans",
		},
		[]string{"domain", "result"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schedule_scan_duration_seconds",
			Help:    "Duration of schedule scans",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)
