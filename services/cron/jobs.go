package cron

import (
	"errors"
	"fmt"
	"time"

	"github.com/nrsc-chatbot/portal-api/services/schedule"
)

const JobRescrapeDueURLs = "rescrape_due_urls"

// RescrapeDueURLs submits every schedule entry that is due.
// A scan still running from an earlier trigger is left alone.
func (m *CronManager) RescrapeDueURLs() {
	jobName := JobRescrapeDueURLs
	started := time.Now()
	logID := m.logJobStart(jobName)

	// each submission carries its own timeout inside the scan
	result, err := m.scanner.RunDue(m.ctx)
	if errors.Is(err, schedule.ErrScanInProgress) {
		m.logJobComplete(jobName, logID, started, "Skipped, previous scan still running")
		return
	}
	if err != nil {
		m.logJobError(jobName, logID, started, err)
		return
	}

	m.logJobComplete(jobName, logID, started, fmt.Sprintf("Rescraped %d due urls, %d succeeded, %d failed",
		result.Due, result.Succeeded, result.Failed))
}
