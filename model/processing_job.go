package model

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ProcessingJobType represents what a scraping job was started from
type ProcessingJobType string

const (
	ProcessingJobTypeWeb ProcessingJobType = "web"
	ProcessingJobTypePDF ProcessingJobType = "pdf"
)

// JobIDKind is the prefix of a job id
type JobIDKind string

const (
	JobIDKindWeb   JobIDKind = "web"
	JobIDKindPDF   JobIDKind = "pdf"
	JobIDKindRetry JobIDKind = "retry"
)

// ProcessingJobStatus represents the status of a scraping job
type ProcessingJobStatus string

const (
	ProcessingJobStatusProcessing ProcessingJobStatus = "processing"
	ProcessingJobStatusCompleted  ProcessingJobStatus = "completed"
	ProcessingJobStatusPartial    ProcessingJobStatus = "partially_completed"
	ProcessingJobStatusFailed     ProcessingJobStatus = "failed"
	ProcessingJobStatusUnknown    ProcessingJobStatus = "unknown"
)

// LinkType tags a link with the scrape endpoint it is sent to
type LinkType string

const (
	LinkTypeHTML LinkType = "html"
	LinkTypePDF  LinkType = "pdf"
)

// Link is the unit of work handed to the link processor
type Link struct {
	URL  string   `json:"url"`
	Type LinkType `json:"type"`
}

// SuccessfulLink records a link that was scraped
type SuccessfulLink struct {
	URL       string    `json:"url"`
	Type      LinkType  `json:"type"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

// FailedLink records a link that exhausted its attempts
type FailedLink struct {
	URL       string    `json:"url"`
	Type      LinkType  `json:"type"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// ProcessingJob is the persisted record of one scraping job.
// The JSON names are shared by the file store, the Postgres store and the API.
type ProcessingJob struct {
	JobID      string              `json:"jobId"`
	SourceURL  string              `json:"sourceUrl,omitempty"`
	Filename   string              `json:"filename,omitempty"`
	Type       ProcessingJobType   `json:"type"`
	Status     ProcessingJobStatus `json:"status"`
	Total      int                 `json:"total"`
	Processed  int                 `json:"processed"`
	HTML       []string            `json:"html"`
	PDF        []string            `json:"pdf"`
	Successful []SuccessfulLink    `json:"successful"`
	Failed     []FailedLink        `json:"failed"`
	Message    string              `json:"message"`
	Pages      int                 `json:"pages,omitempty"`
	RetryOf    string              `json:"retryOf,omitempty"`
	ArchiveURL string              `json:"archiveUrl,omitempty"`
	StartTime  *time.Time          `json:"start_time,omitempty"`
	EndTime    *time.Time          `json:"end_time,omitempty"`
	Timestamp  *time.Time          `json:"timestamp,omitempty"`
}

// NewJobID builds a job id of the form <kind>-<epoch millis>
func NewJobID(kind JobIDKind, at time.Time) string {
	return fmt.Sprintf("%s-%d", kind, at.UnixMilli())
}

// InferJobType derives the job type from an id prefix.
// Only pdf- ids are pdf jobs; web- and retry- jobs process link lists.
func InferJobType(jobID string) ProcessingJobType {
	if strings.HasPrefix(jobID, string(JobIDKindPDF)+"-") {
		return ProcessingJobTypePDF
	}
	return ProcessingJobTypeWeb
}

// Links returns the job's html links followed by its pdf links
func (j *ProcessingJob) Links() []Link {
	links := make([]Link, 0, len(j.HTML)+len(j.PDF))
	for _, u := range j.HTML {
		links = append(links, Link{URL: u, Type: LinkTypeHTML})
	}
	for _, u := range j.PDF {
		links = append(links, Link{URL: u, Type: LinkTypePDF})
	}
	return links
}

// RecountProcessed keeps processed equal to the number of recorded outcomes
func (j *ProcessingJob) RecountProcessed() {
	j.Processed = len(j.Successful) + len(j.Failed)
}

// GetProgress returns the progress percentage (0-100)
func (j *ProcessingJob) GetProgress() int {
	if j.Total == 0 {
		return 0
	}
	return (j.Processed * 100) / j.Total
}

// IsTerminal returns true once the job will not be written by a runner again
func (j *ProcessingJob) IsTerminal() bool {
	return j.Status == ProcessingJobStatusCompleted ||
		j.Status == ProcessingJobStatusPartial ||
		j.Status == ProcessingJobStatusFailed
}

// ProcessingJobRecord is the Postgres row backing a ProcessingJob
type ProcessingJobRecord struct {
	JobID     string         `gorm:"primaryKey;type:varchar(64)" json:"job_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Type      string         `gorm:"type:varchar(10);index" json:"type"`
	Status    string         `gorm:"type:varchar(25);index" json:"status"`
	Document  datatypes.JSON `gorm:"type:jsonb;not null" json:"document"`
}

// TableName specifies the table name for ProcessingJobRecord
func (ProcessingJobRecord) TableName() string {
	return "processing_jobs"
}
