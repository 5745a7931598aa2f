package scrapejob

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/services/jobstore"
	"github.com/nrsc-chatbot/portal-api/services/scraper"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
	"github.com/nrsc-chatbot/portal-api/utils/pdfvalidation"
)

const defaultStatusMessage = "No status message"

// Discoverer expands a seed URL into links
type Discoverer interface {
	DiscoverLinks(ctx context.Context, seedURL string) (*scraper.Links, error)
}

// ScheduleRegistrar records submitted seed URLs for periodic rescraping
type ScheduleRegistrar interface {
	RegisterURL(ctx context.Context, seedURL string) (bool, error)
}

// UploadRejectedError is returned when an uploaded file fails validation.
// Nothing is persisted for a rejected upload.
type UploadRejectedError struct {
	Reason  pdfvalidation.Reason
	Message string
}

func (e *UploadRejectedError) Error() string {
	return e.Message
}

// RetryResult describes the job created by Retry. JobID is empty when
// nothing was left to retry.
type RetryResult struct {
	JobID      string
	RetryOf    string
	TotalLinks int
	Message    string
}

// Deps wires a JobService. Registrar and Archiver are optional.
type Deps struct {
	Store      jobstore.Store
	Discoverer Discoverer
	Runner     *Runner
	Uploader   *PDFUploader
	Dispatcher *Dispatcher
	Registrar  ScheduleRegistrar
	Archiver   Archiver
	PDFLimits  pdfvalidation.PDFLimits
}

// JobService is the entry point for creating, querying and controlling
// scraping jobs. The store is the only source of truth for job state.
type JobService struct {
	store      jobstore.Store
	discoverer Discoverer
	runner     *Runner
	uploader   *PDFUploader
	dispatcher *Dispatcher
	registrar  ScheduleRegistrar
	archiver   Archiver
	pdfLimits  pdfvalidation.PDFLimits

	idMu   sync.Mutex
	lastID int64
	now    func() time.Time
}

func NewJobService(deps Deps) *JobService {
	limits := deps.PDFLimits
	if limits.MaxFileSizeMB == 0 {
		limits = pdfvalidation.KnowledgeBaseLimits
	}
	return &JobService{
		store:      deps.Store,
		discoverer: deps.Discoverer,
		runner:     deps.Runner,
		uploader:   deps.Uploader,
		dispatcher: deps.Dispatcher,
		registrar:  deps.Registrar,
		archiver:   deps.Archiver,
		pdfLimits:  limits,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// nextID returns a fresh id for kind. Ids are strictly increasing within
// the process and skip any id already present in the store.
func (s *JobService) nextID(ctx context.Context, kind model.JobIDKind) string {
	for {
		s.idMu.Lock()
		ms := s.now().UnixMilli()
		if ms <= s.lastID {
			ms = s.lastID + 1
		}
		s.lastID = ms
		s.idMu.Unlock()

		id := model.NewJobID(kind, time.UnixMilli(ms))
		if _, err := s.store.Get(ctx, id); err == nil {
			continue
		}
		return id
	}
}

func newLinkJob(id, sourceURL string, html, pdf []string, retryOf string) *model.ProcessingJob {
	if html == nil {
		html = []string{}
	}
	if pdf == nil {
		pdf = []string{}
	}
	return &model.ProcessingJob{
		JobID:      id,
		SourceURL:  sourceURL,
		Type:       model.ProcessingJobTypeWeb,
		Status:     model.ProcessingJobStatusProcessing,
		Total:      len(html) + len(pdf),
		HTML:       html,
		PDF:        pdf,
		Successful: []model.SuccessfulLink{},
		Failed:     []model.FailedLink{},
		Message:    "Queued for processing",
		RetryOf:    retryOf,
	}
}

// SubmitSeed discovers the links of seedURL, persists a new web job and
// starts processing it. A discovery failure is returned as is and leaves
// no record behind.
func (s *JobService) SubmitSeed(ctx context.Context, seedURL string) (*model.ProcessingJob, error) {
	started := time.Now()
	links, err := s.discoverer.DiscoverLinks(ctx, seedURL)
	if err != nil {
		DiscoveryDuration.WithLabelValues("error").Observe(time.Since(started).Seconds())
		logging.Warn().Err(err).Str("url", seedURL).Msg("[SCRAPE-JOB] discovery failed, no job created")
		return nil, err
	}
	DiscoveryDuration.WithLabelValues("ok").Observe(time.Since(started).Seconds())

	job := newLinkJob(s.nextID(ctx, model.JobIDKindWeb), seedURL, links.HTML, links.PDF, "")
	start := s.now()
	job.StartTime = &start
	job.Timestamp = &start

	snapshot, err := s.start(ctx, job, model.JobIDKindWeb)
	if err != nil {
		return nil, err
	}

	if s.registrar != nil {
		if added, err := s.registrar.RegisterURL(ctx, seedURL); err != nil {
			logging.Warn().Err(err).Str("url", seedURL).Msg("[SCRAPE-JOB] could not register url for rescraping")
		} else if added {
			logging.Info().Str("url", seedURL).Msg("[SCRAPE-JOB] registered url for rescraping")
		}
	}

	return snapshot, nil
}

// start persists a link job and hands it to the dispatcher. The returned
// copy is safe to read while the runner mutates the original.
func (s *JobService) start(ctx context.Context, job *model.ProcessingJob, kind model.JobIDKind) (*model.ProcessingJob, error) {
	if err := s.store.Save(ctx, job); err != nil {
		PersistenceFailures.Inc()
		return nil, &PersistenceError{JobID: job.JobID, Err: err}
	}
	snapshot := cloneJob(job)

	err := s.dispatcher.Submit(job.JobID, func(taskCtx context.Context) error {
		return s.runner.Run(taskCtx, job)
	})
	if err != nil {
		s.failUnstarted(ctx, job, err)
		return nil, err
	}

	JobsStarted.WithLabelValues(string(kind)).Inc()
	logging.Info().
		Str("job_id", job.JobID).
		Str("source_url", job.SourceURL).
		Int("total", job.Total).
		Str("retry_of", job.RetryOf).
		Msg("[SCRAPE-JOB] submitted")
	return snapshot, nil
}

// failUnstarted records a terminal status for a job no task will run
func (s *JobService) failUnstarted(ctx context.Context, job *model.ProcessingJob, cause error) {
	end := s.now()
	job.Status = model.ProcessingJobStatusFailed
	job.Message = "Could not start processing: " + cause.Error()
	job.EndTime = &end
	job.RecountProcessed()
	if err := s.store.Save(context.WithoutCancel(ctx), job); err != nil {
		logging.Error().Err(err).Str("job_id", job.JobID).Msg("[SCRAPE-JOB] could not record start failure")
	}
}

// SubmitPDF validates an uploaded document, persists a pdf job and starts
// the upload in the background
func (s *JobService) SubmitPDF(ctx context.Context, originalName, contentType string, data []byte) (*model.ProcessingJob, error) {
	result := pdfvalidation.ValidateUpload(originalName, contentType, data, s.pdfLimits)
	if !result.Valid {
		return nil, &UploadRejectedError{Reason: result.Reason, Message: result.Error}
	}

	job, err := s.uploader.Prepare(ctx, s.nextID(ctx, model.JobIDKindPDF), originalName)
	if err != nil {
		return nil, err
	}
	snapshot := cloneJob(job)

	err = s.dispatcher.Submit(job.JobID, func(taskCtx context.Context) error {
		return s.uploader.Upload(taskCtx, job, data)
	})
	if err != nil {
		job.Failed = []model.FailedLink{{
			URL:       job.Filename,
			Type:      model.LinkTypePDF,
			Attempts:  0,
			Error:     err.Error(),
			Timestamp: s.now(),
		}}
		s.failUnstarted(ctx, job, err)
		return nil, err
	}

	JobsStarted.WithLabelValues(string(model.JobIDKindPDF)).Inc()
	logging.Info().
		Str("job_id", job.JobID).
		Str("filename", job.Filename).
		Int("pages", result.PageCount).
		Msg("[PDF-UPLOAD] submitted")
	return snapshot, nil
}

// List returns every job, normalized and sorted newest first
func (s *JobService) List(ctx context.Context) ([]model.ProcessingJob, error) {
	stored, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]model.ProcessingJob, 0, len(stored))
	for _, sj := range stored {
		jobs = append(jobs, NormalizeJob(sj))
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		ti, tj := jobs[i].Timestamp, jobs[j].Timestamp
		if !ti.Equal(*tj) {
			return ti.After(*tj)
		}
		return jobs[i].JobID > jobs[j].JobID
	})
	return jobs, nil
}

// Get returns one normalized job
func (s *JobService) Get(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	stored, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job := NormalizeJob(*stored)
	return &job, nil
}

// Delete removes a job record. A job whose task is still running cannot
// be deleted because the task would write the record again.
func (s *JobService) Delete(ctx context.Context, jobID string) error {
	stored, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if s.dispatcher.IsActive(jobID) {
		return invalidOperation("job %s is still running", jobID)
	}

	if err := s.store.Delete(ctx, jobID); err != nil {
		return err
	}

	job := stored.Job
	if s.archiver != nil && job.ArchiveURL != "" && job.Filename != "" {
		if err := s.archiver.DeletePDF(ctx, job.Filename); err != nil {
			logging.Warn().Err(err).Str("job_id", jobID).Msg("[SCRAPE-JOB] could not delete archived pdf")
		}
	}

	logging.Info().Str("job_id", jobID).Msg("[SCRAPE-JOB] deleted")
	return nil
}

// Retry starts a new job for every link of a web job that failed or was
// never attempted. The original record is not modified.
func (s *JobService) Retry(ctx context.Context, jobID string) (*RetryResult, error) {
	stored, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	original := NormalizeJob(*stored)

	if original.Type != model.ProcessingJobTypeWeb {
		return nil, invalidOperation("only web jobs can be retried, %s is a %s job", jobID, original.Type)
	}
	if original.Status == model.ProcessingJobStatusProcessing || s.dispatcher.IsActive(jobID) {
		return nil, invalidOperation("job %s is still processing", jobID)
	}

	html, pdf := DeriveRetryLinks(&original)
	if len(html)+len(pdf) == 0 {
		return &RetryResult{
			RetryOf: jobID,
			Message: "No failed or unprocessed links to retry",
		}, nil
	}

	job := newLinkJob(s.nextID(ctx, model.JobIDKindRetry), original.SourceURL, html, pdf, jobID)
	start := s.now()
	job.StartTime = &start
	job.Timestamp = &start

	if _, err := s.start(ctx, job, model.JobIDKindRetry); err != nil {
		return nil, err
	}

	return &RetryResult{
		JobID:      job.JobID,
		RetryOf:    jobID,
		TotalLinks: job.Total,
		Message:    fmt.Sprintf("Retrying %d links", job.Total),
	}, nil
}

// DeriveRetryLinks returns the links of job that still need attention:
// every failed link plus every listed link that was never recorded.
// Original html-then-pdf order is kept and duplicates are dropped.
func DeriveRetryLinks(job *model.ProcessingJob) (html, pdf []string) {
	type key struct {
		url string
		typ model.LinkType
	}

	succeeded := make(map[key]bool, len(job.Successful))
	for _, l := range job.Successful {
		succeeded[key{l.URL, l.Type}] = true
	}
	failed := make(map[key]bool, len(job.Failed))
	for _, l := range job.Failed {
		failed[key{l.URL, l.Type}] = true
	}

	html, pdf = []string{}, []string{}
	seen := make(map[key]bool)
	add := func(k key) {
		if seen[k] {
			return
		}
		seen[k] = true
		if k.typ == model.LinkTypePDF {
			pdf = append(pdf, k.url)
		} else {
			html = append(html, k.url)
		}
	}

	for _, link := range job.Links() {
		k := key{link.URL, link.Type}
		if failed[k] || !succeeded[k] {
			add(k)
		}
	}
	// failures whose link is missing from the lists are still retried
	for _, l := range job.Failed {
		add(key{l.URL, l.Type})
	}
	return html, pdf
}

// RecoverInterrupted fails records left in processing by a previous
// process so they can be retried. It returns how many were recovered.
func (s *JobService) RecoverInterrupted(ctx context.Context) (int, error) {
	stored, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, sj := range stored {
		job := NormalizeJob(sj)
		if job.Status != model.ProcessingJobStatusProcessing || s.dispatcher.IsActive(job.JobID) {
			continue
		}

		end := s.now()
		job.Status = model.ProcessingJobStatusFailed
		job.Message = fmt.Sprintf("Interrupted by service restart after %d of %d links", job.Processed, job.Total)
		job.EndTime = &end
		job.RecountProcessed()

		if err := s.store.Save(ctx, &job); err != nil {
			logging.Error().Err(err).Str("job_id", job.JobID).Msg("[SCRAPE-JOB] could not recover interrupted job")
			continue
		}
		recovered++
	}

	if recovered > 0 {
		logging.Info().Int("count", recovered).Msg("[SCRAPE-JOB] marked interrupted jobs as failed")
	}
	return recovered, nil
}

// ActiveJobs returns the number of running tasks
func (s *JobService) ActiveJobs() int {
	return s.dispatcher.ActiveCount()
}

// Ping checks the job store
func (s *JobService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// NormalizeJob fills defaults for fields missing from a stored record
func NormalizeJob(stored jobstore.StoredJob) model.ProcessingJob {
	job := stored.Job
	if job.JobID == "" {
		job.JobID = stored.ID
	}
	if job.Type == "" {
		job.Type = model.InferJobType(job.JobID)
	}
	if job.Status == "" {
		job.Status = model.ProcessingJobStatusUnknown
	}
	if job.Message == "" {
		job.Message = defaultStatusMessage
	}
	if job.Timestamp == nil {
		switch {
		case job.StartTime != nil:
			ts := *job.StartTime
			job.Timestamp = &ts
		default:
			ts := stored.ModifiedAt.UTC()
			job.Timestamp = &ts
		}
	}
	if job.HTML == nil {
		job.HTML = []string{}
	}
	if job.PDF == nil {
		job.PDF = []string{}
	}
	if job.Successful == nil {
		job.Successful = []model.SuccessfulLink{}
	}
	if job.Failed == nil {
		job.Failed = []model.FailedLink{}
	}
	return job
}

func cloneJob(job *model.ProcessingJob) *model.ProcessingJob {
	c := *job
	c.HTML = append([]string{}, job.HTML...)
	c.PDF = append([]string{}, job.PDF...)
	c.Successful = append([]model.SuccessfulLink{}, job.Successful...)
	c.Failed = append([]model.FailedLink{}, job.Failed...)
	if job.StartTime != nil {
		t := *job.StartTime
		c.StartTime = &t
	}
	if job.EndTime != nil {
		t := *job.EndTime
		c.EndTime = &t
	}
	if job.Timestamp != nil {
		t := *job.Timestamp
		c.Timestamp = &t
	}
	return &c
}
