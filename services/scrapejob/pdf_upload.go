package scrapejob

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/services/jobstore"
	"github.com/nrsc-chatbot/portal-api/services/scraper"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
)

// PDFBackend uploads a whole document to the scraping backend
type PDFBackend interface {
	ScrapePDFFile(ctx context.Context, filename string, pdfBytes []byte) (*scraper.PDFFileResponse, error)
}

// Archiver keeps a copy of uploaded documents. Optional.
type Archiver interface {
	ArchivePDF(ctx context.Context, filename string, data []byte) (string, error)
	DeletePDF(ctx context.Context, filename string) error
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PDFUploader forwards one uploaded PDF to the backend and records a
// single-job result. Every prepared job is written exactly once more, in
// a terminal status.
type PDFUploader struct {
	store    jobstore.Store
	backend  PDFBackend
	archiver Archiver
	timeout  time.Duration
	now      func() time.Time
}

func NewPDFUploader(store jobstore.Store, backend PDFBackend, archiver Archiver, timeout time.Duration) *PDFUploader {
	return &PDFUploader{
		store:    store,
		backend:  backend,
		archiver: archiver,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// UploadFilename builds the stored name: <uuid>-<sanitized original>.pdf
func UploadFilename(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = strings.Trim(unsafeFilenameChars.ReplaceAllString(base, "_"), "._-")
	if base == "" {
		base = "document"
	}
	if len(base) > 80 {
		base = base[:80]
	}
	return fmt.Sprintf("%s-%s.pdf", uuid.New().String(), base)
}

// Prepare persists the processing record for a new upload
func (u *PDFUploader) Prepare(ctx context.Context, jobID, originalName string) (*model.ProcessingJob, error) {
	start := u.now()
	job := &model.ProcessingJob{
		JobID:      jobID,
		Filename:   UploadFilename(originalName),
		Type:       model.ProcessingJobTypePDF,
		Status:     model.ProcessingJobStatusProcessing,
		Total:      1,
		HTML:       []string{},
		PDF:        []string{},
		Successful: []model.SuccessfulLink{},
		Failed:     []model.FailedLink{},
		Message:    "Uploading PDF to scraper",
		StartTime:  &start,
		Timestamp:  &start,
	}

	if err := u.store.Save(ctx, job); err != nil {
		PersistenceFailures.Inc()
		return nil, &PersistenceError{JobID: jobID, Err: err}
	}
	return job, nil
}

// Upload sends data for a prepared job and writes its terminal record.
// The backend error, if any, is returned after it has been recorded.
func (u *PDFUploader) Upload(ctx context.Context, job *model.ProcessingJob, data []byte) (err error) {
	recorded := false
	record := func(status model.ProcessingJobStatus, message string) {
		if recorded {
			return
		}
		recorded = true

		end := u.now()
		job.Status = status
		job.Message = message
		job.EndTime = &end
		job.RecountProcessed()
		if saveErr := u.store.Save(context.WithoutCancel(ctx), job); saveErr != nil {
			PersistenceFailures.Inc()
			logging.Error().Err(saveErr).Str("job_id", job.JobID).Msg("[PDF-UPLOAD] could not record result")
			if err == nil {
				err = &PersistenceError{JobID: job.JobID, Err: saveErr}
			}
		}
		JobsFinished.WithLabelValues(string(model.ProcessingJobTypePDF), string(status)).Inc()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf upload panic: %v", rec)
			if len(job.Successful)+len(job.Failed) == 0 {
				job.Failed = []model.FailedLink{{
					URL:       job.Filename,
					Type:      model.LinkTypePDF,
					Attempts:  1,
					Error:     err.Error(),
					Timestamp: u.now(),
				}}
			}
			record(model.ProcessingJobStatusFailed, "Upload failed: "+err.Error())
		}
	}()

	if u.archiver != nil {
		if url, archiveErr := u.archiver.ArchivePDF(ctx, job.Filename, data); archiveErr != nil {
			logging.Warn().Err(archiveErr).Str("job_id", job.JobID).Msg("[PDF-UPLOAD] archive failed, continuing")
		} else {
			job.ArchiveURL = url
		}
	}

	uploadCtx := ctx
	if u.timeout > 0 {
		var cancel context.CancelFunc
		uploadCtx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	logging.Info().Str("job_id", job.JobID).Str("filename", job.Filename).Int("bytes", len(data)).Msg("[PDF-UPLOAD] sending to scraper")

	resp, uploadErr := u.backend.ScrapePDFFile(uploadCtx, job.Filename, data)
	if uploadErr != nil {
		at := u.now()
		job.Failed = []model.FailedLink{{
			URL:       job.Filename,
			Type:      model.LinkTypePDF,
			Attempts:  1,
			Error:     uploadErr.Error(),
			Timestamp: at,
		}}
		record(model.ProcessingJobStatusFailed, "Upload failed: "+uploadErr.Error())
		logging.Error().Err(uploadErr).Str("job_id", job.JobID).Msg("[PDF-UPLOAD] failed")
		if err == nil {
			err = uploadErr
		}
		return err
	}

	at := u.now()
	job.Successful = []model.SuccessfulLink{{
		URL:       job.Filename,
		Type:      model.LinkTypePDF,
		Attempts:  1,
		Timestamp: at,
	}}
	job.Pages = resp.Pages
	message := resp.Message
	if message == "" {
		message = "PDF processed successfully"
	}
	record(model.ProcessingJobStatusCompleted, message)

	logging.Info().Str("job_id", job.JobID).Int("pages", resp.Pages).Msg("[PDF-UPLOAD] completed")
	return err
}
