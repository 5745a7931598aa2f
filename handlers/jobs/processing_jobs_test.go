package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/services/jobstore"
	"github.com/nrsc-chatbot/portal-api/services/scrapejob"
	"github.com/nrsc-chatbot/portal-api/services/scraper"
	"github.com/nrsc-chatbot/portal-api/utils/pdfvalidation"
	"github.com/nrsc-chatbot/portal-api/utils/testutil"
)

type fakeJobService struct {
	jobs      []model.ProcessingJob
	submitErr error
	pdfErr    error
	deleteErr error
	retry     *scrapejob.RetryResult
	retryErr  error

	submitted []string
	uploaded  []byte
}

func (f *fakeJobService) SubmitSeed(ctx context.Context, seedURL string) (*model.ProcessingJob, error) {
	f.submitted = append(f.submitted, seedURL)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &model.ProcessingJob{JobID: "web-1", Total: 3, Message: "Processing 3 links"}, nil
}

func (f *fakeJobService) SubmitPDF(ctx context.Context, originalName, contentType string, data []byte) (*model.ProcessingJob, error) {
	f.uploaded = data
	if f.pdfErr != nil {
		return nil, f.pdfErr
	}
	return &model.ProcessingJob{JobID: "pdf-1", Filename: "abc-" + originalName}, nil
}

func (f *fakeJobService) List(ctx context.Context) ([]model.ProcessingJob, error) {
	return f.jobs, nil
}

func (f *fakeJobService) Get(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	for _, j := range f.jobs {
		if j.JobID == jobID {
			return &j, nil
		}
	}
	return nil, jobstore.ErrJobNotFound
}

func (f *fakeJobService) Delete(ctx context.Context, jobID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, err := f.Get(ctx, jobID); err != nil {
		return err
	}
	return nil
}

func (f *fakeJobService) Retry(ctx context.Context, jobID string) (*scrapejob.RetryResult, error) {
	return f.retry, f.retryErr
}

func newTestApp(svc JobService, maxUploadMB int) *fiber.App {
	app := fiber.New(fiber.Config{BodyLimit: 8 * 1024 * 1024})
	h := NewProcessingJobHandler(svc, maxUploadMB)
	app.Get("/processing-jobs", h.ListJobs)
	app.Post("/processing-jobs", h.SubmitURL)
	app.Post("/processing-jobs/pdf", h.UploadPDF)
	app.Get("/processing-jobs/:jobId", h.GetJob)
	app.Delete("/processing-jobs/:jobId", h.DeleteJob)
	app.Post("/processing-jobs/:jobId/retry", h.RetryJob)
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	body := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, body
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestListJobsReturnsBareArray(t *testing.T) {
	svc := &fakeJobService{jobs: []model.ProcessingJob{{JobID: "web-2"}, {JobID: "web-1"}}}
	app := newTestApp(svc, 0)

	resp, err := app.Test(httptest.NewRequest("GET", "/processing-jobs", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var jobs []model.ProcessingJob
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 2 || jobs[0].JobID != "web-2" {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestGetAndDeleteJob(t *testing.T) {
	svc := &fakeJobService{jobs: []model.ProcessingJob{{JobID: "web-1", Status: model.ProcessingJobStatusCompleted}}}
	app := newTestApp(svc, 0)

	code, body := do(t, app, httptest.NewRequest("GET", "/processing-jobs/web-1", nil))
	if code != fiber.StatusOK || body["status"] != "completed" {
		t.Errorf("GET = %d %v", code, body)
	}

	code, _ = do(t, app, httptest.NewRequest("GET", "/processing-jobs/web-404", nil))
	if code != fiber.StatusNotFound {
		t.Errorf("GET missing = %d, want 404", code)
	}

	code, body = do(t, app, httptest.NewRequest("DELETE", "/processing-jobs/web-1", nil))
	if code != fiber.StatusOK || body["success"] != true {
		t.Errorf("DELETE = %d %v", code, body)
	}

	code, _ = do(t, app, httptest.NewRequest("DELETE", "/processing-jobs/web-404", nil))
	if code != fiber.StatusNotFound {
		t.Errorf("DELETE missing = %d, want 404", code)
	}

	svc.deleteErr = fmt.Errorf("%w: job web-1 is still running", scrapejob.ErrInvalidOperation)
	code, _ = do(t, app, httptest.NewRequest("DELETE", "/processing-jobs/web-1", nil))
	if code != fiber.StatusBadRequest {
		t.Errorf("DELETE active = %d, want 400", code)
	}
}

func TestRetryJob(t *testing.T) {
	svc := &fakeJobService{retry: &scrapejob.RetryResult{JobID: "retry-9", RetryOf: "web-1", TotalLinks: 2, Message: "Retrying 2 links"}}
	app := newTestApp(svc, 0)

	code, body := do(t, app, httptest.NewRequest("POST", "/processing-jobs/web-1/retry", nil))
	if code != fiber.StatusOK || body["jobId"] != "retry-9" || body["totalLinks"] != float64(2) {
		t.Errorf("retry = %d %v", code, body)
	}

	svc.retry = &scrapejob.RetryResult{RetryOf: "web-1", Message: "No failed or unprocessed links to retry"}
	code, body = do(t, app, httptest.NewRequest("POST", "/processing-jobs/web-1/retry", nil))
	if _, ok := body["jobId"]; code != fiber.StatusOK || ok {
		t.Errorf("nothing to retry = %d %v, want no jobId", code, body)
	}

	svc.retryErr = fmt.Errorf("%w: only web jobs can be retried", scrapejob.ErrInvalidOperation)
	code, _ = do(t, app, httptest.NewRequest("POST", "/processing-jobs/pdf-1/retry", nil))
	if code != fiber.StatusBadRequest {
		t.Errorf("retry pdf = %d, want 400", code)
	}

	svc.retryErr = jobstore.ErrJobNotFound
	code, _ = do(t, app, httptest.NewRequest("POST", "/processing-jobs/nope/retry", nil))
	if code != fiber.StatusNotFound {
		t.Errorf("retry missing = %d, want 404", code)
	}
}

func TestSubmitURL(t *testing.T) {
	svc := &fakeJobService{}
	app := newTestApp(svc, 0)

	code, body := do(t, app, jsonRequest("POST", "/processing-jobs", `{"url":" https://nrsc.gov.in/ "}`))
	if code != fiber.StatusAccepted || body["jobId"] != "web-1" || body["totalLinks"] != float64(3) {
		t.Errorf("submit = %d %v", code, body)
	}
	if len(svc.submitted) != 1 || svc.submitted[0] != "https://nrsc.gov.in/" {
		t.Errorf("submitted = %v", svc.submitted)
	}

	code, _ = do(t, app, jsonRequest("POST", "/processing-jobs", `{"url":"ftp://nrsc.gov.in/"}`))
	if code != fiber.StatusUnprocessableEntity {
		t.Errorf("invalid url = %d, want 422", code)
	}
	if len(svc.submitted) != 1 {
		t.Error("invalid url reached the service")
	}

	svc.submitErr = &scraper.DiscoveryError{URL: "https://nrsc.gov.in/", Status: 503, Err: errors.New("unavailable")}
	code, body = do(t, app, jsonRequest("POST", "/processing-jobs", `{"url":"https://nrsc.gov.in/"}`))
	if code != fiber.StatusBadGateway {
		t.Errorf("discovery failure = %d %v, want 502", code, body)
	}

	svc.submitErr = scrapejob.ErrDispatcherClosed
	code, _ = do(t, app, jsonRequest("POST", "/processing-jobs", `{"url":"https://nrsc.gov.in/"}`))
	if code != fiber.StatusServiceUnavailable {
		t.Errorf("shutting down = %d, want 503", code)
	}
}

func multipartPDF(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write(data)
	w.Close()

	req := httptest.NewRequest("POST", "/processing-jobs/pdf", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadPDF(t *testing.T) {
	svc := &fakeJobService{}
	app := newTestApp(svc, 1)
	pdf := testutil.MinimalPDF(2)

	code, body := do(t, app, multipartPDF(t, "report.pdf", "application/pdf", pdf))
	if code != fiber.StatusAccepted || body["jobId"] != "pdf-1" || body["filename"] != "abc-report.pdf" {
		t.Errorf("upload = %d %v", code, body)
	}
	if !bytes.Equal(svc.uploaded, pdf) {
		t.Error("uploaded bytes were not passed through")
	}

	code, _ = do(t, app, httptest.NewRequest("POST", "/processing-jobs/pdf", nil))
	if code != fiber.StatusBadRequest {
		t.Errorf("missing file = %d, want 400", code)
	}

	big := bytes.Repeat([]byte("a"), 2*1024*1024)
	code, _ = do(t, app, multipartPDF(t, "big.pdf", "application/pdf", big))
	if code != fiber.StatusRequestEntityTooLarge {
		t.Errorf("oversized = %d, want 413", code)
	}
}

func TestUploadPDFRejections(t *testing.T) {
	tests := []struct {
		reason pdfvalidation.Reason
		want   int
	}{
		{pdfvalidation.ReasonTooLarge, fiber.StatusRequestEntityTooLarge},
		{pdfvalidation.ReasonUnsupportedType, fiber.StatusUnsupportedMediaType},
		{pdfvalidation.ReasonMalformed, fiber.StatusBadRequest},
		{pdfvalidation.ReasonEmpty, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			svc := &fakeJobService{pdfErr: &scrapejob.UploadRejectedError{Reason: tt.reason, Message: "rejected"}}
			app := newTestApp(svc, 0)
			code, _ := do(t, app, multipartPDF(t, "x.pdf", "application/pdf", []byte("%PDF-")))
			if code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}
