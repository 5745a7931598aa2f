package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nrsc-chatbot/portal-api/app"
	"github.com/nrsc-chatbot/portal-api/config"
	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/utils/pdfvalidation"
	"github.com/nrsc-chatbot/portal-api/utils/testutil"
)

// E2E Test: seed URL -> discovery -> link processing -> retry -> pdf upload
//
// Runs the real pipeline against an in-process scraping backend:
// 1. A job with one permanently failing link ends partially_completed
// 2. A job with two consecutive failing links stops with failed
// 3. Retrying job 1 only resubmits the failed link
// 4. A 5 page PDF upload completes with pages=5

func main() {
	log.Println("══════════════════════════════════════════════════════════════════")
	log.Println("  END-TO-END TEST: Discovery → Processing → Retry → PDF Upload")
	log.Println("══════════════════════════════════════════════════════════════════")

	backend := newFakeBackend()
	server := httptest.NewServer(backend)
	defer server.Close()

	dataDir, err := os.MkdirTemp("", "portal-e2e-*")
	if err != nil {
		log.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dataDir)

	// Step 1: Initialize
	log.Println("\n[STEP 1] Initializing pipeline with file store...")
	getEnv, err := config.Get()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	getEnv.DATA_DIR = dataDir
	getEnv.JOB_STORE = config.JobStoreFile
	getEnv.REDIS_URL = ""
	getEnv.SCRAPER_BASE_URL = server.URL
	getEnv.SPACES_ACCESS_KEY = ""

	settings := config.DefaultScrapeSettings()
	settings.Processor.RetryDelay = 20 * time.Millisecond

	services, err := app.BuildServices(getEnv, &settings)
	if err != nil {
		log.Fatalf("Initialization failed: %v", err)
	}
	defer services.Shutdown(context.Background())
	ctx := context.Background()
	log.Printf("  Backend: %s", server.URL)
	log.Printf("  Data dir: %s", dataDir)

	failures := 0
	check := func(ok bool, format string, args ...any) {
		if ok {
			log.Printf("  ✓ "+format, args...)
			return
		}
		failures++
		log.Printf("  ✗ "+format, args...)
	}

	// Step 2: partial job
	log.Println("\n[STEP 2] Seed with one broken link...")
	backend.site("https://partial.example/", []string{"https://partial.example/a", "https://partial.example/b", "https://partial.example/c"}, nil)
	backend.breakLink("https://partial.example/b")

	partial, err := services.Jobs.SubmitSeed(ctx, "https://partial.example/")
	if err != nil {
		log.Fatalf("SubmitSeed: %v", err)
	}
	final := waitForJob(ctx, services, partial.JobID)
	check(final.Status == model.ProcessingJobStatusPartial, "status %s", final.Status)
	check(len(final.Successful) == 2 && len(final.Failed) == 1, "%d successful, %d failed", len(final.Successful), len(final.Failed))
	check(backend.calls("https://partial.example/b") == 3, "broken link attempted %d times", backend.calls("https://partial.example/b"))

	// Step 3: tripped job
	log.Println("\n[STEP 3] Seed with two consecutive broken links...")
	backend.site("https://trip.example/", []string{"https://trip.example/a", "https://trip.example/b", "https://trip.example/c", "https://trip.example/d"}, nil)
	backend.breakLink("https://trip.example/b")
	backend.breakLink("https://trip.example/c")

	tripped, err := services.Jobs.SubmitSeed(ctx, "https://trip.example/")
	if err != nil {
		log.Fatalf("SubmitSeed: %v", err)
	}
	final = waitForJob(ctx, services, tripped.JobID)
	check(final.Status == model.ProcessingJobStatusFailed, "status %s", final.Status)
	check(backend.calls("https://trip.example/d") == 0, "link after the trip was not attempted")
	check(strings.Contains(final.Message, "consecutive failures"), "message %q", final.Message)

	// Step 4: retry
	log.Println("\n[STEP 4] Retry the partial job after fixing the backend...")
	backend.fixLink("https://partial.example/b")
	retry, err := services.Jobs.Retry(ctx, partial.JobID)
	if err != nil {
		log.Fatalf("Retry: %v", err)
	}
	check(retry.TotalLinks == 1, "retry job %s has %d links", retry.JobID, retry.TotalLinks)
	final = waitForJob(ctx, services, retry.JobID)
	check(final.Status == model.ProcessingJobStatusCompleted, "retry status %s", final.Status)
	check(final.RetryOf == partial.JobID, "retryOf %s", final.RetryOf)

	// Step 5: pdf upload
	log.Println("\n[STEP 5] Upload a 5 page PDF...")
	upload, err := services.Jobs.SubmitPDF(ctx, "report.pdf", "application/pdf", testutil.MinimalPDF(5))
	if err != nil {
		log.Fatalf("SubmitPDF: %v", err)
	}
	final = waitForJob(ctx, services, upload.JobID)
	check(final.Status == model.ProcessingJobStatusCompleted, "upload status %s", final.Status)
	check(final.Pages == 5, "pages %d", final.Pages)

	// Step 6: schedule
	log.Println("\n[STEP 6] Submitted seeds are scheduled for rescraping...")
	entries, err := services.ScheduleStore.List(ctx)
	if err != nil {
		log.Fatalf("schedule: %v", err)
	}
	check(len(entries) == 2, "%d schedule entries", len(entries))

	log.Println("\n══════════════════════════════════════════════════════════════════")
	if failures > 0 {
		log.Printf("  ❌ %d checks failed", failures)
		os.Exit(1)
	}
	log.Println("  🎉 All checks passed")
}

func waitForJob(ctx context.Context, services *app.Services, jobID string) *model.ProcessingJob {
	deadline := time.Now().Add(time.Minute)
	for time.Now().Before(deadline) {
		job, err := services.Jobs.Get(ctx, jobID)
		if err != nil {
			log.Fatalf("Get %s: %v", jobID, err)
		}
		if job.Status != model.ProcessingJobStatusProcessing && !services.Dispatcher.IsActive(jobID) {
			log.Printf("  Job %s finished: %s (%d/%d) %s", jobID, job.Status, job.Processed, job.Total, job.Message)
			return job
		}
		time.Sleep(50 * time.Millisecond)
	}
	log.Fatalf("job %s did not finish in time", jobID)
	return nil
}

// fakeBackend answers the scraping backend endpoints from in-memory state
type fakeBackend struct {
	mu      sync.Mutex
	sites   map[string][2][]string
	broken  map[string]bool
	attempt map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sites:   map[string][2][]string{},
		broken:  map[string]bool{},
		attempt: map[string]int{},
	}
}

func (b *fakeBackend) site(seed string, html, pdf []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sites[seed] = [2][]string{html, pdf}
}

func (b *fakeBackend) breakLink(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broken[url] = true
}

func (b *fakeBackend) fixLink(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.broken, url)
}

func (b *fakeBackend) calls(url string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt[url]
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/scrape-pdf-file" {
		b.servePDFFile(w, r)
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.URL.Path {
	case "/scrape-url":
		links, ok := b.sites[req.URL]
		if !ok {
			http.Error(w, "unknown site", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string][]string{"all_links": links[0], "pdf_links": links[1]})
	case "/scrape-page", "/scrape-pdf":
		b.attempt[req.URL]++
		if b.broken[req.URL] {
			http.Error(w, "upstream timeout", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBackend) servePDFFile(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}
	pages, err := pdfvalidation.PageCount(data)
	if err != nil {
		http.Error(w, "not a pdf", http.StatusUnprocessableEntity)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"message": fmt.Sprintf("Indexed %d pages", pages), "pages": pages})
}
