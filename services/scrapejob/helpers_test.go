package scrapejob

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nrsc-chatbot/portal-api/config"
	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/services/jobstore"
	"github.com/nrsc-chatbot/portal-api/services/scraper"
)

// scriptedBackend answers each URL with a fixed sequence of results, one per
// attempt. The last result repeats once the script is exhausted.
type scriptedBackend struct {
	mu      sync.Mutex
	scripts map[string][]error
	calls   map[string]int
	pages   []string
	pdfs    []string
}

var errBackend = errors.New("scraper returned status 500")

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{scripts: map[string][]error{}, calls: map[string]int{}}
}

func (b *scriptedBackend) script(url string, results ...error) *scriptedBackend {
	b.scripts[url] = results
	return b
}

func (b *scriptedBackend) next(url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.calls[url]
	b.calls[url] = n + 1
	script := b.scripts[url]
	if len(script) == 0 {
		return nil
	}
	if n >= len(script) {
		return script[len(script)-1]
	}
	return script[n]
}

func (b *scriptedBackend) ScrapePage(ctx context.Context, url string) error {
	b.mu.Lock()
	b.pages = append(b.pages, url)
	b.mu.Unlock()
	return b.next(url)
}

func (b *scriptedBackend) ScrapePDF(ctx context.Context, url string) error {
	b.mu.Lock()
	b.pdfs = append(b.pdfs, url)
	b.mu.Unlock()
	return b.next(url)
}

func (b *scriptedBackend) callCount(url string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[url]
}

// recordingStore keeps a deep copy of every record written
type recordingStore struct {
	jobstore.Store
	mu        sync.Mutex
	snapshots []model.ProcessingJob
	failAfter int // fail every Save after this many, 0 disables
}

func (s *recordingStore) Save(ctx context.Context, job *model.ProcessingJob) error {
	s.mu.Lock()
	if s.failAfter > 0 && len(s.snapshots) >= s.failAfter {
		s.mu.Unlock()
		return errors.New("disk full")
	}
	raw, _ := json.Marshal(job)
	var snap model.ProcessingJob
	json.Unmarshal(raw, &snap)
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
	return s.Store.Save(ctx, job)
}

func (s *recordingStore) saved(jobID string) []model.ProcessingJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ProcessingJob
	for _, snap := range s.snapshots {
		if snap.JobID == jobID {
			out = append(out, snap)
		}
	}
	return out
}

func newRecordingStore(t *testing.T) *recordingStore {
	t.Helper()
	files, err := jobstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return &recordingStore{Store: files}
}

func fastProcessorSettings() config.ProcessorSettings {
	return config.ProcessorSettings{
		MaxAttempts:         3,
		RetryDelay:          time.Millisecond,
		AttemptTimeout:      time.Second,
		ConsecutiveFailures: 2,
	}
}

// fakeDiscoverer returns fixed links or an error
type fakeDiscoverer struct {
	links *scraper.Links
	err   error
	calls int
}

func (d *fakeDiscoverer) DiscoverLinks(ctx context.Context, seedURL string) (*scraper.Links, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return &scraper.Links{
		HTML: append([]string{}, d.links.HTML...),
		PDF:  append([]string{}, d.links.PDF...),
	}, nil
}

type fakeRegistrar struct {
	mu   sync.Mutex
	urls []string
}

func (r *fakeRegistrar) RegisterURL(ctx context.Context, seedURL string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.urls {
		if u == seedURL {
			return false, nil
		}
	}
	r.urls = append(r.urls, seedURL)
	return true, nil
}

type fakePDFBackend struct {
	resp  *scraper.PDFFileResponse
	err   error
	panic bool
	calls int
}

func (b *fakePDFBackend) ScrapePDFFile(ctx context.Context, filename string, data []byte) (*scraper.PDFFileResponse, error) {
	b.calls++
	if b.panic {
		panic("multipart writer exploded")
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.resp, nil
}

type testService struct {
	svc        *JobService
	store      *recordingStore
	backend    *scriptedBackend
	discoverer *fakeDiscoverer
	registrar  *fakeRegistrar
	pdfBackend *fakePDFBackend
	dispatcher *Dispatcher
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	ts := &testService{
		store:      newRecordingStore(t),
		backend:    newScriptedBackend(),
		discoverer: &fakeDiscoverer{links: &scraper.Links{}},
		registrar:  &fakeRegistrar{},
		pdfBackend: &fakePDFBackend{resp: &scraper.PDFFileResponse{Message: "ok", Pages: 5}},
		dispatcher: NewDispatcher(),
	}
	settings := fastProcessorSettings()
	runner := NewRunner(ts.store, NewLinkProcessor(ts.backend, settings), settings.ConsecutiveFailures)
	ts.svc = NewJobService(Deps{
		Store:      ts.store,
		Discoverer: ts.discoverer,
		Runner:     runner,
		Uploader:   NewPDFUploader(ts.store, ts.pdfBackend, nil, time.Minute),
		Dispatcher: ts.dispatcher,
		Registrar:  ts.registrar,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ts.dispatcher.Shutdown(ctx)
	})
	return ts
}

func urlsOfSuccessful(links []model.SuccessfulLink) []string {
	out := []string{}
	for _, l := range links {
		out = append(out, l.URL)
	}
	return out
}

func urlsOfFailed(links []model.FailedLink) []string {
	out := []string{}
	for _, l := range links {
		out = append(out, l.URL)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func assertCheckpointInvariant(t *testing.T, snapshots []model.ProcessingJob) {
	t.Helper()
	if len(snapshots) == 0 {
		t.Fatal("no checkpoints recorded")
	}
	last := -1
	for i, snap := range snapshots {
		if snap.Processed != len(snap.Successful)+len(snap.Failed) {
			t.Errorf("checkpoint %d: processed=%d but successful+failed=%d", i, snap.Processed, len(snap.Successful)+len(snap.Failed))
		}
		if snap.Processed > snap.Total {
			t.Errorf("checkpoint %d: processed=%d exceeds total=%d", i, snap.Processed, snap.Total)
		}
		if snap.Processed < last {
			t.Errorf("checkpoint %d: processed went backwards (%d < %d)", i, snap.Processed, last)
		}
		last = snap.Processed
	}
}
