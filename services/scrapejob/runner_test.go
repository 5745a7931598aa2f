package scrapejob

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/nrsc-chatbot/portal-api/model"
)

func newRunnerJob(id string, html, pdf []string) *model.ProcessingJob {
	return newLinkJob(id, "https://www.nrsc.gov.in/", html, pdf, "")
}

func runJob(t *testing.T, backend *scriptedBackend, job *model.ProcessingJob) (*recordingStore, error) {
	t.Helper()
	store := newRecordingStore(t)
	settings := fastProcessorSettings()
	runner := NewRunner(store, NewLinkProcessor(backend, settings), settings.ConsecutiveFailures)
	return store, runner.Run(context.Background(), job)
}

func finalRecord(t *testing.T, store *recordingStore, jobID string) model.ProcessingJob {
	t.Helper()
	stored, err := store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Get %s: %v", jobID, err)
	}
	return stored.Job
}

func TestRunnerPartialCompletion(t *testing.T) {
	backend := newScriptedBackend().script("u2", errBackend)
	job := newRunnerJob("web-1", []string{"u1", "u2"}, nil)

	store, err := runJob(t, backend, job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	final := finalRecord(t, store, "web-1")
	if final.Status != model.ProcessingJobStatusPartial {
		t.Errorf("status = %s, want partially_completed", final.Status)
	}
	if got := urlsOfSuccessful(final.Successful); !reflect.DeepEqual(got, []string{"u1"}) {
		t.Errorf("successful = %v", got)
	}
	if got := urlsOfFailed(final.Failed); !reflect.DeepEqual(got, []string{"u2"}) {
		t.Errorf("failed = %v", got)
	}
	if final.Processed != 2 || final.Total != 2 {
		t.Errorf("processed=%d total=%d, want 2/2", final.Processed, final.Total)
	}
	if final.Failed[0].Attempts != 3 || final.Failed[0].Error == "" {
		t.Errorf("failed entry = %+v, want 3 attempts with error", final.Failed[0])
	}
	if final.Successful[0].Attempts != 1 {
		t.Errorf("successful attempts = %d, want 1", final.Successful[0].Attempts)
	}
	if !strings.Contains(final.Message, "1 failed") {
		t.Errorf("message %q should report the failure count", final.Message)
	}
	if final.EndTime == nil || final.StartTime == nil {
		t.Error("expected start and end times")
	}

	assertCheckpointInvariant(t, store.saved("web-1"))
}

func TestRunnerStopsOnConsecutiveFailures(t *testing.T) {
	backend := newScriptedBackend().
		script("u1", errBackend).
		script("u2", errBackend)
	job := newRunnerJob("web-2", []string{"u1", "u2", "u3"}, nil)

	store, err := runJob(t, backend, job)
	if !errors.Is(err, ErrCircuitTripped) {
		t.Fatalf("Run = %v, want ErrCircuitTripped", err)
	}

	final := finalRecord(t, store, "web-2")
	if final.Status != model.ProcessingJobStatusFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
	if final.Processed != 2 || final.Total != 3 {
		t.Errorf("processed=%d total=%d, want 2/3", final.Processed, final.Total)
	}
	if contains(urlsOfSuccessful(final.Successful), "u3") || contains(urlsOfFailed(final.Failed), "u3") {
		t.Error("u3 must not be recorded after the trip")
	}
	if backend.callCount("u3") != 0 {
		t.Error("u3 must not be sent to the backend")
	}
	if !strings.Contains(final.Message, "consecutive failures") {
		t.Errorf("message = %q", final.Message)
	}

	assertCheckpointInvariant(t, store.saved("web-2"))
}

func TestRunnerAllSuccessful(t *testing.T) {
	backend := newScriptedBackend()
	job := newRunnerJob("web-3", []string{"h1", "h2"}, []string{"p1.pdf"})

	store, err := runJob(t, backend, job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	final := finalRecord(t, store, "web-3")
	if final.Status != model.ProcessingJobStatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if final.Processed != final.Total || final.Total != 3 {
		t.Errorf("processed=%d total=%d", final.Processed, final.Total)
	}
	// html links go first, then pdf links, each in discovery order
	if !reflect.DeepEqual(urlsOfSuccessful(final.Successful), []string{"h1", "h2", "p1.pdf"}) {
		t.Errorf("order = %v", urlsOfSuccessful(final.Successful))
	}
	if final.Successful[2].Type != model.LinkTypePDF {
		t.Errorf("type = %s, want pdf", final.Successful[2].Type)
	}
	if !reflect.DeepEqual(backend.pdfs, []string{"p1.pdf"}) {
		t.Errorf("pdf endpoint calls = %v", backend.pdfs)
	}
}

func TestRunnerBreakerSequences(t *testing.T) {
	tests := []struct {
		name     string
		outcomes string // s = success, f = failure, one per link
		tripped  bool
		recorded int
	}{
		{"no failures", "ssss", false, 4},
		{"single failure", "sfss", false, 4},
		{"alternating failures never trip", "fsfsf", false, 5},
		{"trip in the middle", "sffss", true, 3},
		{"trip at the start", "ffs", true, 2},
		{"trip on the last link", "ssff", true, 4},
		{"success resets the streak", "fsffs", true, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newScriptedBackend()
			var html []string
			for i, o := range tt.outcomes {
				url := fmt.Sprintf("https://link/%d", i)
				html = append(html, url)
				if o == 'f' {
					backend.script(url, errBackend)
				}
			}
			job := newRunnerJob("web-seq", html, nil)

			store, err := runJob(t, backend, job)
			final := finalRecord(t, store, "web-seq")

			if tt.tripped {
				if !errors.Is(err, ErrCircuitTripped) || final.Status != model.ProcessingJobStatusFailed {
					t.Fatalf("err=%v status=%s, want trip", err, final.Status)
				}
			} else {
				if err != nil || final.Status == model.ProcessingJobStatusFailed {
					t.Fatalf("err=%v status=%s, want no trip", err, final.Status)
				}
			}

			if final.Processed != tt.recorded {
				t.Errorf("processed = %d, want %d", final.Processed, tt.recorded)
			}
			for _, url := range html[tt.recorded:] {
				if contains(urlsOfSuccessful(final.Successful), url) || contains(urlsOfFailed(final.Failed), url) {
					t.Errorf("%s recorded after the trip point", url)
				}
			}
			if !tt.tripped && final.Processed != final.Total {
				t.Errorf("untripped job must record every link: %d/%d", final.Processed, final.Total)
			}

			assertCheckpointInvariant(t, store.saved("web-seq"))
		})
	}
}

func TestRunnerPersistenceFailure(t *testing.T) {
	store := newRecordingStore(t)
	store.failAfter = 2
	settings := fastProcessorSettings()
	runner := NewRunner(store, NewLinkProcessor(newScriptedBackend(), settings), 2)

	job := newRunnerJob("web-4", []string{"a", "b", "c"}, nil)
	err := runner.Run(context.Background(), job)

	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("Run = %v, want PersistenceError", err)
	}
	if job.Status != model.ProcessingJobStatusFailed || !strings.Contains(job.Message, "disk full") {
		t.Errorf("in-memory job = %s %q", job.Status, job.Message)
	}

	// the last successful write stays on disk
	last := finalRecord(t, store, "web-4")
	if last.Status != model.ProcessingJobStatusProcessing || last.Processed != 1 {
		t.Errorf("last checkpoint = %s processed=%d", last.Status, last.Processed)
	}
}

type panickingExecutor struct{}

func (panickingExecutor) Process(ctx context.Context, link model.Link) LinkOutcome {
	panic("nil map write")
}

func TestRunnerRecoversPanics(t *testing.T) {
	store := newRecordingStore(t)
	runner := NewRunner(store, panickingExecutor{}, 2)

	job := newRunnerJob("web-5", []string{"a"}, nil)
	err := runner.Run(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("Run = %v, want panic error", err)
	}

	final := finalRecord(t, store, "web-5")
	if final.Status != model.ProcessingJobStatusFailed || !strings.Contains(final.Message, "nil map write") {
		t.Errorf("final = %s %q", final.Status, final.Message)
	}
}

func TestRunnerInterruptedByShutdown(t *testing.T) {
	store := newRecordingStore(t)
	runner := NewRunner(store, NewLinkProcessor(newScriptedBackend(), fastProcessorSettings()), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := newRunnerJob("web-6", []string{"a", "b"}, nil)
	if err := runner.Run(ctx, job); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	final := finalRecord(t, store, "web-6")
	if final.Status != model.ProcessingJobStatusFailed || final.Processed != 0 {
		t.Errorf("final = %s processed=%d", final.Status, final.Processed)
	}
	if !strings.Contains(final.Message, "Interrupted") {
		t.Errorf("message = %q", final.Message)
	}
}

func TestRunnerEmptyJobCompletes(t *testing.T) {
	store, err := runJob(t, newScriptedBackend(), newRunnerJob("web-7", nil, nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final := finalRecord(t, store, "web-7"); final.Status != model.ProcessingJobStatusCompleted {
		t.Errorf("status = %s", final.Status)
	}
}
