package schedule

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/nrsc-chatbot/portal-api/config"
	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
)

// ErrScanInProgress is returned when a scan is requested while one is running
var ErrScanInProgress = errors.New("schedule scan already in progress")

// Submitter starts a fresh scraping job for a seed URL
type Submitter interface {
	SubmitSeed(ctx context.Context, seedURL string) (*model.ProcessingJob, error)
}

// ScanResult summarizes one pass over the schedule
type ScanResult struct {
	Due       int `json:"due"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Scheduler rescrapes due entries and reschedules them
type Scheduler struct {
	store       Store
	submitter   Submitter
	window      QuietWindow
	scanTimeout time.Duration
	shortRetry  time.Duration
	concurrency int

	running atomic.Bool
	now     func() time.Time
}

func NewScheduler(store Store, submitter Submitter, window QuietWindow, settings config.ScheduleSettings) *Scheduler {
	concurrency := settings.ScanConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		store:       store,
		submitter:   submitter,
		window:      window,
		scanTimeout: settings.ScanTimeout,
		shortRetry:  settings.ShortRetry,
		concurrency: concurrency,
		now:         time.Now,
	}
}

type scanOutcome struct {
	url string
	ok  bool
}

// RunDue submits every entry whose nextScrape is not in the future. A
// successful submission pushes the entry a full interval ahead and clears
// its retry count; a failed one is retried after the short delay. All
// reschedules are written in one store update after the calls finish.
func (s *Scheduler) RunDue(ctx context.Context) (ScanResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		ScanRuns.WithLabelValues("skipped").Inc()
		return ScanResult{}, ErrScanInProgress
	}
	defer s.running.Store(false)

	started := time.Now()
	defer func() { ScanDuration.Observe(time.Since(started).Seconds()) }()

	now := s.now()
	entries, err := s.store.List(ctx)
	if err != nil {
		ScanRuns.WithLabelValues("error").Inc()
		return ScanResult{}, fmt.Errorf("list schedule: %w", err)
	}

	var due []model.ScheduleEntry
	for _, e := range entries {
		if e.IsDue(now) {
			due = append(due, e)
		}
	}
	result := ScanResult{Due: len(due)}
	logging.Info().Int("entries", len(entries)).Int("due", len(due)).Msg("[SCHEDULER] scan started")
	if len(due) == 0 {
		ScanRuns.WithLabelValues("ok").Inc()
		return result, nil
	}

	outcomes := make([]scanOutcome, len(due))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, entry := range due {
		g.Go(func() error {
			outcomes[i] = scanOutcome{url: entry.URL, ok: s.submit(ctx, entry.URL)}
			return nil
		})
	}
	_ = g.Wait()

	byURL := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		byURL[o.url] = o.ok
		if o.ok {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	err = s.store.Update(context.WithoutCancel(ctx), func(current []model.ScheduleEntry) ([]model.ScheduleEntry, error) {
		for i := range current {
			ok, scanned := byURL[current[i].URL]
			if !scanned {
				continue
			}
			current[i] = s.reschedule(current[i], ok, now)
		}
		return current, nil
	})
	if err != nil {
		ScanRuns.WithLabelValues("error").Inc()
		return result, fmt.Errorf("update schedule: %w", err)
	}

	ScanRuns.WithLabelValues("ok").Inc()
	logging.Info().
		Int("due", result.Due).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("[SCHEDULER] scan finished")
	return result, nil
}

func (s *Scheduler) submit(ctx context.Context, seedURL string) (ok bool) {
	domain := domainLabel(seedURL)
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("url", seedURL).Interface("panic", r).Msg("[SCHEDULER] submission panicked")
			ok = false
		}
		result := "failed"
		if ok {
			result = "succeeded"
		}
		ScanEntries.WithLabelValues(domain, result).Inc()
	}()

	callCtx := ctx
	if s.scanTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.scanTimeout)
		defer cancel()
	}

	job, err := s.submitter.SubmitSeed(callCtx, seedURL)
	if err != nil {
		logging.Warn().Err(err).Str("url", seedURL).Str("domain", domain).Msg("[SCHEDULER] rescrape failed")
		return false
	}
	logging.Info().Str("url", seedURL).Str("domain", domain).Str("job_id", job.JobID).Msg("[SCHEDULER] rescrape submitted")
	return true
}

func (s *Scheduler) reschedule(entry model.ScheduleEntry, ok bool, now time.Time) model.ScheduleEntry {
	if ok {
		entry.NextScrape = s.window.Nudge(now.Add(Days(entry.Interval))).UTC()
		entry.RetryCount = 0
		return entry
	}
	entry.NextScrape = now.Add(s.shortRetry).UTC()
	entry.RetryCount++
	return entry
}

// List returns the schedule in stored order
func (s *Scheduler) List(ctx context.Context) ([]model.ScheduleEntry, error) {
	return s.store.List(ctx)
}

// Remove deletes the entry with the exact url
func (s *Scheduler) Remove(ctx context.Context, url string) error {
	return s.store.Update(ctx, func(entries []model.ScheduleEntry) ([]model.ScheduleEntry, error) {
		i := indexOf(entries, url)
		if i < 0 {
			return nil, ErrEntryNotFound
		}
		return append(entries[:i], entries[i+1:]...), nil
	})
}

// Running reports whether a scan is in progress
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// domainLabel reduces a URL to its registrable domain for logs and metrics
func domainLabel(raw string) string {
	label := "unknown"
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		label = u.Hostname()
		if etld1, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname()); err == nil {
			label = etld1
		}
	}
	return label
}
