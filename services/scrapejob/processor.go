package scrapejob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nrsc-chatbot/portal-api/config"
	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
)

// LinkBackend is the part of the scraper client used per link
type LinkBackend interface {
	ScrapePage(ctx context.Context, pageURL string) error
	ScrapePDF(ctx context.Context, pdfURL string) error
}

// LinkOutcome is the result of processing one link. Attempts is 1..MaxAttempts.
type LinkOutcome struct {
	Success  bool
	Attempts int
	Error    string
}

// LinkExecutor processes a single link; the runner depends on this
type LinkExecutor interface {
	Process(ctx context.Context, link model.Link) LinkOutcome
}

// LinkProcessor sends one link to the backend with a fixed number of
// attempts, a fixed delay between them and a timeout per attempt.
type LinkProcessor struct {
	backend        LinkBackend
	maxAttempts    int
	retryDelay     time.Duration
	attemptTimeout time.Duration
}

func NewLinkProcessor(backend LinkBackend, settings config.ProcessorSettings) *LinkProcessor {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	return &LinkProcessor{
		backend:        backend,
		maxAttempts:    settings.MaxAttempts,
		retryDelay:     settings.RetryDelay,
		attemptTimeout: settings.AttemptTimeout,
	}
}

// Process never returns an error; failures are reported in the outcome
func (p *LinkProcessor) Process(ctx context.Context, link model.Link) LinkOutcome {
	attempts := 0

	operation := func() error {
		attempts++
		err := p.attempt(ctx, link)
		if err != nil {
			logging.Warn().
				Err(err).
				Str("url", link.URL).
				Str("link_type", string(link.Type)).
				Int("attempt", attempts).
				Int("max_attempts", p.maxAttempts).
				Msg("[SCRAPE-LINK] attempt failed")
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.retryDelay), uint64(p.maxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(operation, policy)

	outcome := LinkOutcome{Success: err == nil, Attempts: attempts}
	if err != nil {
		outcome.Error = err.Error()
	}

	result := "success"
	if !outcome.Success {
		result = "failure"
	}
	LinkOutcomes.WithLabelValues(string(link.Type), result).Inc()
	LinkAttempts.WithLabelValues(string(link.Type)).Observe(float64(attempts))

	return outcome
}

func (p *LinkProcessor) attempt(ctx context.Context, link model.Link) error {
	if p.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.attemptTimeout)
		defer cancel()
	}

	var err error
	switch link.Type {
	case model.LinkTypeHTML:
		err = p.backend.ScrapePage(ctx, link.URL)
	case model.LinkTypePDF:
		err = p.backend.ScrapePDF(ctx, link.URL)
	default:
		return backoff.Permanent(fmt.Errorf("unknown link type %q", link.Type))
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("attempt timed out after %s: %w", p.attemptTimeout, err)
	}
	return err
}
