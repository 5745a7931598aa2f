package schedule

import (
	"context"
	"time"

	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
)

// Registrar adds seed URLs to the schedule
type Registrar struct {
	store     Store
	intervals *IntervalTable
	window    QuietWindow
	now       func() time.Time
}

func NewRegistrar(store Store, intervals *IntervalTable, window QuietWindow) *Registrar {
	return &Registrar{
		store:     store,
		intervals: intervals,
		window:    window,
		now:       time.Now,
	}
}

// RegisterURL appends url when the exact string is not already scheduled.
// Existing entries, including their interval, are left untouched.
func (r *Registrar) RegisterURL(ctx context.Context, url string) (bool, error) {
	added := false
	err := r.store.Update(ctx, func(entries []model.ScheduleEntry) ([]model.ScheduleEntry, error) {
		if indexOf(entries, url) >= 0 {
			return entries, nil
		}
		days := r.intervals.Lookup(url)
		next := r.window.Nudge(r.now().Add(Days(days)).UTC())
		added = true
		return append(entries, model.ScheduleEntry{
			URL:        url,
			NextScrape: next,
			Interval:   days,
			RetryCount: 0,
		}), nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// Seed appends the given URLs that are not yet scheduled. The first scrape
// lands seedDelay from now with the UTC hour staggered over 02:00-06:00 so
// the initial batch does not hit the backend at once.
func (r *Registrar) Seed(ctx context.Context, urls []string) (int, error) {
	added := 0
	err := r.store.Update(ctx, func(entries []model.ScheduleEntry) ([]model.ScheduleEntry, error) {
		base := r.now().UTC().Add(seedDelay)
		for i, url := range urls {
			if indexOf(entries, url) >= 0 {
				continue
			}
			next := time.Date(base.Year(), base.Month(), base.Day(), 2+i%5, base.Minute(), base.Second(), 0, time.UTC)
			entries = append(entries, model.ScheduleEntry{
				URL:        url,
				NextScrape: next,
				Interval:   r.intervals.Lookup(url),
				RetryCount: 0,
			})
			added++
		}
		return entries, nil
	})
	if err != nil {
		return 0, err
	}
	logging.Info().Int("added", added).Int("requested", len(urls)).Msg("[SCHEDULER] seeded schedule")
	return added, nil
}

const seedDelay = 15 * 24 * time.Hour

// Days converts a day count to a duration
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func indexOf(entries []model.ScheduleEntry, url string) int {
	for i, e := range entries {
		if e.URL == url {
			return i
		}
	}
	return -1
}
