package schedule

import (
	"fmt"
	"time"
)

// QuietWindow is a local time-of-day band that scheduled scrapes avoid.
// Start is inclusive, end exclusive, both in minutes after midnight.
type QuietWindow struct {
	loc      *time.Location
	startMin int
	endMin   int
}

// ParseQuietWindow builds a window from HH:MM bounds in the named zone.
// Empty bounds disable the window.
func ParseQuietWindow(timezone, start, end string) (QuietWindow, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return QuietWindow{}, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if start == "" || end == "" {
		return QuietWindow{loc: loc}, nil
	}

	startMin, err := parseClock(start)
	if err != nil {
		return QuietWindow{}, err
	}
	endMin, err := parseClock(end)
	if err != nil {
		return QuietWindow{}, err
	}
	if endMin <= startMin {
		return QuietWindow{}, fmt.Errorf("quiet window end %s must be after start %s", end, start)
	}
	return QuietWindow{loc: loc, startMin: startMin, endMin: endMin}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Location returns the window's time zone
func (w QuietWindow) Location() *time.Location {
	if w.loc == nil {
		return time.UTC
	}
	return w.loc
}

// Contains reports whether t falls inside the window
func (w QuietWindow) Contains(t time.Time) bool {
	if w.endMin == 0 {
		return false
	}
	local := t.In(w.Location())
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= w.startMin && minutes < w.endMin
}

// Nudge moves a time inside the window to the window end on the same
// local day. Times outside the window are returned unchanged.
func (w QuietWindow) Nudge(t time.Time) time.Time {
	if !w.Contains(t) {
		return t
	}
	local := t.In(w.Location())
	y, m, d := local.Date()
	return time.Date(y, m, d, w.endMin/60, w.endMin%60, 0, 0, w.Location()).UTC()
}
