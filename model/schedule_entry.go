package model

import "time"

// ScheduleEntry is a recurring-rescrape record for a previously submitted seed URL
type ScheduleEntry struct {
	URL        string    `json:"url"`
	NextScrape time.Time `json:"nextScrape"`
	Interval   int       `json:"interval"` // days
	RetryCount int       `json:"retryCount"`
}

// IsDue reports whether the entry should be scraped at now
func (e ScheduleEntry) IsDue(now time.Time) bool {
	return !e.NextScrape.After(now)
}

// ScheduleEntryRecord is the Postgres row backing a ScheduleEntry
type ScheduleEntryRecord struct {
	URL        string    `gorm:"primaryKey;type:text" json:"url"`
	Position   int       `gorm:"not null;default:0" json:"position"`
	NextScrape time.Time `gorm:"not null;index" json:"next_scrape"`
	Interval   int       `gorm:"not null;default:15" json:"interval"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for ScheduleEntryRecord
func (ScheduleEntryRecord) TableName() string {
	return "schedule_entries"
}

// ToEntry converts the row into the domain entry
func (r ScheduleEntryRecord) ToEntry() ScheduleEntry {
	return ScheduleEntry{
		URL:        r.URL,
		NextScrape: r.NextScrape,
		Interval:   r.Interval,
		RetryCount: r.RetryCount,
	}
}
