// Package schedule keeps the list of seed URLs that are rescraped on a
// calendar cadence and runs the periodic scan over it.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/utils/jsonfile"
	"gorm.io/gorm"
)

// ScheduleFileName is the document holding the list in the file store
const ScheduleFileName = "Urls.json"

var ErrEntryNotFound = errors.New("schedule entry not found")

// UpdateFunc receives the whole list and returns the list to store
type UpdateFunc func(entries []model.ScheduleEntry) ([]model.ScheduleEntry, error)

// Store is the durable schedule list. Update runs a full
// read-modify-write cycle and no two cycles interleave.
type Store interface {
	List(ctx context.Context) ([]model.ScheduleEntry, error)
	Update(ctx context.Context, fn UpdateFunc) error
}

// FileStore keeps the list as one JSON array, rewritten atomically
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dataDir, err)
	}
	return &FileStore{path: filepath.Join(dataDir, ScheduleFileName)}, nil
}

// Path returns the location of the schedule document
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) List(ctx context.Context) ([]model.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) Update(ctx context.Context, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	updated, err := fn(entries)
	if err != nil {
		return err
	}
	if updated == nil {
		updated = []model.ScheduleEntry{}
	}
	return jsonfile.Write(s.path, updated)
}

func (s *FileStore) load() ([]model.ScheduleEntry, error) {
	var entries []model.ScheduleEntry
	err := jsonfile.Read(s.path, &entries)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.ScheduleEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GORMStore keeps the list in the schedule_entries table. Position keeps
// the list order; the whole table is rewritten in one transaction.
type GORMStore struct {
	mu sync.Mutex
	db *gorm.DB
}

func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{db: db}
}

func (s *GORMStore) List(ctx context.Context) ([]model.ScheduleEntry, error) {
	return loadRecords(s.db.WithContext(ctx))
}

func (s *GORMStore) Update(ctx context.Context, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entries, err := loadRecords(tx)
		if err != nil {
			return err
		}
		updated, err := fn(entries)
		if err != nil {
			return err
		}

		if err := tx.Where("1 = 1").Delete(&model.ScheduleEntryRecord{}).Error; err != nil {
			return fmt.Errorf("clear schedule: %w", err)
		}
		if len(updated) == 0 {
			return nil
		}

		records := make([]model.ScheduleEntryRecord, 0, len(updated))
		for i, e := range updated {
			records = append(records, model.ScheduleEntryRecord{
				URL:        e.URL,
				Position:   i,
				NextScrape: e.NextScrape,
				Interval:   e.Interval,
				RetryCount: e.RetryCount,
			})
		}
		if err := tx.CreateInBatches(records, 100).Error; err != nil {
			return fmt.Errorf("write schedule: %w", err)
		}
		return nil
	})
}

func loadRecords(db *gorm.DB) ([]model.ScheduleEntry, error) {
	var records []model.ScheduleEntryRecord
	if err := db.Order("position ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	entries := make([]model.ScheduleEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, r.ToEntry())
	}
	return entries, nil
}
