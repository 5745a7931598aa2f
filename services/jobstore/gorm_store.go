package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nrsc-chatbot/portal-api/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMStore keeps job records in the processing_jobs table. The full
// document lives in a jsonb column; type and status are copied out for
// filtering.
type GORMStore struct {
	db *gorm.DB
}

func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{db: db}
}

func (s *GORMStore) Save(ctx context.Context, job *model.ProcessingJob) error {
	if err := ValidateJobID(job.JobID); err != nil {
		return err
	}

	doc, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.JobID, err)
	}

	record := model.ProcessingJobRecord{
		JobID:    job.JobID,
		Type:     string(job.Type),
		Status:   string(job.Status),
		Document: datatypes.JSON(doc),
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "status", "document", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *GORMStore) Get(ctx context.Context, jobID string) (*StoredJob, error) {
	var record model.ProcessingJobRecord
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return fromRecord(record)
}

func (s *GORMStore) List(ctx context.Context) ([]StoredJob, error) {
	var records []model.ProcessingJobRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]StoredJob, 0, len(records))
	for _, record := range records {
		stored, err := fromRecord(record)
		if err != nil {
			continue
		}
		jobs = append(jobs, *stored)
	}
	return jobs, nil
}

func (s *GORMStore) Delete(ctx context.Context, jobID string) error {
	result := s.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&model.ProcessingJobRecord{})
	if result.Error != nil {
		return fmt.Errorf("delete job %s: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *GORMStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func fromRecord(record model.ProcessingJobRecord) (*StoredJob, error) {
	stored := &StoredJob{ID: record.JobID, ModifiedAt: record.UpdatedAt}
	if err := json.Unmarshal(record.Document, &stored.Job); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", record.JobID, err)
	}
	return stored, nil
}
