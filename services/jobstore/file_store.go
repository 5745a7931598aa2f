package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nrsc-chatbot/portal-api/model"
	"github.com/nrsc-chatbot/portal-api/utils/jsonfile"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
)

const jobFileExt = ".json"

// FileStore keeps one JSON document per job under dir, named <jobId>.json
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory holding the job documents
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(jobID string) string {
	return filepath.Join(s.dir, jobID+jobFileExt)
}

func (s *FileStore) Save(ctx context.Context, job *model.ProcessingJob) error {
	if err := ValidateJobID(job.JobID); err != nil {
		return err
	}
	return jsonfile.Write(s.path(job.JobID), job)
}

func (s *FileStore) Get(ctx context.Context, jobID string) (*StoredJob, error) {
	if err := ValidateJobID(jobID); err != nil {
		return nil, ErrJobNotFound
	}
	return s.read(jobID)
}

func (s *FileStore) read(jobID string) (*StoredJob, error) {
	path := s.path(jobID)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat job %s: %w", jobID, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", jobID, err)
	}

	stored := &StoredJob{ID: jobID, ModifiedAt: info.ModTime()}
	if err := json.Unmarshal(data, &stored.Job); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", jobID, err)
	}
	return stored, nil
}

// List returns every readable job document. Unparsable files are skipped
// and logged so one corrupt record does not hide the rest.
func (s *FileStore) List(ctx context.Context) ([]StoredJob, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read job directory %s: %w", s.dir, err)
	}

	jobs := make([]StoredJob, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, jobFileExt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stored, err := s.read(strings.TrimSuffix(name, jobFileExt))
		if err != nil {
			logging.Warn().Err(err).Str("file", name).Msg("[JOB-STORE] skipping unreadable job record")
			continue
		}
		jobs = append(jobs, *stored)
	}
	return jobs, nil
}

func (s *FileStore) Delete(ctx context.Context, jobID string) error {
	if err := ValidateJobID(jobID); err != nil {
		return ErrJobNotFound
	}
	err := os.Remove(s.path(jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	return nil
}

// Ping checks that the job directory is still present and writable
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("job directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("job directory %s is not a directory", s.dir)
	}
	probe, err := os.CreateTemp(s.dir, ".ping-*")
	if err != nil {
		return fmt.Errorf("job directory not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}
