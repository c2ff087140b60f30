// repository/jobstore.go - Job document store on LevelDB
package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"kicomport/internal/errs"
	"kicomport/internal/model"
	"kicomport/pkg/logger"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbutil "github.com/syndtr/goleveldb/leveldb/util"
)

const jobKeyPrefix = "job:"

// JobStore persists Job documents. A job document is written as one key, so
// readers observe either the pre-update or post-update document, never a mix.
type JobStore interface {
	SaveJob(job *model.Job) error
	GetJob(jobID string) (*model.Job, error)
	FindJobByMD5(md5 string) (*model.Job, error)
	ListJobs() ([]*model.Job, error)
	UpdateStatus(job *model.Job, status model.JobStatus) error
	Close() error
}

type levelDBJobStore struct {
	db     *leveldb.DB
	logger logger.Logger
	mutex  sync.Mutex
}

// NewJobStore opens (or creates) the LevelDB directory backing the job store.
func NewJobStore(dataDir string, logger logger.Logger) (JobStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job store directory: %w", err)
	}

	db, err := leveldb.OpenFile(dataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store at %s: %w", dataDir, err)
	}

	logger.Info("job store initialized at %s", dataDir)
	return &levelDBJobStore{db: db, logger: logger}, nil
}

func jobKey(jobID string) []byte {
	return []byte(jobKeyPrefix + jobID)
}

// SaveJob serializes and writes the full job document under one key.
func (s *levelDBJobStore) SaveJob(job *model.Job) error {
	if job == nil || job.ID == "" {
		return errs.NewInvalidParamErr("job", job)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	job.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	if err := s.db.Put(jobKey(job.ID), data, nil); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads one job document.
func (s *levelDBJobStore) GetJob(jobID string) (*model.Job, error) {
	data, err := s.db.Get(jobKey(jobID), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, errs.NewRecordNotFoundErr("job", jobID)
		}
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

// FindJobByMD5 returns the newest job whose upload matched the given md5.
func (s *levelDBJobStore) FindJobByMD5(md5 string) (*model.Job, error) {
	jobs, err := s.ListJobs()
	if err != nil {
		return nil, err
	}
	var found *model.Job
	for _, job := range jobs {
		if job.SourceMD5 != md5 {
			continue
		}
		if found == nil || job.CreatedAt.After(found.CreatedAt) {
			found = job
		}
	}
	if found == nil {
		return nil, errs.ErrRecordNotFound
	}
	return found, nil
}

// ListJobs returns all jobs, newest first.
func (s *levelDBJobStore) ListJobs() ([]*model.Job, error) {
	iter := s.db.NewIterator(leveldbutil.BytesPrefix([]byte(jobKeyPrefix)), nil)
	defer iter.Release()

	var jobs []*model.Job
	for iter.Next() {
		var job model.Job
		if err := json.Unmarshal(iter.Value(), &job); err != nil {
			s.logger.Warn("skipping undecodable job document %s: %v", string(iter.Key()), err)
			continue
		}
		jobs = append(jobs, &job)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate job store: %w", err)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// UpdateStatus validates and persists a status transition.
func (s *levelDBJobStore) UpdateStatus(job *model.Job, status model.JobStatus) error {
	if !model.CanTransition(job.Status, status) {
		return errs.NewInvalidTransitionErr(string(job.Status), string(status))
	}
	job.Status = status
	return s.SaveJob(job)
}

func (s *levelDBJobStore) Close() error {
	return s.db.Close()
}
