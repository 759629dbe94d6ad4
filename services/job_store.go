package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"document-insights-backend/internal/logger"
	"document-insights-backend/models"
)

// JobStore is the single authoritative registry of query jobs. All records
// live in memory; durability across restarts is deliberately out of scope.
// Every method takes the store lock for the duration of one call only.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*models.Job),
	}
}

// Create inserts a new pending job for the query and returns it by value.
func (s *JobStore) Create(query string) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	job := &models.Job{
		ID:        uuid.New().String(),
		Query:     query,
		Status:    models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[job.ID] = job

	logger.Info("Created job", "job_id", job.ID, "query_len", len(query))
	return *job
}

// Get returns a copy of the job so readers never observe partial writes.
func (s *JobStore) Get(jobID string) (models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, false
	}
	return *job, true
}

// Claim atomically moves a pending job to processing. Only the caller that
// wins the claim may mutate the job afterwards; a second stream request for
// the same job loses here.
func (s *JobStore) Claim(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != models.JobPending {
		return false
	}
	job.Status = models.JobProcessing
	job.UpdatedAt = time.Now()
	return true
}

// SetStatus updates a job's status in place. Missing jobs are a warning, not
// an error: the job may have been evicted while its stream was still running.
func (s *JobStore) SetStatus(jobID string, status models.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		logger.Warn("SetStatus on unknown job", "job_id", jobID, "status", string(status))
		return
	}
	job.Status = status
	job.UpdatedAt = time.Now()
}

// SetResult records the full accumulated answer text.
func (s *JobStore) SetResult(jobID, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		logger.Warn("SetResult on unknown job", "job_id", jobID)
		return
	}
	job.Result = result
	job.UpdatedAt = time.Now()
}

// SetError marks the job failed with a human-readable message.
func (s *JobStore) SetError(jobID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		logger.Warn("SetError on unknown job", "job_id", jobID)
		return
	}
	job.Status = models.JobError
	job.Error = message
	job.UpdatedAt = time.Now()
}

// Delete removes a job. Reports whether it existed.
func (s *JobStore) Delete(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return false
	}
	delete(s.jobs, jobID)
	return true
}

// List returns copies of all live jobs, newest first.
func (s *JobStore) List() []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}

	for i := 0; i < len(jobs); i++ {
		for j := i + 1; j < len(jobs); j++ {
			if jobs[j].CreatedAt.After(jobs[i].CreatedAt) {
				jobs[i], jobs[j] = jobs[j], jobs[i]
			}
		}
	}

	return jobs
}

// EvictOlderThan removes jobs created before now-maxAge and returns how many
// were dropped. Driven by the cleanup scheduler, never by the store itself.
func (s *JobStore) EvictOlderThan(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	evicted := 0
	for id, job := range s.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			evicted++
		}
	}

	if evicted > 0 {
		logger.Info("Evicted old jobs", "count", evicted, "max_age", maxAge.String())
	}
	return evicted
}
