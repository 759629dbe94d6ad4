package services

import (
	"time"

	"github.com/go-co-op/gocron"

	"document-insights-backend/internal/logger"
)

// CleanupService periodically evicts aged-out jobs from the store. The store
// never expires records on its own; this scheduler is the external policy.
type CleanupService struct {
	scheduler *gocron.Scheduler
	store     *JobStore
	maxAge    time.Duration
}

func NewCleanupService(store *JobStore, maxAge, interval time.Duration) (*CleanupService, error) {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	cs := &CleanupService{
		scheduler: s,
		store:     store,
		maxAge:    maxAge,
	}

	_, err := s.Every(interval).Tag("job-eviction").Do(func() {
		evicted := cs.store.EvictOlderThan(cs.maxAge)
		if evicted > 0 {
			logger.Debug("Job eviction sweep finished", "evicted", evicted)
		}
	})
	if err != nil {
		return nil, err
	}

	return cs, nil
}

// Start starts the scheduler
func (cs *CleanupService) Start() {
	cs.scheduler.StartAsync()
}

// Stop stops the scheduler
func (cs *CleanupService) Stop() {
	cs.scheduler.Stop()
}
