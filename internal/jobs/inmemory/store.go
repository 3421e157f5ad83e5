package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/finsight/statement-pipeline/internal/jobs"
)

// Store is an in-memory implementation of jobs.Store. It is safe for
// concurrent use. Data is lost on service restart - for persistence, use
// the BigQuery-backed store.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.AnalysisJob
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.AnalysisJob),
	}
}

// CreateJob implements jobs.Store.
func (s *Store) CreateJob(ctx context.Context, job *jobs.AnalysisJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID]; exists {
		return jobs.ErrJobExists
	}

	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy
	return nil
}

// GetJob implements jobs.Store.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.AnalysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// UpdateJob implements jobs.Store. The version check serializes writes
// from a stalled-and-requeued job racing its own retry; the progress
// floor keeps observed progress monotonic while processing.
func (s *Store) UpdateJob(ctx context.Context, jobID string, expectedVersion int64, patch jobs.JobPatch) (*jobs.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	if expectedVersion >= 0 && job.Version != expectedVersion {
		return nil, fmt.Errorf("%w: %s has version %d, expected %d",
			jobs.ErrVersionConflict, jobID, job.Version, expectedVersion)
	}

	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.Progress != nil {
		p := *patch.Progress
		if job.Status != jobs.StatusProcessing || p > job.Progress {
			job.Progress = p
		}
	}
	if patch.Error != nil {
		job.Error = *patch.Error
	}
	if patch.Attempts != nil {
		job.Attempts = *patch.Attempts
	}
	if patch.StallCount != nil {
		job.StallCount = *patch.StallCount
	}
	if patch.StartedAt != nil {
		job.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		job.CompletedAt = patch.CompletedAt
	}
	if patch.HeartbeatAt != nil {
		job.HeartbeatAt = patch.HeartbeatAt
	}
	if patch.Metadata != nil {
		job.Metadata = patch.Metadata
	}

	job.Version++

	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs implements jobs.Store.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.AnalysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.AnalysisJob
	for _, job := range s.jobs {
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.AnalysisJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// QueueStats implements jobs.Store.
func (s *Store) QueueStats(ctx context.Context) (jobs.QueueStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats jobs.QueueStats
	for _, job := range s.jobs {
		switch job.Status {
		case jobs.StatusPending:
			if job.Attempts > 0 {
				stats.Delayed++
			} else {
				stats.Waiting++
			}
		case jobs.StatusProcessing:
			stats.Active++
		case jobs.StatusCompleted:
			stats.Completed++
		case jobs.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// Ensure Store implements jobs.Store.
var _ jobs.Store = (*Store)(nil)
