package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/finsight/statement-pipeline/internal/consolidate"
	"github.com/finsight/statement-pipeline/internal/domain"
	"github.com/finsight/statement-pipeline/internal/jobs"
)

// GroupStore is an in-memory implementation of consolidate.GroupStore.
// It reads job state from the job store so the completed-members-only
// invariant holds without duplicating job data.
type GroupStore struct {
	mu      sync.RWMutex
	groups  map[string]*domain.StatementGroup
	members map[string][]domain.GroupMember
	jobs    jobs.Store
}

// NewGroupStore creates a group store backed by the given job store.
func NewGroupStore(jobStore jobs.Store) *GroupStore {
	return &GroupStore{
		groups:  make(map[string]*domain.StatementGroup),
		members: make(map[string][]domain.GroupMember),
		jobs:    jobStore,
	}
}

// CreateGroup implements consolidate.GroupStore.
func (s *GroupStore) CreateGroup(ctx context.Context, group *domain.StatementGroup) error {
	if group.GroupID == "" {
		return fmt.Errorf("group ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[group.GroupID]; exists {
		return fmt.Errorf("group %s already exists", group.GroupID)
	}

	groupCopy := *group
	s.groups[group.GroupID] = &groupCopy
	return nil
}

// GetGroup implements consolidate.GroupStore.
func (s *GroupStore) GetGroup(ctx context.Context, groupID string) (*domain.StatementGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, exists := s.groups[groupID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", consolidate.ErrGroupNotFound, groupID)
	}

	groupCopy := *group
	return &groupCopy, nil
}

// AddMember implements consolidate.GroupStore. The member's job must be
// in the completed state, and the group's aggregate counters are kept in
// step with its membership.
func (s *GroupStore) AddMember(ctx context.Context, member *domain.GroupMember) error {
	if err := member.Validate(); err != nil {
		return err
	}

	job, err := s.jobs.GetJob(ctx, member.JobID)
	if err != nil {
		return err
	}
	if job.Status != jobs.StatusCompleted {
		return fmt.Errorf("%w: job %s is %s", consolidate.ErrMemberJobNotCompleted, job.JobID, job.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	group, exists := s.groups[member.GroupID]
	if !exists {
		return fmt.Errorf("%w: %s", consolidate.ErrGroupNotFound, member.GroupID)
	}
	for _, existing := range s.members[member.GroupID] {
		if existing.JobID == member.JobID {
			return fmt.Errorf("job %s is already a member of group %s", member.JobID, member.GroupID)
		}
	}

	memberCopy := *member
	if memberCopy.AddedAt.IsZero() {
		memberCopy.AddedAt = time.Now()
	}
	s.members[member.GroupID] = append(s.members[member.GroupID], memberCopy)

	group.TotalStatements = len(s.members[member.GroupID])
	group.TotalAccounts = countAccounts(s.members[member.GroupID])
	group.ConsolidatedBalance += member.ClosingBalance
	group.UpdatedAt = time.Now()
	return nil
}

// ListCompletedMembers implements consolidate.GroupStore. Members whose
// job has left the completed state since they were added are filtered
// out rather than reported, matching the read-time join semantics of
// the durable store.
func (s *GroupStore) ListCompletedMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error) {
	s.mu.RLock()
	if _, exists := s.groups[groupID]; !exists {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", consolidate.ErrGroupNotFound, groupID)
	}
	members := make([]domain.GroupMember, len(s.members[groupID]))
	copy(members, s.members[groupID])
	s.mu.RUnlock()

	var result []domain.GroupMember
	for _, m := range members {
		job, err := s.jobs.GetJob(ctx, m.JobID)
		if err != nil {
			if errors.Is(err, jobs.ErrJobNotFound) {
				continue
			}
			return nil, err
		}
		if job.Status != jobs.StatusCompleted {
			continue
		}
		m.Metadata = job.Metadata
		result = append(result, m)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AddedAt.Before(result[j].AddedAt)
	})
	return result, nil
}

func countAccounts(members []domain.GroupMember) int {
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		seen[m.AccountIdentifier] = true
	}
	return len(seen)
}

// Ensure GroupStore implements consolidate.GroupStore.
var _ consolidate.GroupStore = (*GroupStore)(nil)
