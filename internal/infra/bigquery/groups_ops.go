package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/finsight/statement-pipeline/internal/consolidate"
	"github.com/finsight/statement-pipeline/internal/domain"
	"github.com/finsight/statement-pipeline/internal/jobs"
)

// CreateGroup implements consolidate.GroupStore.
func (s *Store) CreateGroup(ctx context.Context, group *domain.StatementGroup) error {
	row := &GroupRow{
		GroupID:             group.GroupID,
		UserID:              group.UserID,
		GroupName:           group.GroupName,
		GroupType:           string(group.GroupType),
		ReferenceID:         group.ReferenceID,
		Status:              string(group.Status),
		TotalStatements:     int64(group.TotalStatements),
		TotalAccounts:       int64(group.TotalAccounts),
		ConsolidatedBalance: group.ConsolidatedBalance,
		CreatedAt:           group.CreatedAt,
		UpdatedAt:           group.UpdatedAt,
	}

	inserter := s.client.DatasetInProject(s.projectID, s.datasetID).Table(groupsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("CreateGroup: inserting row: %w", err)
	}
	return nil
}

// GetGroup implements consolidate.GroupStore.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*domain.StatementGroup, error) {
	q := s.client.Query(`
		SELECT *
		FROM ` + s.table(groupsTable) + `
		WHERE group_id = @group_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "group_id", Value: groupID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetGroup: query read: %w", err)
	}

	var row GroupRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("%w: %s", consolidate.ErrGroupNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetGroup: iterating rows: %w", err)
	}

	return &domain.StatementGroup{
		GroupID:             row.GroupID,
		UserID:              row.UserID,
		GroupName:           row.GroupName,
		GroupType:           domain.GroupType(row.GroupType),
		ReferenceID:         row.ReferenceID,
		Status:              domain.GroupStatus(row.Status),
		TotalStatements:     int(row.TotalStatements),
		TotalAccounts:       int(row.TotalAccounts),
		ConsolidatedBalance: row.ConsolidatedBalance,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}, nil
}

// AddMember implements consolidate.GroupStore. The referenced job must
// be completed, and the group's aggregate counters are refreshed after
// the membership row lands.
func (s *Store) AddMember(ctx context.Context, member *domain.GroupMember) error {
	if err := member.Validate(); err != nil {
		return err
	}

	job, err := s.GetJob(ctx, member.JobID)
	if err != nil {
		return err
	}
	if job.Status != jobs.StatusCompleted {
		return fmt.Errorf("%w: job %s is %s", consolidate.ErrMemberJobNotCompleted, job.JobID, job.Status)
	}
	if _, err := s.GetGroup(ctx, member.GroupID); err != nil {
		return err
	}

	addedAt := member.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now()
	}
	row := &GroupMemberRow{
		GroupID:           member.GroupID,
		JobID:             member.JobID,
		AccountIdentifier: member.AccountIdentifier,
		BankName:          nullString(member.BankName),
		AccountType:       nullString(member.AccountType),
		PeriodStart:       member.PeriodStart,
		PeriodEnd:         member.PeriodEnd,
		OpeningBalance:    member.OpeningBalance,
		ClosingBalance:    member.ClosingBalance,
		AddedAt:           addedAt,
	}

	inserter := s.client.DatasetInProject(s.projectID, s.datasetID).Table(groupMembersTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("AddMember: inserting row: %w", err)
	}

	return s.refreshGroupCounters(ctx, member.GroupID)
}

// refreshGroupCounters recomputes the aggregate columns from the
// membership table so TotalStatements always equals the member count.
func (s *Store) refreshGroupCounters(ctx context.Context, groupID string) error {
	q := s.client.Query(`
		UPDATE ` + s.table(groupsTable) + ` g
		SET
			total_statements = m.statements,
			total_accounts = m.accounts,
			consolidated_balance = m.balance,
			updated_at = CURRENT_TIMESTAMP()
		FROM (
			SELECT
				group_id,
				COUNT(*) AS statements,
				COUNT(DISTINCT account_identifier) AS accounts,
				SUM(closing_balance) AS balance
			FROM ` + s.table(groupMembersTable) + `
			WHERE group_id = @group_id
			GROUP BY group_id
		) m
		WHERE g.group_id = m.group_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "group_id", Value: groupID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("AddMember: refresh counters: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("AddMember: wait for counter refresh: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("AddMember: counter refresh failed: %w", err)
	}
	return nil
}

// ListCompletedMembers implements consolidate.GroupStore. The inner
// join on completed jobs filters members whose job has not finished,
// and carries each job's metadata along for consolidation.
func (s *Store) ListCompletedMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}

	q := s.client.Query(`
		SELECT
			m.group_id,
			m.analysis_job_id,
			m.account_identifier,
			m.bank_name,
			m.account_type,
			m.statement_period_start,
			m.statement_period_end,
			m.opening_balance,
			m.closing_balance,
			m.added_at,
			j.metadata
		FROM ` + s.table(groupMembersTable) + ` m
		INNER JOIN ` + s.table(jobsTable) + ` j
		  ON m.analysis_job_id = j.job_id
		WHERE m.group_id = @group_id
		  AND j.status = 'completed'
		ORDER BY m.added_at
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "group_id", Value: groupID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCompletedMembers: query read: %w", err)
	}

	var members []domain.GroupMember
	for {
		var row GroupMemberRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCompletedMembers: iterating rows: %w", err)
		}
		member, err := rowToMember(&row)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, nil
}

// Ensure Store implements consolidate.GroupStore.
var _ consolidate.GroupStore = (*Store)(nil)
