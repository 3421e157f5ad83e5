package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/finsight/statement-pipeline/internal/jobs"
)

// Store implements jobs.Store on top of BigQuery.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewStore creates a BigQuery-backed job store using the provided
// client. The caller owns the client's lifecycle.
func NewStore(client *bigquery.Client, projectID, datasetID string) *Store {
	return &Store{client: client, projectID: projectID, datasetID: datasetID}
}

func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, name)
}

// CreateJob implements jobs.Store.
func (s *Store) CreateJob(ctx context.Context, job *jobs.AnalysisJob) error {
	existing, err := s.GetJob(ctx, job.JobID)
	if err != nil && !errors.Is(err, jobs.ErrJobNotFound) {
		return err
	}
	if existing != nil {
		return jobs.ErrJobExists
	}

	row, err := jobToRow(job)
	if err != nil {
		return err
	}
	inserter := s.client.DatasetInProject(s.projectID, s.datasetID).Table(jobsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("CreateJob: inserting row: %w", err)
	}
	return nil
}

// GetJob implements jobs.Store.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.AnalysisJob, error) {
	q := s.client.Query(`
		SELECT *
		FROM ` + s.table(jobsTable) + `
		WHERE job_id = @job_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "job_id", Value: jobID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetJob: query read: %w", err)
	}

	var row JobRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetJob: iterating rows: %w", err)
	}
	return rowToJob(&row)
}

// UpdateJob implements jobs.Store. The version predicate makes the
// write a compare-and-swap: zero affected rows with a non-negative
// expected version is reported as a conflict.
func (s *Store) UpdateJob(ctx context.Context, jobID string, expectedVersion int64, patch jobs.JobPatch) (*jobs.AnalysisJob, error) {
	sets := []string{"version = version + 1"}
	params := []bigquery.QueryParameter{
		{Name: "job_id", Value: jobID},
	}

	if patch.Status != nil {
		sets = append(sets, "status = @status")
		params = append(params, bigquery.QueryParameter{Name: "status", Value: string(*patch.Status)})
	}
	if patch.Progress != nil {
		// Keep progress monotonic while the job is processing.
		sets = append(sets, `progress = CASE
			WHEN status = 'processing' AND @progress < progress THEN progress
			ELSE @progress
		END`)
		params = append(params, bigquery.QueryParameter{Name: "progress", Value: int64(*patch.Progress)})
	}
	if patch.Error != nil {
		sets = append(sets, "error = @error")
		params = append(params, bigquery.QueryParameter{Name: "error", Value: *patch.Error})
	}
	if patch.Attempts != nil {
		sets = append(sets, "attempts = @attempts")
		params = append(params, bigquery.QueryParameter{Name: "attempts", Value: int64(*patch.Attempts)})
	}
	if patch.StallCount != nil {
		sets = append(sets, "stall_count = @stall_count")
		params = append(params, bigquery.QueryParameter{Name: "stall_count", Value: int64(*patch.StallCount)})
	}
	if patch.StartedAt != nil {
		sets = append(sets, "started_at = @started_at")
		params = append(params, bigquery.QueryParameter{Name: "started_at", Value: *patch.StartedAt})
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = @completed_at")
		params = append(params, bigquery.QueryParameter{Name: "completed_at", Value: *patch.CompletedAt})
	}
	if patch.HeartbeatAt != nil {
		sets = append(sets, "heartbeat_at = @heartbeat_at")
		params = append(params, bigquery.QueryParameter{Name: "heartbeat_at", Value: *patch.HeartbeatAt})
	}
	if patch.Metadata != nil {
		row, err := jobToRow(&jobs.AnalysisJob{Metadata: patch.Metadata})
		if err != nil {
			return nil, err
		}
		sets = append(sets, "metadata = @metadata")
		params = append(params, bigquery.QueryParameter{Name: "metadata", Value: row.Metadata.StringVal})
	}

	where := "job_id = @job_id"
	if expectedVersion >= 0 {
		where += " AND version = @expected_version"
		params = append(params, bigquery.QueryParameter{Name: "expected_version", Value: expectedVersion})
	}

	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE %s
	`, s.table(jobsTable), strings.Join(sets, ", "), where))
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("UpdateJob: run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("UpdateJob: wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("UpdateJob: job failed: %w", err)
	}

	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok && qs.NumDMLAffectedRows == 0 {
		if expectedVersion >= 0 {
			return nil, fmt.Errorf("%w: %s at version %d", jobs.ErrVersionConflict, jobID, expectedVersion)
		}
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	return s.GetJob(ctx, jobID)
}

// ListJobs implements jobs.Store.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.AnalysisJob, error) {
	var conds []string
	var params []bigquery.QueryParameter

	if filter.UserID != "" {
		conds = append(conds, "user_id = @user_id")
		params = append(params, bigquery.QueryParameter{Name: "user_id", Value: filter.UserID})
	}
	if filter.Status != "" {
		conds = append(conds, "status = @status")
		params = append(params, bigquery.QueryParameter{Name: "status", Value: string(filter.Status)})
	}

	sql := "SELECT * FROM " + s.table(jobsTable)
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY created_at"
	if filter.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		sql += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	q := s.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListJobs: query read: %w", err)
	}

	var result []*jobs.AnalysisJob
	for {
		var row JobRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListJobs: iterating rows: %w", err)
		}
		j, err := rowToJob(&row)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, nil
}

// QueueStats implements jobs.Store.
func (s *Store) QueueStats(ctx context.Context) (jobs.QueueStats, error) {
	q := s.client.Query(`
		SELECT
			COUNTIF(status = 'pending' AND attempts = 0) AS waiting,
			COUNTIF(status = 'pending' AND attempts > 0) AS delayed,
			COUNTIF(status = 'processing') AS active,
			COUNTIF(status = 'completed') AS completed,
			COUNTIF(status = 'failed') AS failed
		FROM ` + s.table(jobsTable))

	it, err := q.Read(ctx)
	if err != nil {
		return jobs.QueueStats{}, fmt.Errorf("QueueStats: query read: %w", err)
	}

	var row struct {
		Waiting   int64 `bigquery:"waiting"`
		Delayed   int64 `bigquery:"delayed"`
		Active    int64 `bigquery:"active"`
		Completed int64 `bigquery:"completed"`
		Failed    int64 `bigquery:"failed"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return jobs.QueueStats{}, fmt.Errorf("QueueStats: iterating rows: %w", err)
	}

	return jobs.QueueStats{
		Waiting:   int(row.Waiting),
		Delayed:   int(row.Delayed),
		Active:    int(row.Active),
		Completed: int(row.Completed),
		Failed:    int(row.Failed),
	}, nil
}

// Ensure Store implements jobs.Store.
var _ jobs.Store = (*Store)(nil)
