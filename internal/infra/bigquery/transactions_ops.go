package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// ReplaceTransactions deletes any rows previously inserted for the job
// and inserts the new batch. Delete-then-insert keeps re-runs of the
// same job idempotent.
func (s *Store) ReplaceTransactions(ctx context.Context, jobID string, txs []domain.Transaction) error {
	if err := s.deleteTransactions(ctx, jobID); err != nil {
		return err
	}
	if len(txs) == 0 {
		return nil
	}

	rows := make([]*TransactionRow, 0, len(txs))
	for i, tx := range txs {
		rows = append(rows, transactionToRow(tx, i+1))
	}

	inserter := s.client.DatasetInProject(s.projectID, s.datasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("ReplaceTransactions: inserting rows: %w", err)
	}
	return nil
}

func (s *Store) deleteTransactions(ctx context.Context, jobID string) error {
	q := s.client.Query(`
		DELETE FROM ` + s.table(transactionsTable) + `
		WHERE job_id = @job_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "job_id", Value: jobID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("ReplaceTransactions: run delete: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("ReplaceTransactions: wait for delete: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("ReplaceTransactions: delete failed: %w", err)
	}
	return nil
}

// ListTransactions returns the persisted rows for one job in statement
// order.
func (s *Store) ListTransactions(ctx context.Context, jobID string) ([]*TransactionRow, error) {
	q := s.client.Query(`
		SELECT *
		FROM ` + s.table(transactionsTable) + `
		WHERE job_id = @job_id
		ORDER BY line_no
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "job_id", Value: jobID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iterating rows: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}
