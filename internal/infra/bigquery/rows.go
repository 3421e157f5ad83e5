// Package bigquery is the durable store for jobs, transactions, and
// statement groups. One dataset holds four tables: analysis_jobs,
// transactions, statement_groups, and statement_group_members.
package bigquery

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/finsight/statement-pipeline/internal/domain"
	"github.com/finsight/statement-pipeline/internal/jobs"
)

const (
	jobsTable         = "analysis_jobs"
	transactionsTable = "transactions"
	groupsTable       = "statement_groups"
	groupMembersTable = "statement_group_members"
)

// JobRow mirrors the analysis_jobs table. Analysis metadata is stored
// as a JSON string so the stage result types can evolve without schema
// migrations.
type JobRow struct {
	JobID       string                 `bigquery:"job_id"`
	UserID      string                 `bigquery:"user_id"`
	FileName    string                 `bigquery:"file_name"`
	FileType    string                 `bigquery:"file_type"`
	SourceURI   bigquery.NullString    `bigquery:"source_uri"`
	ReportName  bigquery.NullString    `bigquery:"report_name"`
	ReferenceID bigquery.NullString    `bigquery:"reference_id"`
	Status      string                 `bigquery:"status"`
	Progress    int64                  `bigquery:"progress"`
	Error       bigquery.NullString    `bigquery:"error"`
	Attempts    int64                  `bigquery:"attempts"`
	MaxAttempts int64                  `bigquery:"max_attempts"`
	StallCount  int64                  `bigquery:"stall_count"`
	Priority    int64                  `bigquery:"priority"`
	Version     int64                  `bigquery:"version"`
	CreatedAt   time.Time              `bigquery:"created_at"`
	StartedAt   bigquery.NullTimestamp `bigquery:"started_at"`
	CompletedAt bigquery.NullTimestamp `bigquery:"completed_at"`
	HeartbeatAt bigquery.NullTimestamp `bigquery:"heartbeat_at"`
	Metadata    bigquery.NullString    `bigquery:"metadata"`
}

// TransactionRow mirrors the transactions table.
type TransactionRow struct {
	JobID       string               `bigquery:"job_id"`
	LineNo      int64                `bigquery:"line_no"`
	Date        civil.Date           `bigquery:"transaction_date"`
	Description string               `bigquery:"description"`
	Debit       bigquery.NullFloat64 `bigquery:"debit"`
	Credit      bigquery.NullFloat64 `bigquery:"credit"`
	Balance     float64              `bigquery:"balance"`
	Category    bigquery.NullString  `bigquery:"category"`
	CreatedAt   time.Time            `bigquery:"created_at"`
}

// GroupRow mirrors the statement_groups table.
type GroupRow struct {
	GroupID             string    `bigquery:"group_id"`
	UserID              string    `bigquery:"user_id"`
	GroupName           string    `bigquery:"group_name"`
	GroupType           string    `bigquery:"group_type"`
	ReferenceID         string    `bigquery:"reference_id"`
	Status              string    `bigquery:"status"`
	TotalStatements     int64     `bigquery:"total_statements"`
	TotalAccounts       int64     `bigquery:"total_accounts"`
	ConsolidatedBalance float64   `bigquery:"consolidated_balance"`
	CreatedAt           time.Time `bigquery:"created_at"`
	UpdatedAt           time.Time `bigquery:"updated_at"`
}

// GroupMemberRow mirrors the statement_group_members table.
type GroupMemberRow struct {
	GroupID           string              `bigquery:"group_id"`
	JobID             string              `bigquery:"analysis_job_id"`
	AccountIdentifier string              `bigquery:"account_identifier"`
	BankName          bigquery.NullString `bigquery:"bank_name"`
	AccountType       bigquery.NullString `bigquery:"account_type"`
	PeriodStart       civil.Date          `bigquery:"statement_period_start"`
	PeriodEnd         civil.Date          `bigquery:"statement_period_end"`
	OpeningBalance    float64             `bigquery:"opening_balance"`
	ClosingBalance    float64             `bigquery:"closing_balance"`
	AddedAt           time.Time           `bigquery:"added_at"`
	// Joined from analysis_jobs at read time.
	Metadata bigquery.NullString `bigquery:"metadata"`
}

func jobToRow(job *jobs.AnalysisJob) (*JobRow, error) {
	row := &JobRow{
		JobID:       job.JobID,
		UserID:      job.UserID,
		FileName:    job.FileName,
		FileType:    job.FileType,
		SourceURI:   nullString(job.SourceURI),
		ReportName:  nullString(job.ReportName),
		ReferenceID: nullString(job.ReferenceID),
		Status:      string(job.Status),
		Progress:    int64(job.Progress),
		Error:       nullString(job.Error),
		Attempts:    int64(job.Attempts),
		MaxAttempts: int64(job.MaxAttempts),
		StallCount:  int64(job.StallCount),
		Priority:    int64(job.Priority),
		Version:     job.Version,
		CreatedAt:   job.CreatedAt,
		StartedAt:   nullTimestamp(job.StartedAt),
		CompletedAt: nullTimestamp(job.CompletedAt),
		HeartbeatAt: nullTimestamp(job.HeartbeatAt),
	}
	if job.Metadata != nil {
		data, err := json.Marshal(job.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal job metadata: %w", err)
		}
		row.Metadata = nullString(string(data))
	}
	return row, nil
}

func rowToJob(row *JobRow) (*jobs.AnalysisJob, error) {
	job := &jobs.AnalysisJob{
		JobID:       row.JobID,
		UserID:      row.UserID,
		FileName:    row.FileName,
		FileType:    row.FileType,
		SourceURI:   row.SourceURI.StringVal,
		ReportName:  row.ReportName.StringVal,
		ReferenceID: row.ReferenceID.StringVal,
		Status:      jobs.Status(row.Status),
		Progress:    int(row.Progress),
		Error:       row.Error.StringVal,
		Attempts:    int(row.Attempts),
		MaxAttempts: int(row.MaxAttempts),
		StallCount:  int(row.StallCount),
		Priority:    jobs.Priority(row.Priority),
		Version:     row.Version,
		CreatedAt:   row.CreatedAt,
		StartedAt:   timestampPtr(row.StartedAt),
		CompletedAt: timestampPtr(row.CompletedAt),
		HeartbeatAt: timestampPtr(row.HeartbeatAt),
	}
	if row.Metadata.Valid && row.Metadata.StringVal != "" {
		var meta domain.AnalysisMetadata
		if err := json.Unmarshal([]byte(row.Metadata.StringVal), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal job metadata: %w", err)
		}
		job.Metadata = &meta
	}
	return job, nil
}

func transactionToRow(tx domain.Transaction, lineNo int) *TransactionRow {
	return &TransactionRow{
		JobID:       tx.JobID,
		LineNo:      int64(lineNo),
		Date:        civil.DateOf(tx.Date),
		Description: tx.Description,
		Debit:       nullFloat(tx.Debit),
		Credit:      nullFloat(tx.Credit),
		Balance:     tx.Balance,
		Category:    nullString(tx.Category),
		CreatedAt:   time.Now(),
	}
}

func rowToMember(row *GroupMemberRow) (domain.GroupMember, error) {
	member := domain.GroupMember{
		GroupID:           row.GroupID,
		JobID:             row.JobID,
		AccountIdentifier: row.AccountIdentifier,
		BankName:          row.BankName.StringVal,
		AccountType:       row.AccountType.StringVal,
		PeriodStart:       row.PeriodStart,
		PeriodEnd:         row.PeriodEnd,
		OpeningBalance:    row.OpeningBalance,
		ClosingBalance:    row.ClosingBalance,
		AddedAt:           row.AddedAt,
	}
	if row.Metadata.Valid && row.Metadata.StringVal != "" {
		var meta domain.AnalysisMetadata
		if err := json.Unmarshal([]byte(row.Metadata.StringVal), &meta); err != nil {
			return domain.GroupMember{}, fmt.Errorf("unmarshal member metadata: %w", err)
		}
		member.Metadata = &meta
	}
	return member, nil
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullFloat(f *float64) bigquery.NullFloat64 {
	if f == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *f, Valid: true}
}

func nullTimestamp(t *time.Time) bigquery.NullTimestamp {
	if t == nil {
		return bigquery.NullTimestamp{}
	}
	return bigquery.NullTimestamp{Timestamp: *t, Valid: true}
}

func timestampPtr(t bigquery.NullTimestamp) *time.Time {
	if !t.Valid {
		return nil
	}
	ts := t.Timestamp
	return &ts
}
