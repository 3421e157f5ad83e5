// Package pipeline drives one analysis job through parsing, the
// analytic stages, and persistence. The orchestrator is stateless
// between attempts: re-running a job from scratch is safe and never
// double-inserts transactions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/finsight/statement-pipeline/internal/analysis"
	"github.com/finsight/statement-pipeline/internal/domain"
	"github.com/finsight/statement-pipeline/internal/jobs"
	"github.com/finsight/statement-pipeline/internal/notify"
	"github.com/finsight/statement-pipeline/internal/parsing"
)

// ErrEmptyExtraction is returned when a content-bearing document yields
// zero transactions; this signals a parsing defect, not a valid result.
var ErrEmptyExtraction = errors.New("EMPTY_EXTRACTION: no transactions extracted from document")

// TransactionStore persists parsed transactions. ReplaceTransactions
// must be idempotent under retry: any rows previously inserted for the
// job are removed before the new batch lands.
type TransactionStore interface {
	ReplaceTransactions(ctx context.Context, jobID string, txs []domain.Transaction) error
}

// FileFetcher resolves a job's SourceURI into raw bytes.
type FileFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Checkpoint progress percentages. Each value is persisted before the
// next stage begins so pollers observe meaningful incremental progress.
const (
	progressParsed      = 20
	progressCategorized = 30
	progressSummarized  = 40
	progressRiskScored  = 60
	progressScored      = 90
	progressPersisted   = 100
)

// Orchestrator owns the per-job pipeline state machine.
type Orchestrator struct {
	registry *parsing.Registry
	store    jobs.Store
	txStore  TransactionStore
	fetcher  FileFetcher
	notifier notify.Notifier
	log      zerolog.Logger
}

// New creates an orchestrator. fetcher and notifier may be nil: without
// a fetcher only inline file data is supported, and without a notifier
// completion events are dropped.
func New(registry *parsing.Registry, store jobs.Store, txStore TransactionStore, fetcher FileFetcher, notifier notify.Notifier, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		store:    store,
		txStore:  txStore,
		fetcher:  fetcher,
		notifier: notifier,
		log:      log,
	}
}

// Run executes the full pipeline for one job. Stage errors abort the
// remaining stages and are returned to the queue layer, which owns the
// retry policy. Data errors are marked permanent so they fail without
// consuming retry attempts.
func (o *Orchestrator) Run(ctx context.Context, job *jobs.AnalysisJob) error {
	started := time.Now()

	data, err := o.loadBytes(ctx, job)
	if err != nil {
		return &jobs.StageError{Stage: "fetch", Err: err}
	}

	txs, err := o.parse(ctx, job, data)
	if err != nil {
		return err
	}
	if err := o.checkpoint(ctx, job.JobID, progressParsed); err != nil {
		return err
	}

	// Stamp ownership before anything downstream sees the records.
	for i := range txs {
		txs[i].JobID = job.JobID
	}

	bankDetails := parsing.DetectSource(string(data))

	meta := &domain.AnalysisMetadata{
		BankDetails:      bankDetails,
		TransactionCount: len(txs),
	}

	// Categorization first: summary and risk consume the labels.
	txs = analysis.Categorize(txs)
	if err := o.checkpoint(ctx, job.JobID, progressCategorized); err != nil {
		return err
	}

	meta.Summary = analysis.Summarize(txs)
	if err := o.checkpoint(ctx, job.JobID, progressSummarized); err != nil {
		return err
	}

	meta.Risk = analysis.AssessRisk(txs, meta.Summary)
	if err := o.checkpoint(ctx, job.JobID, progressRiskScored); err != nil {
		return err
	}

	// The remaining stages are pure and mutually independent, so they
	// fan out and fan back in before the persistence checkpoint.
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { meta.Fraud = analysis.DetectFraud(txs); return nil })
	g.Go(func() error { meta.FOIR = analysis.CalculateFOIR(txs); return nil })
	g.Go(func() error { meta.Income = analysis.VerifyIncome(txs); return nil })
	g.Go(func() error { meta.Behavior = analysis.ScoreBehavior(txs); return nil })
	g.Go(func() error { meta.Monthly = analysis.SummarizeMonthly(txs); return nil })
	if err := g.Wait(); err != nil {
		return &jobs.StageError{Stage: "score", Err: err}
	}
	if err := o.checkpoint(ctx, job.JobID, progressScored); err != nil {
		return err
	}

	meta.ProcessingTime = time.Since(started)

	// Persist transactions first, the completed transition last: a
	// reader that sees transactions for a job still in processing must
	// treat the job as incomplete.
	if err := o.txStore.ReplaceTransactions(ctx, job.JobID, txs); err != nil {
		return &jobs.StageError{Stage: "persist", Err: err}
	}
	if err := o.complete(ctx, job.JobID, meta); err != nil {
		return &jobs.StageError{Stage: "persist", Err: err}
	}

	o.log.Info().
		Str("job_id", job.JobID).
		Int("transactions", len(txs)).
		Dur("elapsed", meta.ProcessingTime).
		Msg("Pipeline completed")

	o.dispatchNotifications(job, meta)
	return nil
}

func (o *Orchestrator) loadBytes(ctx context.Context, job *jobs.AnalysisJob) ([]byte, error) {
	if len(job.FileData) > 0 {
		return job.FileData, nil
	}
	if job.SourceURI == "" {
		return nil, jobs.Permanent(fmt.Errorf("job has neither inline data nor a source URI"))
	}
	if o.fetcher == nil {
		return nil, fmt.Errorf("no file fetcher configured for URI %s", job.SourceURI)
	}
	return o.fetcher.Fetch(ctx, job.SourceURI)
}

func (o *Orchestrator) parse(ctx context.Context, job *jobs.AnalysisJob, data []byte) ([]domain.Transaction, error) {
	adapter, err := o.registry.Lookup(job.FileType)
	if err != nil {
		return nil, jobs.Permanent(&jobs.StageError{Stage: "parse", Err: err})
	}

	password := job.Password
	job.Password = "" // never retained after use

	txs, err := adapter.Parse(ctx, data, password)
	if err != nil {
		var pe *parsing.ParseError
		if errors.As(err, &pe) {
			if pe.Kind == parsing.KindEmpty {
				err = ErrEmptyExtraction
			}
			// Retrying cannot fix a data problem.
			return nil, jobs.Permanent(&jobs.StageError{Stage: "parse", Err: err})
		}
		return nil, &jobs.StageError{Stage: "parse", Err: err}
	}
	if len(txs) == 0 {
		return nil, jobs.Permanent(&jobs.StageError{Stage: "parse", Err: ErrEmptyExtraction})
	}

	for i := range txs {
		if err := txs[i].Validate(); err != nil {
			return nil, jobs.Permanent(&jobs.StageError{Stage: "parse", Err: err})
		}
	}
	return txs, nil
}

// checkpoint persists progress before the next stage begins. The write
// doubles as a heartbeat.
func (o *Orchestrator) checkpoint(ctx context.Context, jobID string, progress int) error {
	now := time.Now()
	_, err := o.store.UpdateJob(ctx, jobID, -1, jobs.JobPatch{
		Progress:    &progress,
		HeartbeatAt: &now,
	})
	if err != nil {
		return fmt.Errorf("checkpoint at %d%%: %w", progress, err)
	}
	return nil
}

// complete writes metadata atomically with the completed transition.
func (o *Orchestrator) complete(ctx context.Context, jobID string, meta *domain.AnalysisMetadata) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	completed := jobs.StatusCompleted
	progress := progressPersisted
	now := time.Now()
	_, err = o.store.UpdateJob(ctx, jobID, job.Version, jobs.JobPatch{
		Status:      &completed,
		Progress:    &progress,
		CompletedAt: &now,
		Metadata:    meta,
	})
	return err
}

// dispatchNotifications delivers completion and risk-alert events as a
// detached, best-effort side effect. Failures are logged and never
// alter the job's terminal status.
func (o *Orchestrator) dispatchNotifications(job *jobs.AnalysisJob, meta *domain.AnalysisMetadata) {
	if o.notifier == nil {
		return
	}

	events := []notify.Event{{
		Type:       notify.EventReportComplete,
		JobID:      job.JobID,
		UserID:     job.UserID,
		ReportName: job.ReportName,
	}}
	for _, alert := range meta.Fraud.Alerts {
		if alert.Severity == "medium" || alert.Severity == "high" {
			events = append(events, notify.Event{
				Type:     notify.EventRiskAlert,
				JobID:    job.JobID,
				UserID:   job.UserID,
				Severity: alert.Severity,
				Detail:   fmt.Sprintf("%s: %s", alert.Type, alert.Detail),
			})
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, ev := range events {
			if err := o.notifier.Notify(ctx, ev); err != nil {
				o.log.Warn().Err(err).Str("job_id", job.JobID).Str("event", string(ev.Type)).Msg("Notification delivery failed")
			}
		}
	}()
}
