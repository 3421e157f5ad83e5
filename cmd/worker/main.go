package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"

	"github.com/finsight/statement-pipeline/internal/config"
	"github.com/finsight/statement-pipeline/internal/gcs"
	infraBQ "github.com/finsight/statement-pipeline/internal/infra/bigquery"
	"github.com/finsight/statement-pipeline/internal/jobs"
	"github.com/finsight/statement-pipeline/internal/jobs/inmemory"
	"github.com/finsight/statement-pipeline/internal/logger"
	"github.com/finsight/statement-pipeline/internal/notify"
	"github.com/finsight/statement-pipeline/internal/parsing"
	"github.com/finsight/statement-pipeline/internal/pipeline"
)

// pollInterval is how often the worker drains newly pending jobs from
// the durable store.
const pollInterval = 5 * time.Second

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.BigQueryProject == "" {
		log.Fatal().Msg("BIGQUERY_PROJECT is required: the standalone worker drains jobs from the durable store")
	}

	ctx := context.Background()

	client, err := bq.NewClient(ctx, cfg.BigQueryProject)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()
	store := infraBQ.NewStore(client, cfg.BigQueryProject, cfg.BigQueryDataset)

	var fetcher pipeline.FileFetcher
	storageClient, err := gcs.NewClient(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Storage client unavailable, only inline uploads are supported")
	} else {
		defer storageClient.Close()
		fetcher = storageClient
	}

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if cfg.NotionToken != "" && cfg.NotionDatabaseID != "" {
		notifier = notify.Multi{
			notify.NewLogNotifier(log),
			notify.NewNotionNotifier(cfg.NotionToken, cfg.NotionDatabaseID),
		}
	}

	registry := parsing.NewRegistry()
	registry.Register("text/csv", parsing.NewCSVAdapter())
	registry.Register("application/pdf", parsing.NewGeminiPDFAdapter(cfg.GeminiModel))

	orchestrator := pipeline.New(registry, store, store, fetcher, notifier, log)

	queueCfg := inmemory.DefaultConfig()
	queueCfg.Workers = cfg.Workers
	queueCfg.MaxAttempts = cfg.MaxAttempts
	queueCfg.JobTimeout = cfg.JobTimeout
	queue := inmemory.NewQueue(queueCfg, store, log)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := queue.Start(workerCtx, orchestrator.Run); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	go pollPending(workerCtx, store, queue, log)

	log.Info().Int("workers", cfg.Workers).Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Worker stopped")
}

// pollPending drains pending jobs from the durable store into the local
// worker pool. Double-dispatch is safe: the claim's version check lets
// only one attempt proceed.
func pollPending(ctx context.Context, store jobs.Store, queue *inmemory.Queue, log zerolog.Logger) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pending, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.StatusPending})
		if err != nil {
			log.Error().Err(err).Msg("Failed to list pending jobs")
			continue
		}
		for _, job := range pending {
			if job.Attempts > 0 {
				// Retries are re-enqueued by the queue's own backoff timer.
				continue
			}
			if err := queue.Requeue(ctx, job.JobID); err != nil {
				log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to dispatch pending job")
			}
		}
	}
}
