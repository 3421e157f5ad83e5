package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	bq "cloud.google.com/go/bigquery"

	"github.com/finsight/statement-pipeline/internal/api/handlers"
	"github.com/finsight/statement-pipeline/internal/api/middleware"
	"github.com/finsight/statement-pipeline/internal/config"
	"github.com/finsight/statement-pipeline/internal/consolidate"
	"github.com/finsight/statement-pipeline/internal/gcs"
	infraBQ "github.com/finsight/statement-pipeline/internal/infra/bigquery"
	"github.com/finsight/statement-pipeline/internal/jobs"
	"github.com/finsight/statement-pipeline/internal/jobs/inmemory"
	"github.com/finsight/statement-pipeline/internal/logger"
	"github.com/finsight/statement-pipeline/internal/notify"
	"github.com/finsight/statement-pipeline/internal/parsing"
	"github.com/finsight/statement-pipeline/internal/pipeline"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	// Stores: BigQuery when a project is configured, in-memory otherwise.
	var (
		jobStore   jobs.Store
		txStore    pipeline.TransactionStore
		groupStore consolidate.GroupStore
	)
	if cfg.BigQueryProject != "" {
		client, err := bq.NewClient(ctx, cfg.BigQueryProject)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		defer client.Close()

		store := infraBQ.NewStore(client, cfg.BigQueryProject, cfg.BigQueryDataset)
		jobStore = store
		txStore = store
		groupStore = store
	} else {
		log.Warn().Msg("No BIGQUERY_PROJECT configured, using in-memory stores")
		memStore := inmemory.NewStore()
		jobStore = memStore
		txStore = inmemory.NewTransactionStore()
		groupStore = inmemory.NewGroupStore(memStore)
	}

	var fetcher pipeline.FileFetcher
	if cfg.GCSBucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer client.Close()
		fetcher = client
	} else {
		log.Warn().Msg("No GCS_BUCKET configured, only inline uploads are supported")
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

	orchestrator := pipeline.New(registry, jobStore, txStore, fetcher, notifier, log)

	queueCfg := inmemory.DefaultConfig()
	queueCfg.Workers = cfg.Workers
	queueCfg.MaxAttempts = cfg.MaxAttempts
	queueCfg.JobTimeout = cfg.JobTimeout
	queue := inmemory.NewQueue(queueCfg, jobStore, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := queue.Start(workerCtx, orchestrator.Run); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	consolidator := consolidate.New(groupStore, consolidate.DefaultThresholds(), log)

	jobsHandler := handlers.NewJobsHandler(queue, jobStore, log)
	groupsHandler := handlers.NewGroupsHandler(groupStore, consolidator, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			jobsHandler.SubmitJob(w, r)
		case http.MethodGet:
			jobsHandler.ListJobs(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	})

	mux.HandleFunc("/api/queue/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobsHandler.QueueStats(w, r)
	})

	mux.HandleFunc("/api/groups", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		groupsHandler.CreateGroup(w, r)
	})

	mux.HandleFunc("/api/groups/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/groups/")
		switch {
		case strings.HasSuffix(rest, "/members") && r.Method == http.MethodPost:
			groupID := strings.TrimSuffix(rest, "/members")
			groupsHandler.AddMember(w, r, groupID)
		case strings.HasSuffix(rest, "/analysis") && r.Method == http.MethodGet:
			groupID := strings.TrimSuffix(rest, "/analysis")
			groupsHandler.GetAnalysis(w, r, groupID)
		case !strings.Contains(rest, "/") && rest != "" && r.Method == http.MethodGet:
			groupsHandler.GetGroup(w, r, rest)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server stopped")
}
