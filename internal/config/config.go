// Package config reads service configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the binaries need to construct their
// dependencies.
type Config struct {
	// Port is the HTTP listen port for the API binary.
	Port string

	// BigQueryProject and BigQueryDataset locate the durable store.
	// When BigQueryProject is empty, both binaries fall back to the
	// in-memory store.
	BigQueryProject string
	BigQueryDataset string

	// GCSBucket receives uploaded statement documents.
	GCSBucket string

	// GeminiModel overrides the default PDF extraction model.
	GeminiModel string

	// NotionToken and NotionDatabaseID enable the Notion notifier.
	NotionToken      string
	NotionDatabaseID string

	// Worker pool tuning.
	Workers     int
	MaxAttempts int
	JobTimeout  time.Duration
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             envOr("PORT", "8080"),
		BigQueryProject:  os.Getenv("BIGQUERY_PROJECT"),
		BigQueryDataset:  envOr("BIGQUERY_DATASET", "statement_pipeline"),
		GCSBucket:        os.Getenv("GCS_BUCKET"),
		GeminiModel:      os.Getenv("GEMINI_MODEL"),
		NotionToken:      os.Getenv("NOTION_TOKEN"),
		NotionDatabaseID: os.Getenv("NOTION_DATABASE_ID"),
		Workers:          5,
		MaxAttempts:      3,
		JobTimeout:       10 * time.Minute,
	}

	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("WORKERS must be a positive integer, got %q", v)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("MAX_ATTEMPTS must be a positive integer, got %q", v)
		}
		cfg.MaxAttempts = n
	}
	if v := os.Getenv("JOB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("JOB_TIMEOUT must be a positive duration, got %q", v)
		}
		cfg.JobTimeout = d
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
