package config

import "time"

// Default runtime limits and guardrails for the KPI dashboard server. They are
// overridden by Load (YAML file, .env and KPIDASH_* variables) and referenced
// by internal/runtime and internal/datasets.

const (
	// Concurrency
	DefaultMaxConcurrentRequests = 10
	DefaultMaxOpenDatasets       = 8

	// Upload and row limits
	DefaultMaxFileBytes    = 32 << 20 // 32MB
	DefaultMaxRecords      = 200_000
	DefaultPreviewRowLimit = 50
	MaxPreviewRowLimit     = 1000
)

const (
	// Timeouts
	DefaultOperationTimeout      = 30 * time.Second
	DefaultAcquireRequestTimeout = 2 * time.Second

	// Dataset cache lifecycle
	DefaultDatasetIdleTTL       = 30 * time.Minute
	DefaultDatasetCleanupPeriod = time.Minute
)

const (
	// Text summaries get 1/SummaryContextShare of the model's context window.
	DefaultSummaryModel = "gpt-4"
	SummaryContextShare = 8
)

const (
	DefaultLogLevel = "info"
	DefaultEnvFile  = ".env"
	EnvPrefix       = "KPIDASH_"
)
