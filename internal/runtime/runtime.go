package runtime

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vinodismyname/kpidash/config"
)

// Limits captures the concurrency, size and timeout guardrails of the server.
type Limits struct {
	// Concurrency caps
	MaxConcurrentRequests int `json:"max_concurrent_requests"`
	MaxOpenDatasets       int `json:"max_open_datasets"`

	// Upload and row bounds
	MaxFileBytes    int64 `json:"max_file_bytes"`
	MaxRecords      int   `json:"max_records"`
	PreviewRowLimit int   `json:"preview_row_limit"`

	// Timeouts
	OperationTimeout      time.Duration `json:"operation_timeout"`
	AcquireRequestTimeout time.Duration `json:"acquire_request_timeout"`
	DatasetIdleTTL        time.Duration `json:"dataset_idle_ttl"`
}

// NewLimits initializes Limits with config defaults where values are unset.
func NewLimits(maxConcurrentRequests, maxOpenDatasets int) Limits {
	if maxConcurrentRequests <= 0 {
		maxConcurrentRequests = config.DefaultMaxConcurrentRequests
	}
	if maxOpenDatasets <= 0 {
		maxOpenDatasets = config.DefaultMaxOpenDatasets
	}

	return Limits{
		MaxConcurrentRequests: maxConcurrentRequests,
		MaxOpenDatasets:       maxOpenDatasets,
		MaxFileBytes:          config.DefaultMaxFileBytes,
		MaxRecords:            config.DefaultMaxRecords,
		PreviewRowLimit:       config.DefaultPreviewRowLimit,
		OperationTimeout:      config.DefaultOperationTimeout,
		AcquireRequestTimeout: config.DefaultAcquireRequestTimeout,
		DatasetIdleTTL:        config.DefaultDatasetIdleTTL,
	}
}

// LimitsFromConfig converts loaded configuration into runtime Limits.
func LimitsFromConfig(c config.Limits) Limits {
	l := NewLimits(c.MaxConcurrentRequests, c.MaxOpenDatasets)
	if c.MaxFileBytes > 0 {
		l.MaxFileBytes = c.MaxFileBytes
	}
	if c.MaxRecords > 0 {
		l.MaxRecords = c.MaxRecords
	}
	if c.PreviewRowLimit > 0 {
		l.PreviewRowLimit = c.PreviewRowLimit
	}
	// Zero timeouts are meaningful (disabled) and copied as-is.
	l.OperationTimeout = c.OperationTimeout
	l.AcquireRequestTimeout = c.AcquireRequestTimeout
	if c.DatasetIdleTTL > 0 {
		l.DatasetIdleTTL = c.DatasetIdleTTL
	}
	return l
}

// ErrDatasetCapacity indicates every loaded-dataset slot is in use.
var ErrDatasetCapacity = errors.New("runtime: open dataset limit reached")

// Controller coordinates the request and dataset semaphores.
type Controller struct {
	limits           Limits
	requestSemaphore *semaphore.Weighted
	datasetSemaphore *semaphore.Weighted
}

// NewController constructs a Controller backed by weighted semaphores.
func NewController(limits Limits) *Controller {
	return &Controller{
		limits:           limits,
		requestSemaphore: semaphore.NewWeighted(int64(limits.MaxConcurrentRequests)),
		datasetSemaphore: semaphore.NewWeighted(int64(limits.MaxOpenDatasets)),
	}
}

// AcquireRequest reserves capacity for an incoming tool call.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	return c.requestSemaphore.Acquire(ctx, 1)
}

// ReleaseRequest frees previously-acquired request capacity.
func (c *Controller) ReleaseRequest() {
	c.requestSemaphore.Release(1)
}

// AcquireDataset reserves a loaded-dataset slot. It fails fast when the
// server is full rather than waiting for an idle dataset to expire.
func (c *Controller) AcquireDataset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.datasetSemaphore.TryAcquire(1) {
		return ErrDatasetCapacity
	}
	return nil
}

// ReleaseDataset frees a loaded-dataset slot.
func (c *Controller) ReleaseDataset() {
	c.datasetSemaphore.Release(1)
}

// LimitsSnapshot exposes the configured guardrails for telemetry and discovery.
func (c *Controller) LimitsSnapshot() Limits {
	return c.limits
}
