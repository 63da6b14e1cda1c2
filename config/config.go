package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Values are layered: defaults, then the
// optional YAML file, then the process environment (after .env is loaded).
type Config struct {
	AllowedDirs      []string `yaml:"allowed_dirs"`
	LogLevel         string   `yaml:"log_level" validate:"oneof=trace debug info warn error disabled"`
	ExposeRawRecords bool     `yaml:"expose_raw_records"`

	// SummaryModel selects the tokenizer and context window used to bound
	// the text summaries of tool results.
	SummaryModel string `yaml:"summary_model" validate:"required"`
	Limits       Limits `yaml:"limits"`
}

// Limits mirrors the runtime guardrails in configuration form.
type Limits struct {
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests" validate:"gte=1"`
	MaxOpenDatasets       int           `yaml:"max_open_datasets" validate:"gte=1"`
	MaxFileBytes          int64         `yaml:"max_file_bytes" validate:"gte=1"`
	MaxRecords            int           `yaml:"max_records" validate:"gte=1"`
	PreviewRowLimit       int           `yaml:"preview_row_limit" validate:"gte=1,lte=1000"`
	OperationTimeout      time.Duration `yaml:"operation_timeout" validate:"gte=0"`
	AcquireRequestTimeout time.Duration `yaml:"acquire_request_timeout" validate:"gte=0"`
	DatasetIdleTTL        time.Duration `yaml:"dataset_idle_ttl" validate:"gt=0"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		LogLevel:     DefaultLogLevel,
		SummaryModel: DefaultSummaryModel,
		Limits: Limits{
			MaxConcurrentRequests: DefaultMaxConcurrentRequests,
			MaxOpenDatasets:       DefaultMaxOpenDatasets,
			MaxFileBytes:          DefaultMaxFileBytes,
			MaxRecords:            DefaultMaxRecords,
			PreviewRowLimit:       DefaultPreviewRowLimit,
			OperationTimeout:      DefaultOperationTimeout,
			AcquireRequestTimeout: DefaultAcquireRequestTimeout,
			DatasetIdleTTL:        DefaultDatasetIdleTTL,
		},
	}
}

// Load builds the configuration. path may be empty to skip the YAML layer.
// A missing .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	// godotenv never overrides variables already set in the environment.
	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", DefaultEnvFile, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := lookup("ALLOWED_DIRS"); ok {
		cfg.AllowedDirs = filepath.SplitList(v)
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := lookup("EXPOSE_RAW_RECORDS"); ok {
		cfg.ExposeRawRecords = parseBool(v)
	}
	if v, ok := lookup("SUMMARY_MODEL"); ok {
		cfg.SummaryModel = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_CONCURRENT_REQUESTS", &cfg.Limits.MaxConcurrentRequests},
		{"MAX_OPEN_DATASETS", &cfg.Limits.MaxOpenDatasets},
		{"MAX_RECORDS", &cfg.Limits.MaxRecords},
		{"PREVIEW_ROW_LIMIT", &cfg.Limits.PreviewRowLimit},
	}
	for _, e := range ints {
		if v, ok := lookup(e.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, e.key, err)
			}
			*e.dst = n
		}
	}
	if v, ok := lookup("MAX_FILE_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %sMAX_FILE_BYTES: %w", EnvPrefix, err)
		}
		cfg.Limits.MaxFileBytes = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"OPERATION_TIMEOUT", &cfg.Limits.OperationTimeout},
		{"ACQUIRE_REQUEST_TIMEOUT", &cfg.Limits.AcquireRequestTimeout},
		{"DATASET_IDLE_TTL", &cfg.Limits.DatasetIdleTTL},
	}
	for _, e := range durations {
		if v, ok := lookup(e.key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, e.key, err)
			}
			*e.dst = d
		}
	}
	return nil
}

// lookup reads KPIDASH_<key>, treating blank values as unset.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
