package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/vinodismyname/kpidash/config"
	"github.com/vinodismyname/kpidash/internal/datasets"
	"github.com/vinodismyname/kpidash/internal/ingest"
	"github.com/vinodismyname/kpidash/internal/registry"
	"github.com/vinodismyname/kpidash/internal/runtime"
	"github.com/vinodismyname/kpidash/internal/security"
	"github.com/vinodismyname/kpidash/internal/telemetry"
	"github.com/vinodismyname/kpidash/pkg/version"
)

func main() {
	os.Exit(run())
}

// run wires the server and returns the process exit code, so deferred
// shutdown always executes.
func run() int {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var (
		useStdio        bool
		configPath      string
		shutdownTimeout time.Duration
	)

	flag.BoolVar(&useStdio, "stdio", false, "Run server over stdio transport")
	flag.StringVar(&configPath, "config", "", "Optional YAML configuration file")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	// stdout carries the stdio protocol; logs go to stderr.
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zlog.Output(os.Stderr).Level(level).With().Str("service", "kpidash-server").Logger()
	ctx := logger.WithContext(context.Background())

	secMgr, err := security.FromConfig(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("security: failed to initialize allow-list")
		fmt.Fprintln(os.Stderr, "invalid allowed_dirs; set KPIDASH_ALLOWED_DIRS or allowed_dirs in the config file")
		return 1
	}
	if err := secMgr.ValidateConfig(); err != nil {
		logger.Warn().Err(err).Msg("security: path loading disabled; only content_base64 uploads are accepted")
	} else {
		logger.Info().Strs("allowed_dirs", secMgr.AllowedDirectories()).Msg("security allow-list configured")
	}

	runtimeController := runtime.NewController(runtime.LimitsFromConfig(cfg.Limits))
	limits := runtimeController.LimitsSnapshot()
	runtimeMW := runtime.NewMiddleware(runtimeController, logger)

	datasetMgr := datasets.NewManager(limits.DatasetIdleTTL, config.DefaultDatasetCleanupPeriod,
		datasets.WithGate(runtimeController),
		datasets.WithPathValidator(secMgr),
		datasets.WithIngestOptions(ingest.Options{MaxBytes: limits.MaxFileBytes, MaxRecords: limits.MaxRecords}),
	)
	datasetMgr.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := datasetMgr.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("dataset manager shutdown incomplete")
		}
	}()

	hooks := telemetry.NewHooks(logger)
	hooks.OnSessionEnd(datasetMgr.RemoveSlot)

	toolRegistry := registry.New()
	rawFilter := registry.NewRawRecordsFilter(cfg.ExposeRawRecords)

	srv := server.NewMCPServer(
		"KPI Dashboard Server",
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks.Server()),
		server.WithToolHandlerMiddleware(runtimeMW.ToolMiddleware),
		server.WithToolFilter(func(ctx context.Context, tools []mcp.Tool) []mcp.Tool { return rawFilter.FilterTools(ctx, tools) }),
	)

	summaryBudget := registry.NewSummaryBudget(cfg.SummaryModel, config.SummaryContextShare)
	registry.RegisterKPITools(srv, toolRegistry, registry.NewHandlers(datasetMgr, limits, rawFilter, summaryBudget))

	logger.Info().
		Ctx(ctx).
		Str("version", version.Version()).
		Int("max_concurrent_requests", limits.MaxConcurrentRequests).
		Int("max_open_datasets", limits.MaxOpenDatasets).
		Int64("max_file_bytes", limits.MaxFileBytes).
		Int("max_records", limits.MaxRecords).
		Dur("dataset_idle_ttl", limits.DatasetIdleTTL).
		Bool("expose_raw_records", cfg.ExposeRawRecords).
		Str("summary_model", cfg.SummaryModel).
		Int("summary_token_budget", summaryBudget.Tokens()).
		Bool("stdio", useStdio).
		Msg("server bootstrap configured")

	if !useStdio {
		fmt.Fprintln(os.Stderr, "no transport selected; use --stdio to run over stdio")
		return 2
	}

	// ServeStdio returns on SIGINT/SIGTERM or when stdin closes.
	if err := server.ServeStdio(srv); err != nil {
		// Use stderr for transport errors so clients don't misinterpret output.
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}
