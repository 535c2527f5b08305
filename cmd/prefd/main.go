// Prefd is the preference extraction and reconciliation daemon.
//
// This binary starts the prefd HTTP server with full pipeline initialization:
// profile store, candidate extractor, and the reconciliation pipeline.
//
// Configuration is loaded from an optional YAML file plus PREFD_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults (memory store, heuristic extraction)
//	prefd
//
//	# Start from a config file
//	prefd -config /etc/prefd/config.yaml
//
//	# Configure via environment
//	PREFD_SERVER_PORT=9090 PREFD_STORE_BACKEND=nats prefd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prefd/internal/config"
	"github.com/fyrsmithlabs/prefd/internal/extraction"
	"github.com/fyrsmithlabs/prefd/internal/http"
	"github.com/fyrsmithlabs/prefd/internal/logging"
	"github.com/fyrsmithlabs/prefd/internal/pipeline"
	"github.com/fyrsmithlabs/prefd/internal/preference"
	"github.com/fyrsmithlabs/prefd/internal/store"
	"github.com/fyrsmithlabs/prefd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  prefd            Start the prefd daemon\n")
			fmt.Fprintf(os.Stderr, "  prefd version    Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("prefd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the prefd server and blocks until the context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger and telemetry
//  3. Build the profile store (memory or NATS JetStream)
//  4. Build the candidate extractor
//  5. Wire the reconciliation pipeline
//  6. Start the HTTP server
//  7. Graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logging.Sync(logger)

	logger.Info("Starting prefd",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Address()),
		zap.String("store", cfg.Store.Backend),
		zap.String("extraction", cfg.Extraction.Provider),
		zap.Duration("shutdown_timeout", time.Duration(cfg.Server.ShutdownTimeout)))

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRate:  cfg.Telemetry.SampleRate,
		Insecure:    cfg.Telemetry.Insecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	st, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closeStore()

	ex, err := extraction.NewExtractor(extractionConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize extractor: %w", err)
	}

	p, err := pipeline.New(st, ex, pipelineOptions(cfg), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	srv, err := http.NewServer(p, st, logger, &http.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		MaxWindowTurns: cfg.Extraction.MaxWindowTurns,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s/health", cfg.Server.Address())),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// buildStore creates the configured profile store and returns a cleanup
// function that releases its resources.
func buildStore(cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil

	case "nats":
		nc, err := nats.Connect(cfg.Store.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.Store.NATS.URL, err)
		}

		logger.Info("Connected to NATS",
			zap.String("url", cfg.Store.NATS.URL),
			zap.String("bucket", cfg.Store.NATS.Bucket))

		st, err := store.NewNATSStore(nc, cfg.Store.NATS.Bucket, logger)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return st, nc.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// extractionConfig maps daemon configuration onto the extraction package's
// provider config.
func extractionConfig(cfg *config.Config) extraction.ExtractionConfig {
	out := extraction.ExtractionConfig{
		Enabled:        cfg.Extraction.Provider != "disabled",
		Provider:       cfg.Extraction.Provider,
		MinConfidence:  cfg.Extraction.MinConfidence,
		MaxWindowTurns: cfg.Extraction.MaxWindowTurns,
		Patterns:       extraction.DefaultPatterns(),
	}

	if len(cfg.Extraction.Providers) > 0 {
		out.Providers = make(map[string]extraction.Config, len(cfg.Extraction.Providers))
		for name, pc := range cfg.Extraction.Providers {
			out.Providers[name] = extraction.Config{
				Model:     pc.Model,
				APIKey:    pc.APIKey.Value(),
				BaseURL:   pc.BaseURL,
				MaxTokens: pc.MaxTokens,
				Timeout:   int(time.Duration(pc.Timeout).Seconds()),
			}
		}
	}
	return out
}

// pipelineOptions maps daemon configuration onto pipeline options.
func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		MaxExtractRetries: cfg.Pipeline.MaxExtractRetries,
		ExtractBackoff:    time.Duration(cfg.Pipeline.ExtractBackoff),
		MaxSaveRetries:    cfg.Pipeline.MaxSaveRetries,
		MaxWindowTurns:    cfg.Extraction.MaxWindowTurns,
		Resolve: preference.Options{
			OverrideThreshold: cfg.Pipeline.OverrideThreshold,
			MaxHistory:        cfg.Pipeline.MaxHistory,
		},
	}
}
