// Package main is the entry point for prompt-pruner.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/compresr/prompt-pruner/internal/compression"
	"github.com/compresr/prompt-pruner/internal/config"
	"github.com/compresr/prompt-pruner/internal/engine"
	"github.com/compresr/prompt-pruner/internal/gateway"
	"github.com/compresr/prompt-pruner/internal/monitoring"
	"github.com/compresr/prompt-pruner/internal/scoring"
	"github.com/compresr/prompt-pruner/internal/store"
	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

// Version is set at build time via ldflags.
var Version = "v0.1.0"

// scorerHTTPTimeout applies to the importance and similarity services.
const scorerHTTPTimeout = 30 * time.Second

// loadEnvFiles loads .env from standard locations.
func loadEnvFiles() {
	if homeDir, err := os.UserHomeDir(); err == nil {
		configEnv := filepath.Join(homeDir, ".config", "prompt-pruner", ".env")
		if _, err := os.Stat(configEnv); err == nil {
			_ = godotenv.Load(configEnv)
		}
	}
	// Local .env can override.
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve", "start":
			os.Exit(runServe(os.Args[2:]))
		case "version", "-v", "--version":
			fmt.Printf("prompt-pruner %s\n", Version)
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}
	os.Exit(runServe(os.Args[1:]))
}

// resolveConfig returns the raw config and where it came from.
// Order: --config flag, user config dir, ./configs, embedded default.
func resolveConfig(userConfig string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	var searchPaths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "prompt-pruner", "config.yaml"))
	}
	searchPaths = append(searchPaths, filepath.Join("configs", "config.yaml"))

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	data, err := getEmbeddedConfig(defaultConfigName)
	if err != nil {
		return nil, "", fmt.Errorf("no config file found. Specify --config path")
	}
	return data, "(embedded) " + defaultConfigName + ".yaml", nil
}

// runServe starts the HTTP server and returns the process exit code.
func runServe(args []string) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	data, source, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.LoadFromBytes(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", source, err)
		return 1
	}
	if *debug {
		cfg.Monitoring.LogLevel = "debug"
	}

	logger := monitoring.Global(monitoring.LoggerConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	})
	log.Info().Str("version", Version).Str("config", source).Msg("prompt-pruner starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer app.close()

	errCh := make(chan error, 1)
	go func() { errCh <- app.gateway.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("gateway error")
			return 1
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		if err := app.gateway.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("gateway shutdown error")
		}
		<-errCh
	}

	log.Info().Msg("prompt-pruner stopped")
	return 0
}

// app holds everything that needs closing on shutdown.
type app struct {
	gateway *gateway.Gateway
	store   store.Store
	tracker *monitoring.Tracker
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("store close error")
	}
	_ = a.tracker.Close()
}

// build wires the config into a ready gateway.
func build(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) (*app, error) {
	runs, err := store.Open(ctx, store.Options{Type: cfg.Store.Type, TTL: cfg.Store.TTL, Path: cfg.Store.Path})
	if err != nil {
		return nil, err
	}

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:              cfg.Monitoring.TelemetryEnabled,
		LogPath:              cfg.Monitoring.TelemetryPath,
		LogToStdout:          cfg.Monitoring.LogToStdout,
		FailedRequestLogPath: cfg.Monitoring.FailedRequestLogPath,
	})
	if err != nil {
		_ = runs.Close()
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	a := &app{store: runs, tracker: tracker}
	eng, metrics, alerts, err := buildEngine(ctx, cfg, logger, runs, tracker)
	if err != nil {
		a.close()
		return nil, err
	}

	a.gateway = gateway.New(cfg, eng, gateway.Monitoring{
		Logger:  logger,
		Metrics: metrics,
		Tracker: tracker,
		Alerts:  alerts,
	})
	return a, nil
}

func buildEngine(ctx context.Context, cfg *config.Config, logger *monitoring.Logger, runs store.Store, tracker *monitoring.Tracker) (*engine.Engine, *monitoring.Metrics, *monitoring.AlertManager, error) {
	client := &http.Client{Timeout: scorerHTTPTimeout}

	importance, err := scoring.NewImportanceScorer(cfg.Scoring, client)
	if err != nil {
		return nil, nil, nil, err
	}
	similarity, err := scoring.NewSimilarityScorer(cfg.Scoring, client)
	if err != nil {
		return nil, nil, nil, err
	}
	generator, err := scoring.NewGenerator(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	counter, err := tokenizer.NewCounter(cfg.Scoring.TokenEncoding)
	if err != nil {
		// tiktoken fetches encodings on first use; offline hosts fall back to an estimate.
		log.Warn().Err(err).Msg("token encoding unavailable, estimating token counts")
		counter = tokenizer.NewEstimator(4)
	}
	log.Info().Bool("exact_token_counts", counter.Exact()).Msg("token counter ready")

	var metrics *monitoring.Metrics
	if cfg.Monitoring.MetricsEnabled {
		metrics = monitoring.NewMetrics()
	}
	alerts := monitoring.NewAlertManager(logger, monitoring.AlertConfig{
		HighLatencyThreshold: cfg.Monitoring.HighLatencyThreshold,
	})

	eng, err := engine.New(engine.Options{
		Analyzer: compression.AnalyzerConfig{
			MaxPhraseLen:  cfg.Analyzer.MaxPhraseLen,
			MaxCandidates: cfg.Analyzer.MaxCandidates,
			DisplayOrder:  compression.Order(cfg.Analyzer.DisplayOrder),
		},
		Pruner:        compression.PrunerConfig{MaxSimilarityChecks: cfg.Pruner.MaxSimilarityChecks},
		RecordContent: cfg.Monitoring.RecordContent,
	}, engine.Deps{
		Importance: importance,
		Similarity: similarity,
		Generator:  generator,
		Store:      runs,
		Counter:    counter,
		Metrics:    metrics,
		Tracker:    tracker,
		Alerts:     alerts,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return eng, metrics, alerts, nil
}

func printHelp() {
	fmt.Println("prompt-pruner - prompt compression by phrase and word pruning")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  prompt-pruner [serve] [--config FILE] [--debug]")
	fmt.Println("  prompt-pruner version")
	fmt.Println("  prompt-pruner help")
	fmt.Println()
	fmt.Println("Config is read from --config, then ~/.config/prompt-pruner/config.yaml,")
	fmt.Println("then ./configs/config.yaml, then the built-in default.")
	fmt.Println()
	fmt.Println("Endpoints:")
	fmt.Println("  POST /api/analyze  /api/prune  /api/hybrid  /api/generate  /api/validate  /api/compare  /api/sections")
	fmt.Println("  GET  /api/prune/stream (websocket)   GET|DELETE /api/runs/{id}")
	fmt.Println("  GET  /health  /metrics")
}
