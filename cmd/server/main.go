package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ParcMagScene/Exo/internal/arbiter"
	"github.com/ParcMagScene/Exo/internal/config"
	"github.com/ParcMagScene/Exo/internal/homeauto"
	"github.com/ParcMagScene/Exo/internal/metrics"
	"github.com/ParcMagScene/Exo/internal/pipeline"
	"github.com/ParcMagScene/Exo/internal/reasoning"
	"github.com/ParcMagScene/Exo/internal/server"
	"github.com/ParcMagScene/Exo/internal/session"
	"github.com/ParcMagScene/Exo/internal/synthesis"
	"github.com/ParcMagScene/Exo/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "exo-core"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("min_utterance_duration", cfg.Audio.MinUtteranceDuration),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("reasoning_endpoint", cfg.Reasoning.Endpoint),
		slog.String("synthesis_endpoint", cfg.Synthesis.Endpoint),
		slog.Bool("homeauto_enabled", cfg.HomeAuto.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.New()
	logger.Info("Prometheus metrics initialized")

	// Initialize session registry
	registry := session.NewRegistry(logger, appMetrics,
		cfg.Audio.GetMinUtteranceDuration(), cfg.Audio.GetSessionIdleTimeout())
	logger.Info("Session registry initialized",
		slog.Duration("min_utterance", cfg.Audio.GetMinUtteranceDuration()),
		slog.Duration("idle_timeout", cfg.Audio.GetSessionIdleTimeout()),
	)

	// Initialize utterance arbiter
	arb := arbiter.New(logger, appMetrics, cfg.Server.QueueCapacity)

	// Initialize collaborator clients
	transcriber, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
		Language:      cfg.Transcription.Language,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	reasoner, err := reasoning.NewClient(reasoning.Config{
		Endpoint: cfg.Reasoning.Endpoint,
		APIKey:   cfg.Reasoning.APIKey,
		Timeout:  cfg.Reasoning.GetTimeoutDuration(),
		Model:    cfg.Reasoning.Model,
	})
	if err != nil {
		logger.Error("Failed to create reasoning client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	synthesizer, err := synthesis.NewClient(synthesis.Config{
		Endpoint:   cfg.Synthesis.Endpoint,
		APIKey:     cfg.Synthesis.APIKey,
		Timeout:    cfg.Synthesis.GetTimeoutDuration(),
		Voice:      cfg.Synthesis.Voice,
		SampleRate: cfg.Synthesis.SampleRate,
	})
	if err != nil {
		logger.Error("Failed to create synthesis client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	executor, err := homeauto.NewClient(homeauto.Config{
		Endpoint: cfg.HomeAuto.Endpoint,
		Token:    cfg.HomeAuto.Token,
		Timeout:  cfg.HomeAuto.GetTimeoutDuration(),
		Enabled:  cfg.HomeAuto.Enabled,
	}, logger)
	if err != nil {
		logger.Error("Failed to create home automation client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize connection table and pipeline orchestrator
	conns := server.NewConnTable(logger, appMetrics)

	orchestrator, err := pipeline.New(pipeline.Deps{
		Source:      arb,
		Transcriber: transcriber,
		Reasoner:    reasoner,
		Synthesizer: synthesizer,
		Executor:    executor,
		Dispatcher:  conns,
		Timeouts: pipeline.Timeouts{
			Transcription: cfg.Transcription.GetTimeoutDuration(),
			Reasoning:     cfg.Reasoning.GetTimeoutDuration(),
			Synthesis:     cfg.Synthesis.GetTimeoutDuration(),
			Actions:       cfg.HomeAuto.GetTimeoutDuration(),
		},
		MinConfidence: cfg.Transcription.MinConfidence,
		Logger:        logger,
		Metrics:       appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create pipeline orchestrator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize satellite WebSocket server
	wsServer := server.NewWSServer(server.WSServerConfig{
		Address:   cfg.Server.BindAddress,
		Port:      cfg.Server.Port,
		ReadLimit: cfg.Server.ReadLimit,
	}, logger, registry, arb, conns, appMetrics)

	// Initialize monitoring HTTP API server
	var httpServer *server.HTTPServer
	if cfg.Server.MonitoringPort > 0 {
		httpServer = server.NewHTTPServer(server.HTTPServerConfig{
			Address: cfg.Server.BindAddress,
			Port:    cfg.Server.MonitoringPort,
		}, logger, cfg, registry, arb, orchestrator, wsServer, conns, transcriber, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MonitoringPort)),
		)
	}

	// Start background routines
	go orchestrator.Run(ctx)
	go registry.RunSweeper(ctx, cfg.Audio.GetSweepInterval(), arb.Submit)

	// Start servers
	if err := wsServer.Start(); err != nil {
		logger.Error("Failed to start WebSocket server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("ws_address", fmt.Sprintf("%s:%d/ws", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
	defer shutdownCancel()

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop WebSocket server (drops satellite connections)
	if err := wsServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping WebSocket server", slog.String("error", err.Error()))
	}

	// Stop background routines and drain in-flight transcriptions
	cancel()
	if err := transcriber.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}

	// Get final statistics
	stats := wsServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("frames_received", stats.FramesReceived),
		slog.Uint64("frames_rejected", stats.FramesRejected),
		slog.Uint64("sessions_started", stats.SessionsStarted),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
