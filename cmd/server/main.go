package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicedform/whisper-gateway/internal/config"
	"github.com/voicedform/whisper-gateway/internal/engine"
	"github.com/voicedform/whisper-gateway/internal/observability"
	"github.com/voicedform/whisper-gateway/internal/session"
	"github.com/voicedform/whisper-gateway/internal/transport"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("engine_backend", cfg.EngineBackend).
		Int("max_sessions", cfg.MaxSessions).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Whisper Gateway Service starting")

	// Build the shared inference engine and the session manager
	eng, err := engine.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize inference engine")
	}
	manager := session.NewManager(cfg, eng)

	// Create HTTP server
	mux := http.NewServeMux()

	// Streaming transcription WebSocket endpoint
	mux.Handle("/ws", transport.NewHandler(manager, cfg.IdleTimeout))

	// Liveness endpoint, degraded once the gateway has sat at capacity
	mux.HandleFunc("/health", observability.HealthCheckHandler(manager, cfg.CapacityDegradedAfter))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout. Live sessions are finalized first so
	// every caller that sent audio still gets its terminal message.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := manager.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Session drain did not finish before deadline")
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
