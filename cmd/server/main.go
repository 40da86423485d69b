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

	"github.com/avatarlabs/speech-gateway/internal/config"
	"github.com/avatarlabs/speech-gateway/internal/llm"
	"github.com/avatarlabs/speech-gateway/internal/observability"
	"github.com/avatarlabs/speech-gateway/internal/synth"
	"github.com/avatarlabs/speech-gateway/internal/transport"
	"github.com/avatarlabs/speech-gateway/internal/voice"
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
		Int("sample_rate", cfg.TargetSampleRate).
		Int("frame_size", cfg.FrameSize).
		Bool("fallback_only", cfg.FallbackOnly).
		Str("log_level", cfg.LogLevel).
		Msg("Speech Gateway Service starting")

	// Voice catalog, loaded once at startup
	catalog, err := voice.LoadCatalog(cfg.VoiceCatalogPath, cfg.DefaultVoice, observability.WithComponent("voice"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load voice catalog")
	}

	target := synth.TargetFormat{
		SampleRate: cfg.TargetSampleRate,
		Channels:   cfg.TargetChannels,
	}

	// The local engine is the last line of defense; failing to build
	// it means no engine would remain when the network one degrades,
	// so refuse to start.
	local, err := synth.NewLocalEngine(synth.LocalEngineConfig{
		Command: cfg.FallbackCommand,
		Voice:   cfg.FallbackVoice,
		Rate:    cfg.FallbackRate,
		Target:  target,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Local synthesizer unavailable")
	}

	var primary synth.Engine
	if !cfg.FallbackOnly {
		primary = synth.NewEdgeEngine(synth.EdgeEngineConfig{
			Endpoint:   cfg.PrimaryEndpoint,
			NativeRate: cfg.PrimarySampleRate,
			Timeout:    time.Duration(cfg.PrimaryTimeout) * time.Second,
			Target:     target,
		}, catalog, logger)
	}

	synthesizer, err := synth.NewResilient(primary, local, synth.ResilientConfig{
		FallbackOnly: cfg.FallbackOnly,
		Target:       target,
	}, observability.WithComponent("synth"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build synthesizer")
	}

	// LLM client is optional: without it the gateway still speaks
	// literal text via say.
	var streamer transport.TurnStreamer
	llmConfigured := cfg.LLMAPIKey != ""
	if llmConfigured {
		llmClient, err := llm.NewClient(llm.Config{
			APIKey:       cfg.LLMAPIKey,
			BaseURL:      cfg.LLMBaseURL,
			Model:        cfg.LLMModel,
			SystemPrompt: cfg.LLMSystemPrompt,
		}, observability.WithComponent("llm"))
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to build LLM client")
		}
		streamer = llmClient
	} else {
		logger.Warn().Msg("LLM_API_KEY unset; ask messages will be rejected")
	}

	// Create HTTP server
	mux := http.NewServeMux()

	mux.HandleFunc("/streams/avatar", transport.HandleAvatarWS(cfg, synthesizer, catalog, streamer))

	mux.HandleFunc("/health", observability.HealthCheckHandler())

	checks := map[string]observability.HealthCheckFunc{
		"local_engine": func(ctx context.Context) (bool, error) {
			return local != nil, nil
		},
		"voice_catalog": func(ctx context.Context) (bool, error) {
			return catalog.Has(catalog.Default()), nil
		},
	}
	if llmConfigured {
		checks["llm"] = func(ctx context.Context) (bool, error) {
			return streamer != nil, nil
		}
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

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
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/streams/avatar", cfg.Port)).
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
