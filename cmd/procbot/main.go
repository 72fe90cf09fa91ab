package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/procbot-io/procbot/internal/config"
	"github.com/procbot-io/procbot/internal/health"
	"github.com/procbot-io/procbot/internal/llm"
	"github.com/procbot-io/procbot/internal/metrics"
	"github.com/procbot-io/procbot/internal/project"
	"github.com/procbot-io/procbot/internal/server"
	"github.com/procbot-io/procbot/internal/team"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("http_port", cfg.HTTPPort).
		Str("storage_dir", cfg.StorageDir).
		Bool("chat_enabled", cfg.ChatEnabled()).
		Msg("starting procbot")

	storageDir, err := cfg.EnsureStorageDir()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage dir")
	}

	store, err := project.NewStore(storageDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open project store")
	}

	m := metrics.New()
	store.WithMetrics(m)
	manager := project.NewManager(store, m, logger)

	checker := health.NewChecker(logger)
	checker.Register("storage", health.StorageCheck(storageDir))

	// Agent team is optional: without an API key the workflow API still works,
	// only /api/v1/chat is disabled.
	var agents *team.Team
	if cfg.ChatEnabled() {
		teamCfg, err := team.LoadConfig(cfg.AgentConfigPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load agent config")
		}

		provider := llm.NewAnthropicProvider(cfg.AnthropicAPIKey,
			llm.WithModel(cfg.AnthropicModel),
			llm.WithMaxTokens(cfg.MaxTokens),
			llm.WithTemperature(cfg.Temperature),
			llm.WithLogger(logger),
		)
		agents = team.New(teamCfg, provider, m, logger)
		logger.Info().Str("model", provider.ModelID()).Msg("agent team initialized")
	} else {
		logger.Info().Msg("no API key configured, chat disabled, workflow API only")
	}

	srv := server.New(server.Config{
		ListenAddr:  fmt.Sprintf(":%d", cfg.HTTPPort),
		CORSOrigins: cfg.CORSOrigins,
	}, store, manager, agents, checker, m, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
		if err := srv.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server error")
		}
	}

	logger.Info().Msg("procbot stopped")
}
