package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/opsengine/internal/api"
	"github.com/p-blackswan/opsengine/internal/cache"
	"github.com/p-blackswan/opsengine/internal/collector"
	"github.com/p-blackswan/opsengine/internal/config"
	"github.com/p-blackswan/opsengine/internal/engine"
	"github.com/p-blackswan/opsengine/internal/event"
	"github.com/p-blackswan/opsengine/internal/goals"
	"github.com/p-blackswan/opsengine/internal/health"
	"github.com/p-blackswan/opsengine/internal/inference"
	"github.com/p-blackswan/opsengine/internal/metrics"
	"github.com/p-blackswan/opsengine/internal/models"
	"github.com/p-blackswan/opsengine/internal/notify"
	"github.com/p-blackswan/opsengine/internal/processor"
	"github.com/p-blackswan/opsengine/internal/prompt"
	"github.com/p-blackswan/opsengine/internal/suggest"
)

const version = "1.2.0"

func main() {
	// Setup structured logging
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
		Str("listen_addr", cfg.ListenAddr).
		Int("horizon_days", cfg.TimeHorizonDays).
		Bool("inference_enabled", cfg.InferenceEnabled()).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting ops engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Directory bootstrap. The processor refuses an empty user directory,
	// so a missing seed is fatal.
	var dir *models.StaticDirectory
	if cfg.DirectorySeedPath != "" {
		dir, err = models.LoadSeed(cfg.DirectorySeedPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load directory seed")
		}
	} else {
		dir = models.NewStaticDirectory()
	}

	// Snapshot cache: SQLite-backed when a path is configured, in-memory
	// otherwise.
	var kv cache.KV
	if cfg.CacheDBPath != "" {
		sq, sqErr := cache.NewSQLite(cfg.CacheDBPath, logger)
		if sqErr != nil {
			logger.Fatal().Err(sqErr).Str("path", cfg.CacheDBPath).Msg("failed to open cache database")
		}
		defer sq.Close()
		kv = sq
		logger.Info().Str("path", cfg.CacheDBPath).Msg("sqlite snapshot cache enabled")
	} else {
		kv = cache.NewMemory()
	}

	registry := event.NewRegistry(kv, cfg.SnapshotTTL(), logger)
	col := collector.New(dir, registry, logger)

	strategy := prompt.Strategy(cfg.PromptStrategy)
	builder, err := prompt.NewBuilder(strategy, cfg.PromptTokenBudget)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create prompt builder")
	}

	var svc inference.Service
	if cfg.InferenceEnabled() {
		svc = inference.NewClient(cfg.InferenceURL, cfg.InferenceAPIKey, logger,
			inference.WithModel(cfg.InferenceModel),
			inference.WithTimeout(cfg.InferenceTimeout),
		)
	} else {
		logger.Warn().Msg("no inference endpoint configured; analysis requests will fail")
		svc = inference.Unconfigured{}
	}

	proc, err := processor.New(ctx, dir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create processor")
	}

	store := suggest.NewStore(cfg.SuggestionSnapshotTTL(), logger)

	m := metrics.New()

	var notifier engine.Notifier
	if cfg.SlackEnabled() {
		notifier = notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannel, logger)
		logger.Info().Str("channel", cfg.SlackChannel).Msg("slack digests enabled")
	}

	weights := goals.Weights{
		CapacityUtilization:  cfg.GoalCapacityWeight,
		TimelineOptimization: cfg.GoalTimelineWeight,
		ProcessEfficiency:    cfg.GoalProcessWeight,
	}

	var presets goals.Presets
	if cfg.GoalPresetsPath != "" {
		presets, err = goals.LoadPresets(cfg.GoalPresetsPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.GoalPresetsPath).Msg("failed to load goal presets")
		}
		logger.Info().Int("presets", len(presets)).Msg("goal presets loaded")
	}

	eng := engine.New(col, builder, svc, proc, store, dir, engine.Options{
		Weights:          weights,
		InferenceTimeout: cfg.InferenceTimeout,
		DedupeWindow:     time.Duration(cfg.RecentWindowHours) * time.Hour,
		Notifier:         notifier,
		Metrics:          m,
	}, logger)

	checker := health.NewChecker(logger)
	checker.Register("directory", func(ctx context.Context) health.Status {
		users, err := dir.ListUsers(ctx)
		if err != nil || len(users) == 0 {
			return health.StatusDown
		}
		return health.StatusOK
	})
	checker.Register("cache", func(ctx context.Context) health.Status {
		if err := kv.Put(ctx, "health:probe", []byte("ok"), time.Minute); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	server := api.NewServer(api.ServerConfig{
		ListenAddr: cfg.ListenAddr,
		AuthConfig: api.AuthConfig{
			Mode:      cfg.AuthMode,
			APIKey:    cfg.APIKey,
			JWTSecret: cfg.JWTSecret,
		},
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		CORSOrigins:        cfg.CORSOrigins,
		Version:            version,
		DefaultHorizonDays: cfg.TimeHorizonDays,
	}, registry, col, eng, store, presets, checker, m, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api server error")
		}
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("api server shutdown error")
	}

	logger.Info().Msg("ops engine stopped")
}
