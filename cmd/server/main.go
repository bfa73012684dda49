// Package main - точка входа HTTP-сервиса движка вовлечённости KursLab.
//
// Сервис принимает события завершения уроков от LMS, ведёт недельный
// прогресс и серии пользователей, выдаёт бейджи и начисляет очки.
// Читающая сторона отдаёт статистику серии через REST API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kurslab/kurslab-engagement/config"
	"github.com/kurslab/kurslab-engagement/internal/application/command"
	"github.com/kurslab/kurslab-engagement/internal/application/eventhandler"
	"github.com/kurslab/kurslab-engagement/internal/application/query"
	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/internal/domain/streak"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/messaging"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/observability"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/persistence/postgres"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/persistence/redis"
	httpiface "github.com/kurslab/kurslab-engagement/internal/interface/http"
	"github.com/kurslab/kurslab-engagement/pkg/circuitbreaker"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	}).With(logger.Component("engagement-api"))

	log.Info("starting KursLab engagement API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.MigrateOnStart {
		migrator := postgres.NewMigrator(conn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	store := postgres.NewStore(conn)
	reader := postgres.NewReaderRepo(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (опционально, кеш деградирует мягко)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		cache       *redis.Cache
		statsCache  query.StatsCache
		invalidator command.StatsInvalidator
		rateLimiter httpiface.RateLimiter
	)

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		cache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, cache disabled", logger.Err(err))
		} else {
			defer cache.Close()
			log.Info("Redis connection established")

			onBreaker := func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state change",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()))
			}

			if cfg.Features.IsEnabled(config.FeatureStatsCache, nil) {
				sc := redis.NewStatsCache(cache, onBreaker)
				statsCache = sc
				invalidator = sc
			}
			if cfg.Features.IsEnabled(config.FeatureRateLimiting, nil) {
				rateLimiter = redis.NewRateLimiter(cache, "api", cfg.HTTP.RateLimitPerMinute, time.Minute)
			}
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS И КОНСЬЮМЕРЫ ДОМЕННЫХ СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() { _ = bus.Close() }()

	if err := eventhandler.NewOnGoalMetHandler(log, metrics).Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe goal handler: %w", err)
	}
	if err := eventhandler.NewOnStreakResetHandler(log, metrics).Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe reset handler: %w", err)
	}
	if err := eventhandler.NewOnBadgeEarnedHandler(log, metrics).Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe badge handler: %w", err)
	}
	if err := eventhandler.NewOnPointsAwardedHandler(log, metrics).Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe points handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	weeks := streak.NewWeekCalculator(cfg.App.Location)

	tiers := buildTierTable(cfg.Engagement)
	if !cfg.Features.IsEnabled(config.FeatureBadgeAwards, nil) {
		log.Warn("badge awarding is disabled by feature flag")
		tiers = nil
	}

	recordCompletion := command.NewRecordCompletionHandler(
		store, reader, weeks, nil, bus, invalidator, log, metrics,
		command.RecordCompletionHandlerConfig{
			WeeklyGoal: cfg.Engagement.WeeklyGoal,
			Points: streak.PointsPolicy{
				PerLesson: shared.Points(cfg.Engagement.PerLessonPoints),
				GoalBonus: shared.Points(cfg.Engagement.GoalBonusPoints),
			},
			Tiers:        tiers,
			MaxConflicts: cfg.Engagement.MaxConflictRetries,
		},
	)

	getStreakStats := query.NewGetStreakStatsHandler(
		reader, weeks, nil, statsCache, log, metrics, cfg.Engagement.WeeklyGoal,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	healthChecks := map[string]httpiface.HealthCheck{
		"postgres": conn.Ping,
	}
	if cache != nil {
		healthChecks["redis"] = cache.Ping
	}

	serverCfg := httpiface.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.EnableCORS = cfg.HTTP.EnableCORS
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.APIKeys = cfg.HTTP.APIKeys
	serverCfg.EnableMetrics = cfg.Observability.MetricsEnabled

	server := httpiface.NewServer(serverCfg, httpiface.Dependencies{
		RecordCompletion: recordCompletion,
		GetStreakStats:   getStreakStats,
		Logger:           log,
		HealthChecks:     healthChecks,
		ReadinessChecks:  []string{"postgres"},
		Metrics:          registry,
		RateLimiter:      rateLimiter,
	})

	errCh := server.StartAsync()
	log.Info("engagement API is running", logger.String("address", server.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// buildTierTable переводит конфигурацию уровней в доменную таблицу.
func buildTierTable(cfg config.EngagementConfig) streak.TierTable {
	tiers := make(streak.TierTable, 0, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		level := streak.BadgeLevel(t.Level)
		if !level.IsValid() {
			continue
		}
		tiers = append(tiers, streak.Tier{
			Level:     level,
			Threshold: t.Weeks,
			Bonus:     shared.Points(t.Bonus),
		})
	}
	return tiers.Normalized()
}
