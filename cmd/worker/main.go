// Package main - точка входа фонового воркера движка вовлечённости KursLab.
//
// Воркер отвечает за периодические задачи сопровождения:
// - Ночная сверка журнала очков с кешированными суммами (дрейф = инцидент)
// - Переподогрев кеша статистики после границы недели
//
// Горячий путь начислений живёт в HTTP-сервисе; воркер никогда не пишет
// в доменные таблицы.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kurslab/kurslab-engagement/config"
	"github.com/kurslab/kurslab-engagement/internal/application/query"
	"github.com/kurslab/kurslab-engagement/internal/domain/streak"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/messaging"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/observability"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/persistence/postgres"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/persistence/redis"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/scheduler"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/scheduler/jobs"
	"github.com/kurslab/kurslab-engagement/pkg/circuitbreaker"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
	"github.com/kurslab/kurslab-engagement/pkg/timeutil"
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
	}).With(logger.Component("engagement-worker"))

	log.Info("starting KursLab engagement worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("timezone", cfg.App.Timezone))

	if !cfg.Worker.Enabled {
		log.Warn("worker is disabled by configuration, exiting")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL (воркеру тоже нужна актуальная схема)
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

	if cfg.Database.MigrateOnStart {
		migrator := postgres.NewMigrator(conn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	log.Info("database ready")

	reader := postgres.NewReaderRepo(conn)
	ledger := postgres.NewLedgerRepo(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (нужен только задаче переподогрева кеша)
	// ─────────────────────────────────────────────────────────────────────────
	var statsCache query.StatsCache

	if !cfg.Redis.Disabled && cfg.Features.IsEnabled(config.FeatureStatsCache, nil) {
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

		cache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, cache refresh disabled", logger.Err(err))
		} else {
			defer cache.Close()
			statsCache = redis.NewStatsCache(cache, func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state change",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()))
			})
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. МЕТРИКИ И EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	metrics := observability.NewDefaultMetrics()

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() { _ = bus.Close() }()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПЛАНИРОВЩИК И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	loc := cfg.App.Location
	if loc == nil {
		loc = timeutil.PlatformTZ
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Timezone: loc,
	})

	if cfg.Features.IsEnabled(config.FeatureReconciliation, nil) {
		reconcile := jobs.NewReconcileLedgerJob(reader, ledger, bus, metrics, log,
			jobs.ReconcileLedgerConfig{PageSize: cfg.Worker.ReconcilePageSize})
		schedule := scheduler.NewDailySchedule(cfg.Worker.ReconcileHour, cfg.Worker.ReconcileMinute, loc)
		if err := sched.Register(reconcile, schedule); err != nil {
			return fmt.Errorf("failed to register reconciliation job: %w", err)
		}
	} else {
		log.Warn("ledger reconciliation is disabled by feature flag")
	}

	if statsCache != nil && cfg.Worker.CacheRefreshInterval > 0 {
		weeks := streak.NewWeekCalculator(loc)
		stats := query.NewGetStreakStatsHandler(reader, weeks, nil, statsCache, log, metrics, cfg.Engagement.WeeklyGoal)
		refresh := jobs.NewRefreshStatsJob(reader, stats, log, cfg.Worker.ReconcilePageSize)
		if err := sched.Register(refresh, scheduler.NewIntervalSchedule(cfg.Worker.CacheRefreshInterval)); err != nil {
			return fmt.Errorf("failed to register cache refresh job: %w", err)
		}
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info("engagement worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", logger.String("signal", sig.String()))

	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop", logger.Err(err))
	}

	log.Info("shutdown completed successfully")
	return nil
}
