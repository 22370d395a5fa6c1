// Package main - точка входа сервиса геймификации.
//
// Сервис принимает события завершения модулей, начисляет XP, ведёт серии
// дней и бейджи и отдаёт глобальный лидерборд по REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiongozi/gamification-engine/config"
	"github.com/kiongozi/gamification-engine/internal/application/command"
	"github.com/kiongozi/gamification-engine/internal/application/query"
	"github.com/kiongozi/gamification-engine/internal/domain/badge"
	"github.com/kiongozi/gamification-engine/internal/domain/leaderboard"
	"github.com/kiongozi/gamification-engine/internal/domain/progress"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
	"github.com/kiongozi/gamification-engine/internal/infrastructure/messaging"
	"github.com/kiongozi/gamification-engine/internal/infrastructure/metrics"
	"github.com/kiongozi/gamification-engine/internal/infrastructure/persistence/memory"
	"github.com/kiongozi/gamification-engine/internal/infrastructure/persistence/postgres"
	"github.com/kiongozi/gamification-engine/internal/infrastructure/persistence/redis"
	httpapi "github.com/kiongozi/gamification-engine/internal/interface/http"
	"github.com/kiongozi/gamification-engine/internal/interface/http/handlers"
	"github.com/kiongozi/gamification-engine/pkg/circuitbreaker"
	"github.com/kiongozi/gamification-engine/pkg/logger"
	"github.com/kiongozi/gamification-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    cfg.Observability.LogFormat,
		AddCaller: true,
	})
	defer func() { _ = log.Sync() }()

	log.Info("starting gamification engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("storage", string(cfg.Database.Driver)),
		logger.String("timezone", cfg.Gamification.Timezone),
	)

	m := metrics.New()
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	st, err := openStores(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer st.close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS (+ Redis pub/sub, если включён)
	// ─────────────────────────────────────────────────────────────────────────
	bus := messaging.NewInMemoryEventBus(messaging.Config{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		Logger:         log,
		OnHandled:      m.ObserveEventHandler,
	})
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn("event bus close failed", logger.Err(err))
		}
	}()

	if err := bus.SubscribeAll(func(e shared.Event) error {
		log.Debug("domain event",
			logger.String("event_type", string(e.EventType())),
			logger.UserID(e.AggregateID()),
		)
		return nil
	}); err != nil {
		return fmt.Errorf("subscribe event logger: %w", err)
	}

	if st.cache != nil && cfg.Redis.PublishEvents {
		if err := bus.Forward(redis.NewEventPublisher(st.cache, 0)); err != nil {
			return fmt.Errorf("forward events to redis: %w", err)
		}
		log.Info("domain events are forwarded to Redis pub/sub")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ДОМЕННЫЕ СЕРВИСЫ И ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	streaks := progress.NewStreakTracker(st.profiles, progress.WithLocation(cfg.Gamification.Location))

	engine := badge.NewEngine(st.stats, st.catalog, st.earned,
		badge.WithUnknownRequirementHandler(func(b badge.Badge) {
			log.Warn("badge has unknown requirement type, skipped",
				logger.BadgeID(b.ID),
				logger.String("requirement_type", string(b.RequirementType)),
			)
		}),
	)

	ranker := leaderboard.NewRanker(st.board, cfg.Gamification.LeaderboardMaxRows)

	deps := httpapi.Dependencies{
		TopLearners:            query.NewGetTopLearnersHandler(ranker),
		LeaderboardWithContext: query.NewGetLeaderboardWithContextHandler(ranker),
		UserRank:               query.NewGetUserRankHandler(ranker),
		RecordCompletion: command.NewRecordModuleCompletionHandler(command.RecordModuleCompletionDeps{
			Profiles:    st.profiles,
			Completions: st.completions,
			Streaks:     streaks,
			Badges:      engine,
			Events:      bus,
			Observer:    m,
			Logger:      log,
			MaxXPAward:  cfg.Gamification.MaxXPAward,
		}),
		DefaultXPAward: cfg.Gamification.XPPerModule,
		Metrics:        m,
		HealthChecker:  health,
		Logger:         log,
	}
	if cfg.Gamification.AutoCreateProfiles {
		deps.EnsureProfile = command.NewEnsureProfileHandler(st.profiles, log)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpCfg.RateLimitPerSecond = cfg.HTTP.RateLimitPerSecond
	httpCfg.RateLimitBurst = cfg.HTTP.RateLimitBurst
	httpCfg.EnableMetrics = cfg.Observability.MetricsEnabled

	server := httpapi.NewServer(httpCfg, deps)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ЖИЗНЕННЫЙ ЦИКЛ
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.App.ShutdownTimeout)
	})

	err = g.Wait()
	log.Info("gamification engine stopped")
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE WIRING
// ══════════════════════════════════════════════════════════════════════════════

// stores - репозитории выбранного драйвера и опциональный Redis.
type stores struct {
	profiles    progress.ProfileRepository
	completions progress.CompletionRepository
	catalog     badge.CatalogRepository
	earned      badge.EarnedRepository
	stats       badge.StatsSource
	board       leaderboard.Repository

	cache   *redis.Cache
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger, health *handlers.CompositeHealthChecker) (*stores, error) {
	st := &stores{}

	switch cfg.Database.Driver {
	case config.StorageMemory:
		mem := memory.NewStore()
		for _, b := range badge.DefaultCatalog() {
			mem.PutBadge(b)
		}
		st.profiles, st.completions = mem, mem
		st.catalog, st.earned, st.stats = mem, mem, mem
		st.board = mem
		health.AddCheck("storage", handlers.NewPingCheck(mem))
		log.Warn("using in-memory storage, state is lost on restart")

	default:
		conn, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, conn.Close)

		if cfg.Database.AutoMigrate {
			applied, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				st.close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("database schema is up to date", logger.Int("applied", applied))
		}

		profiles := postgres.NewProfileRepository(conn)
		badges := postgres.NewBadgeRepository(conn)
		st.profiles, st.completions = profiles, profiles
		st.catalog, st.earned, st.stats = badges, badges, badges
		st.board = postgres.NewLeaderboardRepository(conn)
		health.AddCheck("postgres", postgresCheck(conn))
	}

	if cfg.Redis.Enabled {
		cache, err := connectRedis(ctx, cfg, log)
		if err != nil {
			// Redis не источник истины: без него работаем напрямую с хранилищем.
			log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		} else {
			st.cache = cache
			st.closers = append(st.closers, func() { _ = cache.Close() })
			st.catalog = redis.NewCatalogCache(cache, st.catalog, cfg.Gamification.BadgeCatalogTTL, log)
			health.AddCheck("redis", handlers.NewPingCheck(cache))
		}
	}

	return st, nil
}

func connectPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.StatementTimeout = cfg.Database.StatementTimeout

	log.Info("connecting to database...")
	conn, err := retry.DoValue(ctx, startupPolicy(log, "postgres"), func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pgCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")
	return conn, nil
}

// postgresCheck - готовность БД: ping плюс свободные соединения в пуле.
func postgresCheck(conn *postgres.Connection) handlers.HealthCheckFunc {
	return func(ctx context.Context) error {
		status, err := conn.Health(ctx)
		if err != nil {
			return err
		}
		if !status.Healthy {
			return errors.New(status.Error)
		}
		if status.MaxConns > 0 && status.AcquiredConns >= status.MaxConns {
			return fmt.Errorf("connection pool exhausted (%d/%d)", status.AcquiredConns, status.MaxConns)
		}
		return nil
	}
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Cache, error) {
	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout
	redisCfg.KeyPrefix = cfg.Redis.KeyPrefix
	redisCfg.OnBreakerChange = func(_ string, from, to circuitbreaker.State) {
		log.Warn("redis circuit breaker changed state",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}

	log.Info("connecting to Redis...", logger.String("addr", redisCfg.Addr()))
	policy := startupPolicy(log, "redis")
	policy.MaxAttempts = 3
	return retry.DoValue(ctx, policy, func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, redisCfg)
	})
}

func startupPolicy(log *logger.Logger, target string) retry.Policy {
	return retry.New(retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		log.Warn("dependency not ready, retrying",
			logger.String("target", target),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}))
}
