// Package main - утилита управления схемой PostgreSQL.
//
// Использование:
//
//	migrate up      применить все новые миграции
//	migrate down    откатить последнюю применённую миграцию
//	migrate status  показать состояние миграций
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiongozi/gamification-engine/config"
	"github.com/kiongozi/gamification-engine/internal/infrastructure/persistence/postgres"
	"github.com/kiongozi/gamification-engine/pkg/logger"
	"github.com/kiongozi/gamification-engine/pkg/retry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	if err := run(ctx, cmd); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string) error {
	switch cmd {
	case "up", "down", "status":
	default:
		return fmt.Errorf("unknown command %q (want up, down or status)", cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Driver != config.StoragePostgres {
		return fmt.Errorf("STORAGE_DRIVER is %q, migrations apply to postgres only", cfg.Database.Driver)
	}

	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: cfg.Observability.LogFormat,
	}).With(logger.Component("migrate"))
	defer func() { _ = log.Sync() }()

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = 2
	pgCfg.MinConns = 1
	// DDL не должен упираться в таймаут рабочих запросов.
	pgCfg.StatementTimeout = 0

	policy := retry.New(
		retry.WithMaxAttempts(5),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("database not ready, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)
	conn, err := retry.DoValue(ctx, policy, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pgCfg)
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	migrator := postgres.NewMigrator(conn)

	switch cmd {
	case "up":
		applied, err := migrator.Migrate(ctx)
		if err != nil {
			return err
		}
		log.Info("migrations applied", logger.Int("count", applied))

	case "down":
		if err := migrator.Rollback(ctx); err != nil {
			return err
		}
		log.Info("last migration rolled back")

	case "status":
		if err := migrator.EnsureMigrationTable(ctx); err != nil {
			return err
		}
		applied, err := migrator.GetAppliedMigrations(ctx)
		if err != nil {
			return err
		}
		for _, m := range postgres.GetMigrations() {
			if at, ok := applied[m.Version]; ok {
				fmt.Printf("%03d  %-28s applied %s\n", m.Version, m.Name, at.Format(time.RFC3339))
			} else {
				fmt.Printf("%03d  %-28s pending\n", m.Version, m.Name)
			}
		}
	}
	return nil
}
