package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearcut-bot/clearcut-bot/internal/bot"
	"github.com/clearcut-bot/clearcut-bot/internal/database"
	apperrors "github.com/clearcut-bot/clearcut-bot/internal/errors"
	"github.com/clearcut-bot/clearcut-bot/internal/health"
	"github.com/clearcut-bot/clearcut-bot/internal/idempotency"
	"github.com/clearcut-bot/clearcut-bot/internal/lifecycle"
	"github.com/clearcut-bot/clearcut-bot/internal/pending"
	"github.com/clearcut-bot/clearcut-bot/internal/quota"
	"github.com/clearcut-bot/clearcut-bot/internal/ratelimit"
	"github.com/clearcut-bot/clearcut-bot/internal/registry"
	"github.com/clearcut-bot/clearcut-bot/internal/removebg"
	"github.com/clearcut-bot/clearcut-bot/internal/repository"
	"github.com/clearcut-bot/clearcut-bot/pkg/config"
	"github.com/clearcut-bot/clearcut-bot/pkg/graceful"
	"github.com/clearcut-bot/clearcut-bot/pkg/logger"
	"github.com/clearcut-bot/clearcut-bot/pkg/metrics"
	"github.com/clearcut-bot/clearcut-bot/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)
	config.Watch(v, log)

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := sql.Open("postgres", cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if err := database.NewMigrator(db, log).ApplyDir(ctx, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	repo := repository.NewUserRepository(db, log)
	reg := registry.NewRegistry(rdb.Client, log)
	banList := registry.NewBanList(rdb.Client, log)
	ledger := quota.NewLedger(repo, banList, rdb.Client, cfg.Bot.DailyCredits, log)
	pendingStore := pending.NewStore(rdb.Client, log)
	idemManager := idempotency.NewManager(idempotency.NewRedisStore(rdb.Client, log), log)
	limiter := ratelimit.NewRedisLimiter(rdb.Client, log)
	rules := ratelimit.NewRules(cfg.RateLimit)
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)
	processor := removebg.NewClient(cfg.RemoveBG, log)

	b, err := bot.New(cfg, bot.Dependencies{
		Ledger:      ledger,
		Pending:     pendingStore,
		Registry:    reg,
		BanList:     banList,
		Repo:        repo,
		Processor:   processor,
		Idempotency: idemManager,
		RateLimiter: limiter,
		RateRules:   rules,
		ErrHandler:  errHandler,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	checker := health.NewChecker()
	checker.Register("postgres", health.DBCheck(db))
	checker.Register("redis", health.RedisCheck(rdb))
	checker.Register("telegram", health.TelegramCheck(b.Telebot()))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", checker.Handler())

	metricsServer := graceful.NewServer(log, &http.Server{
		Addr:              ":" + cfg.Server.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}, cfg.Server.ShutdownTimeout)

	go func() {
		if err := metricsServer.ListenAndServe(ctx); err != nil {
			log.Error("metrics server stopped", slog.Any("error", err))
		}
	}()

	go metrics.NewRegistryCollector(reg, banList).Run(ctx)

	shutdown := lifecycle.NewShutdown(log)
	shutdown.Register("postgres", func(context.Context) error { return db.Close() })
	shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
	shutdown.Register("bot", func(context.Context) error {
		b.Stop()
		return nil
	})

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := shutdown.Execute(shutdownCtx); err != nil {
			log.Error("shutdown finished with errors", slog.Any("error", err))
		}
	}()

	log.Info("clearcut bot starting",
		slog.String("env", cfg.AppEnv),
		slog.String("mode", cfg.Bot.Mode),
	)

	b.Start()

	return nil
}
