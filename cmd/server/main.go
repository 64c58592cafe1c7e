package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/subosito/gotenv"

	"aynpos/backend/internal/cache"
	"aynpos/backend/internal/config"
	"aynpos/backend/internal/httpapi"
	"aynpos/backend/internal/ledger"
	"aynpos/backend/internal/ledger/memory"
	pgledger "aynpos/backend/internal/ledger/postgres"
	"aynpos/backend/internal/logger"
	"aynpos/backend/internal/metrics"
	"aynpos/backend/internal/service"
)

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load(os.Getenv("POS_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Error("invalid security configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo ledger.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgledger.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres unavailable and POS_DATABASE_URL is set, refusing in-memory fallback", "err", err)
			os.Exit(1)
		}
		if err := runMigrations(pg, cfg.MigrationsDir); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("ledger: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("ledger: in-memory")
	}

	reports := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, 0)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using noop report cache", "err", err)
		} else {
			reports = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("report cache: redis")
		}
	}

	registry := prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New(registry)
	} else {
		registry = nil
	}

	svc := service.New(repo, reports, log, m, cfg.DefaultTaxRatePercent)
	auth := httpapi.NewAuthManager(cfg.JWTSecret, cfg.JWTTTL, repo)
	api := httpapi.New(svc, auth, log, m, registry, cfg.CORSOrigin)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("POS backend listening", "addr", cfg.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", "err", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close error", "err", err)
		}
	}

	log.Info("server stopped")
}

func runMigrations(store *pgledger.Store, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(store.DB(), dir)
}

func validateSecurityConfig(cfg config.Config) error {
	if cfg.Env == "dev" {
		return nil
	}
	if len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("POS_JWT_SECRET must be set and at least 32 characters outside dev")
	}
	return nil
}
