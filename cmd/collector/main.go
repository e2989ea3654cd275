package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/V4T54L/faultline/internal/adapter/api"
	"github.com/V4T54L/faultline/internal/adapter/metrics"
	"github.com/V4T54L/faultline/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/faultline/internal/adapter/repository/redis"
	"github.com/V4T54L/faultline/internal/pkg/config"
	"github.com/V4T54L/faultline/internal/pkg/logger"
	"github.com/V4T54L/faultline/internal/usecase"

	_ "github.com/lib/pq" // postgres driver
)

const (
	consumerGroup       = "report-processors"
	healthCheckInterval = 5 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	cfg, err := config.LoadCollector()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("collector stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("servers shut down gracefully")
}

func run(ctx context.Context, cfg *config.CollectorConfig, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollectorMetrics(reg)

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return err
	}

	keys := postgres.NewAPIKeyRepository(db, log, cfg.APIKeyCacheTTL, m)
	if cfg.BootstrapAPIKey != "" {
		if err := keys.Register(ctx, cfg.BootstrapAPIKey, "bootstrap"); err != nil {
			return err
		}
	}

	redisClient, err := redisrepo.NewClient(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("could not connect to redis, reports will be refused until it recovers", "error", err)
	}

	buffer, err := redisrepo.NewReportRepository(redisClient, log, consumerGroup, cfg.RedisDLQStream)
	if err != nil {
		return err
	}
	go buffer.StartHealthCheck(ctx, healthCheckInterval)

	ingest := usecase.NewIngestReportUseCase(buffer, log)

	servers := []*http.Server{
		{
			Addr:    cfg.AdminServerAddr,
			Handler: api.NewAdminRouter(reg),
		},
		{
			Addr:         cfg.CollectorServerAddr,
			Handler:      api.NewRouter(cfg, log, keys, ingest, m),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		},
	}

	failed := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			log.Info("starting server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				failed <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-failed:
	}
	log.Info("shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "addr", srv.Addr, "error", err)
		}
	}
	return runErr
}
