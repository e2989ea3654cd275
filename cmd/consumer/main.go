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

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/V4T54L/faultline/internal/adapter/api"
	"github.com/V4T54L/faultline/internal/adapter/metrics"
	"github.com/V4T54L/faultline/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/faultline/internal/adapter/repository/redis"
	"github.com/V4T54L/faultline/internal/pkg/config"
	"github.com/V4T54L/faultline/internal/pkg/logger"
	"github.com/V4T54L/faultline/internal/usecase"
)

const (
	consumerGroup = "report-processors"
	pollInterval  = time.Second
)

func main() {
	cfg, err := config.LoadCollector()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("consumer worker shut down gracefully")
}

func run(ctx context.Context, cfg *config.CollectorConfig, log *slog.Logger) error {
	redisClient, err := redisrepo.NewClient(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}

	db, err := openPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	admin := &http.Server{Addr: cfg.ConsumerAdminAddr, Handler: api.NewAdminRouter(reg)}
	go func() {
		log.Info("starting consumer metrics server", "addr", admin.Addr)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("consumer metrics server failed", "error", err)
		}
	}()
	defer admin.Close()

	buffer, err := redisrepo.NewReportRepository(redisClient, log, consumerGroup, cfg.RedisDLQStream)
	if err != nil {
		return err
	}

	name := consumerName(log)
	processor := usecase.NewProcessReportsUseCase(
		buffer, postgres.NewReportRepository(db, log), log, consumerGroup, name,
		cfg.ConsumerRetryCount, cfg.ConsumerRetryBackoff,
	).WithBatchSize(cfg.ConsumerBatchSize).WithMetrics(metrics.NewCollectorMetrics(reg))

	log.Info("consumer worker started", "group", consumerGroup, "consumer", name)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("context cancelled, shutting down consumer loop")
			return nil
		case <-ticker.C:
			drain(ctx, processor, log)
		}
	}
}

// drain keeps processing while batches come back full so a backlog does not
// wait for the next tick.
func drain(ctx context.Context, p *usecase.ProcessReportsUseCase, log *slog.Logger) {
	for ctx.Err() == nil {
		n, err := p.ProcessBatch(ctx)
		if err != nil {
			log.Error("error processing batch", "error", err)
			return
		}
		if n == 0 {
			return
		}
	}
}

func openPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// consumerName is unique per host so several workers share the group.
func consumerName(log *slog.Logger) string {
	host, err := os.Hostname()
	if err != nil {
		log.Warn("could not get hostname, using pid for consumer name", "error", err)
		return fmt.Sprintf("consumer-%d", os.Getpid())
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
