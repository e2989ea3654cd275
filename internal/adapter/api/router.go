package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/faultline/internal/adapter/api/handler"
	"github.com/V4T54L/faultline/internal/adapter/api/middleware"
	"github.com/V4T54L/faultline/internal/adapter/metrics"
	"github.com/V4T54L/faultline/internal/domain"
	"github.com/V4T54L/faultline/internal/pkg/config"
)

// NewRouter creates and configures the main HTTP router for the collector.
func NewRouter(
	cfg *config.CollectorConfig,
	logger *slog.Logger,
	apiKeyRepo domain.APIKeyRepository,
	ingestUseCase handler.ReportIngester,
	m *metrics.CollectorMetrics,
) http.Handler {
	mux := http.NewServeMux()

	entriesHandler := handler.NewEntriesHandler(ingestUseCase, logger, cfg.MaxReportSize, m)
	authMiddleware := middleware.Auth(apiKeyRepo, logger)

	mux.Handle("POST /entries", authMiddleware(entriesHandler))
	mux.HandleFunc("GET /health", healthHandler)

	return middleware.Logging(logger)(mux)
}

// NewAdminRouter serves metrics and health on the admin port.
func NewAdminRouter(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
