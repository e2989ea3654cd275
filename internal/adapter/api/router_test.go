package api

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/faultline/internal/adapter/api/middleware"
	"github.com/V4T54L/faultline/internal/adapter/metrics"
	"github.com/V4T54L/faultline/internal/domain/mocks"
	"github.com/V4T54L/faultline/internal/pkg/config"
	"github.com/V4T54L/faultline/internal/usecase"
)

func TestRouter_Entries(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := &mocks.MockReportRepository{}
	keys := &mocks.MockAPIKeyRepository{Keys: map[string]bool{"live-key": true}}
	reg := prometheus.NewRegistry()
	router := NewRouter(&config.CollectorConfig{MaxReportSize: 1 << 20}, logger, keys,
		usecase.NewIngestReportUseCase(repo, logger), metrics.NewCollectorMetrics(reg))

	body := `{"id":"e1","details":{"error":{"className":"*errors.errorString","message":"boom"}}}`
	tests := []struct {
		name   string
		key    string
		status int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"invalid key", "stale-key", http.StatusUnauthorized},
		{"valid key", "live-key", http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/entries", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json; charset=utf-8")
			if tt.key != "" {
				req.Header.Set(middleware.APIKeyHeader, tt.key)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
		})
	}

	if got := repo.Buffered(); len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("buffered = %+v, want exactly the authenticated report", got)
	}
}

func TestRouter_Health(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(&config.CollectorConfig{}, logger, &mocks.MockAPIKeyRepository{},
		usecase.NewIngestReportUseCase(&mocks.MockReportRepository{}, logger), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Errorf("GET /health = %d %q", rr.Code, rr.Body.String())
	}
}

func TestAdminRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollectorMetrics(reg)
	m.ReportsTotal.WithLabelValues("accepted").Inc()

	rr := httptest.NewRecorder()
	NewAdminRouter(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `faultline_collector_reports_total{status="accepted"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", rr.Body.String())
	}
}
