package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/V4T54L/faultline/internal/adapter/metrics"
	"github.com/V4T54L/faultline/internal/domain"
	"github.com/V4T54L/faultline/internal/usecase"
)

// ReportIngester is the part of the ingest use case the handler needs.
type ReportIngester interface {
	Ingest(ctx context.Context, payload []byte) (domain.StoredReport, error)
}

// EntriesHandler accepts serialized fault reports.
type EntriesHandler struct {
	useCase       ReportIngester
	logger        *slog.Logger
	maxReportSize int64
	metrics       *metrics.CollectorMetrics
}

// NewEntriesHandler creates a new EntriesHandler.
func NewEntriesHandler(uc ReportIngester, logger *slog.Logger, maxReportSize int64, m *metrics.CollectorMetrics) *EntriesHandler {
	return &EntriesHandler{
		useCase:       uc,
		logger:        logger.With("component", "entries_handler"),
		maxReportSize: maxReportSize,
		metrics:       m,
	}
}

// ServeHTTP buffers one report and answers 202 Accepted.
func (h *EntriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType != "application/json" {
		h.count("error_media_type")
		http.Error(w, "Unsupported Media Type: "+contentType, http.StatusUnsupportedMediaType)
		return
	}

	// Enforce max body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxReportSize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.count("error_size")
			http.Error(w, maxBytesErr.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		h.count("error_parse")
		http.Error(w, "Bad Request: Failed to read body", http.StatusBadRequest)
		return
	}

	stored, err := h.useCase.Ingest(r.Context(), payload)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidReport) {
			h.count("error_parse")
			http.Error(w, "Bad Request: Failed to decode report", http.StatusBadRequest)
			return
		}
		h.count("error_buffer")
		h.logger.Error("failed to buffer report", "error", err)
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	h.count("accepted")
	if h.metrics != nil {
		h.metrics.BytesTotal.Add(float64(len(payload)))
	}
	h.logger.Debug("accepted report", "event_id", stored.ID, "class_name", stored.ClassName)
	w.WriteHeader(http.StatusAccepted)
}

func (h *EntriesHandler) count(status string) {
	if h.metrics != nil {
		h.metrics.ReportsTotal.WithLabelValues(status).Inc()
	}
}
