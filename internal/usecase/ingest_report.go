package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/V4T54L/faultline/internal/domain"
)

// ErrInvalidReport is returned when a payload is not a report.
var ErrInvalidReport = errors.New("invalid report payload")

// IngestReportUseCase handles the business logic for accepting a report.
type IngestReportUseCase struct {
	repo   domain.ReportRepository
	clock  domain.Clock
	logger *slog.Logger
}

// NewIngestReportUseCase creates a new IngestReportUseCase.
func NewIngestReportUseCase(repo domain.ReportRepository, logger *slog.Logger) *IngestReportUseCase {
	return &IngestReportUseCase{
		repo:   repo,
		clock:  time.Now,
		logger: logger,
	}
}

// Ingest validates, indexes and buffers a raw report payload.
func (uc *IngestReportUseCase) Ingest(ctx context.Context, payload []byte) (domain.StoredReport, error) {
	// 1. Parse the fields the sink indexes on
	var report domain.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return domain.StoredReport{}, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	if report.Details.Error.ClassName == "" && report.Details.Error.Message == "" {
		return domain.StoredReport{}, fmt.Errorf("%w: missing error details", ErrInvalidReport)
	}

	// 2. Enrich with server-side data
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	stored := domain.StoredReport{
		ID:          report.ID,
		ReceivedAt:  uc.clock().UTC(),
		OccurredOn:  report.OccurredOn,
		ClassName:   report.Details.Error.ClassName,
		Message:     report.Details.Error.Message,
		MachineName: report.Details.MachineName,
		Version:     report.Details.Version,
		Payload:     append([]byte(nil), payload...),
	}
	if stored.OccurredOn.IsZero() {
		stored.OccurredOn = stored.ReceivedAt
	}

	// 3. Buffer the report
	if err := uc.repo.BufferReport(ctx, stored); err != nil {
		uc.logger.Error("failed to buffer report", "error", err, "event_id", stored.ID)
		return domain.StoredReport{}, err
	}

	return stored, nil
}
