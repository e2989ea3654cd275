package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/V4T54L/faultline/internal/adapter/metrics"
	"github.com/V4T54L/faultline/internal/domain"
)

const (
	defaultBatchSize    = 500
	defaultRetryCount   = 3
	defaultRetryBackoff = 1 * time.Second
)

// ProcessReportsUseCase drains buffered reports into the final sink.
type ProcessReportsUseCase struct {
	bufferRepo   domain.ReportRepository
	sinkRepo     domain.ReportRepository
	logger       *slog.Logger
	metrics      *metrics.CollectorMetrics
	group        string
	consumer     string
	batchSize    int
	retryCount   int
	retryBackoff time.Duration
}

// NewProcessReportsUseCase creates a new use case for processing reports.
func NewProcessReportsUseCase(bufferRepo, sinkRepo domain.ReportRepository, logger *slog.Logger, group, consumer string, retryCount int, retryBackoff time.Duration) *ProcessReportsUseCase {
	if retryCount < 1 {
		retryCount = defaultRetryCount
	}
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}
	return &ProcessReportsUseCase{
		bufferRepo:   bufferRepo,
		sinkRepo:     sinkRepo,
		logger:       logger,
		group:        group,
		consumer:     consumer,
		batchSize:    defaultBatchSize,
		retryCount:   retryCount,
		retryBackoff: retryBackoff,
	}
}

// WithBatchSize sets how many reports are read per batch.
func (uc *ProcessReportsUseCase) WithBatchSize(n int) *ProcessReportsUseCase {
	if n > 0 {
		uc.batchSize = n
	}
	return uc
}

// WithMetrics attaches consumer metrics.
func (uc *ProcessReportsUseCase) WithMetrics(m *metrics.CollectorMetrics) *ProcessReportsUseCase {
	uc.metrics = m
	return uc
}

// ProcessBatch reads a batch of reports, writes them to the sink, and
// acknowledges them in the buffer. A batch the sink keeps refusing is moved
// to the dead-letter queue and acknowledged as well.
func (uc *ProcessReportsUseCase) ProcessBatch(ctx context.Context) (int, error) {
	// 1. Read a batch of reports from the buffer (Redis)
	reports, err := uc.bufferRepo.ReadReportBatch(ctx, uc.group, uc.consumer, uc.batchSize)
	if err != nil {
		uc.logger.Error("failed to read report batch from buffer", "error", err)
		return 0, err
	}

	if len(reports) == 0 {
		return 0, nil
	}

	uc.logger.Debug("read batch of reports from buffer", "count", len(reports))

	// 2. Attempt to write the batch to the sink (PostgreSQL) with retries
	writeErr := uc.writeWithRetry(ctx, reports)
	if writeErr != nil {
		uc.logger.Error("failed to write report batch to sink after retries, moving to DLQ", "error", writeErr)
		if err := uc.bufferRepo.MoveToDLQ(ctx, reports); err != nil {
			// Leave the batch pending so it is delivered again.
			uc.logger.Error("failed to move reports to DLQ", "error", err)
			return 0, err
		}
		uc.count("dead_lettered", len(reports))
	}

	// 3. Acknowledge the messages in the buffer (Redis)
	messageIDs := make([]string, len(reports))
	for i, report := range reports {
		messageIDs[i] = report.StreamMessageID
	}

	if err := uc.bufferRepo.AcknowledgeReports(ctx, uc.group, messageIDs...); err != nil {
		// The sink upserts on id, so redelivery is harmless.
		uc.logger.Error("failed to acknowledge reports in buffer", "error", err)
		return 0, err
	}

	if writeErr != nil {
		return 0, writeErr
	}

	uc.count("stored", len(reports))
	uc.logger.Info("successfully processed and sinked report batch", "count", len(reports))
	return len(reports), nil
}

func (uc *ProcessReportsUseCase) writeWithRetry(ctx context.Context, reports []domain.StoredReport) error {
	var lastErr error
	for i := 0; i < uc.retryCount; i++ {
		err := uc.sinkRepo.WriteReportBatch(ctx, reports)
		if err == nil {
			return nil
		}
		lastErr = err
		uc.logger.Warn("failed to write batch to sink, retrying...", "attempt", i+1, "error", err)
		select {
		case <-time.After(uc.retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (uc *ProcessReportsUseCase) count(result string, n int) {
	if uc.metrics != nil {
		uc.metrics.ConsumedTotal.WithLabelValues(result).Add(float64(n))
	}
}
