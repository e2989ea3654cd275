package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/faultline/internal/domain"
)

const (
	// ReportStreamKey is the stream accepted reports are buffered in.
	ReportStreamKey = "fault_reports"

	payloadField = "payload"
	// streamMaxLen caps the buffer; XADD trims the oldest entries past it.
	streamMaxLen = 1_000_000
	readBlock    = 2 * time.Second
)

var (
	errNotImplemented = errors.New("method not implemented for this repository type")

	// ErrRedisNotAvailable is returned while the last health check failed.
	ErrRedisNotAvailable = errors.New("redis is not available")
)

// ReportRepository implements the buffer side of domain.ReportRepository
// using Redis Streams.
type ReportRepository struct {
	client    *redis.Client
	logger    *slog.Logger
	dlqStream string
	available atomic.Bool
}

// NewReportRepository creates a new Redis-backed ReportRepository and makes
// sure the consumer group exists.
func NewReportRepository(client *redis.Client, logger *slog.Logger, group, dlqStreamKey string) (*ReportRepository, error) {
	repo := &ReportRepository{
		client:    client,
		logger:    logger.With("component", "redis_repository"),
		dlqStream: dlqStreamKey,
	}
	repo.available.Store(true)

	if err := repo.setupConsumerGroup(context.Background(), group); err != nil {
		repo.available.Store(false)
		repo.logger.Error("Consumer group setup failed, starting as unavailable", "stream", ReportStreamKey, "error", err)
	}
	return repo, nil
}

// StartHealthCheck pings Redis every interval and tracks its availability.
func (r *ReportRepository) StartHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Starting Redis health check")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping Redis health check")
			return
		case <-ticker.C:
			r.probe(ctx)
		}
	}
}

// probe pings Redis and logs availability transitions only.
func (r *ReportRepository) probe(ctx context.Context) {
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.markDown(err)
		return
	}
	if r.available.CompareAndSwap(false, true) {
		r.logger.Info("Redis connection recovered")
	}
}

func (r *ReportRepository) markDown(err error) {
	if r.available.CompareAndSwap(true, false) {
		r.logger.Error("Redis connection lost", "error", err)
	}
}

// IsAvailable reports the outcome of the last health check or write.
func (r *ReportRepository) IsAvailable() bool {
	return r.available.Load()
}

func (r *ReportRepository) setupConsumerGroup(ctx context.Context, group string) error {
	if group == "" {
		return nil
	}
	err := r.client.XGroupCreateMkStream(ctx, ReportStreamKey, group, "0").Err()
	if err != nil && !isRedisBusyGroupError(err) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// BufferReport adds a report to the Redis Stream. While Redis is down it
// fails fast so the client keeps the report in its spool.
func (r *ReportRepository) BufferReport(ctx context.Context, report domain.StoredReport) error {
	if !r.available.Load() {
		return ErrRedisNotAvailable
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: ReportStreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{payloadField: payload},
	}).Err()
	if err != nil {
		if isNetworkError(err) {
			r.markDown(err)
		}
		return fmt.Errorf("failed to buffer report %s: %w", report.ID, err)
	}
	return nil
}

// ReadReportBatch reads a batch of reports from the Redis Stream for a consumer group.
func (r *ReportRepository) ReadReportBatch(ctx context.Context, group, consumer string, count int) ([]domain.StoredReport, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{ReportStreamKey, ">"},
		Count:    int64(count),
		Block:    readBlock,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read report batch: %w", err)
	}
	var reports []domain.StoredReport
	for _, stream := range streams {
		reports = append(reports, r.decodeMessages(stream.Messages)...)
	}
	return reports, nil
}

func (r *ReportRepository) decodeMessages(messages []redis.XMessage) []domain.StoredReport {
	reports := make([]domain.StoredReport, 0, len(messages))
	for _, msg := range messages {
		payload, ok := msg.Values[payloadField].(string)
		if !ok {
			r.logger.Warn("Stream entry has no payload, skipping", "message_id", msg.ID)
			continue
		}

		var report domain.StoredReport
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			r.logger.Warn("Stream entry is not a report, skipping", "message_id", msg.ID, "error", err)
			continue
		}
		report.StreamMessageID = msg.ID
		reports = append(reports, report)
	}
	return reports
}

// AcknowledgeReports acknowledges processed messages in the Redis Stream.
func (r *ReportRepository) AcknowledgeReports(ctx context.Context, group string, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := r.client.XAck(ctx, ReportStreamKey, group, messageIDs...).Err(); err != nil {
		return fmt.Errorf("failed to ack %d reports: %w", len(messageIDs), err)
	}
	return nil
}

// MoveToDLQ moves a batch of reports to the dead-letter stream.
func (r *ReportRepository) MoveToDLQ(ctx context.Context, reports []domain.StoredReport) error {
	if len(reports) == 0 {
		return nil
	}

	failedAt := time.Now().UTC().Format(time.RFC3339)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, report := range reports {
			payload, err := json.Marshal(report)
			if err != nil {
				r.logger.Error("Report cannot be encoded for the DLQ, dropping", "report_id", report.ID, "error", err)
				continue
			}
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: r.dlqStream,
				Values: map[string]any{
					payloadField: payload,
					"report_id":  report.ID,
					"source_id":  report.StreamMessageID,
					"source":     ReportStreamKey,
					"failed_at":  failedAt,
				},
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter %d reports: %w", len(reports), err)
	}
	r.logger.Warn("Moved reports to DLQ", "count", len(reports), "stream", r.dlqStream)
	return nil
}

// WriteReportBatch is not implemented for this repository.
func (r *ReportRepository) WriteReportBatch(ctx context.Context, reports []domain.StoredReport) error {
	return errNotImplemented
}

func isRedisBusyGroupError(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded)
}
