package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/V4T54L/faultline/internal/domain"
)

const (
	reportsTableName = "fault_reports"
	tempTableName    = "fault_reports_temp_import"
)

var reportColumns = []string{"report_id", "received_at", "occurred_on", "class_name", "message", "machine_name", "version", "payload"}

// ReportRepository implements the sink part of domain.ReportRepository for PostgreSQL.
type ReportRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewReportRepository creates a new PostgreSQL report repository.
func NewReportRepository(db *sql.DB, logger *slog.Logger) *ReportRepository {
	return &ReportRepository{db: db, logger: logger.With("component", "postgres_repository")}
}

// WriteReportBatch copies a batch into a staging table and upserts it on
// report_id, so a redelivered batch is harmless.
func (r *ReportRepository) WriteReportBatch(ctx context.Context, reports []domain.StoredReport) error {
	if len(reports) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Rollback() // no-op after Commit

	_, err = txn.ExecContext(ctx, `CREATE TEMP TABLE `+tempTableName+` (LIKE `+reportsTableName+` INCLUDING DEFAULTS) ON COMMIT DROP;`)
	if err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(tempTableName, reportColumns...))
	if err != nil {
		return fmt.Errorf("failed to prepare COPY: %w", err)
	}

	for _, report := range dedupe(reports) {
		_, err = stmt.ExecContext(ctx, copyRow(report)...)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to copy report %s: %w", report.ID, err)
		}
	}

	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to flush COPY: %w", err)
	}

	_, err = txn.ExecContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("failed to upsert reports: %w", err)
	}

	return txn.Commit()
}

const upsertQuery = `
	INSERT INTO ` + reportsTableName + ` (report_id, received_at, occurred_on, class_name, message, machine_name, version, payload)
	SELECT report_id, received_at, occurred_on, class_name, message, machine_name, version, payload FROM ` + tempTableName + `
	ON CONFLICT (report_id) DO UPDATE SET
		received_at = EXCLUDED.received_at,
		occurred_on = EXCLUDED.occurred_on,
		class_name = EXCLUDED.class_name,
		message = EXCLUDED.message,
		machine_name = EXCLUDED.machine_name,
		version = EXCLUDED.version,
		payload = EXCLUDED.payload;
`

func copyRow(report domain.StoredReport) []any {
	return []any{
		report.ID,
		report.ReceivedAt,
		report.OccurredOn,
		report.ClassName,
		report.Message,
		report.MachineName,
		report.Version,
		string(report.Payload),
	}
}

// dedupe keeps the last copy of each report ID; ON CONFLICT cannot touch
// the same row twice in one statement.
func dedupe(reports []domain.StoredReport) []domain.StoredReport {
	index := make(map[string]int, len(reports))
	out := make([]domain.StoredReport, 0, len(reports))
	for _, report := range reports {
		if i, ok := index[report.ID]; ok {
			out[i] = report
			continue
		}
		index[report.ID] = len(out)
		out = append(out, report)
	}
	return out
}

// The following methods are not implemented for the PostgreSQL sink repository.
var errNotImplemented = errors.New("method not implemented for this repository type")

func (r *ReportRepository) BufferReport(ctx context.Context, report domain.StoredReport) error {
	return errNotImplemented
}

func (r *ReportRepository) ReadReportBatch(ctx context.Context, group, consumer string, count int) ([]domain.StoredReport, error) {
	return nil, errNotImplemented
}

func (r *ReportRepository) AcknowledgeReports(ctx context.Context, group string, messageIDs ...string) error {
	return errNotImplemented
}

func (r *ReportRepository) MoveToDLQ(ctx context.Context, reports []domain.StoredReport) error {
	return errNotImplemented
}
