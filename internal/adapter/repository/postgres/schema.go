package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	key_hash    TEXT PRIMARY KEY,
	application TEXT NOT NULL DEFAULT '',
	is_active   BOOLEAN NOT NULL DEFAULT true,
	expires_at  TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS fault_reports (
	report_id    TEXT PRIMARY KEY,
	received_at  TIMESTAMPTZ NOT NULL,
	occurred_on  TIMESTAMPTZ NOT NULL,
	class_name   TEXT NOT NULL DEFAULT '',
	message      TEXT NOT NULL DEFAULT '',
	machine_name TEXT NOT NULL DEFAULT '',
	version      TEXT NOT NULL DEFAULT '',
	payload      JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS fault_reports_occurred_on_idx ON fault_reports (occurred_on DESC);
CREATE INDEX IF NOT EXISTS fault_reports_class_name_idx ON fault_reports (class_name);
`

// EnsureSchema creates the collector tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
