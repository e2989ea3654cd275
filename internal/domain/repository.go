package domain

import (
	"context"
	"time"
)

// Transport ships a serialized report to the collection endpoint.
type Transport interface {
	// Send posts payload and reports whether the call itself succeeded.
	Send(ctx context.Context, payload []byte) error
}

// SpillQueue is the bounded local store for reports that could not be sent.
type SpillQueue interface {
	// Write parks payload in the next free slot and returns that slot.
	Write(ctx context.Context, payload []byte) (int, error)

	// Replay hands every stored item to handler in slot order. Each item is
	// removed after its handler call whatever the outcome.
	Replay(ctx context.Context, handler func(item SpillItem) error) (int, error)

	// Len returns the number of stored items.
	Len() (int, error)
}

// ConnectivityOracle answers whether the network is reachable right now.
type ConnectivityOracle interface {
	IsReachable() bool
}

// EnvironmentProvider describes the machine the process runs on.
type EnvironmentProvider interface {
	Environment() EnvironmentInfo
	MachineName() string
}

// Serializer turns a report into its wire text.
type Serializer interface {
	Serialize(report Report) ([]byte, error)
}

// ReportRepository defines buffering and sinking of reports on the collector side.
type ReportRepository interface {
	// BufferReport adds a single report to the durable buffer.
	BufferReport(ctx context.Context, report StoredReport) error

	// ReadReportBatch reads a batch of reports from the buffer for a specific consumer.
	ReadReportBatch(ctx context.Context, group, consumer string, count int) ([]StoredReport, error)

	// WriteReportBatch writes a batch of reports to the final structured sink.
	WriteReportBatch(ctx context.Context, reports []StoredReport) error

	// AcknowledgeReports marks reports as processed in the buffer.
	AcknowledgeReports(ctx context.Context, group string, messageIDs ...string) error

	// MoveToDLQ parks reports the sink refused.
	MoveToDLQ(ctx context.Context, reports []StoredReport) error
}

// APIKeyRepository defines the interface for validating API keys.
type APIKeyRepository interface {
	// IsValid checks if the provided API key is valid and active.
	// Implementations should handle caching to reduce database load.
	IsValid(ctx context.Context, key string) (bool, error)
}

// Clock returns the current time. Swapped in tests.
type Clock func() time.Time
