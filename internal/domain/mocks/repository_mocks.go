package mocks

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/V4T54L/faultline/internal/domain"
)

// MockTransport is a mock implementation of domain.Transport for testing.
type MockTransport struct {
	mu       sync.Mutex
	Sent     [][]byte
	Attempts int
	SendErr  error
	// SendFunc, when set, overrides SendErr.
	SendFunc func(payload []byte) error
}

func (m *MockTransport) Send(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts++
	err := m.SendErr
	if m.SendFunc != nil {
		err = m.SendFunc(payload)
	}
	if err != nil {
		return err
	}
	m.Sent = append(m.Sent, append([]byte(nil), payload...))
	return nil
}

// SentCount returns the number of successful sends.
func (m *MockTransport) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// AttemptCount returns the number of Send calls.
func (m *MockTransport) AttemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Attempts
}

// MockSpillQueue is an in-memory domain.SpillQueue.
type MockSpillQueue struct {
	mu       sync.Mutex
	Items    map[int][]byte
	next     int
	WriteErr error
}

func (m *MockSpillQueue) Write(ctx context.Context, payload []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	if m.Items == nil {
		m.Items = make(map[int][]byte)
	}
	m.next++
	m.Items[m.next] = append([]byte(nil), payload...)
	return m.next, nil
}

func (m *MockSpillQueue) Replay(ctx context.Context, handler func(item domain.SpillItem) error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots := make([]int, 0, len(m.Items))
	for slot := range m.Items {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	for _, slot := range slots {
		_ = handler(domain.SpillItem{Slot: slot, Payload: m.Items[slot]})
		delete(m.Items, slot)
	}
	return len(slots), nil
}

func (m *MockSpillQueue) Len() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Items), nil
}

// MockOracle is a switchable domain.ConnectivityOracle.
type MockOracle struct {
	reachable atomic.Bool
}

// NewMockOracle returns an oracle answering reachable.
func NewMockOracle(reachable bool) *MockOracle {
	o := &MockOracle{}
	o.reachable.Store(reachable)
	return o
}

func (m *MockOracle) IsReachable() bool { return m.reachable.Load() }

// Set changes the answer.
func (m *MockOracle) Set(reachable bool) { m.reachable.Store(reachable) }

// MockEnvironment is a fixed domain.EnvironmentProvider.
type MockEnvironment struct {
	Info    domain.EnvironmentInfo
	Machine string
}

func (m *MockEnvironment) Environment() domain.EnvironmentInfo { return m.Info }
func (m *MockEnvironment) MachineName() string                 { return m.Machine }

// MockReportRepository is a mock implementation of domain.ReportRepository for testing.
type MockReportRepository struct {
	mu              sync.Mutex
	BufferedReports []domain.StoredReport
	WrittenReports  []domain.StoredReport
	AckedMessageIDs []string
	DLQReports      []domain.StoredReport
	ReadBatchResult []domain.StoredReport
	BufferErr       error
	ReadErr         error
	WriteErr        error
	AckErr          error
	DLQErr          error
}

func (m *MockReportRepository) BufferReport(ctx context.Context, report domain.StoredReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BufferErr != nil {
		return m.BufferErr
	}
	m.BufferedReports = append(m.BufferedReports, report)
	return nil
}

func (m *MockReportRepository) ReadReportBatch(ctx context.Context, group, consumer string, count int) ([]domain.StoredReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.ReadBatchResult, nil
}

func (m *MockReportRepository) WriteReportBatch(ctx context.Context, reports []domain.StoredReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.WrittenReports = append(m.WrittenReports, reports...)
	return nil
}

func (m *MockReportRepository) AcknowledgeReports(ctx context.Context, group string, messageIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AckErr != nil {
		return m.AckErr
	}
	m.AckedMessageIDs = append(m.AckedMessageIDs, messageIDs...)
	return nil
}

func (m *MockReportRepository) MoveToDLQ(ctx context.Context, reports []domain.StoredReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DLQErr != nil {
		return m.DLQErr
	}
	m.DLQReports = append(m.DLQReports, reports...)
	return nil
}

// Buffered returns a copy of the buffered reports.
func (m *MockReportRepository) Buffered() []domain.StoredReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StoredReport(nil), m.BufferedReports...)
}

// MockAPIKeyRepository accepts a fixed set of keys.
type MockAPIKeyRepository struct {
	Keys map[string]bool
	Err  error
}

func (m *MockAPIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.Keys[key], nil
}
