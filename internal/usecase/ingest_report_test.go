package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/V4T54L/faultline/internal/adapter/serializer"
	"github.com/V4T54L/faultline/internal/domain"
	"github.com/V4T54L/faultline/internal/domain/mocks"
)

func TestIngestReportUseCase_Ingest(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	valid := []byte(`{"id":"3b0d","occurredOn":"2024-01-02T03:04:05Z","details":{"machineName":"m1","version":"1.0","error":{"className":"*errors.errorString","message":"boom"}}}`)

	t.Run("Successful Ingestion", func(t *testing.T) {
		mockRepo := &mocks.MockReportRepository{}
		uc := NewIngestReportUseCase(mockRepo, logger)

		stored, err := uc.Ingest(context.Background(), valid)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if stored.ID != "3b0d" || stored.ClassName != "*errors.errorString" || stored.MachineName != "m1" {
			t.Errorf("unexpected stored report: %+v", stored)
		}
		if !stored.OccurredOn.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
			t.Errorf("OccurredOn = %v", stored.OccurredOn)
		}
		if stored.ReceivedAt.IsZero() {
			t.Error("expected ReceivedAt to be set")
		}
		if len(mockRepo.Buffered()) != 1 {
			t.Fatalf("expected 1 report to be buffered, got %d", len(mockRepo.Buffered()))
		}
		if string(mockRepo.Buffered()[0].Payload) != string(valid) {
			t.Error("the raw payload must be kept verbatim")
		}
	})

	t.Run("Generates Missing ID", func(t *testing.T) {
		mockRepo := &mocks.MockReportRepository{}
		uc := NewIngestReportUseCase(mockRepo, logger)
		stored, err := uc.Ingest(context.Background(), []byte(`{"details":{"error":{"message":"x"}}}`))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if stored.ID == "" {
			t.Error("expected an ID to be generated")
		}
		if !stored.OccurredOn.Equal(stored.ReceivedAt) {
			t.Error("missing occurrence time should default to the receive time")
		}
	})

	t.Run("Invalid Payload", func(t *testing.T) {
		uc := NewIngestReportUseCase(&mocks.MockReportRepository{}, logger)
		for _, p := range []string{`not json`, `{"details":{}}`, `[]`} {
			if _, err := uc.Ingest(context.Background(), []byte(p)); !errors.Is(err, ErrInvalidReport) {
				t.Errorf("Ingest(%s) error = %v, want ErrInvalidReport", p, err)
			}
		}
	})

	t.Run("Repository Error", func(t *testing.T) {
		mockRepo := &mocks.MockReportRepository{BufferErr: errors.New("buffer is full")}
		uc := NewIngestReportUseCase(mockRepo, logger)

		_, err := uc.Ingest(context.Background(), valid)
		if err == nil {
			t.Fatal("expected an error, got nil")
		}
		if err.Error() != "buffer is full" {
			t.Errorf("unexpected error message: got %q", err.Error())
		}
	})
}

func TestIngestReportUseCase_AcceptsClientSerializedReport(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	report := domain.Report{
		ID:         "with-request",
		OccurredOn: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		Details: domain.ReportDetails{
			MachineName: "web-1",
			Error:       domain.FaultSummary{ClassName: "*errors.errorString", Message: "handler failed"},
			Request: &domain.RequestSnapshot{
				URL:         "/orders",
				HTTPMethod:  "POST",
				QueryString: domain.Fields{{Name: "id", Value: "7"}},
				Form:        domain.Fields{},
				Headers:     domain.Fields{{Name: "Accept", Value: "*/*"}},
				Data:        domain.Fields{{Name: "SERVER_NAME", Value: "web-1"}},
				Cookies:     []domain.Cookie{},
			},
		},
	}
	payload, err := serializer.NewJSON().Serialize(report)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	repo := &mocks.MockReportRepository{}
	stored, err := NewIngestReportUseCase(repo, logger).Ingest(context.Background(), payload)
	if err != nil {
		t.Fatalf("Ingest() rejected a client-serialized report: %v", err)
	}
	if stored.ID != "with-request" || stored.MachineName != "web-1" {
		t.Errorf("unexpected stored report: %+v", stored)
	}
	if len(repo.Buffered()) != 1 {
		t.Errorf("expected 1 buffered report, got %d", len(repo.Buffered()))
	}
}
