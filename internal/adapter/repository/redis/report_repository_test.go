package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/faultline/internal/domain"
)

func newUnavailableRepo() *ReportRepository {
	r := &ReportRepository{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	return r
}

func TestBufferReport_FailsFastWhenUnavailable(t *testing.T) {
	r := newUnavailableRepo()
	err := r.BufferReport(context.Background(), domain.StoredReport{ID: "x"})
	if !errors.Is(err, ErrRedisNotAvailable) {
		t.Errorf("BufferReport() error = %v, want ErrRedisNotAvailable", err)
	}
}

func TestDecodeMessages(t *testing.T) {
	r := newUnavailableRepo()
	good, _ := json.Marshal(domain.StoredReport{ID: "r1", ClassName: "*fs.PathError", Payload: []byte(`{"a":1}`)})

	reports := r.decodeMessages([]redis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{"payload": string(good)}},
		{ID: "2-0", Values: map[string]interface{}{"payload": 42}},
		{ID: "3-0", Values: map[string]interface{}{"payload": "{broken"}},
	})

	if len(reports) != 1 {
		t.Fatalf("decoded %d reports, want 1", len(reports))
	}
	if reports[0].ID != "r1" || reports[0].StreamMessageID != "1-0" {
		t.Errorf("unexpected report: %+v", reports[0])
	}
	if string(reports[0].Payload) != `{"a":1}` {
		t.Errorf("Payload = %s", reports[0].Payload)
	}
}

func TestIsRedisBusyGroupError(t *testing.T) {
	if !isRedisBusyGroupError(errors.New("BUSYGROUP Consumer Group name already exists")) {
		t.Error("expected BUSYGROUP to be recognised")
	}
	if isRedisBusyGroupError(nil) || isRedisBusyGroupError(errors.New("ERR other")) {
		t.Error("unexpected match")
	}
}

func TestNotImplemented(t *testing.T) {
	if err := newUnavailableRepo().WriteReportBatch(context.Background(), nil); !errors.Is(err, errNotImplemented) {
		t.Errorf("WriteReportBatch() error = %v", err)
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		addr    string
		want    string
		wantErr bool
	}{
		{addr: "localhost:6379", want: "localhost:6379"},
		{addr: "redis://cache:6380/2", want: "cache:6380"},
		{addr: "redis://%zz", wantErr: true},
	}
	for _, tt := range tests {
		c, err := NewClient(tt.addr)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NewClient(%q) expected an error", tt.addr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewClient(%q) error = %v", tt.addr, err)
		}
		if got := c.Options().Addr; got != tt.want {
			t.Errorf("NewClient(%q) addr = %q, want %q", tt.addr, got, tt.want)
		}
		c.Close()
	}
}
