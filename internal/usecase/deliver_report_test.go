package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/faultline/internal/adapter/metrics"
	"github.com/V4T54L/faultline/internal/adapter/repository/spool"
	"github.com/V4T54L/faultline/internal/adapter/transport"
	"github.com/V4T54L/faultline/internal/domain/mocks"
)

func newDeliverFixture(reachable bool) (*DeliverReportUseCase, *mocks.MockTransport, *mocks.MockSpillQueue, *mocks.MockOracle, *metrics.DeliveryMetrics) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := &mocks.MockTransport{}
	q := &mocks.MockSpillQueue{}
	o := mocks.NewMockOracle(reachable)
	m := metrics.NewDeliveryMetrics(prometheus.NewRegistry())
	return NewDeliverReportUseCase(tr, q, o, m, logger), tr, q, o, m
}

func TestDeliverReportUseCase_Deliver(t *testing.T) {
	ctx := context.Background()

	t.Run("Unreachable Spills Without Sending", func(t *testing.T) {
		uc, tr, q, _, m := newDeliverFixture(false)
		if got := uc.Deliver(ctx, []byte("r1")); got != OutcomeSpilled {
			t.Fatalf("Deliver() = %s, want spilled", got)
		}
		if tr.AttemptCount() != 0 {
			t.Errorf("expected 0 transport calls, got %d", tr.AttemptCount())
		}
		if n, _ := q.Len(); n != 1 {
			t.Errorf("expected 1 spilled item, got %d", n)
		}
		if got := testutil.ToFloat64(m.SpoolDepth); got != 1 {
			t.Errorf("SpoolDepth = %v, want 1", got)
		}
	})

	t.Run("Reachable Sends Without Spilling", func(t *testing.T) {
		uc, tr, q, _, m := newDeliverFixture(true)
		if got := uc.Deliver(ctx, []byte("r1")); got != OutcomeSent {
			t.Fatalf("Deliver() = %s, want sent", got)
		}
		if tr.AttemptCount() != 1 || tr.SentCount() != 1 {
			t.Errorf("expected exactly 1 transport call, got %d", tr.AttemptCount())
		}
		if n, _ := q.Len(); n != 0 {
			t.Errorf("expected no spilled items, got %d", n)
		}
		if got := testutil.ToFloat64(m.ReportsTotal.WithLabelValues("sent")); got != 1 {
			t.Errorf("sent counter = %v, want 1", got)
		}
	})

	t.Run("Transient Failure Spills", func(t *testing.T) {
		uc, tr, q, _, _ := newDeliverFixture(true)
		tr.SendErr = &transport.StatusError{StatusCode: 503}
		if got := uc.Deliver(ctx, []byte("r1")); got != OutcomeSpilled {
			t.Fatalf("Deliver() = %s, want spilled", got)
		}
		if n, _ := q.Len(); n != 1 {
			t.Errorf("expected 1 spilled item, got %d", n)
		}
	})

	t.Run("Permanent Failure Drops", func(t *testing.T) {
		uc, tr, q, _, m := newDeliverFixture(true)
		tr.SendErr = fmt.Errorf("wrapped: %w", &transport.StatusError{StatusCode: 401})
		if got := uc.Deliver(ctx, []byte("r1")); got != OutcomeDropped {
			t.Fatalf("Deliver() = %s, want dropped", got)
		}
		if n, _ := q.Len(); n != 0 {
			t.Errorf("rejected reports must not be spilled, got %d", n)
		}
		if got := testutil.ToFloat64(m.ReportsTotal.WithLabelValues("dropped")); got != 1 {
			t.Errorf("dropped counter = %v, want 1", got)
		}
	})

	t.Run("Spill Failure Drops", func(t *testing.T) {
		uc, _, q, _, _ := newDeliverFixture(false)
		q.WriteErr = errors.New("disk full")
		if got := uc.Deliver(ctx, []byte("r1")); got != OutcomeDropped {
			t.Fatalf("Deliver() = %s, want dropped", got)
		}
	})
}

func TestDeliverReportUseCase_Replay(t *testing.T) {
	ctx := context.Background()

	t.Run("Drains Queue", func(t *testing.T) {
		uc, tr, q, o, m := newDeliverFixture(false)
		for i := 0; i < 4; i++ {
			uc.Deliver(ctx, []byte(fmt.Sprintf("r%d", i)))
		}
		o.Set(true)

		n, err := uc.Replay(ctx)
		if err != nil {
			t.Fatalf("Replay() error = %v", err)
		}
		if n != 4 || tr.AttemptCount() != 4 {
			t.Errorf("Replay() = %d with %d transport calls, want 4 and 4", n, tr.AttemptCount())
		}
		if left, _ := q.Len(); left != 0 {
			t.Errorf("expected empty queue, got %d", left)
		}
		for i, p := range tr.Sent {
			if string(p) != fmt.Sprintf("r%d", i) {
				t.Errorf("sent[%d] = %s, want FIFO order", i, p)
			}
		}
		if got := testutil.ToFloat64(m.ReplayedTotal); got != 4 {
			t.Errorf("ReplayedTotal = %v, want 4", got)
		}
		if got := testutil.ToFloat64(m.SpoolDepth); got != 0 {
			t.Errorf("SpoolDepth = %v, want 0", got)
		}
	})

	t.Run("Failed Items Are Lost", func(t *testing.T) {
		uc, tr, q, o, _ := newDeliverFixture(false)
		uc.Deliver(ctx, []byte("ok"))
		uc.Deliver(ctx, []byte("bad"))
		o.Set(true)
		tr.SendFunc = func(p []byte) error {
			if string(p) == "bad" {
				return errors.New("connection reset")
			}
			return nil
		}

		if _, err := uc.Replay(ctx); err != nil {
			t.Fatalf("Replay() error = %v", err)
		}
		if left, _ := q.Len(); left != 0 {
			t.Errorf("failed replay item must not be re-queued, %d left", left)
		}
		if tr.AttemptCount() != 2 || tr.SentCount() != 1 {
			t.Errorf("attempts=%d sent=%d, want 2 and 1", tr.AttemptCount(), tr.SentCount())
		}
	})

	t.Run("Save On Fail Disabled During Replay", func(t *testing.T) {
		uc, tr, _, o, _ := newDeliverFixture(false)
		uc.Deliver(ctx, []byte("r"))
		o.Set(true)

		var during bool
		tr.SendFunc = func([]byte) error {
			during = uc.SaveOnFail()
			return errors.New("fail")
		}
		uc.Replay(ctx)

		if during {
			t.Error("save-on-fail must be disabled while replaying")
		}
		if !uc.SaveOnFail() {
			t.Error("save-on-fail must be restored after replay")
		}
	})

	t.Run("Unreachable Is No-op", func(t *testing.T) {
		uc, tr, q, _, _ := newDeliverFixture(false)
		uc.Deliver(ctx, []byte("r"))
		n, err := uc.Replay(ctx)
		if err != nil || n != 0 {
			t.Fatalf("Replay() = %d, %v; want 0, nil", n, err)
		}
		if tr.AttemptCount() != 0 {
			t.Error("no transport call expected")
		}
		if left, _ := q.Len(); left != 1 {
			t.Errorf("queue should be untouched, got %d", left)
		}
	})

	t.Run("Never Concurrent With Itself", func(t *testing.T) {
		uc, tr, _, o, _ := newDeliverFixture(false)
		uc.Deliver(ctx, []byte("r"))
		o.Set(true)

		var nested int
		nestedErr := errors.New("unset")
		tr.SendFunc = func([]byte) error {
			nested, nestedErr = uc.Replay(ctx)
			return nil
		}
		uc.Replay(ctx)

		if nested != 0 || nestedErr != nil {
			t.Errorf("nested Replay() = %d, %v; want immediate 0, nil", nested, nestedErr)
		}
	})
}

func TestDeliverReportUseCase_WithSpoolRepository(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q, err := spool.NewSpoolRepository(t.TempDir(), 10, logger)
	if err != nil {
		t.Fatal(err)
	}
	tr := &mocks.MockTransport{}
	o := mocks.NewMockOracle(false)
	uc := NewDeliverReportUseCase(tr, q, o, nil, logger)

	for i := 1; i <= 11; i++ {
		uc.Deliver(ctx, []byte(fmt.Sprintf("r%d", i)))
	}
	if n, _ := q.Len(); n != 10 {
		t.Fatalf("Len() = %d, want 10", n)
	}

	// Connectivity dropping mid-pass does not interrupt the pass.
	o.Set(true)
	tr.SendFunc = func(p []byte) error {
		if string(p) == "r5" {
			o.Set(false)
		}
		return nil
	}
	n, err := uc.Replay(ctx)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if n != 10 {
		t.Errorf("Replay() = %d, want 10", n)
	}
	if string(tr.Sent[0]) != "r2" {
		t.Errorf("first replayed = %s, want r2 (r1 evicted)", tr.Sent[0])
	}
	if left, _ := q.Len(); left != 0 {
		t.Errorf("Len() after replay = %d, want 0", left)
	}
}

func TestDeliverReportUseCase_StartReplayLoop(t *testing.T) {
	uc, tr, q, o, _ := newDeliverFixture(false)
	uc.Deliver(context.Background(), []byte("r"))
	o.Set(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		uc.StartReplayLoop(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := q.Len(); n == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if tr.SentCount() != 1 {
		t.Errorf("expected the loop to replay 1 report, sent %d", tr.SentCount())
	}
}
