package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/V4T54L/faultline/internal/adapter/metrics"
	"github.com/V4T54L/faultline/internal/adapter/transport"
	"github.com/V4T54L/faultline/internal/domain"
)

// Outcome is what happened to a delivered payload.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSpilled Outcome = "spilled"
	OutcomeDropped Outcome = "dropped"
)

// DeliverReportUseCase sends serialized reports, parking them in the spill
// queue while the network is down and replaying them once it is back.
type DeliverReportUseCase struct {
	transport domain.Transport
	queue     domain.SpillQueue
	oracle    domain.ConnectivityOracle
	metrics   *metrics.DeliveryMetrics
	logger    *slog.Logger

	saveOnFail atomic.Bool
	replaying  atomic.Bool
}

// NewDeliverReportUseCase creates a new DeliverReportUseCase. m may be nil.
func NewDeliverReportUseCase(t domain.Transport, q domain.SpillQueue, o domain.ConnectivityOracle, m *metrics.DeliveryMetrics, logger *slog.Logger) *DeliverReportUseCase {
	uc := &DeliverReportUseCase{
		transport: t,
		queue:     q,
		oracle:    o,
		metrics:   m,
		logger:    logger.With("component", "delivery_manager"),
	}
	uc.saveOnFail.Store(true)
	return uc
}

// Deliver transmits payload when the network is reachable and spills it
// otherwise. A transient send failure spills too, unless a replay is running.
func (uc *DeliverReportUseCase) Deliver(ctx context.Context, payload []byte) Outcome {
	if !uc.oracle.IsReachable() {
		uc.logger.Debug("Network unreachable, spilling report")
		return uc.spill(ctx, payload)
	}

	err := uc.transport.Send(ctx, payload)
	if err == nil {
		uc.record(OutcomeSent)
		return OutcomeSent
	}

	if transport.IsPermanent(err) {
		uc.logger.Error("Endpoint rejected report, dropping", "error", err)
		uc.record(OutcomeDropped)
		return OutcomeDropped
	}
	if uc.saveOnFail.Load() {
		uc.logger.Warn("Failed to send report, spilling", "error", err)
		return uc.spill(ctx, payload)
	}

	uc.logger.Warn("Failed to send report during replay, dropping", "error", err)
	uc.record(OutcomeDropped)
	return OutcomeDropped
}

// Replay sends every spilled report once. It does nothing while the network
// is unreachable or another replay is running. Reports that fail again are
// lost, and while it runs failed live sends are dropped instead of spilled.
func (uc *DeliverReportUseCase) Replay(ctx context.Context) (int, error) {
	if !uc.oracle.IsReachable() {
		return 0, nil
	}
	if !uc.replaying.CompareAndSwap(false, true) {
		uc.logger.Debug("Replay already running, skipping")
		return 0, nil
	}
	defer uc.replaying.Store(false)

	prev := uc.saveOnFail.Swap(false)
	defer uc.saveOnFail.Store(prev)

	n, err := uc.queue.Replay(ctx, func(item domain.SpillItem) error {
		if uc.metrics != nil {
			uc.metrics.ReplayedTotal.Inc()
		}
		// The queue is locked for the pass, so a failed item cannot be spilled again.
		if err := uc.transport.Send(ctx, item.Payload); err != nil {
			uc.record(OutcomeDropped)
			return fmt.Errorf("failed to replay report in slot %d: %w", item.Slot, err)
		}
		uc.record(OutcomeSent)
		return nil
	})
	uc.updateDepth()
	if err != nil {
		return n, fmt.Errorf("spool replay failed: %w", err)
	}
	if n > 0 {
		uc.logger.Info("Replayed spilled reports", "count", n)
	}
	return n, nil
}

// StartReplayLoop replays the spill queue every interval until ctx is done.
func (uc *DeliverReportUseCase) StartReplayLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	uc.logger.Info("Starting spill queue replayer", "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			uc.logger.Info("Stopping spill queue replayer")
			return
		case <-ticker.C:
			if !uc.oracle.IsReachable() {
				continue
			}
			if n, err := uc.queue.Len(); err != nil || n == 0 {
				continue
			}
			if _, err := uc.Replay(ctx); err != nil {
				uc.logger.Error("Periodic replay failed", "error", err)
			}
		}
	}
}

// SaveOnFail reports whether failed sends are currently spilled.
func (uc *DeliverReportUseCase) SaveOnFail() bool {
	return uc.saveOnFail.Load()
}

func (uc *DeliverReportUseCase) spill(ctx context.Context, payload []byte) Outcome {
	slot, err := uc.queue.Write(ctx, payload)
	if err != nil {
		uc.logger.Error("Failed to spill report, dropping", "error", err)
		uc.record(OutcomeDropped)
		return OutcomeDropped
	}
	uc.logger.Info("Report spilled", "slot", slot)
	uc.record(OutcomeSpilled)
	uc.updateDepth()
	return OutcomeSpilled
}

func (uc *DeliverReportUseCase) record(o Outcome) {
	if uc.metrics != nil {
		uc.metrics.ReportsTotal.WithLabelValues(string(o)).Inc()
	}
}

func (uc *DeliverReportUseCase) updateDepth() {
	if uc.metrics == nil {
		return
	}
	if n, err := uc.queue.Len(); err == nil {
		uc.metrics.SpoolDepth.Set(float64(n))
	}
}
