package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"crowdtest/internal/model"
	"crowdtest/internal/service"
)

// RefundWorker listens for mission deletion events and releases any
// escrow still held for the deleted mission back to its provider.
type RefundWorker struct {
	escrow   service.EscrowService
	natsConn *nats.Conn
}

func NewRefundWorker(escrow service.EscrowService, nc *nats.Conn) *RefundWorker {
	return &RefundWorker{escrow: escrow, natsConn: nc}
}

// Start subscribes to the deletion topic and blocks until ctx is cancelled.
func (w *RefundWorker) Start(ctx context.Context) error {
	// QueueSubscribe so only one instance in the group handles each
	// deletion; the refund itself is idempotent either way.
	sub, err := w.natsConn.QueueSubscribe(model.TopicMissionDeleted, "refund_group", func(m *nats.Msg) {
		var ev model.MissionDeleted
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			slog.Error("refund worker: failed to unmarshal deletion event", "error", err)
			return
		}

		res, err := w.escrow.AutoRefund(ctx, ev)
		if err != nil {
			slog.Error("refund worker: auto refund failed",
				"mission_id", ev.MissionID,
				"app_name", ev.AppName,
				"error", err,
			)
			return
		}

		slog.Info("refund worker: mission escrow released",
			"mission_id", res.MissionID,
			"holdings_found", res.HoldingsFound,
			"total_refunded", res.TotalRefunded,
		)
	})
	if err != nil {
		return fmt.Errorf("refund worker: failed to subscribe to NATS: %w", err)
	}

	slog.Info("Refund worker is running")

	<-ctx.Done()

	slog.Info("Refund worker shutting down, draining subscription...")
	return sub.Drain()
}

func (w *RefundWorker) Stop(ctx context.Context) error {
	return nil
}
