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

// NotifierWorker reacts to mission status transitions: it writes the
// provider notification and cascades to applications and enrollments.
type NotifierWorker struct {
	missions service.MissionService
	natsConn *nats.Conn
}

func NewNotifierWorker(missions service.MissionService, nc *nats.Conn) *NotifierWorker {
	return &NotifierWorker{missions: missions, natsConn: nc}
}

// Start subscribes to the status topic and blocks until ctx is cancelled.
func (w *NotifierWorker) Start(ctx context.Context) error {
	sub, err := w.natsConn.QueueSubscribe(model.TopicMissionStatus, "notifier_group", func(m *nats.Msg) {
		var ev model.MissionStatusChanged
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			slog.Error("notifier worker: failed to unmarshal status event", "error", err)
			return
		}

		if err := w.missions.HandleStatusChange(ctx, ev); err != nil {
			slog.Error("notifier worker: status handling failed",
				"mission_id", ev.MissionID,
				"from", ev.From,
				"to", ev.To,
				"error", err,
			)
			return
		}

		slog.Info("notifier worker: status change handled",
			"mission_id", ev.MissionID,
			"to", ev.To,
		)
	})
	if err != nil {
		return fmt.Errorf("notifier worker: failed to subscribe to NATS: %w", err)
	}

	slog.Info("Notifier worker is running")

	<-ctx.Done()

	slog.Info("Notifier worker shutting down, draining subscription...")
	return sub.Drain()
}

func (w *NotifierWorker) Stop(ctx context.Context) error {
	return nil
}
