package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"crowdtest/internal/fault"
	"crowdtest/internal/model"
)

// Missions drives the mission status state machine. Transitions commit
// first; side effects (notifications, cascades, the deletion refund) ride
// on bus events consumed at-least-once by the workers.
type Missions struct {
	store Store
	auth  Authorizer
	bus   MessageBus
}

func NewMissions(store Store, auth Authorizer, bus MessageBus) *Missions {
	return &Missions{store: store, auth: auth, bus: bus}
}

// Create registers a draft mission shell for the caller. Mission content
// authoring happens elsewhere; the ledger core only needs the row that the
// lifecycle and escrow operations hang off.
func (m *Missions) Create(ctx context.Context, actorID string, mission model.Mission) (*model.Mission, error) {
	if actorID == "" {
		return nil, fault.Unauthenticated("caller identity required")
	}
	if mission.AppName == "" {
		return nil, fault.InvalidArgument("app name is required")
	}

	now := time.Now().UTC()
	mission.ID = uuid.NewString()
	mission.ProviderID = actorID
	mission.Status = model.MissionDraft
	mission.CreatedAt = now
	mission.UpdatedAt = now

	err := m.store.RunSerializable(ctx, func(tx Tx) error {
		return tx.CreateMission(ctx, &mission)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("mission: created", "mission_id", mission.ID, "provider_id", actorID)
	return &mission, nil
}

// Submit moves a draft mission into review. Owner-only.
func (m *Missions) Submit(ctx context.Context, actorID, missionID string) (*model.Mission, error) {
	if actorID == "" {
		return nil, fault.Unauthenticated("caller identity required")
	}
	if missionID == "" {
		return nil, fault.InvalidArgument("mission id is required")
	}
	owner, err := m.auth.IsMissionOwner(ctx, actorID, missionID)
	if err != nil {
		return nil, fault.Internal(err, "authorization check failed")
	}
	if !owner {
		return nil, fault.PermissionDenied("only the mission provider can submit their missions")
	}

	return m.transition(ctx, actorID, missionID, model.MissionPending, "")
}

// Review resolves a pending mission: approval opens it, rejection sends it
// back with a reason. Admin-only.
func (m *Missions) Review(ctx context.Context, actorID string, req model.ReviewRequest) (*model.Mission, error) {
	if actorID == "" {
		return nil, fault.Unauthenticated("caller identity required")
	}
	if req.MissionID == "" {
		return nil, fault.InvalidArgument("mission id is required")
	}
	admin, err := m.auth.IsAdmin(ctx, actorID)
	if err != nil {
		return nil, fault.Internal(err, "authorization check failed")
	}
	if !admin {
		return nil, fault.PermissionDenied("only admins can review missions")
	}

	next := model.MissionOpen
	reason := ""
	if !req.Approve {
		next = model.MissionRejected
		reason = orDefault(req.RejectionReason, "no reason provided")
	}
	return m.transition(ctx, actorID, req.MissionID, next, reason)
}

// Close ends an open mission. Admin or owner.
func (m *Missions) Close(ctx context.Context, actorID, missionID, reason string) (*model.Mission, error) {
	if actorID == "" {
		return nil, fault.Unauthenticated("caller identity required")
	}
	if missionID == "" {
		return nil, fault.InvalidArgument("mission id is required")
	}
	if err := m.authorizeAdminOrOwner(ctx, actorID, missionID, "close missions"); err != nil {
		return nil, err
	}

	return m.transition(ctx, actorID, missionID, model.MissionClosed, orDefault(reason, "mission completed"))
}

// Delete removes the mission row and publishes the deletion event that the
// refund worker consumes. The delete commits before the event is published,
// so the refund path never races the deletion itself.
func (m *Missions) Delete(ctx context.Context, actorID, missionID string) error {
	if actorID == "" {
		return fault.Unauthenticated("caller identity required")
	}
	if missionID == "" {
		return fault.InvalidArgument("mission id is required")
	}
	if err := m.authorizeAdminOrOwner(ctx, actorID, missionID, "delete missions"); err != nil {
		return err
	}

	var mission *model.Mission
	err := m.store.RunSerializable(ctx, func(tx Tx) error {
		var err error
		mission, err = tx.Mission(ctx, missionID)
		if errors.Is(err, model.ErrNotFound) {
			return fault.NotFound("mission not found")
		}
		if err != nil {
			return err
		}
		return tx.DeleteMission(ctx, missionID)
	})
	if err != nil {
		return err
	}

	m.publish(model.TopicMissionDeleted, model.MissionDeleted{
		MissionID: missionID,
		AppName:   mission.AppName,
		DeletedBy: actorID,
		DeletedAt: time.Now().UTC(),
	})
	slog.Info("mission: deleted", "mission_id", missionID, "deleted_by", actorID)
	return nil
}

func (m *Missions) transition(ctx context.Context, actorID, missionID string, next model.MissionStatus, reason string) (*model.Mission, error) {
	var (
		mission *model.Mission
		from    model.MissionStatus
	)
	err := m.store.RunSerializable(ctx, func(tx Tx) error {
		var err error
		mission, err = tx.Mission(ctx, missionID)
		if errors.Is(err, model.ErrNotFound) {
			return fault.NotFound("mission not found")
		}
		if err != nil {
			return err
		}
		from = mission.Status
		if !from.CanTransitionTo(next) {
			return fault.FailedPrecondition("cannot transition from %s to %s", from, next)
		}

		mission.Status = next
		mission.StatusChangedBy = actorID
		switch next {
		case model.MissionRejected:
			mission.RejectionReason = reason
		case model.MissionClosed:
			mission.ClosureReason = reason
		}
		return tx.SetMissionStatus(ctx, mission)
	})
	if err != nil {
		return nil, err
	}

	m.publish(model.TopicMissionStatus, model.MissionStatusChanged{
		MissionID:  mission.ID,
		AppName:    mission.AppName,
		ProviderID: mission.ProviderID,
		From:       from,
		To:         next,
		Reason:     reason,
		ChangedBy:  actorID,
		ChangedAt:  time.Now().UTC(),
	})
	slog.Info("mission: status changed", "mission_id", missionID, "from", from, "to", next, "changed_by", actorID)
	return mission, nil
}

// HandleStatusChange runs the side effects for one status event. It is
// invoked by the notifier worker, at-least-once, so every effect here must
// tolerate being repeated.
func (m *Missions) HandleStatusChange(ctx context.Context, ev model.MissionStatusChanged) error {
	switch ev.To {
	case model.MissionOpen:
		return m.notify(ctx, ev, model.NotificationMissionApproved, "Mission approved",
			fmt.Sprintf("Your mission %q has been approved.", ev.AppName), nil)

	case model.MissionRejected:
		return m.notify(ctx, ev, model.NotificationMissionRejected, "Mission rejected",
			fmt.Sprintf("Your mission %q has been rejected: %s", ev.AppName, orDefault(ev.Reason, "no reason provided")),
			func(tx Tx) error {
				n, err := tx.CancelPendingApplications(ctx, ev.MissionID, "mission rejected")
				if err != nil {
					return err
				}
				if n > 0 {
					slog.Info("mission: cancelled pending applications", "mission_id", ev.MissionID, "count", n)
				}
				return nil
			})

	case model.MissionClosed:
		return m.notify(ctx, ev, model.NotificationMissionClosed, "Mission closed",
			fmt.Sprintf("Your mission %q has been closed.", ev.AppName),
			func(tx Tx) error {
				n, err := tx.CloseActiveEnrollments(ctx, ev.MissionID, "mission closed")
				if err != nil {
					return err
				}
				if n > 0 {
					slog.Info("mission: closed active enrollments", "mission_id", ev.MissionID, "count", n)
				}
				// Final payout reconciliation is driven by the payout
				// endpoint per enrollment; this marks the point where a
				// sweep would run.
				slog.Info("mission: final payout reconciliation point", "mission_id", ev.MissionID)
				return nil
			})
	}
	return nil
}

func (m *Missions) notify(ctx context.Context, ev model.MissionStatusChanged, kind model.NotificationKind, title, body string, extra func(tx Tx) error) error {
	return m.store.RunSerializable(ctx, func(tx Tx) error {
		if err := tx.CreateNotification(ctx, &model.Notification{
			UserID:    ev.ProviderID,
			Kind:      kind,
			Title:     title,
			Body:      body,
			MissionID: ev.MissionID,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		if extra != nil {
			return extra(tx)
		}
		return nil
	})
}

func (m *Missions) authorizeAdminOrOwner(ctx context.Context, actorID, missionID, action string) error {
	admin, err := m.auth.IsAdmin(ctx, actorID)
	if err != nil {
		return fault.Internal(err, "authorization check failed")
	}
	if admin {
		return nil
	}
	owner, err := m.auth.IsMissionOwner(ctx, actorID, missionID)
	if err != nil {
		return fault.Internal(err, "authorization check failed")
	}
	if !owner {
		return fault.PermissionDenied("only admins or the mission provider can %s", action)
	}
	return nil
}

func (m *Missions) publish(topic string, payload any) {
	if m.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("mission: failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := m.bus.Publish(topic, data); err != nil {
		slog.Error("mission: failed to publish event", "topic", topic, "error", err)
	}
}
