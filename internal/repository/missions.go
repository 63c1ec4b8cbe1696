package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"crowdtest/internal/model"
)

func (t *Tx) Mission(ctx context.Context, id string) (*model.Mission, error) {
	var m model.Mission
	err := t.tx.QueryRow(ctx, `
		SELECT id, app_name, provider_id, status,
		       COALESCE(rejection_reason, ''), COALESCE(closure_reason, ''), COALESCE(status_changed_by, ''),
		       created_at, updated_at
		FROM missions
		WHERE id = $1`, id).
		Scan(&m.ID, &m.AppName, &m.ProviderID, &m.Status,
			&m.RejectionReason, &m.ClosureReason, &m.StatusChangedBy, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select mission: %w", err)
	}
	return &m, nil
}

func (t *Tx) CreateMission(ctx context.Context, m *model.Mission) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO missions (id, app_name, provider_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		m.ID, m.AppName, m.ProviderID, m.Status, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert mission: %w", err)
	}
	return nil
}

func (t *Tx) SetMissionStatus(ctx context.Context, m *model.Mission) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE missions
		SET status = $2,
		    rejection_reason = NULLIF($3, ''),
		    closure_reason = NULLIF($4, ''),
		    status_changed_by = $5,
		    updated_at = now()
		WHERE id = $1`,
		m.ID, m.Status, m.RejectionReason, m.ClosureReason, m.StatusChangedBy)
	if err != nil {
		return fmt.Errorf("update mission status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *Tx) DeleteMission(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM missions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete mission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *Tx) CancelPendingApplications(ctx context.Context, missionID, reason string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE applications
		SET status = 'cancelled', cancel_reason = $2, updated_at = now()
		WHERE mission_id = $1 AND status = 'pending'`, missionID, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel pending applications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *Tx) CloseActiveEnrollments(ctx context.Context, missionID, reason string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE enrollments
		SET status = 'completed', completion_reason = $2, updated_at = now()
		WHERE mission_id = $1 AND status = 'active'`, missionID, reason)
	if err != nil {
		return 0, fmt.Errorf("close active enrollments: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *Tx) CreateNotification(ctx context.Context, n *model.Notification) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO notifications (user_id, kind, title, body, mission_id, read, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), false, $6)`,
		n.UserID, n.Kind, n.Title, n.Body, n.MissionID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
