package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"crowdtest/internal/model"
)

func (t *Tx) User(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, roles, points, suspended, COALESCE(suspend_reason, ''), suspended_until, created_at, updated_at
		FROM users
		WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Roles, &u.Points, &u.Suspended, &u.SuspendReason, &u.SuspendedUntil, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

func (t *Tx) SetUserPoints(ctx context.Context, id string, points int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE users SET points = $2, updated_at = now() WHERE id = $1`, id, points)
	if err != nil {
		return fmt.Errorf("update user points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *Tx) SetUserSuspension(ctx context.Context, id string, suspended bool, reason, by string, until *time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE users
		SET suspended = $2,
		    suspend_reason = NULLIF($3, ''),
		    suspended_by = NULLIF($4, ''),
		    suspended_until = $5,
		    updated_at = now()
		WHERE id = $1`, id, suspended, reason, by, until)
	if err != nil {
		return fmt.Errorf("update user suspension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
