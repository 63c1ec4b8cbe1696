package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdtest/internal/model"
)

// Authorizer answers role and ownership questions directly against
// Postgres, outside of the serializable transaction scope.
type Authorizer struct {
	pool *pgxpool.Pool
}

func NewAuthorizer(pool *pgxpool.Pool) *Authorizer {
	return &Authorizer{pool: pool}
}

func (a *Authorizer) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var admin bool
	err := a.pool.QueryRow(ctx, `SELECT $2 = ANY(roles) FROM users WHERE id = $1`, userID, model.RoleAdmin).Scan(&admin)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select user roles: %w", err)
	}
	return admin, nil
}

func (a *Authorizer) IsMissionOwner(ctx context.Context, userID, missionID string) (bool, error) {
	var providerID string
	err := a.pool.QueryRow(ctx, `SELECT provider_id FROM missions WHERE id = $1`, missionID).Scan(&providerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select mission owner: %w", err)
	}
	return providerID == userID, nil
}
