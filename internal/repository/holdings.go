package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"crowdtest/internal/model"
)

func (t *Tx) ActiveHoldings(ctx context.Context, appID string) ([]*model.Holding, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, app_id, app_name, provider_id, provider_name,
		       total_amount, remaining_amount, spent_amount, status, breakdown, created_at, updated_at
		FROM escrow_holdings
		WHERE app_id = $1 AND status = 'active'
		ORDER BY created_at`, appID)
	if err != nil {
		return nil, fmt.Errorf("select active holdings: %w", err)
	}
	defer rows.Close()

	var holdings []*model.Holding
	for rows.Next() {
		var (
			h         model.Holding
			breakdown []byte
		)
		if err := rows.Scan(&h.ID, &h.AppID, &h.AppName, &h.ProviderID, &h.ProviderName,
			&h.TotalAmount, &h.RemainingAmount, &h.SpentAmount, &h.Status, &breakdown, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		if len(breakdown) > 0 {
			if err := json.Unmarshal(breakdown, &h.Breakdown); err != nil {
				return nil, fmt.Errorf("unmarshal holding breakdown: %w", err)
			}
		}
		holdings = append(holdings, &h)
	}
	return holdings, rows.Err()
}

func (t *Tx) CreateHolding(ctx context.Context, h *model.Holding) error {
	breakdown, err := json.Marshal(h.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal holding breakdown: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO escrow_holdings
			(id, app_id, app_name, provider_id, provider_name,
			 total_amount, remaining_amount, spent_amount, status, breakdown, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		h.ID, h.AppID, h.AppName, h.ProviderID, h.ProviderName,
		h.TotalAmount, h.RemainingAmount, h.SpentAmount, h.Status, breakdown, h.CreatedAt)
	if err != nil {
		// The partial unique index on (app_id) WHERE status = 'active'
		// closes the query-then-create race between concurrent deposits.
		if pgErrCode(err) == uniqueViolation {
			return model.ErrActiveHoldingExists
		}
		return fmt.Errorf("insert holding: %w", err)
	}
	return nil
}

func (t *Tx) SettleHolding(ctx context.Context, id string, remaining, spent int64, status model.HoldingStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE escrow_holdings
		SET remaining_amount = $2,
		    spent_amount = $3,
		    status = $4,
		    completed_at = CASE WHEN $4 <> 'active' THEN now() ELSE completed_at END,
		    refunded_at = CASE WHEN $4 = 'refunded' THEN now() ELSE refunded_at END,
		    updated_at = now()
		WHERE id = $1`, id, remaining, spent, status)
	if err != nil {
		return fmt.Errorf("update holding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *Tx) AppendHoldingEntry(ctx context.Context, e *model.HoldingEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO escrow_holding_entries (holding_id, entry_type, amount, from_account, to_account, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.HoldingID, e.Type, e.Amount, e.FromAccount, e.ToAccount, e.Description, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert holding entry: %w", err)
	}
	return nil
}
