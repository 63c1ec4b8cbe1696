package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"crowdtest/internal/model"
)

func (t *Tx) AppendTransaction(ctx context.Context, tr *model.Transaction) error {
	meta, err := json.Marshal(tr.Metadata)
	if err != nil {
		return fmt.Errorf("marshal transaction metadata: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO transactions (id, user_id, type, amount, status, description, metadata, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tr.ID, tr.UserID, tr.Type, tr.Amount, tr.Status, tr.Description, meta, tr.CreatedAt, tr.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *Tx) TransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	var (
		tr   model.Transaction
		meta []byte
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, type, amount, status, description, metadata, created_at, completed_at
		FROM transactions
		WHERE id = $1`, id).
		Scan(&tr.ID, &tr.UserID, &tr.Type, &tr.Amount, &tr.Status, &tr.Description, &meta, &tr.CreatedAt, &tr.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select transaction: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &tr.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal transaction metadata: %w", err)
		}
	}
	return &tr, nil
}

// SetTransactionStatus is used only by the withdrawal-approval flow; the
// log is append-only for everything else. The patch is merged into the
// entry's metadata.
func (t *Tx) SetTransactionStatus(ctx context.Context, id string, status model.TransactionStatus, patch model.Metadata) error {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal metadata patch: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE transactions
		SET status = $2, metadata = COALESCE(metadata, '{}'::jsonb) || $3::jsonb, completed_at = now()
		WHERE id = $1`, id, status, patchJSON)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *Tx) CompletedOrderExists(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE metadata->>'orderId' = $1 AND status = 'completed'
		)`, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check order id: %w", err)
	}
	return exists, nil
}

// SumWithdrawalsSince totals non-cancelled withdrawals in the window;
// pending requests count against the cap because their amount is already
// reserved.
func (t *Tx) SumWithdrawalsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var total int64
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1 AND type = 'withdraw' AND status <> 'cancelled' AND created_at >= $2`,
		userID, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum withdrawals: %w", err)
	}
	return total, nil
}
