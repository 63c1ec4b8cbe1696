package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"crowdtest/internal/model"
)

func (t *Tx) Wallet(ctx context.Context, accountID string) (*model.Wallet, error) {
	var w model.Wallet
	err := t.tx.QueryRow(ctx, `
		SELECT account_id, balance, total_charged, total_earned, total_spent, total_withdrawn, created_at, updated_at
		FROM wallets
		WHERE account_id = $1`, accountID).
		Scan(&w.AccountID, &w.Balance, &w.TotalCharged, &w.TotalEarned, &w.TotalSpent, &w.TotalWithdrawn, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select wallet: %w", err)
	}
	return &w, nil
}

func (t *Tx) CreateWallet(ctx context.Context, w *model.Wallet) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO wallets (account_id, balance, total_charged, total_earned, total_spent, total_withdrawn, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		w.AccountID, w.Balance, w.TotalCharged, w.TotalEarned, w.TotalSpent, w.TotalWithdrawn)
	if err != nil {
		if pgErrCode(err) == uniqueViolation {
			return fmt.Errorf("wallet %s already exists: %w", w.AccountID, err)
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

func (t *Tx) ApplyWalletDelta(ctx context.Context, accountID string, delta int64, counter model.Counter, counterDelta int64) (int64, error) {
	query := `UPDATE wallets SET balance = balance + $2, updated_at = now() WHERE account_id = $1 RETURNING balance`
	args := []any{accountID, delta}
	if counter != model.CounterNone {
		col, err := counterColumn(counter)
		if err != nil {
			return 0, err
		}
		query = fmt.Sprintf(
			`UPDATE wallets SET balance = balance + $2, %s = %s + $3, updated_at = now() WHERE account_id = $1 RETURNING balance`,
			col, col)
		args = append(args, counterDelta)
	}

	var balance int64
	err := t.tx.QueryRow(ctx, query, args...).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, model.ErrNotFound
	}
	if err != nil {
		if pgErrCode(err) == checkViolation {
			return 0, model.ErrInsufficientFunds
		}
		return 0, fmt.Errorf("update wallet: %w", err)
	}
	return balance, nil
}

// counterColumn whitelists the monotonic counter columns; the column name
// is interpolated into SQL and must never come from input.
func counterColumn(c model.Counter) (string, error) {
	switch c {
	case model.CounterCharged, model.CounterEarned, model.CounterSpent, model.CounterWithdrawn:
		return string(c), nil
	default:
		return "", fmt.Errorf("unknown wallet counter %q", c)
	}
}
