package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"crowdtest/internal/fault"
	"crowdtest/internal/model"
)

const (
	chargeMinAmount = 1_000
	chargeMaxAmount = 10_000_000

	// Rolling-window withdrawal cap per account.
	withdrawalDailyLimit = 1_000_000
	withdrawalWindow     = 24 * time.Hour
)

// Wallets covers wallet top-ups, withdrawal flow, pre-transaction
// validation and the privileged admin adjustments.
type Wallets struct {
	store Store
	auth  Authorizer
	bus   MessageBus
	cache BalanceCache
}

func NewWallets(store Store, auth Authorizer, bus MessageBus, cache BalanceCache) *Wallets {
	return &Wallets{store: store, auth: auth, bus: bus, cache: cache}
}

// ChargeWallet credits a verified top-up to the caller's own wallet,
// creating the wallet on first charge. A payment order id that was already
// completed is rejected so a replayed confirmation cannot double-credit.
func (w *Wallets) ChargeWallet(ctx context.Context, actorID string, req model.ChargeRequest) (*model.ChargeResult, error) {
	if actorID == "" {
		return nil, fault.Unauthenticated("caller identity required")
	}
	if actorID != req.UserID {
		return nil, fault.PermissionDenied("you can only charge your own wallet")
	}
	if req.Amount < chargeMinAmount {
		return nil, fault.InvalidArgument("amount must be at least %d", chargeMinAmount)
	}
	if req.Amount > chargeMaxAmount {
		return nil, fault.InvalidArgument("amount must not exceed %d", chargeMaxAmount)
	}

	now := time.Now().UTC()
	description := req.Description
	if description == "" {
		description = "point charge"
	}

	var (
		res   model.ChargeResult
		entry *model.Transaction
	)
	err := w.store.RunSerializable(ctx, func(tx Tx) error {
		if orderID := req.Metadata.String("orderId"); orderID != "" {
			exists, err := tx.CompletedOrderExists(ctx, orderID)
			if err != nil {
				return err
			}
			if exists {
				return fault.AlreadyExists("payment already processed (duplicate order id)")
			}
		}

		balance, err := w.creditOrCreate(ctx, tx, req.UserID, req.Amount, model.CounterCharged, now)
		if err != nil {
			return err
		}

		entry = completedEntry(req.UserID, model.TransactionCharge, req.Amount, description, req.Metadata, now)
		if err := tx.AppendTransaction(ctx, entry); err != nil {
			return err
		}

		res = model.ChargeResult{Balance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.invalidate(ctx, req.UserID)
	publishLedgerEvents(w.bus, []*model.Transaction{entry})
	slog.Info("wallet: charge committed", "user_id", req.UserID, "amount", req.Amount)
	return &res, nil
}

// Balance reads an account balance, serving from the cache when warm and
// falling back to the store on a miss. Accounts may read their own balance;
// admins may read any.
func (w *Wallets) Balance(ctx context.Context, actorID, accountID string) (int64, error) {
	if actorID == "" {
		return 0, fault.Unauthenticated("caller identity required")
	}
	if accountID == "" {
		return 0, fault.InvalidArgument("account id is required")
	}
	if actorID != accountID {
		admin, err := w.auth.IsAdmin(ctx, actorID)
		if err != nil {
			return 0, fault.Internal(err, "authorization check failed")
		}
		if !admin {
			return 0, fault.PermissionDenied("you can only read your own balance")
		}
	}

	if w.cache != nil {
		if balance, err := w.cache.Balance(ctx, accountID); err == nil {
			return balance, nil
		} else if !errors.Is(err, model.ErrNotFound) {
			slog.Error("wallet: cache read failed, falling back to store", "error", err)
		}
	}

	var balance int64
	err := w.store.RunSerializable(ctx, func(tx Tx) error {
		wallet, err := tx.Wallet(ctx, accountID)
		if errors.Is(err, model.ErrNotFound) {
			return fault.NotFound("wallet not found")
		}
		if err != nil {
			return err
		}
		balance = wallet.Balance
		return nil
	})
	if err != nil {
		return 0, err
	}

	if w.cache != nil {
		if err := w.cache.SetBalance(ctx, accountID, balance); err != nil {
			slog.Error("wallet: cache warm-up failed", "error", err)
		}
	}
	return balance, nil
}

// ValidateTransaction is the read-only precondition check callers run
// before attempting a mutation. It returns a verdict, not an error, for
// business-rule outcomes.
func (w *Wallets) ValidateTransaction(ctx context.Context, actorID string, req model.ValidateRequest) (*model.ValidateResult, error) {
	if actorID == "" {
		return nil, fault.Unauthenticated("caller identity required")
	}
	if actorID != req.UserID {
		return nil, fault.PermissionDenied("you can only validate your own transactions")
	}
	if req.Type == "" || req.Amount <= 0 {
		return nil, fault.InvalidArgument("a transaction type and positive amount are required")
	}

	var res model.ValidateResult
	err := w.store.RunSerializable(ctx, func(tx Tx) error {
		wallet, err := tx.Wallet(ctx, req.UserID)
		if errors.Is(err, model.ErrNotFound) {
			return fault.NotFound("wallet not found")
		}
		if err != nil {
			return err
		}

		res = model.ValidateResult{Valid: true, CurrentBalance: wallet.Balance}

		if req.Type != model.TransactionSpend && req.Type != model.TransactionWithdraw {
			return nil
		}
		if wallet.Balance < req.Amount {
			res = model.ValidateResult{
				Valid:          false,
				Reason:         model.ValidationInsufficientBalance,
				Message:        fmt.Sprintf("insufficient balance: available %d, required %d", wallet.Balance, req.Amount),
				CurrentBalance: wallet.Balance,
			}
			return nil
		}
		if req.Type == model.TransactionWithdraw {
			windowTotal, err := tx.SumWithdrawalsSince(ctx, req.UserID, time.Now().UTC().Add(-withdrawalWindow))
			if err != nil {
				return err
			}
			if windowTotal+req.Amount > withdrawalDailyLimit {
				res = model.ValidateResult{
					Valid:          false,
					Reason:         model.ValidationDailyLimitExceeded,
					Message:        fmt.Sprintf("daily withdrawal limit exceeded: withdrawn %d in the last 24h, limit %d", windowTotal, withdrawalDailyLimit),
					CurrentBalance: wallet.Balance,
					WindowTotal:    windowTotal,
					Limit:          withdrawalDailyLimit,
				}
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// RequestWithdrawal reserves the amount by debiting the wallet and records
// a pending withdraw entry awaiting admin approval.
func (w *Wallets) RequestWithdrawal(ctx context.Context, actorID string, req model.WithdrawalRequest) (*model.WithdrawalResult, error) {
	if actorID == "" {
		return nil, fault.Unauthenticated("caller identity required")
	}
	if actorID != req.UserID {
		return nil, fault.PermissionDenied("you can only withdraw from your own wallet")
	}
	if req.Amount <= 0 {
		return nil, fault.InvalidArgument("a positive amount is required")
	}

	now := time.Now().UTC()

	var (
		res   model.WithdrawalResult
		entry *model.Transaction
	)
	err := w.store.RunSerializable(ctx, func(tx Tx) error {
		wallet, err := tx.Wallet(ctx, req.UserID)
		if errors.Is(err, model.ErrNotFound) {
			return fault.NotFound("wallet not found")
		}
		if err != nil {
			return err
		}
		if wallet.Balance < req.Amount {
			return fault.FailedPrecondition("insufficient balance: required %d, available %d", req.Amount, wallet.Balance)
		}

		windowTotal, err := tx.SumWithdrawalsSince(ctx, req.UserID, now.Add(-withdrawalWindow))
		if err != nil {
			return err
		}
		if windowTotal+req.Amount > withdrawalDailyLimit {
			return fault.FailedPrecondition("daily withdrawal limit exceeded: withdrawn %d in the last 24h, limit %d", windowTotal, withdrawalDailyLimit)
		}

		balance, err := tx.ApplyWalletDelta(ctx, req.UserID, -req.Amount, model.CounterNone, 0)
		if err != nil {
			return err
		}

		entry = &model.Transaction{
			ID:          uuid.NewString(),
			UserID:      req.UserID,
			Type:        model.TransactionWithdraw,
			Amount:      req.Amount,
			Status:      model.TransactionPending,
			Description: "withdrawal request",
			CreatedAt:   now,
		}
		if err := tx.AppendTransaction(ctx, entry); err != nil {
			return err
		}

		res = model.WithdrawalResult{TransactionID: entry.ID, Balance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.invalidate(ctx, req.UserID)
	publishLedgerEvents(w.bus, []*model.Transaction{entry})
	slog.Info("wallet: withdrawal requested", "user_id", req.UserID, "amount", req.Amount, "transaction_id", res.TransactionID)
	return &res, nil
}

// ProcessWithdrawal resolves a pending withdrawal: approval completes the
// entry and bumps the withdrawn counter, rejection cancels it and credits
// the reserved amount back, all in one transaction.
func (w *Wallets) ProcessWithdrawal(ctx context.Context, actorID string, dec model.WithdrawalDecision) error {
	if actorID == "" {
		return fault.Unauthenticated("caller identity required")
	}
	admin, err := w.auth.IsAdmin(ctx, actorID)
	if err != nil {
		return fault.Internal(err, "authorization check failed")
	}
	if !admin {
		return fault.PermissionDenied("only admins can process withdrawals")
	}
	if dec.TransactionID == "" {
		return fault.InvalidArgument("transaction id is required")
	}

	var userID string
	err = w.store.RunSerializable(ctx, func(tx Tx) error {
		entry, err := tx.TransactionByID(ctx, dec.TransactionID)
		if errors.Is(err, model.ErrNotFound) {
			return fault.NotFound("transaction not found")
		}
		if err != nil {
			return err
		}
		if entry.Type != model.TransactionWithdraw {
			return fault.InvalidArgument("not a withdrawal transaction")
		}
		if entry.Status != model.TransactionPending {
			return fault.FailedPrecondition("transaction already processed")
		}
		userID = entry.UserID

		if dec.Approve {
			if _, err := tx.ApplyWalletDelta(ctx, entry.UserID, 0, model.CounterWithdrawn, entry.Amount); err != nil {
				return err
			}
			return tx.SetTransactionStatus(ctx, entry.ID, model.TransactionCompleted, model.Metadata{
				"processedBy": actorID,
			})
		}

		// Rejection: compensating credit of the reserved amount.
		if _, err := tx.ApplyWalletDelta(ctx, entry.UserID, entry.Amount, model.CounterNone, 0); err != nil {
			return err
		}
		reason := dec.Reason
		if reason == "" {
			reason = "rejected by admin"
		}
		return tx.SetTransactionStatus(ctx, entry.ID, model.TransactionCancelled, model.Metadata{
			"processedBy":     actorID,
			"rejectionReason": reason,
		})
	})
	if err != nil {
		return err
	}

	w.invalidate(ctx, userID)
	slog.Info("wallet: withdrawal processed", "transaction_id", dec.TransactionID, "approved", dec.Approve)
	return nil
}

// AdjustBalance is the privileged direct mutation: grant adds points,
// deduct removes them flooring at zero, reset zeroes the account. The user
// point counter and the wallet move together, and the audit entry carries
// before/after snapshots of both.
func (w *Wallets) AdjustBalance(ctx context.Context, actorID string, req model.AdjustRequest) (*model.AdjustResult, error) {
	if actorID == "" {
		return nil, fault.Unauthenticated("caller identity required")
	}
	admin, err := w.auth.IsAdmin(ctx, actorID)
	if err != nil {
		return nil, fault.Internal(err, "authorization check failed")
	}
	if !admin {
		return nil, fault.PermissionDenied("only admins can adjust user points")
	}
	if req.UserID == "" {
		return nil, fault.InvalidArgument("user id is required")
	}
	switch req.AdjustmentType {
	case model.AdjustGrant, model.AdjustDeduct:
		if req.Amount <= 0 {
			return nil, fault.InvalidArgument("amount must be a positive number for %s", req.AdjustmentType)
		}
	case model.AdjustReset:
	default:
		return nil, fault.InvalidArgument("adjustment type must be grant, deduct or reset")
	}

	now := time.Now().UTC()

	var (
		res   model.AdjustResult
		entry *model.Transaction
	)
	err = w.store.RunSerializable(ctx, func(tx Tx) error {
		user, err := tx.User(ctx, req.UserID)
		if errors.Is(err, model.ErrNotFound) {
			return fault.NotFound("user not found")
		}
		if err != nil {
			return err
		}

		wallet, err := tx.Wallet(ctx, req.UserID)
		if errors.Is(err, model.ErrNotFound) {
			wallet = &model.Wallet{AccountID: req.UserID, CreatedAt: now, UpdatedAt: now}
			if err := tx.CreateWallet(ctx, wallet); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		var (
			newPoints int64
			delta     int64
			counter   model.Counter
			logAmount int64
		)
		switch req.AdjustmentType {
		case model.AdjustGrant:
			newPoints = user.Points + req.Amount
			delta = req.Amount
			counter = model.CounterEarned
			logAmount = req.Amount
		case model.AdjustDeduct:
			newPoints = max(0, user.Points-req.Amount)
			// Floor at zero: only what the wallet actually holds is removed,
			// so the log stays a faithful running sum.
			delta = -min(req.Amount, wallet.Balance)
			counter = model.CounterSpent
			logAmount = -delta
		case model.AdjustReset:
			newPoints = 0
			delta = -wallet.Balance
			counter = model.CounterSpent
			logAmount = wallet.Balance
		}

		newBalance := wallet.Balance
		if delta != 0 || counter != model.CounterNone {
			newBalance, err = tx.ApplyWalletDelta(ctx, req.UserID, delta, counter, logAmount)
			if err != nil {
				return err
			}
		}
		if err := tx.SetUserPoints(ctx, req.UserID, newPoints); err != nil {
			return err
		}

		entry = completedEntry(req.UserID, model.TransactionAdminAdjustment, logAmount,
			fmt.Sprintf("admin point adjustment: %s", req.AdjustmentType),
			model.Metadata{
				"adminId":         actorID,
				"adjustmentType":  string(req.AdjustmentType),
				"reason":          orDefault(req.Reason, "no reason provided"),
				"previousPoints":  user.Points,
				"newPoints":       newPoints,
				"previousBalance": wallet.Balance,
				"newBalance":      newBalance,
			}, now)
		if err := tx.AppendTransaction(ctx, entry); err != nil {
			return err
		}

		res = model.AdjustResult{
			UserID:         req.UserID,
			AdjustmentType: req.AdjustmentType,
			Amount:         logAmount,
			Balance:        newBalance,
			Points:         newPoints,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.invalidate(ctx, req.UserID)
	publishLedgerEvents(w.bus, []*model.Transaction{entry})
	slog.Info("wallet: admin adjustment committed",
		"user_id", req.UserID, "type", req.AdjustmentType, "amount", res.Amount, "admin_id", actorID)
	return &res, nil
}

// SuspendUser flips an account's suspension flag, optionally for a fixed
// number of days. Admins cannot suspend themselves.
func (w *Wallets) SuspendUser(ctx context.Context, actorID string, req model.SuspendRequest) error {
	if actorID == "" {
		return fault.Unauthenticated("caller identity required")
	}
	admin, err := w.auth.IsAdmin(ctx, actorID)
	if err != nil {
		return fault.Internal(err, "authorization check failed")
	}
	if !admin {
		return fault.PermissionDenied("only admins can suspend users")
	}
	if req.UserID == "" {
		return fault.InvalidArgument("user id is required")
	}
	if req.UserID == actorID {
		return fault.PermissionDenied("cannot suspend your own account")
	}

	var until *time.Time
	if req.Suspend && req.DurationDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, req.DurationDays)
		until = &t
	}

	err = w.store.RunSerializable(ctx, func(tx Tx) error {
		if _, err := tx.User(ctx, req.UserID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return fault.NotFound("user not found")
			}
			return err
		}
		return tx.SetUserSuspension(ctx, req.UserID, req.Suspend, req.Reason, actorID, until)
	})
	if err != nil {
		return err
	}

	slog.Info("wallet: user suspension updated", "user_id", req.UserID, "suspended", req.Suspend, "admin_id", actorID)
	return nil
}

func (w *Wallets) creditOrCreate(ctx context.Context, tx Tx, accountID string, amount int64, counter model.Counter, now time.Time) (int64, error) {
	balance, err := tx.ApplyWalletDelta(ctx, accountID, amount, counter, amount)
	if errors.Is(err, model.ErrNotFound) {
		wallet := &model.Wallet{AccountID: accountID, CreatedAt: now, UpdatedAt: now}
		if err := tx.CreateWallet(ctx, wallet); err != nil {
			return 0, err
		}
		return tx.ApplyWalletDelta(ctx, accountID, amount, counter, amount)
	}
	return balance, err
}

func (w *Wallets) invalidate(ctx context.Context, accountIDs ...string) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Invalidate(ctx, accountIDs...); err != nil {
		slog.Error("wallet: cache invalidation failed", "error", err)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
