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

// Escrow orchestrates deposits into, payouts from and refunds of mission
// holdings. Every operation is one serializable store transaction spanning
// the wallets, the transaction log and the holding: it either commits in
// full or leaves nothing behind.
type Escrow struct {
	store Store
	auth  Authorizer
	bus   MessageBus
	cache BalanceCache
}

func NewEscrow(store Store, auth Authorizer, bus MessageBus, cache BalanceCache) *Escrow {
	return &Escrow{store: store, auth: auth, bus: bus, cache: cache}
}

// Deposit moves amount from the provider wallet into the escrow wallet and
// opens an active holding for the app. Only the provider may deposit for
// their own app.
func (e *Escrow) Deposit(ctx context.Context, actorID string, req model.DepositRequest) (*model.DepositResult, error) {
	if actorID == "" {
		return nil, fault.Unauthenticated("caller identity required")
	}
	if req.AppID == "" || req.ProviderID == "" || req.Amount <= 0 {
		return nil, fault.InvalidArgument("app id, provider id and a positive amount are required")
	}
	if actorID != req.ProviderID {
		return nil, fault.PermissionDenied("you can only deposit for your own apps")
	}

	now := time.Now().UTC()
	breakdown := req.Breakdown.WithRewardSystem(model.RewardSystemV2)

	var (
		res     model.DepositResult
		entries []*model.Transaction
	)
	err := e.store.RunSerializable(ctx, func(tx Tx) error {
		entries = entries[:0]

		provider, err := tx.Wallet(ctx, req.ProviderID)
		if errors.Is(err, model.ErrNotFound) {
			return fault.NotFound("provider wallet not found")
		}
		if err != nil {
			return err
		}
		if provider.Balance < req.Amount {
			return fault.FailedPrecondition("insufficient balance: required %d, available %d", req.Amount, provider.Balance)
		}

		if _, err := tx.Wallet(ctx, model.EscrowAccountID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return fault.NotFound("escrow wallet not found")
			}
			return err
		}

		providerBalance, err := tx.ApplyWalletDelta(ctx, req.ProviderID, -req.Amount, model.CounterSpent, req.Amount)
		if err != nil {
			return err
		}
		escrowBalance, err := tx.ApplyWalletDelta(ctx, model.EscrowAccountID, req.Amount, model.CounterEarned, req.Amount)
		if err != nil {
			return err
		}

		holding := &model.Holding{
			ID:              uuid.NewString(),
			AppID:           req.AppID,
			AppName:         req.AppName,
			ProviderID:      req.ProviderID,
			ProviderName:    req.ProviderName,
			TotalAmount:     req.Amount,
			RemainingAmount: req.Amount,
			SpentAmount:     0,
			Status:          model.HoldingActive,
			Breakdown:       breakdown,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.CreateHolding(ctx, holding); err != nil {
			if errors.Is(err, model.ErrActiveHoldingExists) {
				return fault.AlreadyExists("an active escrow holding already exists for app %s", req.AppID)
			}
			return err
		}
		if err := tx.AppendHoldingEntry(ctx, &model.HoldingEntry{
			HoldingID:   holding.ID,
			Type:        model.HoldingEntryDeposit,
			Amount:      req.Amount,
			FromAccount: req.ProviderID,
			ToAccount:   model.EscrowAccountID,
			Description: "escrow deposit on app registration",
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		providerEntry := completedEntry(req.ProviderID, model.TransactionSpend, req.Amount,
			fmt.Sprintf("escrow deposit for app registration: %s", req.AppName),
			model.Metadata{
				"appId":      req.AppID,
				"appName":    req.AppName,
				"escrowType": "deposit",
				"holdingId":  holding.ID,
			}, now)
		escrowEntry := completedEntry(model.EscrowAccountID, model.TransactionEarn, req.Amount,
			fmt.Sprintf("escrow deposit received: %s (provider: %s)", req.AppName, req.ProviderName),
			model.Metadata{
				"appId":        req.AppID,
				"appName":      req.AppName,
				"providerId":   req.ProviderID,
				"providerName": req.ProviderName,
				"escrowType":   "deposit",
				"holdingId":    holding.ID,
			}, now)
		for _, t := range []*model.Transaction{providerEntry, escrowEntry} {
			if err := tx.AppendTransaction(ctx, t); err != nil {
				return err
			}
			entries = append(entries, t)
		}

		res = model.DepositResult{
			HoldingID:       holding.ID,
			ProviderBalance: providerBalance,
			EscrowBalance:   escrowBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(ctx, req.ProviderID, model.EscrowAccountID)
	publishLedgerEvents(e.bus, entries)
	slog.Info("escrow: deposit committed", "app_id", req.AppID, "amount", req.Amount, "holding_id", res.HoldingID)
	return &res, nil
}

// Payout releases amount from the app's active holding to a tester wallet.
// Authorized for admins and the mission's provider. Version-2.0 holdings
// only accept the final completion reward with every day completed.
func (e *Escrow) Payout(ctx context.Context, actorID string, req model.PayoutRequest) (*model.PayoutResult, error) {
	if actorID == "" {
		return nil, fault.Unauthenticated("caller identity required")
	}
	if req.AppID == "" || req.TesterID == "" || req.Amount <= 0 {
		return nil, fault.InvalidArgument("app id, tester id and a positive amount are required")
	}
	if err := e.authorizeMissionActor(ctx, actorID, req.AppID, "payouts"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	description := req.Description
	if description == "" {
		description = "mission completion reward"
	}

	var (
		res     model.PayoutResult
		entries []*model.Transaction
	)
	err := e.store.RunSerializable(ctx, func(tx Tx) error {
		entries = entries[:0]

		holdings, err := tx.ActiveHoldings(ctx, req.AppID)
		if err != nil {
			return err
		}
		if len(holdings) == 0 {
			return fault.NotFound("no active escrow holding found for app %s", req.AppID)
		}
		holding := holdings[0]

		if err := holding.CheckPayoutGate(req.Metadata); err != nil {
			return fault.FailedPrecondition("%s", err.Error())
		}
		if holding.RemainingAmount < req.Amount {
			return fault.FailedPrecondition("insufficient escrow balance: required %d, available %d", req.Amount, holding.RemainingAmount)
		}

		if _, err := tx.Wallet(ctx, model.EscrowAccountID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return fault.NotFound("escrow wallet not found")
			}
			return err
		}
		if _, err := tx.Wallet(ctx, req.TesterID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return fault.NotFound("tester wallet not found")
			}
			return err
		}

		escrowBalance, err := tx.ApplyWalletDelta(ctx, model.EscrowAccountID, -req.Amount, model.CounterSpent, req.Amount)
		if err != nil {
			return err
		}
		testerBalance, err := tx.ApplyWalletDelta(ctx, req.TesterID, req.Amount, model.CounterEarned, req.Amount)
		if err != nil {
			return err
		}

		remaining := holding.RemainingAmount - req.Amount
		spent := holding.SpentAmount + req.Amount
		status := model.HoldingActive
		if remaining == 0 {
			status = model.HoldingCompleted
		}
		if err := tx.SettleHolding(ctx, holding.ID, remaining, spent, status); err != nil {
			return err
		}
		if err := tx.AppendHoldingEntry(ctx, &model.HoldingEntry{
			HoldingID:   holding.ID,
			Type:        model.HoldingEntryPayout,
			Amount:      req.Amount,
			FromAccount: model.EscrowAccountID,
			ToAccount:   req.TesterID,
			Description: description,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		meta := model.Metadata{
			"appId":      req.AppID,
			"testerId":   req.TesterID,
			"testerName": req.TesterName,
			"escrowType": "payout",
			"holdingId":  holding.ID,
		}
		for k, v := range req.Metadata {
			meta[k] = v
		}
		escrowEntry := completedEntry(model.EscrowAccountID, model.TransactionSpend, req.Amount,
			fmt.Sprintf("escrow payout: %s (tester: %s)", description, req.TesterName), meta, now)
		testerEntry := completedEntry(req.TesterID, model.TransactionEarn, req.Amount, description,
			model.Metadata{
				"appId":      req.AppID,
				"escrowType": "payout",
				"holdingId":  holding.ID,
			}, now)
		for k, v := range req.Metadata {
			testerEntry.Metadata[k] = v
		}
		for _, t := range []*model.Transaction{escrowEntry, testerEntry} {
			if err := tx.AppendTransaction(ctx, t); err != nil {
				return err
			}
			entries = append(entries, t)
		}

		res = model.PayoutResult{
			TesterBalance:   testerBalance,
			EscrowBalance:   escrowBalance,
			RemainingEscrow: remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(ctx, req.TesterID, model.EscrowAccountID)
	publishLedgerEvents(e.bus, entries)
	slog.Info("escrow: payout committed", "app_id", req.AppID, "tester_id", req.TesterID, "amount", req.Amount)
	return &res, nil
}

// Refund returns the holding's remainder to the provider and terminates the
// holding. A holding with nothing left is marked completed without any
// transfer. Once no active holding remains the call reports NotFound, which
// callers treat as success-equivalent.
func (e *Escrow) Refund(ctx context.Context, actorID, appID string) (*model.RefundResult, error) {
	if actorID == "" {
		return nil, fault.Unauthenticated("caller identity required")
	}
	if appID == "" {
		return nil, fault.InvalidArgument("app id is required")
	}
	if err := e.authorizeMissionActor(ctx, actorID, appID, "refunds"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	var (
		res        model.RefundResult
		entries    []*model.Transaction
		providerID string
	)
	err := e.store.RunSerializable(ctx, func(tx Tx) error {
		entries = entries[:0]

		holdings, err := tx.ActiveHoldings(ctx, appID)
		if err != nil {
			return err
		}
		if len(holdings) == 0 {
			return fault.NotFound("no active escrow holding found for app %s", appID)
		}
		holding := holdings[0]
		providerID = holding.ProviderID

		refunded, providerBalance, escrowBalance, refundEntries, err := e.refundHolding(ctx, tx, holding, "escrow refund on app closure", nil, now)
		if err != nil {
			return err
		}
		entries = append(entries, refundEntries...)
		res = model.RefundResult{
			RefundAmount:    refunded,
			ProviderBalance: providerBalance,
			EscrowBalance:   escrowBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(ctx, providerID, model.EscrowAccountID)
	publishLedgerEvents(e.bus, entries)
	slog.Info("escrow: refund committed", "app_id", appID, "amount", res.RefundAmount)
	return &res, nil
}

// AutoRefund handles a mission deletion event. It defensively sweeps every
// active holding for the mission, applying the same transfer-and-mark
// effect as Refund with the deletion reason attached. The active-status
// guard makes a re-delivered event find nothing to do, so the handler is
// safe to retry in full.
func (e *Escrow) AutoRefund(ctx context.Context, ev model.MissionDeleted) (*model.AutoRefundResult, error) {
	if ev.MissionID == "" {
		return nil, fault.InvalidArgument("mission id is required")
	}

	now := time.Now().UTC()
	meta := model.Metadata{"refundReason": "mission_deleted"}

	var (
		res       model.AutoRefundResult
		entries   []*model.Transaction
		providers []string
	)
	err := e.store.RunSerializable(ctx, func(tx Tx) error {
		entries = entries[:0]
		providers = providers[:0]
		res = model.AutoRefundResult{MissionID: ev.MissionID}

		holdings, err := tx.ActiveHoldings(ctx, ev.MissionID)
		if err != nil {
			return err
		}
		res.HoldingsFound = len(holdings)

		for _, holding := range holdings {
			providers = append(providers, holding.ProviderID)
			refunded, _, _, refundEntries, err := e.refundHolding(ctx, tx, holding,
				fmt.Sprintf("escrow refund on mission deletion: %s", ev.AppName), meta, now)
			if err != nil {
				return err
			}
			entries = append(entries, refundEntries...)
			res.TotalRefunded += refunded
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(ctx, append(providers, model.EscrowAccountID)...)
	publishLedgerEvents(e.bus, entries)
	if res.HoldingsFound > 0 {
		slog.Info("escrow: auto refund committed",
			"mission_id", ev.MissionID, "holdings", res.HoldingsFound, "total_refunded", res.TotalRefunded)
	}
	return &res, nil
}

// refundHolding applies the terminal refund effect to one holding inside an
// open transaction: zero remainder marks it completed, otherwise the
// remainder moves back to the provider and the holding becomes refunded.
func (e *Escrow) refundHolding(ctx context.Context, tx Tx, holding *model.Holding, description string, extraMeta model.Metadata, now time.Time) (refunded, providerBalance, escrowBalance int64, entries []*model.Transaction, err error) {
	if holding.RemainingAmount <= 0 {
		if err = tx.SettleHolding(ctx, holding.ID, 0, holding.SpentAmount, model.HoldingCompleted); err != nil {
			return 0, 0, 0, nil, err
		}
		return 0, 0, 0, nil, nil
	}

	amount := holding.RemainingAmount

	escrowBalance, err = tx.ApplyWalletDelta(ctx, model.EscrowAccountID, -amount, model.CounterSpent, amount)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	// Wallets are created lazily on first credit, so a provider whose wallet
	// vanished still gets their refund.
	providerBalance, err = e.creditOrCreate(ctx, tx, holding.ProviderID, amount, model.CounterEarned, now)
	if err != nil {
		return 0, 0, 0, nil, err
	}

	if err = tx.SettleHolding(ctx, holding.ID, 0, holding.SpentAmount, model.HoldingRefunded); err != nil {
		return 0, 0, 0, nil, err
	}
	if err = tx.AppendHoldingEntry(ctx, &model.HoldingEntry{
		HoldingID:   holding.ID,
		Type:        model.HoldingEntryRefund,
		Amount:      amount,
		FromAccount: model.EscrowAccountID,
		ToAccount:   holding.ProviderID,
		Description: description,
		CreatedAt:   now,
	}); err != nil {
		return 0, 0, 0, nil, err
	}

	escrowMeta := model.Metadata{
		"appId":        holding.AppID,
		"providerId":   holding.ProviderID,
		"providerName": holding.ProviderName,
		"escrowType":   "refund",
		"holdingId":    holding.ID,
	}
	providerMeta := model.Metadata{
		"appId":      holding.AppID,
		"escrowType": "refund",
		"holdingId":  holding.ID,
	}
	for k, v := range extraMeta {
		escrowMeta[k] = v
		providerMeta[k] = v
	}
	escrowEntry := completedEntry(model.EscrowAccountID, model.TransactionSpend, amount,
		fmt.Sprintf("%s (provider: %s)", description, holding.ProviderName), escrowMeta, now)
	providerEntry := completedEntry(holding.ProviderID, model.TransactionRefund, amount, description, providerMeta, now)
	for _, t := range []*model.Transaction{escrowEntry, providerEntry} {
		if err = tx.AppendTransaction(ctx, t); err != nil {
			return 0, 0, 0, nil, err
		}
		entries = append(entries, t)
	}

	return amount, providerBalance, escrowBalance, entries, nil
}

// EscrowBalance reports the active holding for an app, or found=false when
// none exists.
func (e *Escrow) EscrowBalance(ctx context.Context, actorID, appID string) (*model.EscrowBalanceResult, error) {
	if actorID == "" {
		return nil, fault.Unauthenticated("caller identity required")
	}
	if appID == "" {
		return nil, fault.InvalidArgument("app id is required")
	}

	var res model.EscrowBalanceResult
	err := e.store.RunSerializable(ctx, func(tx Tx) error {
		holdings, err := tx.ActiveHoldings(ctx, appID)
		if err != nil {
			return err
		}
		if len(holdings) == 0 {
			res = model.EscrowBalanceResult{Found: false}
			return nil
		}
		h := holdings[0]
		res = model.EscrowBalanceResult{
			Found:           true,
			TotalAmount:     h.TotalAmount,
			RemainingAmount: h.RemainingAmount,
			SpentAmount:     h.SpentAmount,
			Status:          h.Status,
			Breakdown:       h.Breakdown,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (e *Escrow) authorizeMissionActor(ctx context.Context, actorID, missionID, action string) error {
	admin, err := e.auth.IsAdmin(ctx, actorID)
	if err != nil {
		return fault.Internal(err, "authorization check failed")
	}
	if admin {
		return nil
	}
	owner, err := e.auth.IsMissionOwner(ctx, actorID, missionID)
	if err != nil {
		return fault.Internal(err, "authorization check failed")
	}
	if !owner {
		return fault.PermissionDenied("only an admin or the mission provider can authorize %s", action)
	}
	return nil
}

func (e *Escrow) creditOrCreate(ctx context.Context, tx Tx, accountID string, amount int64, counter model.Counter, now time.Time) (int64, error) {
	balance, err := tx.ApplyWalletDelta(ctx, accountID, amount, counter, amount)
	if errors.Is(err, model.ErrNotFound) {
		w := &model.Wallet{AccountID: accountID, CreatedAt: now, UpdatedAt: now}
		if err := tx.CreateWallet(ctx, w); err != nil {
			return 0, err
		}
		return tx.ApplyWalletDelta(ctx, accountID, amount, counter, amount)
	}
	return balance, err
}

func (e *Escrow) invalidate(ctx context.Context, accountIDs ...string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, accountIDs...); err != nil {
		slog.Error("escrow: cache invalidation failed", "error", err)
	}
}

func completedEntry(userID string, typ model.TransactionType, amount int64, description string, meta model.Metadata, now time.Time) *model.Transaction {
	completed := now
	return &model.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        typ,
		Amount:      amount,
		Status:      model.TransactionCompleted,
		Description: description,
		Metadata:    meta,
		CreatedAt:   now,
		CompletedAt: &completed,
	}
}
