package service

import (
	"context"
	"encoding/json"

	"crowdtest/internal/model"
)

// Transport-facing interfaces. Handlers and workers depend on these, not on
// the concrete services, mirroring how the store sits behind Store.

type EscrowService interface {
	Deposit(ctx context.Context, actorID string, req model.DepositRequest) (*model.DepositResult, error)
	Payout(ctx context.Context, actorID string, req model.PayoutRequest) (*model.PayoutResult, error)
	Refund(ctx context.Context, actorID, appID string) (*model.RefundResult, error)
	EscrowBalance(ctx context.Context, actorID, appID string) (*model.EscrowBalanceResult, error)
	AutoRefund(ctx context.Context, ev model.MissionDeleted) (*model.AutoRefundResult, error)
}

type WalletService interface {
	ChargeWallet(ctx context.Context, actorID string, req model.ChargeRequest) (*model.ChargeResult, error)
	Balance(ctx context.Context, actorID, accountID string) (int64, error)
	ValidateTransaction(ctx context.Context, actorID string, req model.ValidateRequest) (*model.ValidateResult, error)
	RequestWithdrawal(ctx context.Context, actorID string, req model.WithdrawalRequest) (*model.WithdrawalResult, error)
	ProcessWithdrawal(ctx context.Context, actorID string, dec model.WithdrawalDecision) error
	AdjustBalance(ctx context.Context, actorID string, req model.AdjustRequest) (*model.AdjustResult, error)
	SuspendUser(ctx context.Context, actorID string, req model.SuspendRequest) error
}

type MissionService interface {
	Create(ctx context.Context, actorID string, m model.Mission) (*model.Mission, error)
	Submit(ctx context.Context, actorID, missionID string) (*model.Mission, error)
	Review(ctx context.Context, actorID string, req model.ReviewRequest) (*model.Mission, error)
	Close(ctx context.Context, actorID, missionID, reason string) (*model.Mission, error)
	Delete(ctx context.Context, actorID, missionID string) error
	HandleStatusChange(ctx context.Context, ev model.MissionStatusChanged) error
}

// publishLedgerEvents mirrors committed log entries onto the bus,
// best-effort: a publish failure never fails the already-committed
// operation.
func publishLedgerEvents(bus MessageBus, entries []*model.Transaction) {
	if bus == nil {
		return
	}
	for _, t := range entries {
		data, err := json.Marshal(model.LedgerEvent{
			TransactionID: t.ID,
			UserID:        t.UserID,
			Type:          t.Type,
			Amount:        t.Amount,
			CreatedAt:     t.CreatedAt,
		})
		if err != nil {
			continue
		}
		_ = bus.Publish(model.TopicLedgerTransactions, data)
	}
}
