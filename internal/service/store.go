package service

import (
	"context"
	"time"

	"crowdtest/internal/model"
)

// Store is the serializable transaction abstraction over the backing
// database. RunSerializable executes fn atomically at serializable
// isolation and re-runs it on conflict; it is the only concurrency control
// the financial operations rely on. Every validation a service performs
// inside fn sees the freshly-read state of that attempt.
type Store interface {
	RunSerializable(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of data-access operations available inside one transaction.
// Lookups return model.ErrNotFound when the row is absent.
type Tx interface {
	// Wallets.
	Wallet(ctx context.Context, accountID string) (*model.Wallet, error)
	CreateWallet(ctx context.Context, w *model.Wallet) error
	// ApplyWalletDelta shifts the balance by delta and bumps one monotonic
	// counter, returning the new balance. The store rejects results that
	// would leave the balance negative with model.ErrInsufficientFunds.
	ApplyWalletDelta(ctx context.Context, accountID string, delta int64, counter model.Counter, counterDelta int64) (int64, error)

	// Transaction log.
	AppendTransaction(ctx context.Context, t *model.Transaction) error
	TransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	SetTransactionStatus(ctx context.Context, id string, status model.TransactionStatus, patch model.Metadata) error
	CompletedOrderExists(ctx context.Context, orderID string) (bool, error)
	SumWithdrawalsSince(ctx context.Context, userID string, since time.Time) (int64, error)

	// Escrow holdings.
	ActiveHoldings(ctx context.Context, appID string) ([]*model.Holding, error)
	CreateHolding(ctx context.Context, h *model.Holding) error
	SettleHolding(ctx context.Context, id string, remaining, spent int64, status model.HoldingStatus) error
	AppendHoldingEntry(ctx context.Context, e *model.HoldingEntry) error

	// Missions and cascade targets.
	Mission(ctx context.Context, id string) (*model.Mission, error)
	CreateMission(ctx context.Context, m *model.Mission) error
	SetMissionStatus(ctx context.Context, m *model.Mission) error
	DeleteMission(ctx context.Context, id string) error
	CancelPendingApplications(ctx context.Context, missionID, reason string) (int64, error)
	CloseActiveEnrollments(ctx context.Context, missionID, reason string) (int64, error)
	CreateNotification(ctx context.Context, n *model.Notification) error

	// Users.
	User(ctx context.Context, id string) (*model.User, error)
	SetUserPoints(ctx context.Context, id string, points int64) error
	SetUserSuspension(ctx context.Context, id string, suspended bool, reason, by string, until *time.Time) error
}

// Authorizer answers the two capability questions the ledger core needs.
// Identity-provider specifics stay behind this interface.
type Authorizer interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
	IsMissionOwner(ctx context.Context, userID, missionID string) (bool, error)
}

// MessageBus publishes fire-and-forget events after a transaction commits.
type MessageBus interface {
	Publish(topic string, data []byte) error
}

// BalanceCache is the optional read-through cache in front of wallet
// balances. Misses return model.ErrNotFound.
type BalanceCache interface {
	Balance(ctx context.Context, accountID string) (int64, error)
	SetBalance(ctx context.Context, accountID string, balance int64) error
	Invalidate(ctx context.Context, accountIDs ...string) error
}
