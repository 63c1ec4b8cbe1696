package model

// Request and result shapes for the remote operations. Amounts are integer
// points throughout.

type DepositRequest struct {
	AppID        string    `json:"app_id"`
	AppName      string    `json:"app_name"`
	ProviderID   string    `json:"provider_id"`
	ProviderName string    `json:"provider_name"`
	Amount       int64     `json:"amount"`
	Breakdown    Breakdown `json:"breakdown,omitempty"`
}

type DepositResult struct {
	HoldingID       string `json:"holding_id"`
	ProviderBalance int64  `json:"provider_balance"`
	EscrowBalance   int64  `json:"escrow_balance"`
}

type PayoutRequest struct {
	AppID       string   `json:"app_id"`
	TesterID    string   `json:"tester_id"`
	TesterName  string   `json:"tester_name"`
	Amount      int64    `json:"amount"`
	Description string   `json:"description"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

type PayoutResult struct {
	TesterBalance   int64 `json:"tester_balance"`
	EscrowBalance   int64 `json:"escrow_balance"`
	RemainingEscrow int64 `json:"remaining_escrow"`
}

type RefundResult struct {
	RefundAmount    int64 `json:"refund_amount"`
	ProviderBalance int64 `json:"provider_balance"`
	EscrowBalance   int64 `json:"escrow_balance"`
}

type EscrowBalanceResult struct {
	Found           bool          `json:"found"`
	TotalAmount     int64         `json:"total_amount,omitempty"`
	RemainingAmount int64         `json:"remaining_amount,omitempty"`
	SpentAmount     int64         `json:"spent_amount,omitempty"`
	Status          HoldingStatus `json:"status,omitempty"`
	Breakdown       Breakdown     `json:"breakdown,omitempty"`
}

// AutoRefundResult summarises one run of the deletion-triggered refund
// handler. It is logged, never returned to a caller.
type AutoRefundResult struct {
	MissionID     string `json:"mission_id"`
	HoldingsFound int    `json:"holdings_found"`
	TotalRefunded int64  `json:"total_refunded"`
}

type ChargeRequest struct {
	UserID      string   `json:"user_id"`
	Amount      int64    `json:"amount"`
	Description string   `json:"description"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

type ChargeResult struct {
	Balance int64 `json:"balance"`
}

type ValidateRequest struct {
	UserID string          `json:"user_id"`
	Type   TransactionType `json:"type"`
	Amount int64           `json:"amount"`
}

// ValidateResult is a structured verdict rather than an error: callers use
// it to pre-check a mutation without attempting it.
type ValidateResult struct {
	Valid          bool   `json:"valid"`
	Reason         string `json:"reason,omitempty"`
	Message        string `json:"message,omitempty"`
	CurrentBalance int64  `json:"current_balance"`
	WindowTotal    int64  `json:"window_total,omitempty"`
	Limit          int64  `json:"limit,omitempty"`
}

const (
	ValidationInsufficientBalance = "insufficient_balance"
	ValidationDailyLimitExceeded  = "daily_limit_exceeded"
)

type WithdrawalRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

type WithdrawalResult struct {
	TransactionID string `json:"transaction_id"`
	Balance       int64  `json:"balance"`
}

type WithdrawalDecision struct {
	TransactionID string `json:"transaction_id"`
	Approve       bool   `json:"approve"`
	Reason        string `json:"reason,omitempty"`
}

type AdjustmentType string

const (
	AdjustGrant  AdjustmentType = "grant"
	AdjustDeduct AdjustmentType = "deduct"
	AdjustReset  AdjustmentType = "reset"
)

type AdjustRequest struct {
	UserID         string         `json:"user_id"`
	AdjustmentType AdjustmentType `json:"adjustment_type"`
	Amount         int64          `json:"amount,omitempty"`
	Reason         string         `json:"reason"`
}

type AdjustResult struct {
	UserID         string         `json:"user_id"`
	AdjustmentType AdjustmentType `json:"adjustment_type"`
	Amount         int64          `json:"amount"`
	Balance        int64          `json:"balance"`
	Points         int64          `json:"points"`
}

type SuspendRequest struct {
	UserID       string `json:"user_id"`
	Suspend      bool   `json:"suspend"`
	Reason       string `json:"reason,omitempty"`
	DurationDays int    `json:"duration_days,omitempty"`
}

type ReviewRequest struct {
	MissionID       string `json:"mission_id"`
	Approve         bool   `json:"approve"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}
