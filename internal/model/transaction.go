package model

import "time"

type TransactionType string

const (
	TransactionCharge          TransactionType = "charge"
	TransactionSpend           TransactionType = "spend"
	TransactionEarn            TransactionType = "earn"
	TransactionWithdraw        TransactionType = "withdraw"
	TransactionRefund          TransactionType = "refund"
	TransactionAdminAdjustment TransactionType = "admin_adjustment"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionCancelled TransactionStatus = "cancelled"
)

// Metadata is the free-form key-value payload attached to a transaction,
// used for traceability and idempotency keys (e.g. a payment order id).
type Metadata map[string]any

// String returns the string value under key, or "" when absent or not a string.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Bool returns the boolean value under key, tolerating JSON round-trips.
func (m Metadata) Bool(key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

// Transaction is one side of a balance-affecting event. A transfer between
// two accounts always produces two entries sharing correlated metadata,
// written inside the same database transaction.
type Transaction struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Type        TransactionType   `json:"type"`
	Amount      int64             `json:"amount"`
	Status      TransactionStatus `json:"status"`
	Description string            `json:"description"`
	Metadata    Metadata          `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}
