package model

import "time"

// EscrowAccountID is the reserved wallet that holds deposited mission funds
// while a mission runs. It is seeded once by migration and never deleted.
const EscrowAccountID = "SYSTEM_ESCROW"

// Wallet is a per-account balance record. The balance is always
// reconstructable as a running sum of the account's transaction log entries;
// the total* counters only ever increase.
type Wallet struct {
	AccountID      string    `json:"account_id"`
	Balance        int64     `json:"balance"`
	TotalCharged   int64     `json:"total_charged"`
	TotalEarned    int64     `json:"total_earned"`
	TotalSpent     int64     `json:"total_spent"`
	TotalWithdrawn int64     `json:"total_withdrawn"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Counter names one of the wallet's monotonic audit counters.
type Counter string

const (
	CounterNone      Counter = ""
	CounterCharged   Counter = "total_charged"
	CounterEarned    Counter = "total_earned"
	CounterSpent     Counter = "total_spent"
	CounterWithdrawn Counter = "total_withdrawn"
)
