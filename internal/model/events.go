package model

import "time"

// Bus topics. Mission events drive the asynchronous side of the system:
// the deletion event feeds the idempotent auto-refund worker, status events
// feed the notification/cascade worker, and every committed ledger entry is
// mirrored onto the transactions topic for downstream consumers.
const (
	TopicMissionDeleted     = "missions.deleted"
	TopicMissionStatus      = "missions.status"
	TopicLedgerTransactions = "ledger.transactions"
)

// MissionDeleted is published after a mission row has been deleted and
// committed. Consumers must tolerate re-delivery.
type MissionDeleted struct {
	MissionID string    `json:"mission_id"`
	AppName   string    `json:"app_name"`
	DeletedBy string    `json:"deleted_by"`
	DeletedAt time.Time `json:"deleted_at"`
}

// MissionStatusChanged is published after a status transition commits.
// Side effects hang off this event, at-least-once.
type MissionStatusChanged struct {
	MissionID  string        `json:"mission_id"`
	AppName    string        `json:"app_name"`
	ProviderID string        `json:"provider_id"`
	From       MissionStatus `json:"from"`
	To         MissionStatus `json:"to"`
	Reason     string        `json:"reason,omitempty"`
	ChangedBy  string        `json:"changed_by"`
	ChangedAt  time.Time     `json:"changed_at"`
}

// LedgerEvent mirrors one committed transaction log entry.
type LedgerEvent struct {
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	Type          TransactionType `json:"type"`
	Amount        int64           `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}
