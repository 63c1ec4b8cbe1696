package model

import "time"

type HoldingStatus string

const (
	HoldingActive    HoldingStatus = "active"
	HoldingCompleted HoldingStatus = "completed"
	HoldingRefunded  HoldingStatus = "refunded"
)

// Reward system versions carried in a holding's breakdown. Version 1.0
// allowed per-day incremental payouts; under 2.0 only the single final
// completion reward is paid.
const (
	RewardSystemV1 = "1.0"
	RewardSystemV2 = "2.0"

	BreakdownKeyVersion      = "rewardSystemVersion"
	BreakdownKeyDailyRewards = "dailyRewardsEnabled"

	MetadataKeyRewardType       = "rewardType"
	MetadataKeyAllDaysCompleted = "allDaysCompleted"

	RewardTypeFinal = "final"
)

// Breakdown describes the fee/reward composition of a deposit plus the
// reward-system version tag.
type Breakdown map[string]any

// RewardSystemVersion returns the version tag, defaulting to 1.0 for
// holdings created before the tag existed.
func (b Breakdown) RewardSystemVersion() string {
	if b == nil {
		return RewardSystemV1
	}
	if v, ok := b[BreakdownKeyVersion].(string); ok && v != "" {
		return v
	}
	return RewardSystemV1
}

// WithRewardSystem returns a copy of the breakdown stamped with the given
// version tag. Daily rewards are switched off for version 2.0.
func (b Breakdown) WithRewardSystem(version string) Breakdown {
	out := make(Breakdown, len(b)+2)
	for k, v := range b {
		out[k] = v
	}
	out[BreakdownKeyVersion] = version
	out[BreakdownKeyDailyRewards] = version != RewardSystemV2
	return out
}

// Holding tracks one mission's deposited-but-unspent funds.
// Invariant: TotalAmount == RemainingAmount + SpentAmount at all times,
// and at most one holding per AppID is active.
type Holding struct {
	ID              string        `json:"id"`
	AppID           string        `json:"app_id"`
	AppName         string        `json:"app_name"`
	ProviderID      string        `json:"provider_id"`
	ProviderName    string        `json:"provider_name"`
	TotalAmount     int64         `json:"total_amount"`
	RemainingAmount int64         `json:"remaining_amount"`
	SpentAmount     int64         `json:"spent_amount"`
	Status          HoldingStatus `json:"status"`
	Breakdown       Breakdown     `json:"breakdown,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// CheckPayoutGate enforces the reward-system version gate: a version-2.0
// holding only accepts the final completion reward, and only once every
// mission day has been completed. Holdings tagged 1.0 (or untagged) accept
// any reward type.
func (h *Holding) CheckPayoutGate(meta Metadata) error {
	if h.Breakdown.RewardSystemVersion() != RewardSystemV2 {
		return nil
	}
	if meta.String(MetadataKeyRewardType) != RewardTypeFinal {
		return ErrDailyRewardsDisabled
	}
	if !meta.Bool(MetadataKeyAllDaysCompleted) {
		return ErrFinalRewardIncomplete
	}
	return nil
}

type HoldingEntryType string

const (
	HoldingEntryDeposit HoldingEntryType = "deposit"
	HoldingEntryPayout  HoldingEntryType = "payout"
	HoldingEntryRefund  HoldingEntryType = "refund"
)

// HoldingEntry is one row of a holding's append-only sub-ledger. Entries
// live in their own table keyed by holding id rather than inside the
// holding record, so the audit trail can grow without bloating the holding.
type HoldingEntry struct {
	ID          int64            `json:"id"`
	HoldingID   string           `json:"holding_id"`
	Type        HoldingEntryType `json:"type"`
	Amount      int64            `json:"amount"`
	FromAccount string           `json:"from_account"`
	ToAccount   string           `json:"to_account"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
}
