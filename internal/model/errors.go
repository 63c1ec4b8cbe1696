package model

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrActiveHoldingExists   = errors.New("an active escrow holding already exists for this app")
	ErrDailyRewardsDisabled  = errors.New("daily rewards are disabled; only final completion rewards are allowed")
	ErrFinalRewardIncomplete = errors.New("final reward can only be paid once all days are completed")
)
