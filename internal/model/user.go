package model

import "time"

const RoleAdmin = "admin"

// User is the account record the ledger core touches for role checks,
// point adjustments and suspension. The roles slice is the single source
// of truth for authorization.
type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Roles          []string   `json:"roles"`
	Points         int64      `json:"points"`
	Suspended      bool       `json:"suspended"`
	SuspendReason  string     `json:"suspend_reason,omitempty"`
	SuspendedUntil *time.Time `json:"suspended_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
