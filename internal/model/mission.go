package model

import "time"

type MissionStatus string

const (
	MissionDraft    MissionStatus = "draft"
	MissionPending  MissionStatus = "pending"
	MissionOpen     MissionStatus = "open"
	MissionRejected MissionStatus = "rejected"
	MissionClosed   MissionStatus = "closed"
)

// missionTransitions is the legal-transition table. closed is terminal;
// rejected missions may be resubmitted.
var missionTransitions = map[MissionStatus][]MissionStatus{
	MissionDraft:    {MissionPending, MissionClosed},
	MissionPending:  {MissionOpen, MissionRejected},
	MissionOpen:     {MissionClosed},
	MissionRejected: {MissionPending},
	MissionClosed:   {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s MissionStatus) CanTransitionTo(next MissionStatus) bool {
	for _, allowed := range missionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Mission is a provider's app-testing campaign. The ledger core only cares
// about its status and owner; content authoring lives elsewhere.
type Mission struct {
	ID              string        `json:"id"`
	AppName         string        `json:"app_name"`
	ProviderID      string        `json:"provider_id"`
	Status          MissionStatus `json:"status"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	ClosureReason   string        `json:"closure_reason,omitempty"`
	StatusChangedBy string        `json:"status_changed_by,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

const (
	ApplicationPending   = "pending"
	ApplicationCancelled = "cancelled"

	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
)

type NotificationKind string

const (
	NotificationMissionApproved NotificationKind = "mission_approved"
	NotificationMissionRejected NotificationKind = "mission_rejected"
	NotificationMissionClosed   NotificationKind = "mission_closed"
)

type Notification struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	MissionID string           `json:"mission_id,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
