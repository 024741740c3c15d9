package superadmin

import "time"

// Stats are the platform KPIs shown on the dashboard
type Stats struct {
	TotalSyndicates   int64   `json:"totalSyndicats"`
	ActiveSyndicates  int64   `json:"activeSyndicats"`
	PendingSyndicates int64   `json:"pendingSyndicats"`
	TotalMembers      int64   `json:"totalMembers"`
	ActiveMembers     int64   `json:"activeMembers"`
	TotalRevenue      float64 `json:"totalRevenue"`
}

// Syndicate is a union or association registered on the platform
type Syndicate struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Description        string `json:"description"`
	Domain             string `json:"domain"`
	Type               string `json:"type,omitempty"`
	IsApproved         bool   `json:"isApproved"`
	IsActive           bool   `json:"isActive"`
	LogoURL            string `json:"logoUrl,omitempty"`
	StatusURL          string `json:"statusUrl,omitempty"`
	CharterURL         string `json:"charteUrl,omitempty"`
	CommitmentCertURL  string `json:"certificatEngagementUrl,omitempty"`
	MembersListURL     string `json:"listMembersUrl,omitempty"`
	CreatorID          string `json:"creatorId,omitempty"`
	OrganizationID     string `json:"organizationId,omitempty"`
	MemberCount        int64  `json:"memberCount,omitempty"`
	SubscriptionPlan   string `json:"subscriptionPlan,omitempty"`
	SubscriptionExpiry string `json:"subscriptionExpiry,omitempty"`
	CreatedAt          string `json:"createdAt,omitempty"`
	CreationDate       string `json:"creationDate,omitempty"`
}

// Page is one page of a paginated listing
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// Action is a state change applied to a syndicate
type Action string

const (
	ActionApprove    Action = "approve"
	ActionDisapprove Action = "disapprove"
	ActionActivate   Action = "activate"
	ActionDeactivate Action = "deactivate"
)

// Actions lists every supported syndicate action
var Actions = []Action{ActionApprove, ActionDisapprove, ActionActivate, ActionDeactivate}

// ParseAction validates an action name
func ParseAction(s string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// activity names recorded for each action
func (a Action) activity() string {
	switch a {
	case ActionApprove:
		return "APPROVE_SYNDICATE"
	case ActionDisapprove:
		return "DISAPPROVE_SYNDICATE"
	case ActionActivate:
		return "ACTIVATE_SYNDICATE"
	case ActionDeactivate:
		return "DEACTIVATE_SYNDICATE"
	}
	return "UPDATE_SYNDICATE"
}

// UpdateProfileRequest changes the super admin's own profile
type UpdateProfileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// ChangePasswordRequest changes the super admin's own password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Activity describes an audited operation
type Activity struct {
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Details    map[string]any `json:"details,omitempty"`
}

// ActivityLog is the record posted to the audit trail. The server resolves the
// real client address, ipAddress is a placeholder.
type ActivityLog struct {
	UserID     string         `json:"userId"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Timestamp  time.Time      `json:"timestamp"`
	IPAddress  string         `json:"ipAddress"`
	UserAgent  string         `json:"userAgent"`
	Details    map[string]any `json:"details"`
}
