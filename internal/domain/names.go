package domain

import "time"

// ProtectedName is a display name reserved to a single player
type ProtectedName struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	PlayerID             string    `json:"player_id"`
	CreatedOn            time.Time `json:"created_on"`
	CreatedByUserProfile *string   `json:"created_by_user_profile,omitempty"`
}

// ProtectedNameUsage is one player's use of a protected name
type ProtectedNameUsage struct {
	Player     Player    `json:"player"`
	IsOwner    bool      `json:"is_owner"`
	LastUsed   time.Time `json:"last_used"`
	UsageCount int       `json:"usage_count"`
}

// ProtectedNameUsageReport cross-references a protected name with alias
// history. Any entry with IsOwner false is an impersonation.
type ProtectedNameUsageReport struct {
	ProtectedName ProtectedName        `json:"protected_name"`
	Owner         Player               `json:"owner"`
	Usages        []ProtectedNameUsage `json:"usages"`
}

// Tag is a label definition
type Tag struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UserDefined bool   `json:"user_defined"`
	PlayerCount int64  `json:"player_count"`
}

// PlayerTag assigns a tag to a player
type PlayerTag struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"player_id"`
	TagID      string    `json:"tag_id"`
	TagName    string    `json:"tag_name,omitempty"`
	Assigned   time.Time `json:"assigned"`
	AssignedBy *string   `json:"assigned_by,omitempty"`
}
