package model

import "time"

// Action names an entry of the append-only document history.
type Action string

const (
	ActionUploaded       Action = "uploaded"
	ActionDeleted        Action = "deleted"
	ActionRetitled       Action = "retitled"
	ActionRequestCreated Action = "request_created"
	ActionSigned         Action = "signed"
	ActionRejected       Action = "rejected"
	ActionShared         Action = "shared"
	ActionShareRevoked   Action = "share_revoked"
	ActionPurged         Action = "purged"
)

// HistoryEntry records who did what to which document, and when.
type HistoryEntry struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	RequestID  *string   `json:"requestId,omitempty"`
	ActorID    string    `json:"actorId"`
	Action     Action    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Permission is the access tier granted by a share token.
type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

// Valid reports whether p is a known tier.
func (p Permission) Valid() bool {
	return p == PermissionView || p == PermissionEdit
}

// Allows reports whether p grants need. Edit implies view.
func (p Permission) Allows(need Permission) bool {
	if p == PermissionEdit {
		return need.Valid()
	}
	return p == need
}

// Share is a bearer token granting time-limited access to one document.
type Share struct {
	Token      string     `json:"token"`
	DocumentID string     `json:"documentId"`
	Permission Permission `json:"permission"`
	CreatedBy  string     `json:"createdBy"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Expired reports whether the share is past its expiry at now.
func (s *Share) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
