// Package model contains the struct definitions shared across packages.
package model

import (
	"time"
)

// Role is the authorization role carried by an authenticated identity.
type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Elevated reports whether r may administer documents it does not own.
func (r Role) Elevated() bool {
	return r == RoleManager || r == RoleAdmin
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Document is one unique uploaded binary. Fingerprint is unique among live
// (not soft-deleted) documents.
type Document struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
	// Signature is the HMAC of Fingerprint under the server secret.
	Signature   string     `json:"signature"`
	ContentType string     `json:"contentType"`
	Size        int64      `json:"size"`
	PageCount   int        `json:"pageCount"`
	UploaderID  string     `json:"uploaderId"`
	DeletedAt   *time.Time `json:"deletedAt"`
	DeletedBy   *string    `json:"deletedBy"`
	PurgedAt    *time.Time `json:"purgedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Deleted reports whether the document has been soft-deleted.
func (d *Document) Deleted() bool {
	return d.DeletedAt != nil
}

// VisibleTo reports whether the caller may see the document: its uploader or
// any elevated role.
func (d *Document) VisibleTo(caller Identity) bool {
	return caller.ID == d.UploaderID || caller.Role.Elevated()
}

// User is the directory entry of an identity that can upload or sign.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity returns the identity of u.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Role: u.Role}
}
