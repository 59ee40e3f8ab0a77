package auth

import "time"

// Role identifies which portal and capabilities a user has. Roles are flat:
// a user holds exactly one.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
	RoleFamily   Role = "family"
	RoleEditor   Role = "editor"
	RoleQC       Role = "qc"
	RoleSupport  Role = "support"
)

// Valid reports whether the role is one of the known portal roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDirector, RoleFamily, RoleEditor, RoleQC, RoleSupport:
		return true
	}
	return false
}

// Global reports whether the role operates across organizations. Global roles
// carry no organization affiliation.
func (r Role) Global() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleQC, RoleSupport:
		return true
	}
	return false
}

// User account statuses.
const (
	StatusInvited   = "invited"
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusArchived  = "archived"
)

// User represents an account operating on behalf of a funeral home
// organization, or globally for admin/editor/qc/support roles.
type User struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id,omitempty"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Role           Role       `json:"role"`
	Status         string     `json:"status"`
	Name           string     `json:"name,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Principal is the server-asserted identity attached to a request after the
// session token is verified. The role here was re-validated against the users
// row when the session was issued; it is never taken from client input.
type Principal struct {
	UserID         string
	Email          string
	Role           Role
	OrganizationID string
}
