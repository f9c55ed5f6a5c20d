package entity

import (
	"fmt"
	"time"
)

// Role is the access level of a portal account. Free-text role strings from
// the legacy user file are rejected at parse time.
type Role string

const (
	RoleUser      Role = "User"
	RoleSuperuser Role = "Superuser"
	RoleAdmin     Role = "Admin"
)

// ParseRole validates a role string coming from storage or a request body.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleSuperuser, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// SeesAllDashboards reports whether allowed_views is ignored for this role.
// Admin and Superuser always see the full catalog.
func (r Role) SeesAllDashboards() bool {
	switch r {
	case RoleAdmin, RoleSuperuser:
		return true
	default:
		return false
	}
}

// User represents an account row in the `portal_users` table.
type User struct {
	Username     string
	PasswordHash string
	DisplayName  string
	Role         Role
	Email        string
	AllowedViews []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
