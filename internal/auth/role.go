package auth

import "strings"

// Role is the organisational role carried by every authenticated user.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleHR       Role = "hr"
	RoleAdmin    Role = "admin"
)

// ParseRole normalises a role string. Unknown or empty values map to
// RoleEmployee so that a malformed role never grants privileges.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleManager, RoleHR, RoleAdmin:
		return r
	default:
		return RoleEmployee
	}
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleHR, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}
