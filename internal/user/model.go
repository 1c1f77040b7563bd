package user

import (
	"errors"
	"time"

	"github.com/nekogravitycat/room-booking-backend/internal/auth"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailAlreadyUsed   = errors.New("email already used")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrInvalidRole        = errors.New("invalid role")
)

// User represents a user in the system.
type User struct {
	ID           string // UUID
	Email        string
	PasswordHash string
	DisplayName  *string
	EmployeeID   string
	Department   string
	Role         auth.Role
	CreatedAt    time.Time
	LastLoginAt  *time.Time
	IsActive     bool
}

// Name returns the display name, falling back to the email address.
func (u *User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Email
}

// UserFilter defines filter options for listing users.
type UserFilter struct {
	Email       string
	DisplayName string
	Department  string
	Roles       []auth.Role
	IsActive    *bool // Use pointer to distinguish between false and nil (not set)

	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// RegisterInput holds the profile supplied at sign-up.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	EmployeeID  string
	Department  string
}

// UpdateUserRequest carries admin edits. Nil fields are left untouched.
type UpdateUserRequest struct {
	DisplayName *string
	EmployeeID  *string
	Department  *string
	Role        *auth.Role
	IsActive    *bool
}
