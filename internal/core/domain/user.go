// internal/core/domain/user.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role controls access to administrative routes.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// MinPasswordLength applies to new and changed passwords.
const MinPasswordLength = 8

// User is an operator of the system.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) Validate() error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Name = strings.TrimSpace(u.Name)
	if !IsValidEmail(u.Email) {
		return NewValidationError("email must be a valid address")
	}
	if u.Name == "" {
		return NewValidationError("name is required")
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Role != RoleUser && u.Role != RoleAdmin {
		return NewValidationError("role must be USER or ADMIN")
	}
	return nil
}

// ValidatePassword enforces the minimum length.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return NewValidationError("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
