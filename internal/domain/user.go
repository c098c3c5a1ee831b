package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for User
var (
	ErrEmptyUsername = errors.New("username cannot be empty")
	ErrEmptyPassword = errors.New("password hash cannot be empty")
)

// User represents an operator account able to authenticate against the
// API. Only the credentials needed by the JWT login flow are modeled
// here; the wider person/license registry lives outside this core.
type User struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks that the user fields satisfy the domain invariants.
func (u *User) Validate() error {
	if u.Username == "" {
		return ErrEmptyUsername
	}
	if u.HashedPassword == "" {
		return ErrEmptyPassword
	}
	return nil
}
