package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier abstracts password hashing so the login flow can be
// tested without paying bcrypt cost.
type PasswordVerifier interface {
	// Compare checks a plaintext password against a stored hash. A nil
	// return means the password matches.
	Compare(hashedPassword, password string) error

	// Hash derives a storable hash from a plaintext password.
	Hash(password string) (string, error)
}

// bcryptVerifier implements PasswordVerifier with bcrypt.
type bcryptVerifier struct {
	cost int
}

var _ PasswordVerifier = (*bcryptVerifier)(nil)

// NewPasswordVerifier creates a bcrypt-backed verifier at the default
// cost.
func NewPasswordVerifier() PasswordVerifier {
	return &bcryptVerifier{cost: bcrypt.DefaultCost}
}

func (v *bcryptVerifier) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (v *bcryptVerifier) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}
