// Package auth provides operator authentication for the billing API:
// credential verification against the user store and HMAC-signed JWT
// issuance and validation.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Token validation errors.
var (
	// ErrInvalidToken indicates the token is malformed, has a bad
	// signature, or fails validation for a reason other than expiry.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token was valid but has expired.
	ErrExpiredToken = errors.New("token expired")

	// ErrWrongTokenType indicates an access token was presented where a
	// refresh token was required, or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims holds the identity carried by a validated token.
type Claims struct {
	UserID    uuid.UUID
	Username  string
	TokenType string
}

// JWTService issues and validates the access/refresh token pair.
type JWTService interface {
	// GenerateToken creates a signed access token for the user.
	GenerateToken(ctx context.Context, userID uuid.UUID, username string) (string, error)

	// GenerateRefreshToken creates a signed refresh token for the user.
	GenerateRefreshToken(ctx context.Context, userID uuid.UUID, username string) (string, error)

	// ValidateToken validates an access token. Returns ErrWrongTokenType
	// if a refresh token is presented.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)

	// ValidateRefreshToken validates a refresh token. Returns
	// ErrWrongTokenType if an access token is presented.
	ValidateRefreshToken(ctx context.Context, tokenString string) (*Claims, error)
}
