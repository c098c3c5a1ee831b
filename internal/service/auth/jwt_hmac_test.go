package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderleymp/finance-api-sub002/internal/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:                   "0123456789abcdef0123456789abcdef",
		TokenLifetimeMinutes:        60,
		RefreshTokenLifetimeMinutes: 10080,
	}
}

func newTestJWTService(t *testing.T) *hmacJWTService {
	t.Helper()
	svc, err := NewJWTService(testAuthConfig())
	require.NoError(t, err)
	return svc.(*hmacJWTService)
}

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	t.Parallel()

	cfg := testAuthConfig()
	cfg.JWTSecret = "too-short"
	_, err := NewJWTService(cfg)
	assert.Error(t, err)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()

	svc := newTestJWTService(t)
	ctx := context.Background()
	userID := uuid.New()

	token, err := svc.GenerateToken(ctx, userID, "operator")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "operator", claims.Username)
	assert.Equal(t, tokenTypeAccess, claims.TokenType)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	t.Parallel()

	svc := newTestJWTService(t)
	ctx := context.Background()
	userID := uuid.New()

	token, err := svc.GenerateRefreshToken(ctx, userID, "operator")
	require.NoError(t, err)

	claims, err := svc.ValidateRefreshToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, tokenTypeRefresh, claims.TokenType)
}

func TestValidateTokenRejectsRefreshToken(t *testing.T) {
	t.Parallel()

	svc := newTestJWTService(t)
	ctx := context.Background()

	refresh, err := svc.GenerateRefreshToken(ctx, uuid.New(), "operator")
	require.NoError(t, err)

	_, err = svc.ValidateToken(ctx, refresh)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	access, err := svc.GenerateToken(ctx, uuid.New(), "operator")
	require.NoError(t, err)

	_, err = svc.ValidateRefreshToken(ctx, access)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	svc := newTestJWTService(t)
	ctx := context.Background()

	// Issue in the past, validate in the present, past clock skew.
	issued := time.Now().Add(-3 * time.Hour)
	svc.timeFunc = func() time.Time { return issued }
	token, err := svc.GenerateToken(ctx, uuid.New(), "operator")
	require.NoError(t, err)

	svc.timeFunc = time.Now
	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenRejectsTamperedToken(t *testing.T) {
	t.Parallel()

	svc := newTestJWTService(t)
	ctx := context.Background()

	token, err := svc.GenerateToken(ctx, uuid.New(), "operator")
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "AAAA"
	_, err = svc.ValidateToken(ctx, tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsTokenFromOtherKey(t *testing.T) {
	t.Parallel()

	svc := newTestJWTService(t)

	otherCfg := testAuthConfig()
	otherCfg.JWTSecret = "ffffffffffffffffffffffffffffffff"
	other, err := NewJWTService(otherCfg)
	require.NoError(t, err)

	ctx := context.Background()
	token, err := other.GenerateToken(ctx, uuid.New(), "operator")
	require.NoError(t, err)

	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
