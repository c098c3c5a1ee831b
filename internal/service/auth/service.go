package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

// ErrInvalidCredentials is returned for both an unknown username and a
// wrong password, so login responses never reveal which part failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Service authenticates operators and issues token pairs.
type Service struct {
	users     store.UserStore
	jwt       JWTService
	passwords PasswordVerifier
	logger    *slog.Logger
}

// NewService creates an auth service.
func NewService(users store.UserStore, jwt JWTService, passwords PasswordVerifier, logger *slog.Logger) *Service {
	return &Service{
		users:     users,
		jwt:       jwt,
		passwords: passwords,
		logger:    logger.With("component", "auth_service"),
	}
}

// Login verifies the credentials and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.logger.Info("login attempt for unknown username")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.passwords.Compare(user.HashedPassword, password); err != nil {
		s.logger.Info("login attempt with wrong password",
			"user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	return s.issuePair(ctx, user.ID, user.Username)
}

// Refresh exchanges a valid refresh token for a fresh token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return s.issuePair(ctx, claims.UserID, claims.Username)
}

func (s *Service) issuePair(ctx context.Context, userID uuid.UUID, username string) (*TokenPair, error) {
	access, err := s.jwt.GenerateToken(ctx, userID, username)
	if err != nil {
		return nil, err
	}
	refresh, err := s.jwt.GenerateRefreshToken(ctx, userID, username)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
