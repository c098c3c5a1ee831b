package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	db store.DBTX
}

// Ensure UserStore implements the store interface
var _ store.UserStore = (*UserStore)(nil)

// NewUserStore creates a new UserStore.
func NewUserStore(db store.DBTX) *UserStore {
	return &UserStore{db: db}
}

// GetUserByUsername returns the user with the given username, or
// store.ErrUserNotFound.
func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, hashed_password, created_at, updated_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.HashedPassword, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, store.NewStoreError("user", "get", "failed to query user by username", err)
	}
	return &user, nil
}
