package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paircall-backend/internal/domain"
)

// UserRepository reads user identity/display data and maintains the
// durable online flag. User creation lives in the auth service.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// ErrUserNotFound is returned when a user id does not exist
var ErrUserNotFound = errors.New("user not found")

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	query := `
		SELECT user_id, username, display_name, is_online, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`

	user := &domain.User{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.IsOnline,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	return user, nil
}

// SetOnline updates the durable online flag for a user
func (r *UserRepository) SetOnline(ctx context.Context, userID int64, online bool) error {
	query := `
		UPDATE users
		SET is_online = $2, updated_at = now()
		WHERE user_id = $1
	`

	_, err := r.pool.Exec(ctx, query, userID, online)
	if err != nil {
		return fmt.Errorf("failed to update online flag for user %d: %w", userID, err)
	}
	return nil
}
