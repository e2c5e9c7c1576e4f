package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"paircall-backend/internal/database"
	"paircall-backend/pkg/constants"
)

// SessionRepository maps each connected user to their transport session id.
// It is a discoverability mapping only, not ownership of the connection:
// the instance that actually holds the socket keeps its own local registry.
// Entries are TTL-bounded so a crashed instance's records expire.
type SessionRepository struct {
	client *database.RedisClient
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(client *database.RedisClient) *SessionRepository {
	return &SessionRepository{client: client}
}

// Save records the session id for a user when their connection opens
func (r *SessionRepository) Save(ctx context.Context, userID int64, sessionID string) error {
	key := sessionKey(userID)

	err := r.client.SafeSet(ctx, key, sessionID, constants.SessionTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to save session for user %d: %w", userID, err)
	}
	return nil
}

// Get returns the session id recorded for a user, or ok=false when the
// user has no live session record
func (r *SessionRepository) Get(ctx context.Context, userID int64) (string, bool, error) {
	value, err := r.client.SafeGet(ctx, sessionKey(userID)).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read session for user %d: %w", userID, err)
	}
	return value, true, nil
}

// Refresh restarts the TTL on a user's session record so a long-lived
// connection's record does not expire under it. A no-op when absent.
func (r *SessionRepository) Refresh(ctx context.Context, userID int64) error {
	err := r.client.SafeExpire(ctx, sessionKey(userID), constants.SessionTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to refresh session for user %d: %w", userID, err)
	}
	return nil
}

// Remove deletes the session record for a user. A no-op when absent.
func (r *SessionRepository) Remove(ctx context.Context, userID int64) error {
	err := r.client.SafeDel(ctx, sessionKey(userID)).Err()
	if err != nil {
		return fmt.Errorf("failed to remove session for user %d: %w", userID, err)
	}
	return nil
}

func sessionKey(userID int64) string {
	return constants.SessionKeyPrefix + strconv.FormatInt(userID, 10)
}
