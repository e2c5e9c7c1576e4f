package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"paircall-backend/internal/database"
	"paircall-backend/pkg/constants"
)

// PresenceRepository tracks which users are currently paired, mapping each
// user to their partner. Entries carry a TTL so state leaked by a crashed
// instance heals without explicit cleanup; callers must therefore never
// trust presence alone and always revalidate against the durable call store.
type PresenceRepository struct {
	client *database.RedisClient
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *database.RedisClient) *PresenceRepository {
	return &PresenceRepository{client: client}
}

// SetPartner marks userID as in a call with partnerID
func (r *PresenceRepository) SetPartner(ctx context.Context, userID, partnerID int64) error {
	key := presenceKey(userID)

	err := r.client.SafeSet(ctx, key, partnerID, constants.PresenceTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set presence for user %d: %w", userID, err)
	}
	return nil
}

// Partner returns the partner recorded for userID, or ok=false when the
// user has no in-call marker
func (r *PresenceRepository) Partner(ctx context.Context, userID int64) (int64, bool, error) {
	key := presenceKey(userID)

	value, err := r.client.SafeGet(ctx, key).Result()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read presence for user %d: %w", userID, err)
	}

	partnerID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed presence value %q for user %d: %w", value, userID, err)
	}
	return partnerID, true, nil
}

// IsInCall reports whether an in-call marker exists for userID
func (r *PresenceRepository) IsInCall(ctx context.Context, userID int64) (bool, error) {
	exists, err := r.client.SafeExists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence for user %d: %w", userID, err)
	}
	return exists > 0, nil
}

// Clear removes the in-call marker for userID. A no-op when absent.
func (r *PresenceRepository) Clear(ctx context.Context, userID int64) error {
	err := r.client.SafeDel(ctx, presenceKey(userID)).Err()
	if err != nil {
		return fmt.Errorf("failed to clear presence for user %d: %w", userID, err)
	}
	return nil
}

func presenceKey(userID int64) string {
	return constants.PresenceKeyPrefix + strconv.FormatInt(userID, 10)
}
