package redis

import (
	"context"
	"fmt"
	"strconv"

	"paircall-backend/internal/database"
	"paircall-backend/pkg/constants"
)

// QueueRepository is the shared FIFO of waiting user ids, backed by a
// Redis list. Every operation is immediately visible to all instances.
type QueueRepository struct {
	client *database.RedisClient
}

// NewQueueRepository creates a new QueueRepository
func NewQueueRepository(client *database.RedisClient) *QueueRepository {
	return &QueueRepository{client: client}
}

// dequeueTwoScript pops the two oldest entries as a single store-side
// operation. Two sequential LPOPs composed by the caller would let two
// instances hand out the same user twice; the script closes that race.
// A lone entry is restored to the head before returning empty.
const dequeueTwoScript = `
local first = redis.call('LPOP', KEYS[1])
if not first then
	return {}
end
local second = redis.call('LPOP', KEYS[1])
if not second then
	redis.call('LPUSH', KEYS[1], first)
	return {}
end
return {first, second}
`

// Enqueue appends a user to the tail of the waiting queue
func (r *QueueRepository) Enqueue(ctx context.Context, userID int64) error {
	err := r.client.SafeRPush(ctx, constants.QueueKey, userID).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue user %d: %w", userID, err)
	}
	return nil
}

// EnqueueFront pushes a user back onto the head of the queue. Used when a
// popped entry must be restored after a failed pairing attempt.
func (r *QueueRepository) EnqueueFront(ctx context.Context, userID int64) error {
	err := r.client.SafeLPush(ctx, constants.QueueKey, userID).Err()
	if err != nil {
		return fmt.Errorf("failed to restore user %d to queue head: %w", userID, err)
	}
	return nil
}

// DequeueTwo atomically removes and returns the two oldest entries.
// ok is false when fewer than two users are waiting; in that case the
// queue is left unchanged.
func (r *QueueRepository) DequeueTwo(ctx context.Context) (user1, user2 int64, ok bool, err error) {
	result, err := r.client.SafeEval(ctx, dequeueTwoScript, []string{constants.QueueKey}).Result()
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to pop queue pair: %w", err)
	}

	entries, castOK := result.([]interface{})
	if !castOK || len(entries) < 2 {
		return 0, 0, false, nil
	}

	user1, err = parseQueueEntry(entries[0])
	if err != nil {
		return 0, 0, false, err
	}
	user2, err = parseQueueEntry(entries[1])
	if err != nil {
		return 0, 0, false, err
	}

	return user1, user2, true, nil
}

// Remove deletes the first occurrence of a user from the queue.
// A no-op when the user is not queued.
func (r *QueueRepository) Remove(ctx context.Context, userID int64) error {
	err := r.client.SafeLRem(ctx, constants.QueueKey, 1, userID).Err()
	if err != nil {
		return fmt.Errorf("failed to remove user %d from queue: %w", userID, err)
	}
	return nil
}

// Size returns the current number of waiting users
func (r *QueueRepository) Size(ctx context.Context) (int64, error) {
	size, err := r.client.SafeLLen(ctx, constants.QueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue size: %w", err)
	}
	return size, nil
}

// Members returns the waiting user ids in FIFO order. Entries that fail to
// parse are skipped; the pairing path revalidates ids anyway.
func (r *QueueRepository) Members(ctx context.Context) ([]int64, error) {
	raw, err := r.client.SafeLRange(ctx, constants.QueueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list queue members: %w", err)
	}

	members := make([]int64, 0, len(raw))
	for _, entry := range raw {
		id, err := strconv.ParseInt(entry, 10, 64)
		if err != nil {
			continue
		}
		members = append(members, id)
	}
	return members, nil
}

func parseQueueEntry(entry interface{}) (int64, error) {
	s, ok := entry.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected queue entry type %T", entry)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed queue entry %q: %w", s, err)
	}
	return id, nil
}
