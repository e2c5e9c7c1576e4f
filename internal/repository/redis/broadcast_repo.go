package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"paircall-backend/internal/database"
	"paircall-backend/internal/domain"
	"paircall-backend/pkg/constants"
	"paircall-backend/pkg/logger"
)

// BroadcastRepository is the shared broadcast channel for relay envelopes.
// Every instance publishes to and subscribes from the same Pub/Sub topic.
type BroadcastRepository struct {
	client *database.RedisClient
}

// NewBroadcastRepository creates a new BroadcastRepository
func NewBroadcastRepository(client *database.RedisClient) *BroadcastRepository {
	return &BroadcastRepository{client: client}
}

// Publish sends an envelope to the broadcast channel
func (r *BroadcastRepository) Publish(ctx context.Context, env *domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope %s: %w", env.MessageID, err)
	}

	if err := r.client.SafePublish(ctx, constants.RelayChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish envelope %s: %w", env.MessageID, err)
	}
	return nil
}

// Listen subscribes to the broadcast channel and invokes handler for each
// received envelope. It blocks until ctx is cancelled. Malformed messages
// are logged and skipped.
func (r *BroadcastRepository) Listen(ctx context.Context, handler func(*domain.Envelope)) error {
	pubsub := r.client.Subscribe(ctx, constants.RelayChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to broadcast channel: %w", err)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, open := <-ch:
			if !open {
				return fmt.Errorf("broadcast subscription closed")
			}

			var env domain.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn("failed to unmarshal relay envelope",
					zap.Error(err))
				continue
			}

			handler(&env)
		}
	}
}
