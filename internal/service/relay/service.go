package relay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paircall-backend/internal/domain"
	"paircall-backend/pkg/constants"
	"paircall-backend/pkg/logger"
	"paircall-backend/pkg/metrics"
)

// LocalRegistry is the process-local view of connected users. Implemented
// by the WebSocket hub; always rebuildable from nothing.
type LocalRegistry interface {
	IsLocallyConnected(userID int64) bool
	// DeliverLocal hands the envelope to the user's local connection and
	// reports whether a connection was there to take it
	DeliverLocal(env *domain.Envelope) bool
}

// Broadcaster is the shared broadcast channel all instances publish to
// and subscribe from
type Broadcaster interface {
	Publish(ctx context.Context, env *domain.Envelope) error
	Listen(ctx context.Context, handler func(*domain.Envelope)) error
}

// Service delivers envelopes to users regardless of which instance holds
// their live connection. Delivery is best-effort: a target that never
// reconnects costs a fixed number of delayed re-checks, then the message
// is dropped. Signaling staleness is preferable to unbounded buffering.
type Service struct {
	registry   LocalRegistry
	bus        Broadcaster
	instanceID string
	maxRetries int
	retryDelay time.Duration
}

// NewService creates a relay with the default retry policy
func NewService(registry LocalRegistry, bus Broadcaster, instanceID string) *Service {
	return NewServiceWithRetry(registry, bus, instanceID, constants.RelayMaxRetries, constants.RelayRetryDelay)
}

// NewServiceWithRetry creates a relay with an explicit retry policy
func NewServiceWithRetry(registry LocalRegistry, bus Broadcaster, instanceID string, maxRetries int, retryDelay time.Duration) *Service {
	return &Service{
		registry:   registry,
		bus:        bus,
		instanceID: instanceID,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Deliver wraps payload in an envelope and delivers it to targetUserID.
// Fast path: a locally connected target is served directly with no
// network hop. Otherwise the envelope goes out on the broadcast channel.
func (s *Service) Deliver(ctx context.Context, envType domain.EnvelopeType, targetUserID int64, payload interface{}) error {
	env, err := domain.NewEnvelope(envType, targetUserID, payload)
	if err != nil {
		return err
	}
	env.OriginInstance = s.instanceID

	if s.registry.DeliverLocal(env) {
		metrics.RelayDeliveredTotal.WithLabelValues("local").Inc()
		return nil
	}

	if err := s.bus.Publish(ctx, env); err != nil {
		metrics.RelayPublishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish envelope: %w", err)
	}

	metrics.RelayPublishedTotal.WithLabelValues("ok").Inc()
	return nil
}

// Run subscribes to the broadcast channel and dispatches incoming
// envelopes until ctx is cancelled
func (s *Service) Run(ctx context.Context) error {
	return s.bus.Listen(ctx, func(env *domain.Envelope) {
		s.handleIncoming(ctx, env)
	})
}

// handleIncoming applies the relay consumption rule: the instance holding
// the target's connection delivers; the originating instance retries;
// everyone else stays silent.
func (s *Service) handleIncoming(ctx context.Context, env *domain.Envelope) {
	if s.registry.DeliverLocal(env) {
		metrics.RelayDeliveredTotal.WithLabelValues("pubsub").Inc()
		return
	}

	if env.OriginInstance == s.instanceID {
		metrics.RelayRetryScheduledTotal.Inc()
		go s.retryLoop(ctx, env)
	}
}

// retryLoop re-checks local connectivity a bounded number of times.
// The attempt counter lives here, not in a recursive callback chain, so
// max-attempts and cancellation are structurally enforced.
func (s *Service) retryLoop(ctx context.Context, env *domain.Envelope) {
	timer := time.NewTimer(s.retryDelay)
	defer timer.Stop()

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if s.registry.DeliverLocal(env) {
			metrics.RelayDeliveredTotal.WithLabelValues("retry").Inc()
			return
		}

		if attempt < s.maxRetries {
			timer.Reset(s.retryDelay)
		}
	}

	// Exhausted: drop silently from the sender's perspective
	metrics.RelayDroppedTotal.Inc()
	logger.Warn("relay message dropped after retries exhausted",
		zap.String("message_id", env.MessageID),
		zap.String("type", string(env.Type)),
		zap.Int64("target_user_id", env.TargetUserID),
		zap.Int("attempts", s.maxRetries))
}
