package matchmaking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paircall-backend/internal/domain"
	"paircall-backend/internal/repository/cockroach"
	apperrors "paircall-backend/pkg/errors"
	"paircall-backend/pkg/logger"
	"paircall-backend/pkg/metrics"
)

// QueueStore is the shared FIFO waiting queue
type QueueStore interface {
	Enqueue(ctx context.Context, userID int64) error
	EnqueueFront(ctx context.Context, userID int64) error
	DequeueTwo(ctx context.Context) (int64, int64, bool, error)
	Remove(ctx context.Context, userID int64) error
	Size(ctx context.Context) (int64, error)
	Members(ctx context.Context) ([]int64, error)
}

// PresenceStore tracks which users are currently in a call and with whom
type PresenceStore interface {
	SetPartner(ctx context.Context, userID, partnerID int64) error
	Partner(ctx context.Context, userID int64) (int64, bool, error)
	IsInCall(ctx context.Context, userID int64) (bool, error)
	Clear(ctx context.Context, userID int64) error
}

// SessionStore maps users to their live connection identifiers
type SessionStore interface {
	Save(ctx context.Context, userID int64, sessionID string) error
	Get(ctx context.Context, userID int64) (string, bool, error)
	Refresh(ctx context.Context, userID int64) error
	Remove(ctx context.Context, userID int64) error
}

// UserStore resolves queued identifiers to real users
type UserStore interface {
	GetByID(ctx context.Context, userID int64) (*domain.User, error)
	SetOnline(ctx context.Context, userID int64, online bool) error
}

// CallStore creates call records for fresh pairs and backs the
// desync check against durable state
type CallStore interface {
	Create(ctx context.Context, call *domain.Call) error
	FindActiveForUser(ctx context.Context, userID int64) (*domain.Call, error)
}

// CallEnder finalizes whatever active call a user participates in.
// Implemented by the call lifecycle service. The finalize-only variant
// is for callers that deliver their own call-ended notification.
type CallEnder interface {
	EndActiveCallForUser(ctx context.Context, userID int64) error
	FinalizeActiveCallForUser(ctx context.Context, userID int64) (*domain.Call, error)
}

// Notifier delivers envelopes to users wherever they are connected
type Notifier interface {
	Deliver(ctx context.Context, envType domain.EnvelopeType, targetUserID int64, payload interface{}) error
}

// Service pairs waiting users into calls and tears their state down on
// disconnect. It holds no pairing state of its own; everything lives in
// the shared stores, so any instance can run any operation.
type Service struct {
	queue     QueueStore
	presence  PresenceStore
	sessions  SessionStore
	users     UserStore
	calls     CallStore
	callEnder CallEnder
	notifier  Notifier
}

// NewService creates a new matchmaking service
func NewService(
	queue QueueStore,
	presence PresenceStore,
	sessions SessionStore,
	users UserStore,
	calls CallStore,
	callEnder CallEnder,
	notifier Notifier,
) *Service {
	return &Service{
		queue:     queue,
		presence:  presence,
		sessions:  sessions,
		users:     users,
		calls:     calls,
		callEnder: callEnder,
		notifier:  notifier,
	}
}

// RegisterSession records the user's live connection identifier and
// marks them online
func (s *Service) RegisterSession(ctx context.Context, userID int64, sessionID string) error {
	if err := s.sessions.Save(ctx, userID, sessionID); err != nil {
		return apperrors.StoreUnavailable(err)
	}
	if err := s.users.SetOnline(ctx, userID, true); err != nil {
		logger.Warn("failed to mark user online",
			zap.Int64("user_id", userID), zap.Error(err))
	}
	return nil
}

// TouchSession restarts the TTL on the user's session record. Called as
// frames arrive, so a connection outliving the record TTL stays
// discoverable. Best-effort; the record is re-created on reconnect.
func (s *Service) TouchSession(ctx context.Context, userID int64) {
	if err := s.sessions.Refresh(ctx, userID); err != nil {
		logger.Debug("failed to refresh session record",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

// IsConnected reports whether the user holds a live session record on
// any instance
func (s *Service) IsConnected(ctx context.Context, userID int64) (bool, error) {
	_, ok, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return false, apperrors.StoreUnavailable(err)
	}
	return ok, nil
}

// JoinQueue adds the user to the waiting queue and attempts a match.
//
// A user whose presence marker claims they are in a call is checked
// against durable call state first: a real ACTIVE call rejects the join
// with ALREADY_IN_CALL, while a marker with no call behind it is stale
// residue from an incomplete cleanup and is repaired in place, so a
// crashed session never locks a user out of matchmaking.
func (s *Service) JoinQueue(ctx context.Context, userID int64) error {
	inCall, err := s.presence.IsInCall(ctx, userID)
	if err != nil {
		metrics.MatchmakingQueueJoinTotal.WithLabelValues("error").Inc()
		return apperrors.StoreUnavailable(err)
	}

	if inCall {
		_, err := s.calls.FindActiveForUser(ctx, userID)
		switch {
		case err == nil:
			metrics.MatchmakingQueueJoinTotal.WithLabelValues("rejected").Inc()
			return apperrors.AlreadyInCall(userID)
		case errors.Is(err, cockroach.ErrCallNotFound):
			s.recoverStalePresence(ctx, userID)
		default:
			metrics.MatchmakingQueueJoinTotal.WithLabelValues("error").Inc()
			return apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to check active call", err)
		}
	}

	if err := s.queue.Enqueue(ctx, userID); err != nil {
		metrics.MatchmakingQueueJoinTotal.WithLabelValues("error").Inc()
		return apperrors.StoreUnavailable(err)
	}

	metrics.MatchmakingQueueJoinTotal.WithLabelValues("ok").Inc()
	logger.Info("user joined matchmaking queue", zap.Int64("user_id", userID))

	s.notifyStatus(ctx, userID, "waiting", "waiting for a partner")

	// Pairing is best-effort here: a failed attempt leaves the user
	// queued, and the next join will pick them up
	if err := s.TryMatch(ctx); err != nil {
		logger.Warn("match attempt after join failed", zap.Error(err))
	}

	return nil
}

// LeaveQueue removes the user from the waiting queue. Removing a user
// who is not queued is a no-op.
func (s *Service) LeaveQueue(ctx context.Context, userID int64) error {
	if err := s.queue.Remove(ctx, userID); err != nil {
		return apperrors.StoreUnavailable(err)
	}
	logger.Info("user left matchmaking queue", zap.Int64("user_id", userID))
	return nil
}

// NextPerson moves the user from their current pairing back into the
// queue. The abandoned partner is notified; the user re-enters via the
// normal join path.
func (s *Service) NextPerson(ctx context.Context, userID int64) error {
	partnerID, hasPartner, err := s.presence.Partner(ctx, userID)
	if err != nil {
		return apperrors.StoreUnavailable(err)
	}

	if hasPartner {
		if err := s.presence.Clear(ctx, userID); err != nil {
			return apperrors.StoreUnavailable(err)
		}
		if err := s.presence.Clear(ctx, partnerID); err != nil {
			logger.Warn("failed to clear partner presence on next-person",
				zap.Int64("partner_id", partnerID), zap.Error(err))
		}

		// Finalize without the lifecycle service's own partner
		// notification; the single next-person envelope below is the
		// only call-ended the partner receives
		ended, err := s.callEnder.FinalizeActiveCallForUser(ctx, userID)
		if err != nil {
			logger.Warn("failed to end active call on next-person",
				zap.Int64("user_id", userID), zap.Error(err))
		}

		payload := domain.CallEndedPayload{
			Reason:    domain.EndReasonPartnerNextPerson,
			PartnerID: userID,
		}
		if ended != nil {
			payload.CallID = ended.ID
		}
		if err := s.notifier.Deliver(ctx, domain.EnvelopeCallEnded, partnerID, payload); err != nil {
			logger.Warn("failed to notify abandoned partner",
				zap.Int64("partner_id", partnerID), zap.Error(err))
		}
	}

	return s.JoinQueue(ctx, userID)
}

// TryMatch attempts to pair the two longest-waiting users. Fewer than
// two waiters is a normal no-op, so the operation is safe to invoke
// redundantly from any instance.
func (s *Service) TryMatch(ctx context.Context) error {
	size, err := s.queue.Size(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue size: %w", err)
	}
	metrics.MatchmakingQueueSize.Set(float64(size))
	if size < 2 {
		return nil
	}

	user1ID, user2ID, ok, err := s.queue.DequeueTwo(ctx)
	if err != nil {
		return fmt.Errorf("failed to dequeue pair: %w", err)
	}
	if !ok {
		return nil
	}

	if user1ID == user2ID {
		// Must never happen: one user queued twice. Keep the user
		// waiting rather than silently dropping them.
		metrics.MatchmakingInvariantViolationTotal.Inc()
		logger.Error("dequeued the same user twice, restoring queue entry",
			zap.Int64("user_id", user1ID))
		if err := s.queue.Enqueue(ctx, user1ID); err != nil {
			logger.Error("failed to restore duplicate queue entry",
				zap.Int64("user_id", user1ID), zap.Error(err))
		}
		return apperrors.InvariantViolation(
			fmt.Sprintf("user %d dequeued as their own partner", user1ID))
	}

	user1, err1 := s.users.GetByID(ctx, user1ID)
	user2, err2 := s.users.GetByID(ctx, user2ID)
	if err1 != nil || err2 != nil {
		s.requeueResolvable(ctx, user1ID, err1)
		s.requeueResolvable(ctx, user2ID, err2)
		return nil
	}

	call := domain.NewCall(user1ID, user2ID, domain.CallTypeVideo)
	if err := s.calls.Create(ctx, call); err != nil {
		// Without a call record there is no pairing; put both back at
		// the head so they keep their queue position
		if reqErr := s.queue.EnqueueFront(ctx, user1ID); reqErr != nil {
			logger.Error("failed to restore user after call create failure",
				zap.Int64("user_id", user1ID), zap.Error(reqErr))
		}
		if reqErr := s.queue.EnqueueFront(ctx, user2ID); reqErr != nil {
			logger.Error("failed to restore user after call create failure",
				zap.Int64("user_id", user2ID), zap.Error(reqErr))
		}
		return fmt.Errorf("failed to create call record: %w", err)
	}

	// Presence writes carry a TTL; a failure here heals on its own and
	// the join-path desync check covers the gap
	if err := s.presence.SetPartner(ctx, user1ID, user2ID); err != nil {
		logger.Warn("failed to set presence", zap.Int64("user_id", user1ID), zap.Error(err))
	}
	if err := s.presence.SetPartner(ctx, user2ID, user1ID); err != nil {
		logger.Warn("failed to set presence", zap.Int64("user_id", user2ID), zap.Error(err))
	}

	metrics.MatchmakingPairTotal.Inc()
	logger.Info("matched users into call",
		zap.Int64("user1_id", user1ID),
		zap.Int64("user2_id", user2ID),
		zap.String("call_id", call.ID.String()))

	s.notifyMatch(ctx, user1ID, call.ID, user2)
	s.notifyMatch(ctx, user2ID, call.ID, user1)

	return nil
}

// CleanupUserOnDisconnect releases everything a departed user holds:
// queue slot, active call, session record, online flag. Every step is
// independent and best-effort, and re-running against already-clean
// state changes nothing.
func (s *Service) CleanupUserOnDisconnect(ctx context.Context, userID int64, trigger string) {
	metrics.CleanupRunTotal.WithLabelValues(trigger).Inc()
	logger.Info("cleaning up user state",
		zap.Int64("user_id", userID), zap.String("trigger", trigger))

	if err := s.queue.Remove(ctx, userID); err != nil {
		logger.Warn("cleanup: failed to remove user from queue",
			zap.Int64("user_id", userID), zap.Error(err))
	}

	if err := s.callEnder.EndActiveCallForUser(ctx, userID); err != nil {
		logger.Warn("cleanup: failed to end active call",
			zap.Int64("user_id", userID), zap.Error(err))
	}

	if err := s.sessions.Remove(ctx, userID); err != nil {
		logger.Warn("cleanup: failed to remove session record",
			zap.Int64("user_id", userID), zap.Error(err))
	}

	if err := s.users.SetOnline(ctx, userID, false); err != nil {
		logger.Warn("cleanup: failed to mark user offline",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

// QueueSize reports how many users are currently waiting
func (s *Service) QueueSize(ctx context.Context) (int64, error) {
	size, err := s.queue.Size(ctx)
	if err != nil {
		return 0, apperrors.StoreUnavailable(err)
	}
	return size, nil
}

// WaitingUsers returns the ids currently queued, in FIFO order
func (s *Service) WaitingUsers(ctx context.Context) ([]int64, error) {
	members, err := s.queue.Members(ctx)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return members, nil
}

// recoverStalePresence clears a presence marker that has no durable
// ACTIVE call behind it, for the user and their recorded partner
func (s *Service) recoverStalePresence(ctx context.Context, userID int64) {
	partnerID, hasPartner, err := s.presence.Partner(ctx, userID)
	if err != nil {
		logger.Warn("failed to read partner during stale presence recovery",
			zap.Int64("user_id", userID), zap.Error(err))
	}

	if err := s.presence.Clear(ctx, userID); err != nil {
		logger.Warn("failed to clear stale presence",
			zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if hasPartner {
		if err := s.presence.Clear(ctx, partnerID); err != nil {
			logger.Warn("failed to clear stale partner presence",
				zap.Int64("partner_id", partnerID), zap.Error(err))
		}
	}

	metrics.MatchmakingStalePresenceRecoveredTotal.Inc()
	logger.Info("recovered stale presence marker",
		zap.Int64("user_id", userID), zap.Bool("had_partner", hasPartner))
}

// requeueResolvable puts a user back at the tail unless the lookup
// proved they no longer exist. An inconclusive lookup keeps the user
// waiting rather than dropping them.
func (s *Service) requeueResolvable(ctx context.Context, userID int64, lookupErr error) {
	if errors.Is(lookupErr, cockroach.ErrUserNotFound) {
		logger.Warn("dropping unknown user from queue", zap.Int64("user_id", userID))
		return
	}
	if lookupErr != nil {
		logger.Warn("user lookup failed during match, re-queueing",
			zap.Int64("user_id", userID), zap.Error(lookupErr))
	}

	if err := s.queue.Enqueue(ctx, userID); err != nil {
		logger.Error("failed to re-queue user after match failure",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *Service) notifyMatch(ctx context.Context, targetUserID int64, callID uuid.UUID, peer *domain.User) {
	payload := domain.MatchFoundPayload{
		CallID:   callID,
		PeerID:   peer.ID,
		PeerName: peer.DisplayName,
	}
	if err := s.notifier.Deliver(ctx, domain.EnvelopeMatchFound, targetUserID, payload); err != nil {
		logger.Warn("failed to deliver match-found notification",
			zap.Int64("target_user_id", targetUserID), zap.Error(err))
	}
}

func (s *Service) notifyStatus(ctx context.Context, userID int64, status, message string) {
	payload := domain.QueueStatusPayload{Status: status, Message: message}
	if err := s.notifier.Deliver(ctx, domain.EnvelopeQueueStatus, userID, payload); err != nil {
		logger.Warn("failed to deliver queue status",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}
