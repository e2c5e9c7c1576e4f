package call

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paircall-backend/internal/domain"
	"paircall-backend/internal/repository/cockroach"
	apperrors "paircall-backend/pkg/errors"
	"paircall-backend/pkg/logger"
	"paircall-backend/pkg/metrics"
)

// CallStore is the durable call storage the lifecycle manager drives
type CallStore interface {
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	FindActiveForUser(ctx context.Context, userID int64) (*domain.Call, error)
	Finalize(ctx context.Context, call *domain.Call) error
}

// PresenceStore clears in-call markers when a call reaches a terminal state
type PresenceStore interface {
	Clear(ctx context.Context, userID int64) error
}

// Notifier delivers envelopes to users wherever they are connected
type Notifier interface {
	Deliver(ctx context.Context, envType domain.EnvelopeType, targetUserID int64, payload interface{}) error
}

// Service owns call terminal transitions. A call leaves ACTIVE exactly
// once; a second transition attempt fails with CALL_ALREADY_ENDED.
type Service struct {
	calls    CallStore
	presence PresenceStore
	notifier Notifier
}

// NewService creates a new call lifecycle service
func NewService(calls CallStore, presence PresenceStore, notifier Notifier) *Service {
	return &Service{
		calls:    calls,
		presence: presence,
		notifier: notifier,
	}
}

// EndCall finalizes a call as COMPLETED on behalf of a participant and
// notifies both participants
func (s *Service) EndCall(ctx context.Context, callID uuid.UUID, requestingUserID int64) error {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, cockroach.ErrCallNotFound) {
			return apperrors.CallNotFound(callID.String())
		}
		return apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to load call", err)
	}

	if _, isParticipant := call.PartnerOf(requestingUserID); !isParticipant {
		return apperrors.NewWithStatus(apperrors.ErrCodeValidation,
			"user is not a participant of this call", 403)
	}

	if err := s.finalize(ctx, call, domain.CallStatusCompleted, domain.EndReasonCallEnded); err != nil {
		return err
	}

	s.notifyEnded(ctx, call.User1ID, call, domain.EndReasonCallEnded, 0)
	s.notifyEnded(ctx, call.User2ID, call, domain.EndReasonCallEnded, 0)

	return nil
}

// CancelCall finalizes a call that never connected as CANCELLED
func (s *Service) CancelCall(ctx context.Context, callID uuid.UUID) error {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, cockroach.ErrCallNotFound) {
			return apperrors.CallNotFound(callID.String())
		}
		return apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to load call", err)
	}

	return s.finalize(ctx, call, domain.CallStatusCancelled, "cancelled")
}

// EndActiveCallForUser finalizes whatever ACTIVE call the user participates
// in and notifies only the other participant. Used by disconnect cleanup;
// a user without an active call is not an error.
func (s *Service) EndActiveCallForUser(ctx context.Context, userID int64) error {
	call, err := s.finalizeActiveForUser(ctx, userID, domain.EndReasonPartnerDisconnected)
	if err != nil || call == nil {
		return err
	}

	partnerID, _ := call.PartnerOf(userID)
	s.notifyEnded(ctx, partnerID, call, domain.EndReasonPartnerDisconnected, userID)

	return nil
}

// FinalizeActiveCallForUser finalizes the user's ACTIVE call without
// notifying anyone. Callers that deliver their own call-ended envelope
// use this so the partner hears about the end exactly once. Returns the
// finalized call, or nil when the user had none.
func (s *Service) FinalizeActiveCallForUser(ctx context.Context, userID int64) (*domain.Call, error) {
	return s.finalizeActiveForUser(ctx, userID, domain.EndReasonPartnerNextPerson)
}

// finalizeActiveForUser looks up and finalizes the user's ACTIVE call as
// COMPLETED. No call, and losing the finalize race to the partner's own
// cleanup, both return (nil, nil).
func (s *Service) finalizeActiveForUser(ctx context.Context, userID int64, reason string) (*domain.Call, error) {
	call, err := s.calls.FindActiveForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, cockroach.ErrCallNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to find active call", err)
	}

	if err := s.finalize(ctx, call, domain.CallStatusCompleted, reason); err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeCallAlreadyEnded) {
			return nil, nil
		}
		return nil, err
	}

	return call, nil
}

// ForwardSignal passes WebRTC signaling metadata (offer, answer, ICE
// candidate) to the sender's partner. Media never touches the backend;
// only this negotiation metadata does.
func (s *Service) ForwardSignal(ctx context.Context, callID uuid.UUID, senderID int64, signalType string, data json.RawMessage) error {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, cockroach.ErrCallNotFound) {
			return apperrors.CallNotFound(callID.String())
		}
		return apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to load call", err)
	}

	partnerID, isParticipant := call.PartnerOf(senderID)
	if !isParticipant {
		return apperrors.NewWithStatus(apperrors.ErrCodeValidation,
			"user is not a participant of this call", 403)
	}
	if call.IsTerminal() {
		return apperrors.CallAlreadyEnded(callID.String())
	}

	payload := domain.WebRTCSignalPayload{
		Type:     signalType,
		SenderID: senderID,
		CallID:   callID,
		Data:     data,
	}
	if err := s.notifier.Deliver(ctx, domain.EnvelopeWebRTCSignal, partnerID, payload); err != nil {
		logger.Warn("failed to forward webrtc signal",
			zap.Int64("partner_id", partnerID),
			zap.String("signal_type", signalType),
			zap.Error(err))
	}

	return nil
}

// finalize applies the single terminal transition: stamp ended/duration,
// persist with the store-side status guard, clear both presence markers.
func (s *Service) finalize(ctx context.Context, call *domain.Call, status domain.CallStatus, reason string) error {
	if call.IsTerminal() {
		return apperrors.CallAlreadyEnded(call.ID.String())
	}

	call.Finalize(status, time.Now().UTC())

	if err := s.calls.Finalize(ctx, call); err != nil {
		if errors.Is(err, cockroach.ErrNotActive) {
			return apperrors.CallAlreadyEnded(call.ID.String())
		}
		return apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to finalize call", err)
	}

	// Presence cleanup is best-effort: markers carry a TTL and expire on
	// their own if these deletes fail
	if err := s.presence.Clear(ctx, call.User1ID); err != nil {
		logger.Warn("failed to clear presence after call end",
			zap.Int64("user_id", call.User1ID), zap.Error(err))
	}
	if err := s.presence.Clear(ctx, call.User2ID); err != nil {
		logger.Warn("failed to clear presence after call end",
			zap.Int64("user_id", call.User2ID), zap.Error(err))
	}

	metrics.CallEndedTotal.WithLabelValues(string(status), reason).Inc()
	if call.DurationSeconds != nil {
		metrics.CallDurationSeconds.Observe(float64(*call.DurationSeconds))
	}

	return nil
}

func (s *Service) notifyEnded(ctx context.Context, targetUserID int64, call *domain.Call, reason string, partnerID int64) {
	payload := domain.CallEndedPayload{
		CallID:    call.ID,
		Reason:    reason,
		PartnerID: partnerID,
	}
	if err := s.notifier.Deliver(ctx, domain.EnvelopeCallEnded, targetUserID, payload); err != nil {
		logger.Warn("failed to deliver call-ended notification",
			zap.Int64("target_user_id", targetUserID),
			zap.String("call_id", call.ID.String()),
			zap.Error(err))
	}
}
